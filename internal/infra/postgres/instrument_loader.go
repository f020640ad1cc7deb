package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"surgicalprep-study/internal/domain"
)

// InstrumentLoader reads the instrument bank from Postgres JSONB rows.
type InstrumentLoader struct {
	pool *pgxpool.Pool
}

func NewInstrumentLoader(pool *pgxpool.Pool) *InstrumentLoader {
	return &InstrumentLoader{pool: pool}
}

func (l *InstrumentLoader) ListInstruments(ctx context.Context, category string) ([]domain.Instrument, error) {
	query := `SELECT data FROM instruments`
	args := []interface{}{}
	if category != "" {
		query += ` WHERE data->>'category' = $1`
		args = append(args, category)
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()

	var instruments []domain.Instrument
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		var inst domain.Instrument
		if err := json.Unmarshal(raw, &inst); err != nil {
			return nil, fmt.Errorf("unmarshal instrument: %w", err)
		}
		instruments = append(instruments, inst)
	}
	return instruments, rows.Err()
}
