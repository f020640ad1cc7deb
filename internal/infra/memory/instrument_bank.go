package memory

import (
	"context"

	"surgicalprep-study/internal/domain"
)

// InstrumentBank is a static in-memory instrument source (useful for tests
// and the CLI's local mode).
type InstrumentBank struct {
	instruments []domain.Instrument
}

func NewInstrumentBank(instruments []domain.Instrument) *InstrumentBank {
	return &InstrumentBank{instruments: instruments}
}

func (b *InstrumentBank) ListInstruments(_ context.Context, category string) ([]domain.Instrument, error) {
	out := make([]domain.Instrument, 0, len(b.instruments))
	for _, inst := range b.instruments {
		if category == "" || inst.Category == category {
			out = append(out, inst)
		}
	}
	return out, nil
}
