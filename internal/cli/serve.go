package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"surgicalprep-study/internal/config"
	"surgicalprep-study/internal/domain"
	"surgicalprep-study/internal/infra/local"
	"surgicalprep-study/internal/infra/memory"
	pgloader "surgicalprep-study/internal/infra/postgres"
	redisusage "surgicalprep-study/internal/infra/redis"
	transport "surgicalprep-study/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to host the local backend.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Host the local study backend over the production REST contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var instruments local.InstrumentSource = memory.NewInstrumentBank(sampleInstruments())
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		instruments = pgloader.NewInstrumentLoader(pool)
	}

	var usage local.UsageStore = memory.NewUsageStore()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		usage = redisusage.NewUsageStore(client)
	}

	tier := domain.Tier(cfg.Server.Tier)
	backend := local.NewBackend(instruments, usage, tier)
	srv := transport.NewServer(backend)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting study backend on :%s (tier=%s)", finalPort, backend.Tier())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleInstruments seeds the in-memory bank; with Postgres configured the
// bank comes from the instruments table instead.
func sampleInstruments() []domain.Instrument {
	return []domain.Instrument{
		{ID: "inst-1", Name: "Metzenbaum Scissors", Category: "cutting", Use: "Cutting delicate tissue"},
		{ID: "inst-2", Name: "Mayo Scissors", Category: "cutting", Use: "Cutting heavy tissue and sutures"},
		{ID: "inst-3", Name: "Kelly Forceps", Category: "clamping", Use: "Clamping medium vessels"},
		{ID: "inst-4", Name: "Mosquito Forceps", Category: "clamping", Use: "Clamping small vessels"},
		{ID: "inst-5", Name: "Babcock Forceps", Category: "grasping", Use: "Grasping delicate tissue such as bowel"},
		{ID: "inst-6", Name: "Allis Forceps", Category: "grasping", Use: "Grasping tissue to be excised"},
		{ID: "inst-7", Name: "Army-Navy Retractor", Category: "retracting", Use: "Retracting shallow incisions"},
		{ID: "inst-8", Name: "Weitlaner Retractor", Category: "retracting", Use: "Self-retaining wound retraction"},
		{ID: "inst-9", Name: "Yankauer Suction", Category: "suctioning", Use: "Oropharyngeal suctioning"},
		{ID: "inst-10", Name: "Poole Suction", Category: "suctioning", Use: "Abdominal cavity suctioning"},
	}
}
