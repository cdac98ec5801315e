package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	pubsubv2 "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gpiradze/webharvest/internal/api"
	"github.com/gpiradze/webharvest/internal/checkpoint"
	"github.com/gpiradze/webharvest/internal/config"
	"github.com/gpiradze/webharvest/internal/logging"
	"github.com/gpiradze/webharvest/internal/orchestrator"
	"github.com/gpiradze/webharvest/internal/publisher"
	pubmemory "github.com/gpiradze/webharvest/internal/publisher/memory"
	pubgcp "github.com/gpiradze/webharvest/internal/publisher/pubsub"
	"github.com/gpiradze/webharvest/internal/rawstore"
	"github.com/gpiradze/webharvest/internal/sites"
	"github.com/gpiradze/webharvest/internal/stage"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Runs the configured pipeline",
		Long: `Executes every step of the pipeline definition in order. Progress is
checkpointed; rerunning after an interruption picks up where the
previous run stopped.`,
		RunE: runPipeline,
	}
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildCheckpointStore(ctx, cfg)
	if err != nil {
		return err
	}
	blobs, err := buildRawStore(ctx, cfg)
	if err != nil {
		return err
	}
	events, closeEvents, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeEvents()

	registry := stage.NewRegistry()
	sites.Register(registry, cfg.Website)

	orch := orchestrator.New(cfg, registry, store, blobs, events, logger, nil)

	if cfg.Status.Enabled {
		statusServer := api.NewServer(cfg.Status.Addr, orch, logger)
		statusServer.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := statusServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("status server shutdown failed", zap.Error(err))
			}
		}()
	}

	if err := orch.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("pipeline interrupted, progress checkpointed")
			return fmt.Errorf("pipeline interrupted: %w", err)
		}
		return fmt.Errorf("run pipeline: %w", err)
	}
	return nil
}

func buildCheckpointStore(ctx context.Context, cfg config.Config) (checkpoint.Store, error) {
	switch cfg.Checkpoint.Provider {
	case "file":
		return checkpoint.NewFileStore(cfg.Checkpoint.Dir)
	case "postgres":
		return checkpoint.NewPostgresStore(ctx, cfg.Checkpoint.DSN)
	case "memory":
		return checkpoint.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("checkpoint provider %q is not supported", cfg.Checkpoint.Provider)
	}
}

func buildRawStore(ctx context.Context, cfg config.Config) (rawstore.Store, error) {
	switch cfg.Storage.Provider {
	case "local":
		return rawstore.NewLocal(cfg.Storage.LocalDir)
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		return rawstore.NewGCS(client, cfg.Storage.GCSBucket)
	case "memory":
		return rawstore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("storage provider %q is not supported", cfg.Storage.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (publisher.Publisher, func(), error) {
	noop := func() {}
	switch cfg.Events.Provider {
	case "none":
		return publisher.NoOp{}, noop, nil
	case "memory":
		return pubmemory.New(), noop, nil
	case "pubsub":
		client, err := pubsubv2.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("create pubsub client: %w", err)
		}
		pub := client.Publisher(cfg.Events.Topic)
		closeFn := func() {
			pub.Stop()
			_ = client.Close()
		}
		return pubgcp.New(pub), closeFn, nil
	default:
		return nil, nil, fmt.Errorf("events provider %q is not supported", cfg.Events.Provider)
	}
}
