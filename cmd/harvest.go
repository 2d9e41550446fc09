package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mlefevre/steamharvest/internal/catalog"
	"github.com/mlefevre/steamharvest/internal/config"
	"github.com/mlefevre/steamharvest/internal/extract"
	"github.com/mlefevre/steamharvest/internal/fetcher"
	"github.com/mlefevre/steamharvest/internal/governor"
	"github.com/mlefevre/steamharvest/internal/ledger"
	"github.com/mlefevre/steamharvest/internal/logging"
	"github.com/mlefevre/steamharvest/internal/orchestrator"
	"github.com/mlefevre/steamharvest/internal/progress"
	"github.com/mlefevre/steamharvest/internal/progress/sinks"
	"github.com/mlefevre/steamharvest/internal/schema"
	"github.com/mlefevre/steamharvest/internal/worker"
)

// newHarvestCmd creates the 'harvest' subcommand, which runs the full
// collection loop until the universe is exhausted or the process is
// interrupted.
func newHarvestCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Runs the harvest loop",
		Long: `Discovers the identifier universe from the catalog, skips everything
already persisted, and works through the remainder chunk by chunk at a
pace tuned to the remote's rate limiting.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHarvest(cmd.Context(), refresh)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh-catalog", false, "rebuild the identifier cache from the catalog source")
	return cmd
}

func runHarvest(parent context.Context, refreshCatalog bool) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	universe, err := catalog.LoadUniverse(catalog.Config{
		SourcePath: cfg.Catalog.SourcePath,
		CachePath:  cfg.Catalog.CachePath,
		Refresh:    cfg.Catalog.Refresh || refreshCatalog,
	}, logger)
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}

	led, err := ledger.New(ledger.Config{
		ValidPath:      cfg.Output.ValidPath,
		InvalidPath:    cfg.Output.InvalidPath,
		BatchThreshold: cfg.Output.BatchThreshold,
	}, logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	validator, err := schema.New(cfg.Output.SchemaPath)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}

	hub, metricsSrv, err := buildProgress(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		if err := hub.Close(shutdownCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	gov := governor.New(governor.Config{
		MinConcurrency:       cfg.Pacing.MinConcurrency,
		MaxConcurrency:       cfg.Pacing.MaxConcurrency,
		MinDelay:             cfg.MinDelay(),
		MaxDelay:             cfg.MaxDelay(),
		HistorySize:          cfg.Pacing.HistorySize,
		ThrottleThresholdPct: cfg.Pacing.ThrottleThresholdPct,
	}, logger)

	client := fetcher.New(fetcher.Config{
		BaseURL:       cfg.HTTP.BaseURL,
		UserAgent:     cfg.HTTP.UserAgent,
		Timeout:       cfg.RequestTimeout(),
		RetryAttempts: cfg.HTTP.RetryAttempts,
		RetryBackoff:  cfg.RetryBackoff(),
	}, logger)

	runID := progress.UUIDToBytes(uuid.New())
	pool := worker.New(client, extract.New(logger), validator, led, gov, hub, runID, logger)
	orch := orchestrator.New(orchestrator.Config{
		Universe:  universe,
		ChunkSize: cfg.Harvest.ChunkSize,
		RunID:     runID,
	}, led, pool, gov, led, orchestrator.NewHibernationController(cfg.HibernateCooldown(), logger), hub, logger)

	logger.Info("run starting", zap.String("run_id", uuid.UUID(runID).String()))
	if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("harvest: %w", err)
	}
	return nil
}

// buildProgress assembles the event hub with a log sink and, when enabled,
// a Prometheus sink backed by an HTTP listener.
func buildProgress(cfg config.Config, logger *zap.Logger) (*progress.Hub, *http.Server, error) {
	sinkList := []progress.Sink{sinks.NewLogSink(logger)}

	var srv *http.Server
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		promSink, err := sinks.NewPrometheusSink(registry)
		if err != nil {
			return nil, nil, fmt.Errorf("init metrics sink: %w", err)
		}
		sinkList = append(sinkList, promSink)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics listener failed", zap.Error(err))
			}
		}()
		logger.Info("metrics listener started", zap.Int("port", cfg.Metrics.Port))
	}

	hub := progress.NewHub(progress.Config{Logger: logger}, sinkList...)
	return hub, srv, nil
}
