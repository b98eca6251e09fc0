package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ollamad/internal/config"
	"ollamad/internal/httpapi"
	"ollamad/internal/manager"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the HTTP server",
		Example: "  ollamad serve --models-dir ~/models/llm --budget-mb 8192",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, loggerFor(cmd, cfg))
		},
	}
	f := cmd.Flags()
	f.Int("budget-mb", 0, "Memory budget in MB for loaded weights (0=unlimited)")
	f.Int("max-queue-depth", 0, "Requests allowed to wait per model before 429")
	f.Int("workers", 0, "Concurrent forward passes across models (0=NumCPU)")
	f.Int("ctx-size", 0, "Context window passed to the backend (0=backend default)")
	f.Int("threads", 0, "Backend threads (0=backend default)")
	f.Duration("keep-alive", 0, "Unload models idle for this long (default 5m)")
	f.Duration("generate-timeout", 0, "Cap on a single generation (0=none)")
	f.String("cors-origins", "", "Comma-separated CORS origins; enables CORS when set")
	f.String("request-log", "", "Default per-request log level: off|error|info|debug")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	store, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Store:           store,
		ModelsDir:       cfg.ModelsDir,
		Logger:          log,
		Defaults:        cfg.Inference,
		MaxQueueDepth:   cfg.MaxQueueDepth,
		LockTimeout:     cfg.LockTimeout(),
		DrainTimeout:    cfg.DrainTimeout(),
		GenerateTimeout: cfg.GenerateTimeout(),
		BudgetBytes:     cfg.BudgetBytes(),
		Workers:         cfg.Workers,
		ContextSize:     cfg.ContextSize,
		Threads:         cfg.Threads,
	})
	defer mgr.Close()
	mgr.SetEventPublisher(manager.LogPublisher{Log: log})

	httpapi.SetLogger(log)
	if cfg.RequestLog != "" {
		httpapi.SetDefaultLogLevel(cfg.RequestLog)
	}
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins, cfg.CORSMethods, cfg.CORSHeaders)
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).Str("db", cfg.Database).Msg("ollamad listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := mgr.Initialize(gctx); err != nil {
			log.Error().Err(err).Msg("catalog initialization failed")
			return err
		}
		log.Info().Msg("catalog ready")
		return nil
	})
	g.Go(func() error {
		interval := cfg.KeepAlive() / 2
		if interval < time.Second {
			interval = time.Second
		}
		mgr.RunIdleEviction(gctx, cfg.KeepAlive(), interval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		// End in-flight generations first so Shutdown does not wait on streams.
		cancelBase()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown error")
		}
		return nil
	})
	return g.Wait()
}
