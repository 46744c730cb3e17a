package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/stackrabbit/api/internal/config"
	"github.com/freeeve/stackrabbit/api/internal/engine"
	"github.com/freeeve/stackrabbit/api/internal/httpapi"
	"github.com/freeeve/stackrabbit/api/internal/logx"
	"github.com/freeeve/stackrabbit/api/internal/metrics"
	"github.com/freeeve/stackrabbit/api/internal/pool"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "stackrabbit-api",
		Short:        "HTTP API for the StackRabbit move-evaluation engine",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	logger, err := logx.NewLogger(logx.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}

	m := metrics.New()

	proc, err := engine.NewProcess(engine.ProcessConfig{
		Path:   cfg.Engine,
		Args:   cfg.EngineArgs,
		Nice:   cfg.EngineNice,
		Logger: logger.With().Str("component", "engine").Logger(),
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	logger.Info().Str("engine", cfg.Engine).Strs("args", cfg.EngineArgs).Msg("engine resolved")

	workers := pool.New(pool.Config{
		Logger:     logger.With().Str("component", "pool").Logger(),
		NumWorkers: cfg.Workers,
		MaxPending: cfg.MaxPending,
		Metrics:    m,
	})

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.NewRouter(httpapi.RouterConfig{
			Logger:     logger.With().Str("component", "http").Logger(),
			Pool:       workers,
			Engine:     engine.Instrument(proc, m),
			Metrics:    m,
			CORSOrigin: cfg.CORSOrigin,
			RateLimit:  cfg.RateLimit,
			RateBurst:  cfg.RateBurst,
		}),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Int("workers", workers.Size()).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		// Stop accepting requests before closing the pool so no handler
		// submits after shutdown.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http server shutdown error")
		}
		return nil
	})

	err = g.Wait()
	if err != nil {
		logger.Error().Err(err).Msg("server stopped")
	}

	// Anything still queued runs to completion before exit.
	workers.Shutdown()

	logger.Info().Msg("shutdown complete")
	return err
}
