package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"enrollgate/internal/platform/config"
	"enrollgate/internal/platform/logger"
)

const (
	shutdownTimeout   = 10 * time.Second
	poolStatsInterval = 15 * time.Second
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	log.Info("initializing enrollgate",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
	)

	if err := run(cfg, log); err != nil {
		log.Error("enrollgate exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := app.sweep.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if app.redis != nil {
		g.Go(func() error {
			app.redis.RunStatsLoop(gctx, poolStatsInterval)
			return nil
		})
	}
	if app.db != nil {
		g.Go(func() error {
			ticker := time.NewTicker(poolStatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					app.db.RecordPoolStats()
				}
			}
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		app.sweep.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
