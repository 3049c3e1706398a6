package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"frontdesk/internal/platform/config"
	"frontdesk/internal/platform/httpserver"
	"frontdesk/internal/platform/logger"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.UsesDevSecrets() {
		log.Warn("using development secrets; set JWT_SIGNING_KEY and VERIFICATION_CODE_SECRET")
	}

	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	srv := httpserver.New(cfg.Server.Addr, a.router, httpserver.WithTimeouts(httpserver.Timeouts{
		ReadHeader: cfg.Server.ReadHeaderTimeout,
		Read:       cfg.Server.ReadTimeout,
		Write:      cfg.Server.WriteTimeout,
		Idle:       cfg.Server.IdleTimeout,
	}))

	log.Info("starting frontdesk", "addr", cfg.Server.Addr, "store", cfg.Store.Backend, "blob", cfg.Blob.Backend)
	serveErr := httpserver.Serve(ctx, srv, cfg.Server.ShutdownTimeout)
	if serveErr != nil && ctx.Err() == nil {
		a.shutdown(context.Background(), log)
		return serveErr
	}
	if serveErr != nil {
		log.Error("graceful shutdown failed", "error", serveErr)
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	a.shutdown(shutdownCtx, log)
	return nil
}
