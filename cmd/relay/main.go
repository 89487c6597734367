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

	"github.com/BioHazard786/webdrop/internal/config"
	"github.com/BioHazard786/webdrop/internal/logging"
	"github.com/BioHazard786/webdrop/internal/relay"
	"github.com/BioHazard786/webdrop/internal/server"
	"github.com/BioHazard786/webdrop/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadRelay(".env")
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	log := logging.New(os.Stderr, logging.ParseLevel(cfg.LogLevel, slog.LevelInfo))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := relay.NewHub(log, cfg.RoomTTL, cfg.SweepInterval)
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.NewRouter(hub, cfg.Origins(), log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("relay listening", "addr", cfg.Addr(), "version", version.Version, "room_ttl", cfg.RoomTTL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "err", err)
	}
}
