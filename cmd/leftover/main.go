package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"leftover/internal/config"
	apphttp "leftover/internal/http"
	"leftover/internal/log"
	"leftover/internal/services"
	"leftover/internal/storage"
)

func main() {
	// Optional .env for development runs; the desktop shell sets real env.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	level, _ := log.ParseLevel(cfg.LogLevel)
	logger := log.New(level, "leftover")
	log.SetDefault(logger)

	store, err := storage.NewFileStore(cfg.DataDir, cfg.FlushDebounce, logger.WithComponent("storage"))
	if err != nil {
		logger.Error("Failed to open data directory", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := services.NewSession(ctx, store, services.Options{
		Logger:      logger.WithComponent("engine"),
		PersistUndo: cfg.PersistUndo,
	})
	if err != nil {
		logger.Error("Failed to start session", "error", err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, session, store.Err)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return store.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("Starting server", "port", cfg.Port, "data_dir", cfg.DataDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := session.Close(shutdownCtx); err != nil {
			logger.Error("Session close error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}

	// Run already flushed on ctx cancellation; this catches the case where
	// the writer exited early.
	if err := store.Close(); err != nil {
		logger.Error("Final flush failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
