// leftover-init scaffolds a fresh data directory and config file so the
// engine starts from a known-good layout on first launch.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"leftover/internal/config"
	"leftover/internal/core"
	"leftover/internal/log"
	"leftover/internal/services"
	"leftover/internal/storage"
)

func main() {
	_ = godotenv.Load()

	dir := flag.String("dir", "./data", "data directory to scaffold")
	configPath := flag.String("config", config.DefaultConfigPath(), "config file to write")
	sample := flag.Bool("sample", false, "seed sample payment sources and categories")
	flag.Parse()

	logger := log.New(slog.LevelInfo, "leftover-init")
	log.SetDefault(logger)

	if err := config.WriteDefault(*configPath); err != nil {
		if errors.Is(err, os.ErrExist) {
			logger.Info("Config already exists, leaving it alone", "path", *configPath)
		} else {
			logger.Error("Failed to write config", "path", *configPath, "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("Config written", "path", *configPath)
	}

	store, err := storage.NewFileStore(*dir, storage.DefaultDebounce, logger.WithComponent("storage"))
	if err != nil {
		logger.Error("Failed to create data directory", "dir", *dir, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	entities, err := store.LoadEntities(ctx)
	if err != nil {
		logger.Error("Failed to read existing data", "dir", *dir, "error", err)
		os.Exit(1)
	}

	if *sample && len(entities.PaymentSources) == 0 {
		entities.PaymentSources = samplePaymentSources()
		entities.Categories = sampleCategories()
		logger.Info("Seeded sample data",
			"payment_sources", len(entities.PaymentSources),
			"categories", len(entities.Categories))
	}

	if err := store.SaveEntities(ctx, entities); err != nil {
		logger.Error("Failed to write entity files", "dir", *dir, "error", err)
		os.Exit(1)
	}
	if err := store.Close(); err != nil {
		logger.Error("Flush failed", "dir", *dir, "error", err)
		os.Exit(1)
	}

	// Verify the layout loads through the real session path.
	session, err := services.NewSession(ctx, store, services.Options{Logger: logger.WithComponent("engine")})
	if err != nil {
		logger.Error("Scaffolded directory failed to load", "dir", *dir, "error", err)
		os.Exit(1)
	}
	if err := session.Close(ctx); err != nil {
		logger.Error("Session close failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Data directory ready", "dir", *dir)
}

func samplePaymentSources() []core.PaymentSource {
	return []core.PaymentSource{
		{ID: "src-checking", Name: "Checking", Type: core.SourceBank, Balance: core.Money{}, Active: true},
		{ID: "src-cash", Name: "Cash", Type: core.SourceCash, Balance: core.Money{}, Active: true},
		{ID: "src-card", Name: "Credit Card", Type: core.SourceCreditCard, Balance: core.Money{}, Active: true},
	}
}

func sampleCategories() []core.Category {
	return []core.Category{
		{ID: "cat-housing", Name: "Housing"},
		{ID: "cat-utilities", Name: "Utilities"},
		{ID: "cat-subscriptions", Name: "Subscriptions"},
		{ID: "cat-groceries", Name: "Groceries"},
	}
}
