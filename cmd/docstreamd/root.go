package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docstreamhq/docstream/internal/common"
	"github.com/docstreamhq/docstream/internal/export"
	"github.com/docstreamhq/docstream/internal/exportfmt"
	"github.com/docstreamhq/docstream/internal/normalize"
	"github.com/docstreamhq/docstream/internal/objstore"
	"github.com/docstreamhq/docstream/internal/provider"
	"github.com/docstreamhq/docstream/internal/provider/mistral"
	"github.com/docstreamhq/docstream/internal/provider/openai"
	"github.com/docstreamhq/docstream/internal/server"
	"github.com/docstreamhq/docstream/internal/store"
	"github.com/docstreamhq/docstream/internal/textextract"
)

var rootCmd = &cobra.Command{
	Use:          "docstreamd",
	Short:        "Financial document extraction and export service",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func run() error {
	cfg, err := common.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := common.NewLogger(cfg.Log)

	db, err := store.InitDB(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	st := store.NewStore(db)
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	artifacts, err := objstore.NewService(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("init object store: %w", err)
	}
	if err := artifacts.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	registry := provider.NewRegistry(
		openai.NewClient(openai.Config{
			APIKey:      cfg.Provider.APIKey,
			BaseURL:     cfg.Provider.BaseURL,
			Model:       cfg.Provider.Model,
			Temperature: cfg.Provider.Temperature,
			Timeout:     cfg.Provider.Timeout,
			MaxTextLen:  cfg.Provider.MaxTextLen,
		}, logger),
		mistral.NewClient(mistral.Config{
			APIKey:      cfg.Provider.APIKey,
			BaseURL:     cfg.Provider.BaseURL,
			Model:       cfg.Provider.Model,
			Temperature: cfg.Provider.Temperature,
			Timeout:     cfg.Provider.Timeout,
			MaxTextLen:  cfg.Provider.MaxTextLen,
		}, logger),
	)
	backend, err := registry.Select(cfg.Provider.Name)
	if err != nil {
		return err
	}
	logger.Info("provider.selected", "name", backend.Name())

	svc := export.NewService(
		st,
		artifacts,
		textextract.NewExtractor(textextract.Config{
			PdftotextBin: cfg.Extract.PdftotextBin,
			MaxPages:     cfg.Extract.MaxPages,
		}, logger),
		backend,
		normalize.NewNormalizer(logger),
		exportfmt.NewFormatter(),
		export.Config{ExpiryHorizon: cfg.Export.ExpiryHorizon},
		logger,
	)

	srv := server.New(cfg.Server, svc, logger)
	return srv.Start(ctx)
}
