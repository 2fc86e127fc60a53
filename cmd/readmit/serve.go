package main

import (
	"errors"
	"net/http"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/readmit/pkg/metrics"
	"github.com/xhad/readmit/pkg/store"
	"github.com/xhad/readmit/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the interactive web page",
	Long: `Serve starts an HTTP server with a form for entering conditions. Progress
and summaries are streamed over a websocket, and each run's PDF and deck
are offered as downloads. Prometheus metrics are served at /metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default server.addr)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		config.Server.Addr = addr
	}
	if err := validateConfig(config); err != nil {
		return err
	}

	recorder := metrics.New()
	comps, err := buildComponents(ctx, config, logger, recorder.PageFetched)
	if err != nil {
		return err
	}

	artifacts, err := store.NewWithConfig(store.ArtifactStoreConfig{
		Dir:   config.Server.ArtifactDir,
		Names: []string{config.Export.AbstractsFile, config.Export.DeckFile},
	})
	if err != nil {
		return err
	}

	srv, err := server.NewWSServer(server.Config{
		Retriever:     comps.scraper,
		Summarizer:    comps.summarizer,
		Normalizer:    comps.processor,
		Store:         artifacts,
		DefaultTerms:  config.Server.DefaultTerms,
		OverviewTitle: config.Export.OverviewTitle,
		AbstractsFile: config.Export.AbstractsFile,
		DeckFile:      config.Export.DeckFile,
		Logger:        logger.With("component", "server"),
		Metrics:       recorder,
	})
	if err != nil {
		return err
	}

	color.Cyan("Serving on %s (artifacts in %s)", config.Server.Addr, artifacts.Dir())
	if err := srv.ListenAndServe(ctx, config.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
