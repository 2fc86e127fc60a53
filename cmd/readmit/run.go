package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/xhad/readmit/pkg/citations"
	"github.com/xhad/readmit/pkg/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once in the terminal",
	Long: `Run processes each comma-separated condition in order: it searches PubMed,
summarizes the top abstracts, prints the summary, and finally writes the
abstracts PDF and the summary deck to the output directory.

Conditions that fail are reported and skipped.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringP("terms", "t", "", `comma-separated conditions (default from server.default_terms, e.g. "CHF, Sepsis")`)
	runCmd.Flags().StringP("out", "o", "", "output directory (default export.output_dir)")
	runCmd.Flags().Int("limit", 0, "articles per condition (default scraper.result_limit)")

	rootCmd.AddCommand(runCmd)
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("terms"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetWriter(os.Stderr),
	)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if terms, _ := cmd.Flags().GetString("terms"); terms != "" {
		config.Server.DefaultTerms = terms
	}
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		config.Export.OutputDir = out
	}
	if limit, _ := cmd.Flags().GetInt("limit"); limit != 0 {
		config.Scraper.ResultLimit = limit
	}
	if err := validateConfig(config); err != nil {
		return err
	}

	terms := pipeline.ParseTerms(config.Server.DefaultTerms)
	if len(terms) == 0 {
		return errors.New("provide at least one condition with --terms")
	}

	var fetched int32
	comps, err := buildComponents(ctx, config, logger, func(url string) {
		atomic.AddInt32(&fetched, 1)
	})
	if err != nil {
		return err
	}

	bar := getProgressBar(len(terms), "Processing conditions...")
	summaryTitle := color.New(color.FgCyan, color.Bold).PrintfFunc()

	observer := pipeline.ObserverFunc(func(e pipeline.Event) {
		switch e.Kind {
		case pipeline.EventTermStarted:
			bar.Describe(color.BlueString("Processing: %s", e.Term))
		case pipeline.EventRetrieved:
			bar.Describe(color.BlueString("%s (%d pages fetched)", e.Message, atomic.LoadInt32(&fetched)))
		case pipeline.EventSummary:
			bar.Clear()
			summaryTitle("\n%s Summary:\n", e.Term)
			fmt.Println(e.Summary)
			bar.Add(1)
		case pipeline.EventTermFailed:
			bar.Clear()
			color.Red("\n✗ %s", e.Message)
			bar.Add(1)
		}
	})

	p, err := pipeline.New(pipeline.Config{
		Retriever:     comps.scraper,
		Summarizer:    comps.summarizer,
		Normalizer:    comps.processor,
		Observer:      observer,
		Logger:        logger,
		OverviewTitle: config.Export.OverviewTitle,
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(config.Export.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	abstractsPath := filepath.Join(config.Export.OutputDir, config.Export.AbstractsFile)
	deckPath := filepath.Join(config.Export.OutputDir, config.Export.DeckFile)

	abstracts, err := os.Create(abstractsPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", abstractsPath, err)
	}
	defer abstracts.Close()
	deck, err := os.Create(deckPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", deckPath, err)
	}
	defer deck.Close()

	memory := citations.NewMemory()
	report, err := p.Run(ctx, terms, memory, pipeline.Outputs{Abstracts: abstracts, Deck: deck})
	bar.Finish()
	if err != nil {
		abstracts.Close()
		deck.Close()
		os.Remove(abstractsPath)
		os.Remove(deckPath)
		return err
	}
	if err := errors.Join(abstracts.Close(), deck.Close()); err != nil {
		return fmt.Errorf("failed to write outputs: %w", err)
	}

	if memory.Len() > 0 {
		color.Cyan("\nCitations")
		if err := memory.WriteMarkdown(os.Stdout); err != nil {
			return err
		}
	}

	color.Green("\n✓ Processed %d of %d conditions (%d articles)", len(report.Summaries), len(terms), report.Articles)
	if len(report.Failures) > 0 {
		failed := make([]string, 0, len(report.Failures))
		for _, f := range report.Failures {
			failed = append(failed, f.Term)
		}
		color.Yellow("! Skipped: %s", strings.Join(failed, ", "))
	}
	color.Green("✓ Abstracts: %s", abstractsPath)
	color.Green("✓ Deck:      %s", deckPath)

	if len(report.Summaries) == 0 {
		return fmt.Errorf("all %d condition(s) failed", len(terms))
	}
	return nil
}
