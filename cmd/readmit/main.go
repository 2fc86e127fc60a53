// Command readmit searches PubMed for readmission literature on a list of
// conditions, summarizes it, and exports an abstracts PDF and a slide deck.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	cfgPkg "github.com/xhad/readmit/pkg/config"
)

var (
	config *cfgPkg.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "readmit",
	Short: "Generate readmission reduction strategies from PubMed literature",
	Long: `readmit searches PubMed for each condition, summarizes the retrieved
abstracts into clinical and administrative guidance with a language model,
and exports the abstracts as a PDF and the summaries as a PowerPoint deck.

Use "run" for a single terminal run or "serve" for the interactive web page.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		path, _ := cmd.Flags().GetString("config")
		cfg, err := cfgPkg.LoadConfig(path)
		if err != nil {
			return err
		}
		config = cfg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./config.yaml or ~/.config/readmit/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
}

// validateConfig reports every configuration problem at once.
func validateConfig(cfg *cfgPkg.Config) error {
	problems := cfg.Validate()
	if len(problems) == 0 {
		return nil
	}
	errs := make([]error, 0, len(problems))
	for _, p := range problems {
		color.Red("config: %s", p.Error())
		errs = append(errs, p)
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
