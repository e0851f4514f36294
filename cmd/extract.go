package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/contactfinder/internal/extractor"
)

type extractFlags struct {
	mode      string
	sitemap   bool
	threshold int
	maxEmails int
	format    string
	output    string
}

// newExtractCmd creates the 'extract' subcommand.
func newExtractCmd() *cobra.Command {
	var f extractFlags
	cmd := &cobra.Command{
		Use:   "extract <url> [url...]",
		Short: "Find contact email addresses on one or more websites",
		Long: `Fetches each URL and searches it for contact email addresses.

Modes:
  static-only    plain HTTP fetch only
  rendered-only  headless browser only
  auto           static first, browser when static finds fewer than --threshold addresses`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, args, f)
		},
	}
	cmd.Flags().StringVar(&f.mode, "mode", "", "static-only, rendered-only or auto (default from config)")
	cmd.Flags().BoolVar(&f.sitemap, "sitemap", true, "also scan the site's sitemap")
	cmd.Flags().IntVar(&f.threshold, "threshold", 0, "auto mode renders when static finds fewer addresses than this")
	cmd.Flags().IntVar(&f.maxEmails, "max-emails", 0, "cap on addresses kept per site; 0 keeps the config value")
	cmd.Flags().StringVar(&f.format, "format", formatTable, "output format: table, csv, txt or json")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func runExtract(cmd *cobra.Command, args []string, f extractFlags) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	format, err := checkFormat(f.format, formatTable, formatCSV, formatTXT, formatJSON)
	if err != nil {
		return err
	}

	cfg := appInstance.Config().ExtractorConfig()
	if f.mode != "" {
		mode, err := extractor.ParseMode(f.mode)
		if err != nil {
			return err
		}
		cfg.Mode = mode
	}
	if cmd.Flags().Changed("sitemap") {
		cfg.SitemapEnabled = f.sitemap
	}
	if cmd.Flags().Changed("threshold") {
		cfg.EscalationThreshold = f.threshold
	}
	if f.maxEmails > 0 {
		cfg.MaxEmails = f.maxEmails
	}

	var out io.Writer = cmd.OutOrStdout()
	if f.output != "" {
		file, err := os.Create(f.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer file.Close()
		out = file
	}

	logger := appInstance.Logger()
	var failed int
	for _, target := range args {
		res, err := appInstance.Extractor().Extract(cmd.Context(), target, cfg)
		if err != nil && !errors.Is(err, extractor.ErrAllStrategiesFailed) {
			return fmt.Errorf("extract %s: %w", target, err)
		}
		if err != nil {
			failed++
			logger.Warn("no strategy could search the site", zap.String("url", res.URL()))
		}
		runID, err := appInstance.RecordRun(cmd.Context(), res)
		if err != nil {
			logger.Warn("run not recorded", zap.String("url", res.URL()), zap.String("run_id", runID), zap.Error(err))
		} else if runID != "" {
			logger.Debug("run recorded", zap.String("run_id", runID))
		}
		if err := writeResult(out, res, format); err != nil {
			return err
		}
	}
	if failed == len(args) {
		return extractor.ErrAllStrategiesFailed
	}
	return nil
}
