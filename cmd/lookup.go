package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/contactfinder/internal/leadership"
)

// newLookupCmd creates the 'lookup' subcommand.
func newLookupCmd() *cobra.Command {
	var (
		company leadership.Company
		model   string
		format  string
	)
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Ask a web-connected AI model for a company's leadership contacts",
		Long: `Sends a research prompt for the company to an OpenRouter-compatible API
and prints the answer. Requests are paced and rate-limit responses are
retried with backoff. The API key is read from ai.api_key,
CONTACTFINDER_AI_API_KEY or OPENROUTER_API_KEY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			f, err := checkFormat(format, formatRaw, formatTable, formatCSV, formatJSON)
			if err != nil {
				return err
			}
			svc := appInstance.Leadership()
			if model == "" {
				model = chooseModel(cmd, svc, appInstance.Config().AI.DefaultModel, appInstance.Logger())
			}
			answer, err := svc.Lookup(cmd.Context(), company, model)
			if err != nil {
				return fmt.Errorf("lookup %s: %w", company.Name, err)
			}
			return writeAnswer(cmd.OutOrStdout(), answer, f)
		},
	}
	cmd.Flags().StringVar(&company.Name, "company", "", "company name")
	cmd.Flags().StringVar(&company.Website, "website", "", "company website")
	cmd.Flags().StringVar(&company.Country, "country", "", "country the company is based in")
	cmd.Flags().StringVar(&model, "model", "", "model id (default: configured model if listed, else the first web-connected model)")
	cmd.Flags().StringVar(&format, "format", formatRaw, "output format: raw, table, csv or json")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("website")
	_ = cmd.MarkFlagRequired("country")
	return cmd
}

// chooseModel prefers the configured model when the API lists it. A failed
// listing falls back to the configured model.
func chooseModel(cmd *cobra.Command, svc *leadership.Service, preferred string, logger *zap.Logger) string {
	models, err := svc.Models(cmd.Context())
	if err != nil {
		logger.Warn("model listing failed; using configured model", zap.String("model", preferred), zap.Error(err))
		return preferred
	}
	model, err := leadership.PickModel(models, preferred)
	if err != nil {
		return preferred
	}
	return model
}
