package cmds

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	listConsentType string
	listLimit       int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List consent records, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, span := tracer.Start(cmd.Context(), "listCmd")
		defer span.End()

		span.SetAttributes(
			attribute.String("consentType", listConsentType),
			attribute.Int("limit", listLimit),
		)

		consentStore, _, err := openStore(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to open store")
			return err
		}

		consents, err := consentStore.List(ctx, listConsentType, listLimit)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to list consents")
			return err
		}

		span.SetAttributes(attribute.Int("count", len(consents)))
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "listed consents")
		return printJSON(consents)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listConsentType, "type", "t", "", "Filter by consent type")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "Maximum records to return")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
