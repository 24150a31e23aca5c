package cmds

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var showCmd = &cobra.Command{
	Use:   "show <consent-id>",
	Short: "Show a single consent record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "showCmd")
		defer span.End()

		id, err := uuid.Parse(args[0])
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid consent id")
			return err
		}

		span.SetAttributes(attribute.String("consent.id", id.String()))

		consentStore, _, err := openStore(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to open store")
			return err
		}

		consent, err := consentStore.ByID(ctx, id)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fetch consent")
			return err
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "fetched consent")
		return printJSON(consent)
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
