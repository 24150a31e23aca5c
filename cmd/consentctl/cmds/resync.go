package cmds

import (
	"errors"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/range-medical/consent-api/internal/crm"
	"github.com/range-medical/consent-api/internal/logger"
	"github.com/range-medical/consent-api/internal/types"
)

// resyncCmd replays a stored consent into the CRM. Used when the sync
// step degraded during the original submission.
var resyncCmd = &cobra.Command{
	Use:   "resync <consent-id>",
	Short: "Replay a consent record into the CRM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "resyncCmd")
		defer span.End()

		id, err := uuid.Parse(args[0])
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid consent id")
			return err
		}

		span.SetAttributes(attribute.String("consent.id", id.String()))

		consentStore, cfg, err := openStore(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to open store")
			return err
		}

		if cfg.CRM == nil || !cfg.CRM.Enabled {
			err = errors.New("crm is not configured")
			span.RecordError(err)
			span.SetStatus(codes.Error, "crm is not configured")
			return err
		}

		consent, err := consentStore.ByID(ctx, id)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fetch consent")
			return err
		}

		data := consent.AdditionalData.Data()
		sub := &types.ConsentSubmission{
			ConsentType:  consent.ConsentType,
			FirstName:    consent.FirstName,
			LastName:     consent.LastName,
			Email:        consent.Email,
			Phone:        consent.Phone,
			DateOfBirth:  consent.DateOfBirth,
			ConsentDate:  consent.ConsentDate,
			Responses:    data.HealthScreening.Responses,
			Acknowledged: data.Acknowledgments,
			CriticalFlag: data.HealthScreening.G6PDCritical,
			CRMContactID: data.CRMContactID,
		}

		client := crm.NewClient(cfg.CRM.BaseURL, cfg.CRM.APIKey, cfg.CRM.LocationID)
		contactID, err := client.SyncConsent(ctx, sub, consent.PDFURL)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to sync consent")
			return err
		}

		if err := consentStore.AttachCRMContact(ctx, consent.ID, contactID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to attach crm contact")
			return err
		}

		logger.Logger.InfoContext(ctx, "resynced consent",
			"consentId", consent.ID, "contactId", contactID,
		)

		span.SetAttributes(attribute.String("contact.id", contactID))
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "resynced consent")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resyncCmd)
}
