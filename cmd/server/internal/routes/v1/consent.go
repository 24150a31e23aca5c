package v1

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/range-medical/consent-api/cmd/server/internal/response"
	"github.com/range-medical/consent-api/internal/pipeline"
	"github.com/range-medical/consent-api/internal/types"
)

type submitResponse struct {
	// ID is empty when the persist stage degraded; the submission is
	// still accepted.
	ID           string   `json:"id,omitempty"`
	SignatureURL string   `json:"signatureUrl,omitempty"`
	PDFURL       string   `json:"pdfUrl,omitempty"`
	CRMContactID string   `json:"crmContactId,omitempty"`
	Pages        int      `json:"pages"`
	Failures     []string `json:"failures,omitempty"`
}

// SubmitConsent runs one signed intake form through the pipeline.
// Incomplete submissions come back 422 with every missing item so the
// client can surface them all at once.
func (h *Handler) SubmitConsent(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Handler.SubmitConsent")
	defer span.End()

	form := types.ConsentForm{}
	if err := c.Bind(&form); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to bind request")
		return c.JSON(http.StatusBadRequest, types.StringError("failed to parse request data"))
	}
	span.AddEvent("parsed request")

	if err := c.Validate(&form); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to validate request")
		return c.JSON(http.StatusBadRequest, types.ValidationError(err))
	}
	span.AddEvent("validated request")
	span.SetAttributes(attribute.String("consentType", form.ConsentType))

	outcome, err := h.pipeline.Submit(ctx, &form)
	if err != nil {
		if errors.Is(err, pipeline.ErrUnknownConsentType) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "unknown consent type")
			return c.JSON(http.StatusNotFound, types.StringError("unknown consent type"))
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		return response.InternalServerError
	}

	if outcome.State == pipeline.StateInvalid {
		span.AddEvent("rejected incomplete submission", trace.WithAttributes(
			attribute.Int("missing", len(outcome.Errors)),
		))
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "rejected incomplete submission")
		return c.JSON(http.StatusUnprocessableEntity, types.NewIntakeError(outcome.Errors))
	}

	id := ""
	if outcome.ConsentID != uuid.Nil {
		id = outcome.ConsentID.String()
	}

	span.SetAttributes(
		attribute.String("consent.id", id),
		attribute.StringSlice("failures", outcome.Failures),
	)
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "accepted submission")
	return c.JSON(http.StatusCreated, submitResponse{
		ID:           id,
		SignatureURL: outcome.SignatureURL,
		PDFURL:       outcome.PDFURL,
		CRMContactID: outcome.CRMContactID,
		Pages:        outcome.Pages,
		Failures:     outcome.Failures,
	})
}
