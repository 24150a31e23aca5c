package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/range-medical/consent-api/cmd/server/internal/response"
)

// GetCatalog serves the screening questions and acknowledgment texts for
// a consent type so the intake UI always renders the same versioned
// content the generated document will carry. Without ?type= it lists the
// available consent types.
func (h *Handler) GetCatalog(c echo.Context) error {
	_, span := tracer.Start(c.Request().Context(), "Handler.GetCatalog")
	defer span.End()

	consentType := c.QueryParam("type")
	if consentType == "" {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "listed consent types")
		return c.JSON(http.StatusOK, h.catalogs.Types())
	}

	span.SetAttributes(attribute.String("consentType", consentType))

	cat, ok := h.catalogs.Get(consentType)
	if !ok {
		span.AddEvent("unknown consent type", trace.WithAttributes(
			attribute.String("consentType", consentType),
		))
		span.SetStatus(codes.Error, "unknown consent type")
		return response.NotFoundError
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "served catalog")
	return c.JSON(http.StatusOK, cat)
}
