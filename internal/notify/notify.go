// Package notify posts staff alerts for submissions that need human
// attention: critical screening flags and partially-failed pipelines.
// Delivery is best-effort with retries; a dead webhook never fails a
// submission.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/range-medical/consent-api/internal/types"
)

var tracer = otel.Tracer(
	"github.com/range-medical/consent-api/internal/notify",
)

type Notifier interface {
	CriticalScreening(ctx context.Context, sub *types.ConsentSubmission) error
	PipelineDegraded(ctx context.Context, sub *types.ConsentSubmission, failures []string) error
}

// WebhookNotifier posts JSON events to the clinic's internal alert
// webhook (Slack-compatible payload shape).
type WebhookNotifier struct {
	client     *http.Client
	webhookURL string
}

var _ Notifier = (*WebhookNotifier)(nil)

func NewWebhookNotifier(webhookURL string) *WebhookNotifier {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	return &WebhookNotifier{
		client:     retryClient.StandardClient(),
		webhookURL: webhookURL,
	}
}

func (n *WebhookNotifier) CriticalScreening(
	ctx context.Context,
	sub *types.ConsentSubmission,
) error {
	ctx, span := tracer.Start(ctx, "WebhookNotifier.CriticalScreening", trace.WithAttributes(
		attribute.String("consentType", sub.ConsentType),
	))
	defer span.End()

	text := fmt.Sprintf(
		"G6PD ALERT: %s (%s) reported G6PD deficiency or uncertain status on the %s consent signed %s. Confirm G6PD status via lab work before any Vitamin C-containing IV.",
		sub.PatientName(), sub.Email, sub.ConsentType, sub.ConsentDate,
	)

	err := n.post(ctx, map[string]string{"text": text})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to post critical screening alert")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "posted critical screening alert")
	return nil
}

func (n *WebhookNotifier) PipelineDegraded(
	ctx context.Context,
	sub *types.ConsentSubmission,
	failures []string,
) error {
	ctx, span := tracer.Start(ctx, "WebhookNotifier.PipelineDegraded", trace.WithAttributes(
		attribute.String("consentType", sub.ConsentType),
		attribute.StringSlice("failures", failures),
	))
	defer span.End()

	text := fmt.Sprintf(
		"Consent pipeline degraded for %s (%s): %v failed. Review the audit trail and resync with consentctl.",
		sub.PatientName(), sub.Email, failures,
	)

	err := n.post(ctx, map[string]string{"text": text})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to post degraded pipeline alert")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "posted degraded pipeline alert")
	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
