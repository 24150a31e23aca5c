// Package crm syncs signed consents into the clinic's CRM. The sync is
// best-effort: the consent record is already durable before any call
// here, and failures are reported but never surfaced to the patient.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/range-medical/consent-api/internal/types"
)

var tracer = otel.Tracer(
	"github.com/range-medical/consent-api/internal/crm",
)

const apiVersion = "2021-07-28"

// Syncer is the pipeline-facing surface of the CRM integration.
type Syncer interface {
	SyncConsent(ctx context.Context, sub *types.ConsentSubmission, pdfURL string) (string, error)
}

type customField struct {
	Key        string `json:"key"`
	FieldValue string `json:"field_value"`
}

type contactPayload struct {
	FirstName    string        `json:"firstName"`
	LastName     string        `json:"lastName"`
	Email        string        `json:"email"`
	Phone        string        `json:"phone"`
	LocationID   string        `json:"locationId,omitempty"`
	Tags         []string      `json:"tags"`
	CustomFields []customField `json:"customFields"`
	Source       string        `json:"source"`
}

type contactEnvelope struct {
	Contact struct {
		ID string `json:"id"`
	} `json:"contact"`
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	locationID string
}

var _ Syncer = (*Client)(nil)

// NewClient builds a CRM client. There is deliberately no retry layer
// here: the sync step already degrades gracefully, and retrying against
// a slow CRM would hold the submission response open.
func NewClient(baseURL, apiKey, locationID string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		locationID: locationID,
	}
}

// SyncConsent upserts the patient contact and attaches a consent note.
// Returns the CRM contact id. A note failure does not fail the sync;
// the contact upsert is the part the clinic depends on.
func (c *Client) SyncConsent(
	ctx context.Context,
	sub *types.ConsentSubmission,
	pdfURL string,
) (string, error) {
	ctx, span := tracer.Start(ctx, "Client.SyncConsent", trace.WithAttributes(
		attribute.String("consentType", sub.ConsentType),
	))
	defer span.End()

	contactID := sub.CRMContactID
	if contactID == "" {
		found, err := c.searchDuplicate(ctx, sub.Email)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to search for duplicate contact")
			return "", err
		}
		contactID = found
	}

	payload := contactPayload{
		FirstName: sub.FirstName,
		LastName:  sub.LastName,
		Email:     sub.Email,
		Phone:     normalizePhone(sub.Phone),
		Tags:      []string{sub.ConsentType + "-signed"},
		CustomFields: []customField{
			{Key: "g6pd_critical", FieldValue: strconv.FormatBool(sub.CriticalFlag)},
		},
		Source: "consent-api",
	}

	var err error
	if contactID == "" {
		payload.LocationID = c.locationID
		contactID, err = c.createContact(ctx, payload)
	} else {
		err = c.updateContact(ctx, contactID, payload)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upsert contact")
		return "", err
	}

	if err := c.addNote(ctx, contactID, noteBody(sub, pdfURL)); err != nil {
		span.RecordError(err)
		span.AddEvent("note_failed")
	}

	span.SetAttributes(attribute.String("contact.id", contactID))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "synced consent")
	return contactID, nil
}

// searchDuplicate returns the existing contact id for the email, or
// empty when the CRM has none.
func (c *Client) searchDuplicate(ctx context.Context, email string) (string, error) {
	ctx, span := tracer.Start(ctx, "Client.searchDuplicate")
	defer span.End()

	query := url.Values{}
	query.Set("locationId", c.locationID)
	query.Set("email", email)

	var envelope contactEnvelope
	err := c.do(ctx, http.MethodGet, "/contacts/search/duplicate?"+query.Encode(), nil, &envelope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to search duplicate")
		return "", err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "searched duplicate")
	return envelope.Contact.ID, nil
}

func (c *Client) createContact(ctx context.Context, payload contactPayload) (string, error) {
	ctx, span := tracer.Start(ctx, "Client.createContact")
	defer span.End()

	var envelope contactEnvelope
	err := c.do(ctx, http.MethodPost, "/contacts/", payload, &envelope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create contact")
		return "", err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "created contact")
	return envelope.Contact.ID, nil
}

func (c *Client) updateContact(ctx context.Context, id string, payload contactPayload) error {
	ctx, span := tracer.Start(ctx, "Client.updateContact", trace.WithAttributes(
		attribute.String("contact.id", id),
	))
	defer span.End()

	err := c.do(ctx, http.MethodPut, "/contacts/"+id, payload, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update contact")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "updated contact")
	return nil
}

func (c *Client) addNote(ctx context.Context, id, body string) error {
	ctx, span := tracer.Start(ctx, "Client.addNote", trace.WithAttributes(
		attribute.String("contact.id", id),
	))
	defer span.End()

	err := c.do(ctx, http.MethodPost, "/contacts/"+id+"/notes", map[string]string{"body": body}, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to add note")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "added note")
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Version", apiVersion)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("crm returned status %d for %s %s", resp.StatusCode, method, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode crm response: %w", err)
		}
	}

	return nil
}

func noteBody(sub *types.ConsentSubmission, pdfURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s consent signed on %s by %s.\n", sub.ConsentType, sub.ConsentDate, sub.PatientName())
	if sub.CriticalFlag {
		b.WriteString("G6PD CRITICAL: review required before Vitamin C administration.\n")
	}
	if pdfURL != "" {
		fmt.Fprintf(&b, "Signed document: %s", pdfURL)
	}
	return strings.TrimSpace(b.String())
}

// normalizePhone converts US numbers to E.164. Anything that is not a
// recognizable US number passes through untouched for staff to fix in
// the CRM.
func normalizePhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	switch d := digits.String(); {
	case len(d) == 10:
		return "+1" + d
	case len(d) == 11 && d[0] == '1':
		return "+" + d
	default:
		return phone
	}
}
