package pipeline_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/range-medical/consent-api/internal/catalog"
	"github.com/range-medical/consent-api/internal/crm"
	"github.com/range-medical/consent-api/internal/document"
	"github.com/range-medical/consent-api/internal/intake"
	"github.com/range-medical/consent-api/internal/models"
	"github.com/range-medical/consent-api/internal/pipeline"
	"github.com/range-medical/consent-api/internal/types"
)

// 1x1 transparent PNG
const signatureDataURL = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

const testCatalogYAML = `
type: iv
version: "2026-01"
title: "IV & Injection Therapy — Informed Consent"
description:
  - Elective wellness therapy administered intravenously.
risks_intro: "Risks include but are not limited to:"
risks:
  - Bruising at the insertion site
  - Allergic reaction
critical_alert: "G6PD ALERT: confirm status via lab work before Vitamin C."
signature_notice: "By signing below I consent to treatment."
questions:
  - key: g6pd
    label: G6PD Deficiency
    prompt: Do you have G6PD deficiency?
    options: ["Yes", "No", "Unsure"]
    critical: true
    error_label: G6PD deficiency question
  - key: allergies
    label: Known Allergies
    prompt: Do you have any known allergies?
    options: ["Yes", "No"]
    error_label: Allergies question
acknowledgments:
  - id: ack1
    text: I understand these are elective wellness services.
  - id: ack2
    text: I accept the disclosed risks voluntarily.
`

type fakeStore struct {
	mu        sync.Mutex
	inserted  []*models.Consent
	attached  map[uuid.UUID]string
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{attached: map[uuid.UUID]string{}}
}

func (f *fakeStore) Insert(_ context.Context, consent *models.Consent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	consent.ID = uuid.New()
	f.inserted = append(f.inserted, consent)
	return nil
}

func (f *fakeStore) AttachCRMContact(_ context.Context, id uuid.UUID, contactID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached[id] = contactID
	return nil
}

type fakeArtifactStore struct {
	mu       sync.Mutex
	uploaded map[string]string // key -> contentType
	failFor  string            // key prefix that fails
	failAll  bool
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{uploaded: map[string]string{}}
}

func (f *fakeArtifactStore) Upload(
	_ context.Context,
	_ io.ReadSeeker,
	_ int64,
	key, contentType string,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll || (f.failFor != "" && strings.HasPrefix(key, f.failFor)) {
		return errors.New("store unavailable")
	}
	f.uploaded[key] = contentType
	return nil
}

func (f *fakeArtifactStore) StoreIdentifier(_ context.Context) (string, error) {
	return "consent-artifacts", nil
}

func (f *fakeArtifactStore) PublicReadURL(_ context.Context, key string) (string, error) {
	return "https://store.example.com/consent-artifacts/" + key, nil
}

type fakeSyncer struct {
	mu        sync.Mutex
	synced    []*types.ConsentSubmission
	contactID string
	err       error
}

func (f *fakeSyncer) SyncConsent(
	_ context.Context,
	sub *types.ConsentSubmission,
	_ string,
) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.synced = append(f.synced, sub)
	return f.contactID, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	critical []*types.ConsentSubmission
	degraded [][]string
}

func (f *fakeNotifier) CriticalScreening(_ context.Context, sub *types.ConsentSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.critical = append(f.critical, sub)
	return nil
}

func (f *fakeNotifier) PipelineDegraded(
	_ context.Context,
	_ *types.ConsentSubmission,
	failures []string,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.degraded = append(f.degraded, failures)
	return nil
}

type harness struct {
	controller *pipeline.Controller
	store      *fakeStore
	artifacts  *fakeArtifactStore
	syncer     *fakeSyncer
	notifier   *fakeNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cat, err := catalog.Parse([]byte(testCatalogYAML))
	require.NoError(t, err)

	h := &harness{
		store:     newFakeStore(),
		artifacts: newFakeArtifactStore(),
		syncer:    &fakeSyncer{contactID: "contact-1"},
		notifier:  &fakeNotifier{},
	}

	assembler := document.NewAssembler(document.Clinic{
		Name:    "Range Medical",
		Address: "123 Main St, Park City, UT",
		Phone:   "(435) 555-0100",
	})

	h.controller = pipeline.NewController(
		catalog.NewSet(cat),
		assembler,
		h.artifacts,
		h.store,
		h.syncer,
		h.notifier,
	).WithClock(func() time.Time { return time.UnixMilli(1756300000000) })

	return h
}

func validForm() *types.ConsentForm {
	return &types.ConsentForm{
		ConsentType: "iv",
		FirstName:   "Jane",
		LastName:    "Doe",
		Email:       "jane@example.com",
		Phone:       "(555) 123-4567",
		DateOfBirth: "01/15/1990",
		Screening: map[string]types.ScreeningAnswer{
			"g6pd":      {Answer: types.AnswerNo},
			"allergies": {Answer: types.AnswerNo},
		},
		Acknowledged:  map[string]bool{"ack1": true, "ack2": true},
		SignatureData: signatureDataURL,
	}
}

func TestSubmit(t *testing.T) {
	t.Run("FullPipelineSucceeds", func(t *testing.T) {
		h := newHarness(t)

		outcome, err := h.controller.Submit(context.Background(), validForm())

		require.NoError(t, err)
		assert.Equal(t, pipeline.StateSucceeded, outcome.State)
		assert.Empty(t, outcome.Failures)
		assert.NotEqual(t, uuid.Nil, outcome.ConsentID)
		assert.Greater(t, outcome.Pages, 0)

		assert.Equal(t,
			"https://store.example.com/consent-artifacts/signatures/jane-doe-1756300000000.png",
			outcome.SignatureURL,
		)
		assert.Equal(t,
			"https://store.example.com/consent-artifacts/consents/iv-consent-jane-doe-1756300000000.pdf",
			outcome.PDFURL,
		)

		assert.Equal(t, "image/png", h.artifacts.uploaded["signatures/jane-doe-1756300000000.png"])
		assert.Equal(t, "application/pdf", h.artifacts.uploaded["consents/iv-consent-jane-doe-1756300000000.pdf"])

		require.Len(t, h.store.inserted, 1)
		consent := h.store.inserted[0]
		assert.True(t, consent.ConsentGiven)
		assert.Equal(t, outcome.SignatureURL, consent.SignatureURL)
		assert.Equal(t, outcome.PDFURL, consent.PDFURL)

		data := consent.AdditionalData.Data()
		assert.False(t, data.HealthScreening.G6PDCritical)
		assert.Len(t, data.HealthScreening.Responses, 2)
		assert.Len(t, data.Acknowledgments, 2)
		assert.Equal(t, "2026-01", data.CatalogVersion)

		assert.Equal(t, "contact-1", outcome.CRMContactID)
		assert.Equal(t, "contact-1", h.store.attached[outcome.ConsentID])
		assert.Empty(t, h.notifier.critical)
		assert.Empty(t, h.notifier.degraded)
	})

	t.Run("UnsureCriticalAnswerRaisesFlag", func(t *testing.T) {
		h := newHarness(t)

		form := validForm()
		form.Screening["g6pd"] = types.ScreeningAnswer{Answer: types.AnswerUnsure}

		outcome, err := h.controller.Submit(context.Background(), form)

		require.NoError(t, err)
		assert.Equal(t, pipeline.StateSucceeded, outcome.State)

		require.Len(t, h.store.inserted, 1)
		assert.True(t, h.store.inserted[0].AdditionalData.Data().HealthScreening.G6PDCritical)

		require.Len(t, h.notifier.critical, 1)
		assert.True(t, h.notifier.critical[0].CriticalFlag)

		require.Len(t, h.syncer.synced, 1)
		assert.True(t, h.syncer.synced[0].CriticalFlag)
	})

	t.Run("ValidationReportsEverythingAtOnce", func(t *testing.T) {
		h := newHarness(t)

		outcome, err := h.controller.Submit(context.Background(), &types.ConsentForm{
			ConsentType: "iv",
		})

		require.NoError(t, err)
		assert.Equal(t, pipeline.StateInvalid, outcome.State)
		assert.ElementsMatch(t, []string{
			"First Name", "Last Name", "Email", "Phone", "Date of Birth",
			"G6PD deficiency question", "Allergies question",
			intake.AggregateAckError, intake.SignatureError,
		}, outcome.Errors)

		assert.Empty(t, h.store.inserted, "invalid submission must not persist")
		assert.Empty(t, h.artifacts.uploaded)
	})

	t.Run("UnknownConsentType", func(t *testing.T) {
		h := newHarness(t)

		form := validForm()
		form.ConsentType = "cryotherapy"

		_, err := h.controller.Submit(context.Background(), form)

		require.ErrorIs(t, err, pipeline.ErrUnknownConsentType)
	})

	t.Run("SignatureUploadFailureIsIsolated", func(t *testing.T) {
		h := newHarness(t)
		h.artifacts.failFor = "signatures/"

		outcome, err := h.controller.Submit(context.Background(), validForm())

		require.NoError(t, err)
		assert.Equal(t, pipeline.StateSucceeded, outcome.State)
		assert.Empty(t, outcome.SignatureURL)
		assert.NotEmpty(t, outcome.PDFURL)
		assert.Equal(t, []string{"signature-upload"}, outcome.Failures)

		require.Len(t, h.store.inserted, 1)
		assert.Empty(t, h.store.inserted[0].SignatureURL, "record keeps empty URL for failed upload")
		assert.NotEmpty(t, h.store.inserted[0].PDFURL)

		require.Len(t, h.notifier.degraded, 1)
		assert.Equal(t, []string{"signature-upload"}, h.notifier.degraded[0])
	})

	t.Run("BothUploadsFailingStillPersistsAndSyncs", func(t *testing.T) {
		h := newHarness(t)
		h.artifacts.failAll = true

		outcome, err := h.controller.Submit(context.Background(), validForm())

		require.NoError(t, err)
		assert.Equal(t, pipeline.StateSucceeded, outcome.State)
		assert.Empty(t, outcome.SignatureURL)
		assert.Empty(t, outcome.PDFURL)
		assert.ElementsMatch(t, []string{"signature-upload", "document-upload"}, outcome.Failures)

		require.Len(t, h.store.inserted, 1, "record persists with empty URLs")
		assert.Empty(t, h.store.inserted[0].SignatureURL)
		assert.Empty(t, h.store.inserted[0].PDFURL)

		assert.Equal(t, "contact-1", outcome.CRMContactID, "crm sync still attempted")

		require.Len(t, h.notifier.degraded, 1)
		assert.ElementsMatch(t, []string{"signature-upload", "document-upload"}, h.notifier.degraded[0])
	})

	t.Run("MalformedSignatureFailsTerminally", func(t *testing.T) {
		h := newHarness(t)

		form := validForm()
		form.SignatureData = "data:image/png;base64,%%%not-base64%%%"

		outcome, err := h.controller.Submit(context.Background(), form)

		require.Error(t, err)
		assert.Equal(t, pipeline.StateFailed, outcome.State)
		assert.Empty(t, h.store.inserted)
		assert.Empty(t, h.artifacts.uploaded)
	})

	t.Run("StoreFailureDoesNotFailSubmission", func(t *testing.T) {
		h := newHarness(t)
		h.store.insertErr = errors.New("database down")

		outcome, err := h.controller.Submit(context.Background(), validForm())

		require.NoError(t, err)
		assert.Equal(t, pipeline.StateSucceeded, outcome.State)
		assert.Equal(t, uuid.Nil, outcome.ConsentID)
		assert.Contains(t, outcome.Failures, "persist")

		assert.Equal(t, "contact-1", outcome.CRMContactID, "crm sync still attempted")
		assert.Empty(t, h.store.attached, "no row to attach the contact to")

		require.Len(t, h.notifier.degraded, 1)
	})

	t.Run("CRMFailureDoesNotFailSubmission", func(t *testing.T) {
		h := newHarness(t)
		h.syncer.err = errors.New("crm timeout")

		outcome, err := h.controller.Submit(context.Background(), validForm())

		require.NoError(t, err)
		assert.Equal(t, pipeline.StateSucceeded, outcome.State)
		assert.Empty(t, outcome.CRMContactID)
		assert.Contains(t, outcome.Failures, "crm-sync")

		require.Len(t, h.store.inserted, 1, "record persists despite crm failure")
		require.Len(t, h.notifier.degraded, 1)
	})
}

var _ crm.Syncer = (*fakeSyncer)(nil)
