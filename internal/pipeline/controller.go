// Package pipeline orchestrates a consent submission end to end:
// validate, assemble the document, upload artifacts, persist the
// record, then sync the CRM. Stages after assembly degrade
// independently so a dead storage backend or CRM never loses a signed
// consent.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/range-medical/consent-api/internal/audit"
	"github.com/range-medical/consent-api/internal/catalog"
	"github.com/range-medical/consent-api/internal/crm"
	"github.com/range-medical/consent-api/internal/document"
	"github.com/range-medical/consent-api/internal/intake"
	"github.com/range-medical/consent-api/internal/logger"
	"github.com/range-medical/consent-api/internal/models"
	"github.com/range-medical/consent-api/internal/notify"
	"github.com/range-medical/consent-api/internal/signature"
	"github.com/range-medical/consent-api/internal/types"
	"github.com/range-medical/consent-api/internal/upload"
)

var tracer = otel.Tracer(
	"github.com/range-medical/consent-api/internal/pipeline",
)

// State names the stage a submission finished in.
type State string

const (
	StateInvalid   State = "invalid"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Stage labels for audit events and degraded-pipeline notices.
const (
	stageAssembling = "assembling"

	failureSignatureUpload = "signature-upload"
	failureDocumentUpload  = "document-upload"
	failurePersist         = "persist"
	failureCRMSync         = "crm-sync"
)

var ErrUnknownConsentType = errors.New("unknown consent type")

// Outcome is what a finished submission reports back to the handler.
// Failures lists the degraded best-effort stages; the submission still
// succeeded from the patient's perspective. ConsentID is zero when the
// persist stage degraded.
type Outcome struct {
	State        State
	Errors       []string
	Failures     []string
	ConsentID    uuid.UUID
	SignatureURL string
	PDFURL       string
	CRMContactID string
	Pages        int
}

type ConsentStore interface {
	Insert(ctx context.Context, consent *models.Consent) error
	AttachCRMContact(ctx context.Context, id uuid.UUID, contactID string) error
}

type Controller struct {
	catalogs  *catalog.Set
	assembler *document.Assembler
	uploader  upload.Uploader
	store     ConsentStore
	// crm and notifier may be nil when the deployment disables them
	crm      crm.Syncer
	notifier notify.Notifier
	now      func() time.Time
}

func NewController(
	catalogs *catalog.Set,
	assembler *document.Assembler,
	uploader upload.Uploader,
	store ConsentStore,
	syncer crm.Syncer,
	notifier notify.Notifier,
) *Controller {
	return &Controller{
		catalogs:  catalogs,
		assembler: assembler,
		uploader:  uploader,
		store:     store,
		crm:       syncer,
		notifier:  notifier,
		now:       time.Now,
	}
}

// WithClock overrides the submission clock. Tests use it to pin
// timestamped storage keys.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

// Submit runs the full pipeline for one form submission. The returned
// error is non-nil only for terminal failures; validation problems come
// back in Outcome.Errors with StateInvalid.
func (c *Controller) Submit(ctx context.Context, form *types.ConsentForm) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "Controller.Submit", trace.WithAttributes(
		attribute.String("consentType", form.ConsentType),
	))
	defer span.End()

	cat, ok := c.catalogs.Get(form.ConsentType)
	if !ok {
		span.RecordError(ErrUnknownConsentType)
		span.SetStatus(codes.Error, "unknown consent type")
		return nil, ErrUnknownConsentType
	}

	auditCtx := audit.Context{ConsentType: cat.Type}

	missing := intake.Validate(form, cat)
	if len(missing) > 0 {
		audit.LogConsentRejected(auditCtx, missing)
		span.SetAttributes(attribute.Int("missingFields", len(missing)))
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "rejected incomplete submission")
		return &Outcome{State: StateInvalid, Errors: missing}, nil
	}

	sig, err := signature.Decode(form.SignatureData)
	if err != nil {
		audit.LogPipelineFailed(auditCtx, stageAssembling, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode signature")
		return &Outcome{State: StateFailed}, err
	}

	now := c.now()
	sub := intake.BuildSubmission(form, cat, sig.Bytes, now)
	audit.LogConsentReceived(auditCtx, sub.Email, sub.CriticalFlag)

	doc, err := c.assembler.Assemble(sub, cat)
	if err != nil {
		audit.LogPipelineFailed(auditCtx, stageAssembling, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to assemble document")
		return &Outcome{State: StateFailed}, err
	}
	audit.LogDocumentAssembled(auditCtx, doc.Pages)

	outcome := &Outcome{State: StateSucceeded, Pages: doc.Pages}

	c.uploadArtifacts(ctx, auditCtx, sub, sig, doc, now, outcome)

	// Insert failure does not fail the submission: the patient already
	// signed and the document exists, so receipt is confirmed and the
	// degraded persist is surfaced to staff instead.
	consent, err := c.persist(ctx, sub, cat, doc, outcome)
	if err != nil {
		audit.LogConsentPersistFailed(auditCtx, err)
		logger.Logger.ErrorContext(ctx, "failed to persist consent", "error", err)
		outcome.Failures = append(outcome.Failures, failurePersist)
		span.RecordError(err)
	} else {
		outcome.ConsentID = consent.ID
		auditCtx.ConsentID = ptr(consent.ID.String())
		audit.LogConsentPersisted(auditCtx, sub.Email)
	}

	c.sync(ctx, auditCtx, sub, consent, outcome)
	c.notifyStaff(ctx, sub, outcome)

	span.SetAttributes(
		attribute.String("consent.id", outcome.ConsentID.String()),
		attribute.StringSlice("failures", outcome.Failures),
	)
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "processed submission")
	return outcome, nil
}

// uploadArtifacts pushes the signature raster and the document
// concurrently. Either upload failing leaves its URL empty and the
// pipeline running.
func (c *Controller) uploadArtifacts(
	ctx context.Context,
	auditCtx audit.Context,
	sub *types.ConsentSubmission,
	sig *signature.Image,
	doc *document.Document,
	now time.Time,
	outcome *Outcome,
) {
	ctx, span := tracer.Start(ctx, "Controller.uploadArtifacts")
	defer span.End()

	storeID, err := c.uploader.StoreIdentifier(ctx)
	if err != nil {
		storeID = "unknown"
	}

	var mu sync.Mutex
	fail := func(name, key, kind string, err error) {
		audit.LogArtifactUploadFailed(auditCtx, key, kind, err)
		logger.Logger.ErrorContext(ctx, "artifact upload failed",
			"kind", kind, "key", key, "error", err,
		)
		mu.Lock()
		outcome.Failures = append(outcome.Failures, name)
		mu.Unlock()
	}

	sigKey := upload.SignatureKey(sub.FirstName, sub.LastName, now, upload.ExtensionFor(sig.MediaType))
	docKey := upload.ConsentKey(sub.ConsentType, sub.FirstName, sub.LastName, now)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		url, err := c.uploadOne(gctx, sigKey, sig.MediaType, sig.Bytes)
		if err != nil {
			fail(failureSignatureUpload, sigKey, "signature", err)
			return nil
		}
		audit.LogArtifactUploaded(auditCtx, storeID, sigKey, "signature")
		mu.Lock()
		outcome.SignatureURL = url
		mu.Unlock()
		return nil
	})
	group.Go(func() error {
		url, err := c.uploadOne(gctx, docKey, "application/pdf", doc.Bytes)
		if err != nil {
			fail(failureDocumentUpload, docKey, "document", err)
			return nil
		}
		audit.LogArtifactUploaded(auditCtx, storeID, docKey, "document")
		mu.Lock()
		outcome.PDFURL = url
		mu.Unlock()
		return nil
	})
	//nolint:errcheck // goroutines report failures through outcome, never an error
	group.Wait()

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "uploaded artifacts")
}

func (c *Controller) uploadOne(
	ctx context.Context,
	key, contentType string,
	data []byte,
) (string, error) {
	reader := bytes.NewReader(data)
	if err := c.uploader.Upload(ctx, reader, int64(len(data)), key, contentType); err != nil {
		return "", err
	}
	return c.uploader.PublicReadURL(ctx, key)
}

func (c *Controller) persist(
	ctx context.Context,
	sub *types.ConsentSubmission,
	cat *catalog.Catalog,
	doc *document.Document,
	outcome *Outcome,
) (*models.Consent, error) {
	ctx, span := tracer.Start(ctx, "Controller.persist")
	defer span.End()

	consent := models.NewConsent(sub, cat.Version, outcome.SignatureURL, outcome.PDFURL, doc.Pages)
	if err := c.store.Insert(ctx, consent); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert consent")
		return nil, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "persisted consent")
	return consent, nil
}

// sync pushes the consent to the CRM and stamps the contact id back
// onto the record. Best-effort on both sides.
func (c *Controller) sync(
	ctx context.Context,
	auditCtx audit.Context,
	sub *types.ConsentSubmission,
	consent *models.Consent,
	outcome *Outcome,
) {
	if c.crm == nil {
		return
	}

	ctx, span := tracer.Start(ctx, "Controller.sync")
	defer span.End()

	contactID, err := c.crm.SyncConsent(ctx, sub, outcome.PDFURL)
	if err != nil {
		audit.LogCRMSyncFailed(auditCtx, err)
		logger.Logger.ErrorContext(ctx, "crm sync failed", "error", err)
		outcome.Failures = append(outcome.Failures, failureCRMSync)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to sync crm")
		return
	}

	outcome.CRMContactID = contactID
	audit.LogCRMSynced(auditCtx, contactID)

	if consent == nil {
		span.SetStatus(codes.Ok, "synced crm")
		return
	}

	if err := c.store.AttachCRMContact(ctx, consent.ID, contactID); err != nil {
		logger.Logger.ErrorContext(ctx, "failed to attach crm contact to consent",
			"consentId", consent.ID, "contactId", contactID, "error", err,
		)
		span.RecordError(err)
	}

	span.SetStatus(codes.Ok, "synced crm")
}

func (c *Controller) notifyStaff(ctx context.Context, sub *types.ConsentSubmission, outcome *Outcome) {
	if c.notifier == nil {
		return
	}

	if sub.CriticalFlag {
		if err := c.notifier.CriticalScreening(ctx, sub); err != nil {
			logger.Logger.ErrorContext(ctx, "failed to send critical screening alert", "error", err)
		}
	}

	if len(outcome.Failures) > 0 {
		if err := c.notifier.PipelineDegraded(ctx, sub, outcome.Failures); err != nil {
			logger.Logger.ErrorContext(ctx, "failed to send degraded pipeline alert", "error", err)
		}
	}
}

func ptr[T any](v T) *T {
	return &v
}
