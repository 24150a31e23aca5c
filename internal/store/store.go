// Package store is the gorm-backed persistence layer for consent
// records.
package store

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/range-medical/consent-api/internal/models"
)

var tracer = otel.Tracer(
	"github.com/range-medical/consent-api/internal/store",
)

type ConsentStore struct {
	db *gorm.DB
}

func NewConsentStore(db *gorm.DB) *ConsentStore {
	return &ConsentStore{db: db}
}

// Insert writes a new consent record. The database assigns the ID, so
// the caller reads it back from the passed struct.
func (s *ConsentStore) Insert(ctx context.Context, consent *models.Consent) error {
	ctx, span := tracer.Start(ctx, "ConsentStore.Insert", trace.WithAttributes(
		attribute.String("consentType", consent.ConsentType),
	))
	defer span.End()

	err := s.db.WithContext(ctx).Create(consent).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert consent")
		return err
	}

	span.SetAttributes(attribute.String("consent.id", consent.ID.String()))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "inserted consent")
	return nil
}

// AttachCRMContact stamps the CRM contact id into the record's JSONB
// sidecar after a successful sync. A single jsonb_set avoids a
// read-modify-write race with concurrent submissions.
func (s *ConsentStore) AttachCRMContact(ctx context.Context, id uuid.UUID, contactID string) error {
	ctx, span := tracer.Start(ctx, "ConsentStore.AttachCRMContact", trace.WithAttributes(
		attribute.String("consent.id", id.String()),
	))
	defer span.End()

	err := s.db.WithContext(ctx).
		Model(&models.Consent{}).
		Where("id = ?", id).
		UpdateColumn(
			"additional_data",
			datatypes.JSONSet("additional_data").Set("crm_contact_id", contactID),
		).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to attach crm contact")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "attached crm contact")
	return nil
}

// ByID fetches a single consent record.
func (s *ConsentStore) ByID(ctx context.Context, id uuid.UUID) (*models.Consent, error) {
	ctx, span := tracer.Start(ctx, "ConsentStore.ByID", trace.WithAttributes(
		attribute.String("consent.id", id.String()),
	))
	defer span.End()

	var consent models.Consent
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&consent).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch consent")
		return nil, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "fetched consent")
	return &consent, nil
}

// List returns records newest first. consentType filters when non-empty
// and limit caps the result when positive.
func (s *ConsentStore) List(
	ctx context.Context,
	consentType string,
	limit int,
) ([]models.Consent, error) {
	ctx, span := tracer.Start(ctx, "ConsentStore.List", trace.WithAttributes(
		attribute.String("consentType", consentType),
		attribute.Int("limit", limit),
	))
	defer span.End()

	query := s.db.WithContext(ctx).Order("created_at DESC")
	if consentType != "" {
		query = query.Where("consent_type = ?", consentType)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var consents []models.Consent
	err := query.Find(&consents).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list consents")
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(consents)))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "listed consents")
	return consents, nil
}
