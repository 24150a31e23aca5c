package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/range-medical/consent-api/internal/types"
)

// HealthScreening captures the patient's screening responses as they
// stood at signing time, plus the evaluated safety flag.
type HealthScreening struct {
	Responses    []types.ScreeningItem `json:"responses"`
	G6PDCritical bool                  `json:"g6pdCritical"`
}

// AdditionalData is the JSONB sidecar on a consent row: everything the
// fixed columns don't cover but an auditor would want verbatim.
type AdditionalData struct {
	CRMContactID    string                     `json:"crm_contact_id,omitempty"`
	HealthScreening HealthScreening            `json:"health_screening"`
	Acknowledgments []types.AcknowledgmentItem `json:"acknowledgments"`
	CatalogVersion  string                     `json:"catalog_version,omitempty"`
	Pages           int                        `json:"pages,omitempty"`
}

// Consent is one signed consent record. SignatureURL and PDFURL may be
// empty when the artifact upload failed; the record is still written.
type Consent struct {
	Model
	ConsentType    string
	FirstName      string
	LastName       string
	Email          string
	Phone          string
	DateOfBirth    string
	ConsentDate    string
	ConsentGiven   bool
	SignatureURL   string
	PDFURL         string
	AdditionalData datatypes.JSONType[AdditionalData]
}

// NewConsent maps a validated submission onto its persisted row.
// Artifact URLs are allowed to be empty; the record is written even
// when an upload failed.
func NewConsent(
	sub *types.ConsentSubmission,
	catalogVersion, signatureURL, pdfURL string,
	pages int,
) *Consent {
	return &Consent{
		ConsentType:  sub.ConsentType,
		FirstName:    sub.FirstName,
		LastName:     sub.LastName,
		Email:        sub.Email,
		Phone:        sub.Phone,
		DateOfBirth:  sub.DateOfBirth,
		ConsentDate:  sub.ConsentDate,
		ConsentGiven: true,
		SignatureURL: signatureURL,
		PDFURL:       pdfURL,
		AdditionalData: datatypes.NewJSONType(AdditionalData{
			CRMContactID: sub.CRMContactID,
			HealthScreening: HealthScreening{
				Responses:    sub.Responses,
				G6PDCritical: sub.CriticalFlag,
			},
			Acknowledgments: sub.Acknowledged,
			CatalogVersion:  catalogVersion,
			Pages:           pages,
		}),
	}
}

func (c *Consent) GetID() uuid.UUID {
	return c.ID
}

func (*Consent) TableName() string {
	return "consents"
}
