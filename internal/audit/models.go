package audit

import (
	"github.com/range-medical/consent-api/internal/types"
)

var schemaVersion = "0.1.0"
var logContext = "audit"

type Disposition string

const (
	DispositionNeutral Disposition = "neutral"
	DispositionGood    Disposition = "good"
	DispositionBad     Disposition = "bad"
)

type EventType string

const (
	EvtConsentReceived    EventType = "consent_received"
	EvtConsentRejected    EventType = "consent_rejected"
	EvtDocumentAssembled  EventType = "document_assembled"
	EvtArtifactUploaded   EventType = "artifact_uploaded"
	EvtArtifactUploadFail EventType = "artifact_upload_failed"
	EvtConsentPersisted   EventType = "consent_persisted"
	EvtConsentPersistFail EventType = "consent_persist_failed"
	EvtCRMSynced          EventType = "crm_synced"
	EvtCRMSyncFailed      EventType = "crm_sync_failed"
	EvtPipelineFailed     EventType = "pipeline_failed"
)

type Message struct {
	ConsentID     *string     `json:"consent_id"`
	ConsentType   string      `json:"consent_type" validate:"required"`
	LogContext    string      `json:"log_context"  validate:"required"`
	SchemaVersion string      `json:"version"      validate:"required"`
	Disposition   Disposition `json:"disposition"  validate:"required"`
	Type          EventType   `json:"event_type"   validate:"required"`

	Timestamp types.UnixMilli `json:"timestamp" validate:"required"`
}

type ConsentReceivedEvent struct {
	PatientEmail string `json:"patient_email" validate:"required"`
	CriticalFlag bool   `json:"critical_flag"`
}

type ConsentReceived struct {
	Event ConsentReceivedEvent `json:"event" validate:"required"`
	Message
}

type ConsentRejectedEvent struct {
	MissingFields []string `json:"missing_fields" validate:"required"`
}

type ConsentRejected struct {
	Event ConsentRejectedEvent `json:"event" validate:"required"`
	Message
}

type DocumentAssembledEvent struct {
	Pages int `json:"pages" validate:"required"`
}

type DocumentAssembled struct {
	Event DocumentAssembledEvent `json:"event" validate:"required"`
	Message
}

type ArtifactUploadedEvent struct {
	StoreIdentifier string `json:"store_identifier" validate:"required"`
	ObjectName      string `json:"object_name"      validate:"required"`
	// "signature" or "document"
	Kind string `json:"kind" validate:"required"`
}

type ArtifactUploaded struct {
	Event ArtifactUploadedEvent `json:"event" validate:"required"`
	Message
}

type ArtifactUploadFailedEvent struct {
	ObjectName string `json:"object_name" validate:"required"`
	Kind       string `json:"kind"        validate:"required"`
	Error      string `json:"error"`
}

type ArtifactUploadFailed struct {
	Event ArtifactUploadFailedEvent `json:"event" validate:"required"`
	Message
}

type ConsentPersistedEvent struct {
	PatientEmail string `json:"patient_email" validate:"required"`
}

type ConsentPersisted struct {
	Event ConsentPersistedEvent `json:"event" validate:"required"`
	Message
}

type ConsentPersistFailedEvent struct {
	Error string `json:"error"`
}

type ConsentPersistFailed struct {
	Event ConsentPersistFailedEvent `json:"event" validate:"required"`
	Message
}

type CRMSyncedEvent struct {
	ContactID string `json:"contact_id" validate:"required"`
}

type CRMSynced struct {
	Event CRMSyncedEvent `json:"event" validate:"required"`
	Message
}

type CRMSyncFailedEvent struct {
	Error string `json:"error"`
}

type CRMSyncFailed struct {
	Event CRMSyncFailedEvent `json:"event" validate:"required"`
	Message
}

type PipelineFailedEvent struct {
	Stage string `json:"stage" validate:"required"`
	Error string `json:"error"`
}

type PipelineFailed struct {
	Event PipelineFailedEvent `json:"event" validate:"required"`
	Message
}
