// Package audit emits the append-only event trail for consent
// processing. Events are JSON lines on stdout so the log shipper can
// forward them to the compliance store independent of application logs.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/range-medical/consent-api/internal/logger"
	"github.com/range-medical/consent-api/internal/types"
)

type Context struct {
	ConsentID   *string
	ConsentType string
}

func (c Context) message(t EventType, d Disposition) Message {
	return Message{
		ConsentID:     c.ConsentID,
		ConsentType:   c.ConsentType,
		LogContext:    logContext,
		SchemaVersion: schemaVersion,
		Disposition:   d,
		Type:          t,
		Timestamp:     types.UnixMilli(time.Now().UTC().UnixMilli()),
	}
}

func emit(event any, name string, fields ...any) {
	evtStr, err := json.Marshal(event)
	if err != nil {
		logger.Logger.Error("could not serialize "+name+" event", fields...)
		return
	}

	// TODO: should this go to stderr?
	fmt.Println(string(evtStr))
}

func LogConsentReceived(c Context, patientEmail string, criticalFlag bool) {
	event := ConsentReceived{}
	event.Message = c.message(EvtConsentReceived, DispositionNeutral)
	event.Event.PatientEmail = patientEmail
	event.Event.CriticalFlag = criticalFlag

	emit(event, "ConsentReceived", "patientEmail", patientEmail, "criticalFlag", criticalFlag)
}

func LogConsentRejected(c Context, missingFields []string) {
	event := ConsentRejected{}
	event.Message = c.message(EvtConsentRejected, DispositionBad)
	event.Event.MissingFields = missingFields

	emit(event, "ConsentRejected", "missingFields", missingFields)
}

func LogDocumentAssembled(c Context, pages int) {
	event := DocumentAssembled{}
	event.Message = c.message(EvtDocumentAssembled, DispositionGood)
	event.Event.Pages = pages

	emit(event, "DocumentAssembled", "pages", pages)
}

func LogArtifactUploaded(c Context, storeIdentifier, objectName, kind string) {
	event := ArtifactUploaded{}
	event.Message = c.message(EvtArtifactUploaded, DispositionGood)
	event.Event.StoreIdentifier = storeIdentifier
	event.Event.ObjectName = objectName
	event.Event.Kind = kind

	emit(event, "ArtifactUploaded",
		"storeIdentifier", storeIdentifier,
		"objectName", objectName,
		"kind", kind,
	)
}

func LogArtifactUploadFailed(c Context, objectName, kind string, err error) {
	event := ArtifactUploadFailed{}
	event.Message = c.message(EvtArtifactUploadFail, DispositionBad)
	event.Event.ObjectName = objectName
	event.Event.Kind = kind
	if err != nil {
		event.Event.Error = err.Error()
	}

	emit(event, "ArtifactUploadFailed", "objectName", objectName, "kind", kind, "error", err)
}

func LogConsentPersisted(c Context, patientEmail string) {
	event := ConsentPersisted{}
	event.Message = c.message(EvtConsentPersisted, DispositionGood)
	event.Event.PatientEmail = patientEmail

	emit(event, "ConsentPersisted", "patientEmail", patientEmail)
}

func LogConsentPersistFailed(c Context, err error) {
	event := ConsentPersistFailed{}
	event.Message = c.message(EvtConsentPersistFail, DispositionBad)
	if err != nil {
		event.Event.Error = err.Error()
	}

	emit(event, "ConsentPersistFailed", "error", err)
}

func LogCRMSynced(c Context, contactID string) {
	event := CRMSynced{}
	event.Message = c.message(EvtCRMSynced, DispositionGood)
	event.Event.ContactID = contactID

	emit(event, "CRMSynced", "contactID", contactID)
}

func LogCRMSyncFailed(c Context, err error) {
	event := CRMSyncFailed{}
	event.Message = c.message(EvtCRMSyncFailed, DispositionBad)
	if err != nil {
		event.Event.Error = err.Error()
	}

	emit(event, "CRMSyncFailed", "error", err)
}

func LogPipelineFailed(c Context, stage string, err error) {
	event := PipelineFailed{}
	event.Message = c.message(EvtPipelineFailed, DispositionBad)
	event.Event.Stage = stage
	if err != nil {
		event.Event.Error = err.Error()
	}

	emit(event, "PipelineFailed", "stage", stage, "error", err)
}
