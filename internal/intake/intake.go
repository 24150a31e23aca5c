// Package intake holds the pure functions between the raw form state and
// a validated consent submission: exhaustive validation, conditional
// detail-field visibility, and the safety flag evaluator.
package intake

import (
	"strings"
	"time"

	"github.com/range-medical/consent-api/internal/catalog"
	"github.com/range-medical/consent-api/internal/signature"
	"github.com/range-medical/consent-api/internal/types"
)

// AggregateAckError is reported once when any acknowledgment is
// unchecked; the UI marks the individual unchecked items visually.
const AggregateAckError = "All acknowledgment checkboxes"

// SignatureError is reported when the signature pad has no strokes.
const SignatureError = "Signature"

var identityFields = []struct {
	label string
	value func(*types.ConsentForm) string
}{
	{"First Name", func(f *types.ConsentForm) string { return f.FirstName }},
	{"Last Name", func(f *types.ConsentForm) string { return f.LastName }},
	{"Email", func(f *types.ConsentForm) string { return f.Email }},
	{"Phone", func(f *types.ConsentForm) string { return f.Phone }},
	{"Date of Birth", func(f *types.ConsentForm) string { return f.DateOfBirth }},
}

// Validate checks the full form state against the catalog and returns
// every missing or invalid item at once. Rules are evaluated
// independently so the user can fix the whole form in one pass; there is
// deliberately no early return.
func Validate(form *types.ConsentForm, cat *catalog.Catalog) []string {
	var missing []string

	for _, field := range identityFields {
		if strings.TrimSpace(field.value(form)) == "" {
			missing = append(missing, field.label)
		}
	}

	for _, q := range cat.Questions {
		if !answered(form, &q) {
			missing = append(missing, q.ErrorLabel)
		}
	}

	allChecked := true
	for _, a := range cat.Acknowledgments {
		if !form.Acknowledged[a.ID] {
			allChecked = false
		}
	}
	if !allChecked {
		missing = append(missing, AggregateAckError)
	}

	if signature.IsEmpty(form.SignatureData) {
		missing = append(missing, SignatureError)
	}

	return missing
}

// answered reports whether exactly one legal option is selected for q.
// Detail text is advisory and never required, even for Yes/Unsure.
func answered(form *types.ConsentForm, q *catalog.Question) bool {
	resp, ok := form.Screening[q.Key]
	if !ok {
		return false
	}
	for _, opt := range q.Options {
		if resp.Answer == opt {
			return true
		}
	}
	return false
}

// DetailVisible reports whether a screening question's free-text detail
// box is shown for the given answer. Visibility is a display concern
// only; hidden detail text is never cleared and never blocks validation.
func DetailVisible(a types.Answer) bool {
	return a == types.AnswerYes || a == types.AnswerUnsure
}

// CriticalFlag evaluates the safety flag over the catalog's designated
// critical question. It must be recomputed on every validation pass; the
// result is never cached past the most recent answer.
func CriticalFlag(form *types.ConsentForm, cat *catalog.Catalog) bool {
	q := cat.CriticalQuestion()
	if q == nil {
		return false
	}
	resp := form.Screening[q.Key]
	return resp.Answer == types.AnswerYes || resp.Answer == types.AnswerUnsure
}

// BuildSubmission constructs the immutable aggregate from a validated
// form. Responses and acknowledgments are ordered by the catalog, and
// detail text is carried verbatim even when the current answer would
// hide its field in the UI.
func BuildSubmission(
	form *types.ConsentForm,
	cat *catalog.Catalog,
	sig []byte,
	now time.Time,
) *types.ConsentSubmission {
	sub := &types.ConsentSubmission{
		ConsentType:  cat.Type,
		FirstName:    strings.TrimSpace(form.FirstName),
		LastName:     strings.TrimSpace(form.LastName),
		Email:        strings.TrimSpace(form.Email),
		Phone:        strings.TrimSpace(form.Phone),
		DateOfBirth:  strings.TrimSpace(form.DateOfBirth),
		ConsentDate:  now.Format("01/02/2006"),
		SubmittedAt:  now,
		Signature:    sig,
		CriticalFlag: CriticalFlag(form, cat),
		CRMContactID: strings.TrimSpace(form.CRMContactID),
	}

	for _, q := range cat.Questions {
		resp := form.Screening[q.Key]
		sub.Responses = append(sub.Responses, types.ScreeningItem{
			QuestionKey:  q.Key,
			Label:        q.Label,
			Answer:       resp.Answer,
			DetailText:   strings.TrimSpace(resp.Detail),
			CriticalFlag: q.Critical && DetailVisible(resp.Answer),
		})
	}

	for _, a := range cat.Acknowledgments {
		sub.Acknowledged = append(sub.Acknowledged, types.AcknowledgmentItem{
			ID:       a.ID,
			FullText: a.Text,
			Checked:  form.Acknowledged[a.ID],
		})
	}

	return sub
}
