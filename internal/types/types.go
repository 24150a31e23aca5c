package types

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Answer is one selected option for a screening question.
type Answer string

const (
	AnswerYes           Answer = "Yes"
	AnswerNo            Answer = "No"
	AnswerUnsure        Answer = "Unsure"
	AnswerNotApplicable Answer = "N/A"
)

// ScreeningAnswer is the raw state of one screening question as submitted
// by the form: the selected option plus whatever detail text the patient
// typed. Detail text is kept even when the current answer no longer shows
// the detail field in the UI.
type ScreeningAnswer struct {
	Answer Answer `json:"answer"`
	Detail string `json:"detail,omitempty"`
}

// ConsentForm is the snapshot of the client form state at the moment of
// submit. Everything downstream of validation is a pure function over it.
type ConsentForm struct {
	ConsentType   string                     `json:"consentType"   validate:"required"`
	FirstName     string                     `json:"firstName"`
	LastName      string                     `json:"lastName"`
	Email         string                     `json:"email"`
	Phone         string                     `json:"phone"`
	DateOfBirth   string                     `json:"dateOfBirth"`
	Screening     map[string]ScreeningAnswer `json:"screening"`
	Acknowledged  map[string]bool            `json:"acknowledgments"`
	SignatureData string                     `json:"signatureData"`
	CRMContactID  string                     `json:"crmContactId,omitempty"`
}

// ScreeningItem is one screening response in catalog order, resolved
// against the question catalog.
type ScreeningItem struct {
	QuestionKey  string `json:"questionKey"`
	Label        string `json:"label"`
	Answer       Answer `json:"answer"`
	DetailText   string `json:"detailText,omitempty"`
	CriticalFlag bool   `json:"criticalFlag,omitempty"`
}

// AcknowledgmentItem is one legal statement with its checked state. The
// full text travels with the submission so the generated document always
// matches the catalog the patient was shown.
type AcknowledgmentItem struct {
	ID       string `json:"id"`
	FullText string `json:"text"`
	Checked  bool   `json:"checked"`
}

// ConsentSubmission is the aggregate root constructed from a validated
// form. It is read-only after construction; later pipeline steps only
// attach artifact URLs and the CRM contact id to the persisted record.
type ConsentSubmission struct {
	ConsentType  string
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	DateOfBirth  string
	ConsentDate  string // MM/DD/YYYY display format
	SubmittedAt  time.Time
	Responses    []ScreeningItem
	Acknowledged []AcknowledgmentItem
	Signature    []byte
	CriticalFlag bool
	CRMContactID string
}

// Initials derives the audit mark stamped next to each checked
// acknowledgment: first letter of first name plus first letter of last
// name, upper-cased.
func Initials(first, last string) string {
	var b strings.Builder
	if first = strings.TrimSpace(first); first != "" {
		r, _ := utf8.DecodeRuneInString(first)
		b.WriteRune(unicode.ToUpper(r))
	}
	if last = strings.TrimSpace(last); last != "" {
		r, _ := utf8.DecodeRuneInString(last)
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

func (s *ConsentSubmission) Initials() string {
	return Initials(s.FirstName, s.LastName)
}

// PatientName is the display name used in the document and CRM note.
func (s *ConsentSubmission) PatientName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// UnixMilli is a millisecond epoch timestamp used on audit events.
type UnixMilli int64
