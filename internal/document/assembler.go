// Package document renders a validated consent submission into the
// paginated PDF the patient signed. It is a pure transform: no network
// or storage access happens here.
package document

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/range-medical/consent-api/internal/catalog"
	"github.com/range-medical/consent-api/internal/types"
)

// Clinic identifies the issuing clinic on the document header and the
// running footer of every page.
type Clinic struct {
	Name    string
	Address string
	Phone   string
}

// Document is the assembled artifact plus incidental metadata.
type Document struct {
	Bytes []byte
	Pages int
}

// Layout constants, in millimeters on an A4 page.
const (
	leftMargin    = 15.0
	topMargin     = 15.0
	footerReserve = 25.0
	headerHeight  = 22.0
)

type Assembler struct {
	Clinic Clinic
	// Compress controls PDF stream compression. Tests disable it so
	// they can assert on rendered text.
	Compress bool
}

func NewAssembler(clinic Clinic) *Assembler {
	return &Assembler{Clinic: clinic, Compress: true}
}

// writer tracks the running vertical cursor. Every block measures its
// rendered height first and breaks the page when it would overflow, so
// no block is ever split across a page boundary.
type writer struct {
	pdf          *fpdf.Fpdf
	tr           func(string) string
	y            float64
	pageW        float64
	pageH        float64
	contentW     float64
	patientInits string
}

func (w *writer) checkPageBreak(needed float64) {
	if w.y+needed > w.pageH-footerReserve {
		w.pdf.AddPage()
		w.y = topMargin
	}
}

func (w *writer) addText(text string, size float64, bold bool, r, g, b int) {
	style := ""
	if bold {
		style = "B"
	}
	w.pdf.SetFont("Helvetica", style, size)
	w.pdf.SetTextColor(r, g, b)

	lines := w.pdf.SplitLines([]byte(w.tr(text)), w.contentW)
	lineH := size * 0.45
	w.checkPageBreak(float64(len(lines))*lineH + 4)
	for _, line := range lines {
		w.pdf.Text(leftMargin, w.y, string(line))
		w.y += lineH
	}
	w.y += 2
	w.pdf.SetTextColor(0, 0, 0)
}

func (w *writer) addSectionHeader(text string) {
	w.checkPageBreak(15)
	w.y += 4
	w.pdf.SetFillColor(0, 0, 0)
	w.pdf.Rect(leftMargin, w.y-4, w.contentW, 8, "F")
	w.pdf.SetFont("Helvetica", "B", 9)
	w.pdf.SetTextColor(255, 255, 255)
	w.pdf.Text(leftMargin+3, w.y+1, w.tr(strings.ToUpper(text)))
	w.pdf.SetTextColor(0, 0, 0)
	w.y += 8
}

func (w *writer) addLabelValue(label, value string) {
	w.checkPageBreak(8)
	if value == "" {
		value = "N/A"
	}
	w.pdf.SetFont("Helvetica", "B", 9)
	w.pdf.Text(leftMargin, w.y, w.tr(label))
	labelW := w.pdf.GetStringWidth(w.tr(label))
	w.pdf.SetFont("Helvetica", "", 9)
	w.pdf.Text(leftMargin+labelW+2, w.y, w.tr(value))
	w.y += 5
}

// addCheckboxLine renders one acknowledgment: a glyph plus the statement
// text. A checked glyph is filled and stamped with the patient's
// initials, an auditable mark distinct from the final signature.
func (w *writer) addCheckboxLine(text string, checked bool) {
	w.pdf.SetFont("Helvetica", "", 8)
	lines := w.pdf.SplitLines([]byte(w.tr(text)), w.contentW-10)
	w.checkPageBreak(float64(len(lines))*4.5 + 3)

	w.pdf.SetDrawColor(0, 0, 0)
	if checked {
		w.pdf.SetFillColor(0, 0, 0)
		w.pdf.Rect(leftMargin, w.y-3, 5, 5, "FD")
		w.pdf.SetFont("Helvetica", "B", 6)
		w.pdf.SetTextColor(255, 255, 255)
		initW := w.pdf.GetStringWidth(w.patientInits)
		w.pdf.Text(leftMargin+2.5-initW/2, w.y+0.5, w.patientInits)
		w.pdf.SetTextColor(0, 0, 0)
	} else {
		w.pdf.Rect(leftMargin, w.y-3, 5, 5, "D")
	}

	w.pdf.SetFont("Helvetica", "", 8)
	textY := w.y
	for _, line := range lines {
		w.pdf.Text(leftMargin+8, textY, string(line))
		textY += 4
	}
	w.y += float64(len(lines))*4 + 2
}

func (w *writer) addAlertBlock(text string) {
	w.pdf.SetFont("Helvetica", "B", 8)
	lines := w.pdf.SplitLines([]byte(w.tr(text)), w.contentW-6)
	blockH := float64(len(lines))*3.6 + 4
	w.checkPageBreak(blockH + 4)

	w.y += 2
	w.pdf.SetFillColor(254, 226, 226)
	w.pdf.Rect(leftMargin, w.y-4, w.contentW, blockH, "F")
	w.pdf.SetTextColor(185, 28, 28)
	lineY := w.y
	for _, line := range lines {
		w.pdf.Text(leftMargin+3, lineY, string(line))
		lineY += 3.6
	}
	w.pdf.SetTextColor(0, 0, 0)
	w.y += blockH + 2
}

// Assemble produces the multi-page consent document for a validated
// submission. Section order is fixed by the compliance contract: the
// risk disclosure always precedes the signature block.
func (a *Assembler) Assemble(
	sub *types.ConsentSubmission,
	cat *catalog.Catalog,
) (*Document, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(a.Compress)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AliasNbPages("")

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pageW, pageH := pdf.GetPageSize()

	w := &writer{
		pdf:          pdf,
		tr:           tr,
		pageW:        pageW,
		pageH:        pageH,
		contentW:     pageW - 2*leftMargin,
		patientInits: tr(sub.Initials()),
	}

	classification := "CONFIDENTIAL " + tr("— ") + tr(cat.Title)
	footerLine := fmt.Sprintf("%s | %s | %s", a.Clinic.Name, a.Clinic.Address, a.Clinic.Phone)
	pdf.SetFooterFunc(func() {
		pdf.SetFont("Helvetica", "", 7)
		pdf.SetTextColor(130, 130, 130)
		centerText(pdf, pageW, pageH-8, tr(footerLine))
		centerText(pdf, pageW, pageH-4, classification)
		pageStamp := fmt.Sprintf("Page %d of {nb}", pdf.PageNo())
		pdf.Text(pageW-leftMargin-pdf.GetStringWidth(pageStamp), pageH-4, pageStamp)
		pdf.SetTextColor(0, 0, 0)
	})

	pdf.AddPage()

	// Header band
	pdf.SetFillColor(0, 0, 0)
	pdf.Rect(0, 0, pageW, headerHeight, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Text(leftMargin, 10, tr(strings.ToUpper(a.Clinic.Name)))
	pdf.SetFont("Helvetica", "", 9)
	pdf.Text(leftMargin, 16, tr(cat.Title))
	pdf.SetFont("Helvetica", "", 8)
	dateStamp := "Document Date: " + sub.ConsentDate
	pdf.Text(pageW-leftMargin-pdf.GetStringWidth(dateStamp), 10, dateStamp)
	addr := tr(a.Clinic.Address)
	pdf.Text(pageW-leftMargin-pdf.GetStringWidth(addr), 16, addr)
	pdf.SetTextColor(0, 0, 0)
	w.y = 28

	w.addSectionHeader("Patient Information")
	w.addLabelValue("Patient Name: ", sub.PatientName())
	w.addLabelValue("Date of Birth: ", sub.DateOfBirth)
	w.addLabelValue("Email: ", sub.Email)
	w.addLabelValue("Phone: ", sub.Phone)
	w.addLabelValue("Consent Date: ", sub.ConsentDate)
	w.y += 2

	w.addSectionHeader("Description of " + treatmentName(cat.Title))
	for _, para := range cat.Description {
		w.addText(para, 8.5, false, 0, 0, 0)
		w.y += 2
	}

	w.addSectionHeader("Health Screening Responses")
	for _, item := range sub.Responses {
		val := string(item.Answer)
		if val == "" {
			val = "Not answered"
		}
		if item.DetailText != "" {
			val += " — " + item.DetailText
		}
		w.addLabelValue(item.Label+": ", val)
	}
	if sub.CriticalFlag && cat.CriticalAlert != "" {
		w.addAlertBlock(cat.CriticalAlert)
	}
	w.y += 2

	w.addSectionHeader("Risks & Potential Complications")
	w.addText(cat.RisksIntro, 8.5, false, 0, 0, 0)
	w.y += 1
	for _, risk := range cat.Risks {
		w.pdf.SetFont("Helvetica", "", 8)
		lines := w.pdf.SplitLines([]byte(tr("• "+risk)), w.contentW-5)
		w.checkPageBreak(float64(len(lines))*3.8 + 3)
		for _, line := range lines {
			w.pdf.Text(leftMargin+3, w.y, string(line))
			w.y += 3.8
		}
		w.y += 1
	}
	w.y += 2

	w.addSectionHeader("Patient Acknowledgments & Agreement")
	w.addText(
		"By signing below, the patient affirms that each of the following statements has been read, understood, and individually acknowledged:",
		8.5, false, 0, 0, 0,
	)
	w.y += 3
	for _, ack := range sub.Acknowledged {
		w.addCheckboxLine(ack.FullText, ack.Checked)
	}
	w.y += 4

	w.addSectionHeader("Patient Signature")
	w.addText(cat.SignatureNotice, 8.5, false, 0, 0, 0)
	w.y += 3
	w.addLabelValue("Signed by: ", sub.PatientName())
	w.addLabelValue("Date: ", sub.ConsentDate)
	w.y += 2

	if err := w.embedSignature(sub); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render consent document: %w", err)
	}

	return &Document{Bytes: buf.Bytes(), Pages: pdf.PageCount()}, nil
}

func (w *writer) embedSignature(sub *types.ConsentSubmission) error {
	w.checkPageBreak(35)

	imgType, err := imageType(sub)
	if err != nil {
		return err
	}

	opts := fpdf.ImageOptions{ImageType: imgType}
	w.pdf.RegisterImageOptionsReader("signature", opts, bytes.NewReader(sub.Signature))
	w.pdf.ImageOptions("signature", leftMargin, w.y, 60, 25, false, opts, 0, "")
	if w.pdf.Err() {
		return fmt.Errorf("failed to embed signature image: %w", w.pdf.Error())
	}
	w.y += 28
	return nil
}

func imageType(sub *types.ConsentSubmission) (string, error) {
	if len(sub.Signature) == 0 {
		return "", fmt.Errorf("signature raster is empty")
	}
	switch {
	case bytes.HasPrefix(sub.Signature, []byte("\x89PNG")):
		return "PNG", nil
	case bytes.HasPrefix(sub.Signature, []byte("\xff\xd8")):
		return "JPG", nil
	default:
		return "", fmt.Errorf("signature raster is not a PNG or JPEG image")
	}
}

func centerText(pdf *fpdf.Fpdf, pageW, y float64, text string) {
	pdf.Text((pageW-pdf.GetStringWidth(text))/2, y, text)
}

// treatmentName strips the document-type suffix from a catalog title so
// the description header reads like the original form ("Description of
// IV & Injection Therapy").
func treatmentName(title string) string {
	if name, _, found := strings.Cut(title, " — "); found {
		return name
	}
	return title
}
