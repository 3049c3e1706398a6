package receipt

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"

	dErrors "frontdesk/pkg/domain-errors"
)

const (
	margin      = 10.0
	headerH     = 26.0
	slimHeaderH = 12.0
	footerH     = 10.0
	gap         = 4.0
	pad         = 3.0
	radius      = 2.0
	lineH       = 5.0
	cardTitleH  = 6.0
	labelW      = 34.0
	evidenceH   = 64.0
	signatureH  = 36.0

	timeLayout = "02/01/2006 15:04"
)

// Renderer turns a Document into PDF bytes. It is safe for concurrent use.
type Renderer struct {
	brand  Brand
	logger *slog.Logger
}

type Option func(*Renderer)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) { r.logger = logger }
}

func NewRenderer(brand Brand, opts ...Option) *Renderer {
	if brand.Primary == (RGB{}) {
		brand.Primary = DefaultPrimary
	}
	r := &Renderer{brand: brand, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render lays the document out. Missing or unreadable images render as
// captioned placeholders; only a missing condominium name or protocol fails.
func (r *Renderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if len(doc.Logo) == 0 {
		doc.Logo = r.brand.Logo
	}

	pdf := fpdf.New("P", "mm", doc.Kind.pageSize(), "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreationDate(doc.footerTime())
	pdf.SetTitle(doc.Kind.Title()+" "+doc.Protocol, true)
	pdf.AliasNbPages("")

	s := newSession(ctx, pdf, doc, r.brand.Primary, r.logger)
	pdf.SetHeaderFunc(s.header)
	pdf.SetFooterFunc(s.footer)
	pdf.AddPage()

	s.fieldCard("Recipient", []Field{
		{Label: "Block", Value: doc.Recipient.Block},
		{Label: "Unit", Value: doc.Recipient.Unit},
		{Label: "Name", Value: doc.Recipient.Name},
	})
	if len(doc.Details) > 0 {
		s.fieldCard("Details", doc.Details)
	}
	for _, sec := range doc.Sections {
		s.textCard(sec)
	}
	s.evidenceBand()
	if len(doc.Signatures) > 0 {
		s.signatureStrip()
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render document")
	}
	return buf.Bytes(), nil
}

// session holds the state of one render.
type session struct {
	ctx     context.Context
	pdf     *fpdf.Fpdf
	doc     Document
	primary RGB
	logger  *slog.Logger
	tr      func(string) string

	pageW, pageH float64
	contentW     float64
	images       int
}

func newSession(ctx context.Context, pdf *fpdf.Fpdf, doc Document, primary RGB, logger *slog.Logger) *session {
	w, h := pdf.GetPageSize()
	return &session{
		ctx:      ctx,
		pdf:      pdf,
		doc:      doc,
		primary:  primary,
		logger:   logger,
		tr:       pdf.UnicodeTranslatorFromDescriptor(""),
		pageW:    w,
		pageH:    h,
		contentW: w - 2*margin,
	}
}

func (s *session) fill(c RGB)      { s.pdf.SetFillColor(c.R, c.G, c.B) }
func (s *session) draw(c RGB)      { s.pdf.SetDrawColor(c.R, c.G, c.B) }
func (s *session) textColor(c RGB) { s.pdf.SetTextColor(c.R, c.G, c.B) }

// contentBottom is the lowest y a section may reach.
func (s *session) contentBottom() float64 {
	return s.pageH - footerH - gap
}

func (s *session) contentTop() float64 {
	if s.pdf.PageNo() <= 1 {
		return headerH + gap
	}
	return slimHeaderH + gap
}

func (s *session) atTop() bool {
	return s.pdf.GetY() <= s.contentTop()+0.01
}

// ensureSpace starts a new page when h does not fit below the cursor.
func (s *session) ensureSpace(h float64) {
	if s.pdf.GetY()+h > s.contentBottom() && !s.atTop() {
		s.pdf.AddPage()
	}
}

func (s *session) header() {
	pdf := s.pdf
	s.fill(s.primary)
	if pdf.PageNo() > 1 {
		pdf.Rect(0, 0, s.pageW, slimHeaderH, "F")
		s.textColor(white)
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetXY(margin, 3)
		pdf.CellFormat(s.contentW/2, 6, s.tr(s.doc.CondominiumName), "", 0, "L", false, 0, "")
		pdf.CellFormat(s.contentW/2, 6, s.tr(s.doc.Protocol), "", 0, "R", false, 0, "")
		pdf.SetXY(margin, s.contentTop())
		return
	}

	pdf.Rect(0, 0, s.pageW, headerH, "F")
	textX := margin
	if s.placeImage("logo", s.doc.Logo, margin, 4, 18, 18) {
		textX += 22
	}
	textW := s.contentW - (textX - margin) - 50

	s.textColor(white)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetXY(textX, 5)
	pdf.CellFormat(textW, 6, s.fit(s.doc.CondominiumName, textW), "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetXY(textX, 12)
	pdf.CellFormat(textW, 5, s.tr(s.doc.Kind.Title()), "", 0, "L", false, 0, "")

	var meta []string
	if !s.doc.IssuedAt.IsZero() {
		meta = append(meta, s.doc.IssuedAt.Format(timeLayout))
	}
	if s.doc.SenderName != "" {
		meta = append(meta, "by "+s.doc.SenderName)
	}
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetXY(textX, 18)
	pdf.CellFormat(textW, 4, s.fit(strings.Join(meta, "  "), textW), "", 0, "L", false, 0, "")

	rightX := s.pageW - margin - 50
	pdf.SetFont("Helvetica", "", 7)
	pdf.SetXY(rightX, 6)
	pdf.CellFormat(50, 4, "PROTOCOL", "", 0, "R", false, 0, "")
	pdf.SetFont("Helvetica", "B", 15)
	pdf.SetXY(rightX, 11)
	pdf.CellFormat(50, 8, s.tr(s.doc.Protocol), "", 0, "R", false, 0, "")

	pdf.SetXY(margin, s.contentTop())
}

func (s *session) footer() {
	pdf := s.pdf
	y := s.pageH - footerH
	s.fill(s.primary)
	pdf.Rect(0, y, s.pageW, footerH, "F")
	s.textColor(white)
	pdf.SetFont("Helvetica", "", 7)

	left := "Generated " + s.doc.footerTime().Format(timeLayout)
	pdf.SetXY(margin, y+3)
	pdf.CellFormat(s.contentW/2, 4, s.fit(left+"  "+s.doc.CondominiumName, s.contentW/2), "", 0, "L", false, 0, "")
	right := s.tr(s.doc.Protocol) + "  page " + strconv.Itoa(pdf.PageNo()) + "/{nb}"
	pdf.CellFormat(s.contentW/2, 4, right, "", 0, "R", false, 0, "")
}

// cardFrame draws a rounded card of body height bodyH at the cursor and
// returns the top-left of its body.
func (s *session) cardFrame(title string, bodyH float64) (x, y float64) {
	h := cardTitleH + bodyH + 2*pad
	s.ensureSpace(h)
	x, top := margin, s.pdf.GetY()

	s.draw(borderColor)
	s.pdf.SetLineWidth(0.3)
	s.pdf.RoundedRect(x, top, s.contentW, h, radius, "1234", "D")

	s.textColor(s.primary)
	s.pdf.SetFont("Helvetica", "B", 9)
	s.pdf.SetXY(x+pad, top+pad)
	s.pdf.CellFormat(s.contentW-2*pad, cardTitleH-1, s.tr(strings.ToUpper(title)), "", 0, "L", false, 0, "")

	s.pdf.SetY(top + h + gap)
	return x + pad, top + pad + cardTitleH
}

type fieldLine struct {
	label string
	value string
}

// fieldCard renders label/value rows. Values wrap; a card that does not fit
// continues on the next page like textCard, with each label on the first
// line of its value.
func (s *session) fieldCard(title string, fields []Field) {
	valueW := s.contentW - 2*pad - labelW
	s.pdf.SetFont("Helvetica", "", 9)
	var lines []fieldLine
	for _, f := range fields {
		value := f.Value
		if strings.TrimSpace(value) == "" {
			value = "-"
		}
		for i, l := range s.wrap(value, valueW) {
			fl := fieldLine{value: l}
			if i == 0 {
				fl.label = f.Label
			}
			lines = append(lines, fl)
		}
	}

	heading := title
	for len(lines) > 0 {
		n := s.takeLines(len(lines))
		chunk := lines[:n]
		lines = lines[n:]

		x, y := s.cardFrame(heading, float64(len(chunk))*lineH)
		after := s.pdf.GetY()
		for _, l := range chunk {
			if l.label != "" {
				s.textColor(mutedColor)
				s.pdf.SetFont("Helvetica", "B", 9)
				s.pdf.SetXY(x, y)
				s.pdf.CellFormat(labelW, lineH, s.tr(l.label), "", 0, "L", false, 0, "")
			}
			s.textColor(textColor)
			s.pdf.SetFont("Helvetica", "", 9)
			s.pdf.SetXY(x+labelW, y)
			s.pdf.CellFormat(valueW, lineH, l.value, "", 0, "L", false, 0, "")
			y += lineH
		}
		s.pdf.SetY(after)
		heading = title + " (cont.)"
	}
}

// textCard renders a free-text section, continuing on the next page when
// the text is taller than the space left.
func (s *session) textCard(sec Section) {
	innerW := s.contentW - 2*pad
	s.pdf.SetFont("Helvetica", "", 9)
	lines := s.wrap(sec.Body, innerW)
	title := sec.Title

	for len(lines) > 0 {
		n := s.takeLines(len(lines))
		chunk := lines[:n]
		lines = lines[n:]

		x, y := s.cardFrame(title, float64(len(chunk))*lineH)
		after := s.pdf.GetY()
		s.textColor(textColor)
		s.pdf.SetFont("Helvetica", "", 9)
		for _, line := range chunk {
			s.pdf.SetXY(x, y)
			s.pdf.CellFormat(innerW, lineH, line, "", 0, "L", false, 0, "")
			y += lineH
		}
		s.pdf.SetY(after)
		title = sec.Title + " (cont.)"
	}
}

// takeLines returns how many of the remaining lines go into the next card.
// It starts a new page first when fewer than three would fit below the
// cursor and the card does not end there.
func (s *session) takeLines(remaining int) int {
	for {
		avail := s.contentBottom() - s.pdf.GetY() - cardTitleH - 2*pad
		n := min(int(avail/lineH), remaining)
		if (n < 1 || (n < remaining && n < 3)) && !s.atTop() {
			s.pdf.AddPage()
			continue
		}
		return max(n, 1)
	}
}

// evidenceBand draws photo | QR side by side. Each slot falls back to a
// caption when its image is missing or unreadable.
func (s *session) evidenceBand() {
	s.ensureSpace(evidenceH + gap)
	top := s.pdf.GetY()
	colW := (s.contentW - gap) / 2

	s.slot(margin, top, colW, evidenceH, "Photo", "photo", s.doc.Photo, "No photo attached", "")
	s.slot(margin+colW+gap, top, colW, evidenceH, "Verification", "qr", s.doc.QR, "QR code unavailable", s.doc.QRCaption)
	s.pdf.SetY(top + evidenceH + gap)
}

func (s *session) slot(x, y, w, h float64, title, name string, img []byte, placeholder, caption string) {
	s.fill(panelColor)
	s.draw(borderColor)
	s.pdf.RoundedRect(x, y, w, h, radius, "1234", "FD")

	s.textColor(s.primary)
	s.pdf.SetFont("Helvetica", "B", 8)
	s.pdf.SetXY(x+pad, y+pad)
	s.pdf.CellFormat(w-2*pad, 4, s.tr(strings.ToUpper(title)), "", 0, "L", false, 0, "")

	captionH := 0.0
	if caption != "" {
		captionH = lineH
	}
	boxX, boxY := x+pad, y+pad+5
	boxW, boxH := w-2*pad, h-2*pad-5-captionH
	if !s.placeImage(name, img, boxX, boxY, boxW, boxH) {
		s.textColor(mutedColor)
		s.pdf.SetFont("Helvetica", "I", 9)
		s.pdf.SetXY(boxX, boxY+boxH/2-lineH/2)
		s.pdf.CellFormat(boxW, lineH, s.tr(placeholder), "", 0, "C", false, 0, "")
	}
	if caption != "" {
		s.textColor(textColor)
		s.pdf.SetFont("Courier", "", 7)
		s.pdf.SetXY(boxX, y+h-pad-captionH)
		s.pdf.CellFormat(boxW, captionH, s.fit(caption, boxW), "", 0, "C", false, 0, "")
	}
}

// signatureStrip draws one ruled slot per signature with its caption.
func (s *session) signatureStrip() {
	s.ensureSpace(signatureH + gap)
	top := s.pdf.GetY()
	n := float64(len(s.doc.Signatures))
	slotW := (s.contentW - gap*(n-1)) / n
	lineY := top + signatureH - 9

	for i, sig := range s.doc.Signatures {
		x := margin + float64(i)*(slotW+gap)
		s.placeImage("signature"+strconv.Itoa(i), sig.Image, x+4, top+2, slotW-8, lineY-top-3)
		s.draw(textColor)
		s.pdf.SetLineWidth(0.2)
		s.pdf.Line(x+4, lineY, x+slotW-4, lineY)
		s.textColor(mutedColor)
		s.pdf.SetFont("Helvetica", "", 8)
		s.pdf.SetXY(x, lineY+1.5)
		s.pdf.CellFormat(slotW, 4, s.fit(sig.Caption, slotW), "", 0, "C", false, 0, "")
	}
	s.pdf.SetY(top + signatureH + gap)
}

// placeImage fits img into the box keeping its aspect ratio. It reports
// false, leaving the document untouched, when img is empty or unreadable.
func (s *session) placeImage(name string, img []byte, x, y, w, h float64) bool {
	if len(img) == 0 || w <= 0 || h <= 0 {
		return false
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		s.logger.WarnContext(s.ctx, "document image unreadable",
			"slot", name,
			"protocol", s.doc.Protocol,
			"error", err,
		)
		return false
	}
	var imageType string
	switch format {
	case "jpeg":
		imageType = "JPG"
	case "png":
		imageType = "PNG"
	default:
		s.logger.WarnContext(s.ctx, "document image format unsupported",
			"slot", name,
			"protocol", s.doc.Protocol,
			"format", format,
		)
		return false
	}

	s.images++
	key := name + "-" + strconv.Itoa(s.images)
	opts := fpdf.ImageOptions{ImageType: imageType}
	info := s.pdf.RegisterImageOptionsReader(key, opts, bytes.NewReader(img))
	if !s.pdf.Ok() || info == nil {
		s.logger.WarnContext(s.ctx, "document image rejected",
			"slot", name,
			"protocol", s.doc.Protocol,
			"error", s.pdf.Error(),
		)
		s.pdf.ClearError()
		return false
	}

	iw, ih := info.Width(), info.Height()
	if iw <= 0 || ih <= 0 {
		return false
	}
	scale := min(w/iw, h/ih)
	dw, dh := iw*scale, ih*scale
	s.pdf.ImageOptions(key, x+(w-dw)/2, y+(h-dh)/2, dw, dh, false, opts, 0, "")
	return true
}

// wrap splits text into lines that fit width with the current font. The
// returned lines are already translated for the core fonts.
func (s *session) wrap(text string, width float64) []string {
	var out []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		para = strings.TrimRight(para, " \t")
		if para == "" {
			out = append(out, "")
			continue
		}
		for _, line := range s.pdf.SplitLines([]byte(s.tr(para)), width) {
			out = append(out, string(line))
		}
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

// fit truncates a single line to width with an ellipsis.
func (s *session) fit(text string, width float64) string {
	t := s.tr(text)
	if s.pdf.GetStringWidth(t) <= width-1 {
		return t
	}
	for len(t) > 0 && s.pdf.GetStringWidth(t+"...") > width-1 {
		t = t[:len(t)-1]
	}
	return t + "..."
}
