package receipt

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "frontdesk/pkg/domain-errors"
)

func testRenderer() *Renderer {
	return NewRenderer(Brand{}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 90, B: 40, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(w, h)))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(w, h), &jpeg.Options{Quality: 80}))
	return buf.Bytes()
}

var pageCount = regexp.MustCompile(`/Count (\d+)`)

func pages(t *testing.T, pdf []byte) int {
	t.Helper()
	m := pageCount.FindSubmatch(pdf)
	require.NotNil(t, m, "page tree not found")
	n, err := strconv.Atoi(string(m[1]))
	require.NoError(t, err)
	return n
}

func TestRenderMinimalDocument(t *testing.T) {
	out, err := testRenderer().Render(context.Background(), Document{
		Kind:            KindArrivalLabel,
		CondominiumName: "Residencial Aurora",
		Protocol:        "20260314K7",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Equal(t, 1, pages(t, out))
}

func TestRenderRequiresCondominiumAndProtocol(t *testing.T) {
	_, err := testRenderer().Render(context.Background(), Document{Protocol: "X"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = testRenderer().Render(context.Background(), Document{CondominiumName: "Aurora", Protocol: "  "})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestRenderFullPickupReceipt(t *testing.T) {
	at := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	out, err := testRenderer().Render(context.Background(), Document{
		Kind:            KindPickupReceipt,
		CondominiumName: "Residencial São Conrado",
		Protocol:        "20260314K7",
		Logo:            pngBytes(t, 64, 64),
		SenderName:      "João",
		IssuedAt:        at,
		Recipient:       Recipient{Block: "A", Unit: "101", Name: "Maria Conceição"},
		Details: []Field{
			{Label: "Collector", Value: "Maria"},
			{Label: "Code", Value: "ABC234"},
		},
		Sections:  []Section{{Title: "Notes", Body: "Left with the collector at the gate."}},
		Photo:     jpegBytes(t, 640, 480),
		QR:        pngBytes(t, 200, 200),
		QRCaption: `{"p":"20260314K7","t":1773565200,"v":"ABC234"}`,
		Signatures: []Signature{
			{Image: pngBytes(t, 300, 100), Caption: "Collector"},
			{Caption: "Staff"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, pages(t, out))
}

func TestRenderDegradesCorruptImages(t *testing.T) {
	corrupt := []byte("\x89PNG\r\n\x1a\nthis is not a png")
	out, err := testRenderer().Render(context.Background(), Document{
		Kind:            KindPickupReceipt,
		CondominiumName: "Residencial Aurora",
		Protocol:        "20260314K7",
		Logo:            []byte("garbage"),
		Photo:           corrupt,
		QR:              corrupt,
		Signatures:      []Signature{{Image: corrupt, Caption: "Collector"}},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestRenderLongTextFlowsOntoNewPages(t *testing.T) {
	body := strings.Repeat("The package was left at the concierge desk and logged by the night shift. ", 200)
	out, err := testRenderer().Render(context.Background(), Document{
		Kind:            KindNotice,
		CondominiumName: "Residencial Aurora",
		Protocol:        "20260314N1",
		Sections:        []Section{{Title: "Message", Body: body}},
		QR:              pngBytes(t, 200, 200),
	})
	require.NoError(t, err)
	assert.Greater(t, pages(t, out), 1)
}

func TestFieldCardContinuesOnNextPage(t *testing.T) {
	doc := Document{
		Kind:            KindArrivalLabel,
		CondominiumName: "Residencial Aurora",
		Protocol:        "20260314K7",
	}
	pdf := fpdf.New("P", "mm", doc.Kind.pageSize(), "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, 0)
	s := newSession(context.Background(), pdf, doc, DefaultPrimary, slog.New(slog.NewTextHandler(io.Discard, nil)))
	pdf.SetHeaderFunc(s.header)
	pdf.AddPage()

	s.fieldCard("Details", []Field{
		{Label: "Carrier", Value: "Correios"},
		{Label: "Notes", Value: strings.Repeat("box dented on one corner\n", 120)},
	})
	require.NoError(t, pdf.Error())
	assert.Greater(t, pdf.PageNo(), 2)
	assert.LessOrEqual(t, pdf.GetY(), s.contentBottom()+gap)

	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
}

func TestRenderLongDetailsKeepsEvidenceBand(t *testing.T) {
	out, err := testRenderer().Render(context.Background(), Document{
		Kind:            KindPickupReceipt,
		CondominiumName: "Residencial Aurora",
		Protocol:        "20260314K7",
		Details:         []Field{{Label: "Notes", Value: strings.Repeat("signed by the neighbour\n", 150)}},
		QR:              pngBytes(t, 200, 200),
	})
	require.NoError(t, err)
	assert.Greater(t, pages(t, out), 2)
}

func TestEvidenceBandMovesToNextPageInsteadOfClipping(t *testing.T) {
	r := testRenderer()
	doc := Document{
		Kind:            KindArrivalLabel,
		CondominiumName: "Residencial Aurora",
		Protocol:        "20260314K7",
	}
	single, err := r.Render(context.Background(), doc)
	require.NoError(t, err)
	require.Equal(t, 1, pages(t, single))

	doc.Sections = []Section{{Title: "Notes", Body: strings.Repeat("line\n", 20)}}
	out, err := r.Render(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 2, pages(t, out))
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#1F4E79")
	require.NoError(t, err)
	assert.Equal(t, RGB{R: 31, G: 78, B: 121}, c)

	_, err = ParseHexColor("blue")
	assert.Error(t, err)
	_, err = ParseHexColor("#GGGGGG")
	assert.Error(t, err)
}
