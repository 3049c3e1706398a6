package verification

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	qrcode "github.com/skip2/go-qrcode"
)

// ModuleSize is the edge of one QR module in pixels. At 300dpi print this
// keeps modules above 0.5mm.
const ModuleSize = 8

// quietZone is the border, in modules, required by scanners.
const quietZone = 4

// RenderQR encodes payload as a QR symbol with medium error correction and
// returns it as PNG.
func RenderQR(payload string) ([]byte, error) {
	if payload == "" {
		return nil, fmt.Errorf("qr payload is empty")
	}
	code, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("build qr: %w", err)
	}
	code.DisableBorder = true
	bitmap := code.Bitmap()

	modules := len(bitmap) + 2*quietZone
	side := modules * ModuleSize
	img := image.NewGray(image.Rect(0, 0, side, side))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	for y, row := range bitmap {
		for x, dark := range row {
			if !dark {
				continue
			}
			fillModule(img, x+quietZone, y+quietZone)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode qr png: %w", err)
	}
	return buf.Bytes(), nil
}

func fillModule(img *image.Gray, mx, my int) {
	x0, y0 := mx*ModuleSize, my*ModuleSize
	for y := y0; y < y0+ModuleSize; y++ {
		for x := x0; x < x0+ModuleSize; x++ {
			img.SetGray(x, y, color.Gray{Y: 0})
		}
	}
}

// EncodeQR is Encode followed by RenderQR.
func EncodeQR(p Payload) (string, []byte, error) {
	raw, err := p.Encode()
	if err != nil {
		return "", nil, err
	}
	img, err := RenderQR(raw)
	if err != nil {
		return "", nil, err
	}
	return raw, img, nil
}
