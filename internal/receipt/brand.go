package receipt

import (
	"fmt"
	"strconv"
	"strings"
)

// RGB is a print color.
type RGB struct {
	R, G, B int
}

// DefaultPrimary is used when no brand color is configured.
var DefaultPrimary = RGB{R: 31, G: 78, B: 121}

var (
	borderColor = RGB{R: 200, G: 205, B: 212}
	textColor   = RGB{R: 40, G: 44, B: 52}
	mutedColor  = RGB{R: 120, G: 126, B: 136}
	panelColor  = RGB{R: 244, G: 246, B: 249}
	white       = RGB{R: 255, G: 255, B: 255}
)

// ParseHexColor accepts "#RRGGBB" or "RRGGBB".
func ParseHexColor(s string) (RGB, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return RGB{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return RGB{R: int(v >> 16 & 0xff), G: int(v >> 8 & 0xff), B: int(v & 0xff)}, nil
}

// Brand is the per-deployment look of every document.
type Brand struct {
	Primary RGB
	// Logo is used when a document carries none of its own.
	Logo []byte
}
