package handler

import (
	"strings"
	"unicode/utf8"

	"github.com/mssola/useragent"
)

// terminalLabel summarizes the device that confirmed a pickup, such as
// "Chrome 120.0 / Android 14 (mobile)".
func terminalLabel(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	label := strings.TrimSpace(name + " " + version)
	if os := ua.OS(); os != "" {
		if label != "" {
			label += " / "
		}
		label += os
	}
	if ua.Mobile() {
		label += " (mobile)"
	}
	if label == "" {
		label = raw
	}
	label = strings.ToValidUTF8(label, "")
	if utf8.RuneCountInString(label) > maxTerminalLength {
		label = string([]rune(label)[:maxTerminalLength])
	}
	return label
}

// maxTerminalLength counts runes.
const maxTerminalLength = 120
