package handlers

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// SanitizeKey normalizes key to NFC, drops C0 control characters other than
// tab, newline and carriage return, then trims surrounding whitespace.
// Visually identical keys therefore share one window.
func SanitizeKey(key string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}

		return r
	}, norm.NFC.String(key))

	return strings.TrimSpace(cleaned)
}
