package validators

import (
	"strings"
	"unicode"
)

func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && len(trimmed) > maxLen {
		return trimmed[:maxLen]
	}
	return trimmed
}

// SanitizeCode strips the whitespace and control characters barcode
// scanners append to a code.
func SanitizeCode(input string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, input)
	return SanitizeString(cleaned, 64)
}
