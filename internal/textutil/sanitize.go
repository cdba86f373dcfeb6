package textutil

import (
	"strings"
	"unicode"
)

// SanitizeFileName makes name usable as a single path element. Separators
// and drive/glob characters become dashes, shell-hostile punctuation is
// dropped.
func SanitizeFileName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*':
			return '-'
		case '?', '"', '<', '>', '|':
			return -1
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(mapped)
}

// SanitizeToken lowercases value and folds anything outside [a-z0-9_-] to
// an underscore, for embedding parameter-set names in artifact paths.
// Empty results become "unknown".
func SanitizeToken(value string) string {
	token := strings.Map(func(r rune) rune {
		r = unicode.ToLower(r)
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_') {
			return r
		}
		return '_'
	}, strings.TrimSpace(value))
	if token = strings.Trim(token, "_-"); token == "" {
		return "unknown"
	}
	return token
}
