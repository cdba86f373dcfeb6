package textutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// HumanizeKey converts a snake_case key such as "nn_isolation" into a
// display heading ("Nn Isolation").
func HumanizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	words := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	return titleCaser.String(strings.Join(words, " "))
}
