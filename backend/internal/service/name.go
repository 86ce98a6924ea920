package service

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const maxNameLength = 64

var namePolicy = bluemonday.StrictPolicy()

// normalizeName strips markup from a display name and caps its length in runes.
func normalizeName(name string) string {
	name = strings.TrimSpace(html.UnescapeString(namePolicy.Sanitize(name)))
	name = strings.Join(strings.Fields(name), " ")
	if utf8.RuneCountInString(name) > maxNameLength {
		name = string([]rune(name)[:maxNameLength])
	}
	return name
}
