package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// StrictPolicy removes all HTML tags and attributes.
var StrictPolicy = bluemonday.StrictPolicy()

// Text strips all HTML tags and returns plain text. Entities escaped by the
// policy are decoded again so "Q&A" survives unchanged.
func Text(input string) string {
	return html.UnescapeString(StrictPolicy.Sanitize(input))
}

// Name cleans a display name: markup is removed and runs of whitespace are
// collapsed to single spaces.
func Name(input string) string {
	return strings.Join(strings.Fields(Text(input)), " ")
}
