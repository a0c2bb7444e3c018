package forum

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"kick-haven/internal/utils"

	"github.com/microcosm-cc/bluemonday"
)

// textPolicy strips all markup. Posts are stored as plain text and rendered
// by the client.
var textPolicy = bluemonday.StrictPolicy()

// Field limits. They match the column sizes of the Postgres schema.
const (
	MaxTitleLength    = 300
	MaxCategoryLength = 64
	MaxBodyLength     = 20000
)

const maxSanitizeRounds = 8

// cleanText removes HTML and stores the remaining text unescaped, so
// "Rock & Roll" is kept as typed. Entity-encoded markup such as
// "&lt;script&gt;" decodes into tags, so sanitizing repeats until the
// unescaped text no longer changes. Input that never settles is stored
// escaped.
func cleanText(s string) string {
	for i := 0; i < maxSanitizeRounds; i++ {
		out := html.UnescapeString(textPolicy.Sanitize(s))
		if out == s {
			return strings.TrimSpace(out)
		}
		s = out
	}
	return strings.TrimSpace(textPolicy.Sanitize(s))
}

// checkLength rejects a field longer than max characters.
func checkLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return utils.NewInvalidArgumentError(fmt.Sprintf("%s must be at most %d characters.", field, max))
	}
	return nil
}

func checkPostFields(title, text string) error {
	if err := checkLength("Title", title, MaxTitleLength); err != nil {
		return err
	}
	return checkLength("Text", text, MaxBodyLength)
}
