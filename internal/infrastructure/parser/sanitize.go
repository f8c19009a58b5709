package parser

import (
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	controlChars   = regexp.MustCompile(`[\x00-\x09\x0B\x0C\x0E-\x1F\x7F]`)
	invisibleChars = regexp.MustCompile(`[\x{200B}-\x{200F}\x{202A}-\x{202E}\x{2060}-\x{206F}\x{FEFF}\x{FFFD}]`)
	spaceRuns      = regexp.MustCompile(`[\t\f\v ]+`)
)

// Sanitize normalizes extracted text: NFC form, decoded entities, no control or
// zero-width characters, single spaces. Newlines are preserved.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ToValidUTF8(text, "")
	text = norm.NFC.String(text)
	text = html.UnescapeString(text)
	text = controlChars.ReplaceAllString(text, "")
	text = invisibleChars.ReplaceAllString(text, "")
	text = spaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
