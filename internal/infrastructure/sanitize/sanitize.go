// Package sanitize strips markup from message text.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"collab-server/services/groupchat-api/internal/domain/message"
)

// Text removes every HTML element from message text, keeping the content.
type Text struct {
	policy *bluemonday.Policy
}

// NewText creates a strict sanitizer.
func NewText() *Text {
	return &Text{policy: bluemonday.StrictPolicy()}
}

// Sanitize implements message.TextSanitizer. Entities are decoded before the
// policy runs so escaped markup is stripped too. The result stays
// entity-encoded and never contains a tag.
func (t *Text) Sanitize(text string) string {
	if !strings.ContainsAny(text, "<>&") {
		return text
	}
	return t.policy.Sanitize(html.UnescapeString(text))
}

var _ message.TextSanitizer = (*Text)(nil)
