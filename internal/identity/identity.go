// Package identity derives stable post identifiers and near-duplicate fingerprints.
package identity

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"TimelineWatch/internal/domain"
)

const (
	statusPrefix    = "tweet_"
	attributePrefix = "attr_"
	compositePrefix = "tweet_"
	fallbackPrefix  = "post_"
)

// Assign maps extracted fields to an identifier. Identity follows the first successful
// extraction strategy; when none succeeded a random, timestamped id is produced and
// durable is false.
func Assign(fields domain.Fields, now time.Time) (id string, durable bool) {
	ref := fields.Ref
	if ref.Durable() {
		switch ref.Kind {
		case domain.RefStatus:
			return statusPrefix + ref.Value, true
		case domain.RefAttribute:
			return attributePrefix + ref.Value, true
		case domain.RefComposite:
			return compositePrefix + ref.Value, true
		}
	}
	return Fallback(now), false
}

// Fallback builds an id that is unique but carries no dedup guarantee across cycles.
func Fallback(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fallbackPrefix + strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix
}

// IsDurable reports whether id was derived from a reference found in the document.
func IsDurable(id string) bool {
	return id != "" && !strings.HasPrefix(id, fallbackPrefix)
}

// Fingerprint keys near-duplicate content: author plus the lowercased first prefixLen
// runes of whitespace-normalized text. It is empty when text is empty.
func Fingerprint(text, author string, prefixLen int) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if normalized == "" {
		return ""
	}
	if prefixLen > 0 && utf8.RuneCountInString(normalized) > prefixLen {
		normalized = string([]rune(normalized)[:prefixLen])
	}
	return author + "_" + normalized
}
