// Package template renders message bodies with {{name}} placeholders
// resolved against payload keys. Placeholders with no matching payload key
// render as empty strings; text outside placeholders passes through
// unchanged.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kursadbilgin/notify-relay/internal/domain"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Render substitutes every {{name}} placeholder in body with the matching
// payload value.
func Render(body string, payload domain.Payload) string {
	return placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		key := strings.TrimSpace(strings.Trim(match, "{}"))
		value, ok := payload[key]
		if !ok || value == nil {
			return ""
		}
		return stringify(value)
	})
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
