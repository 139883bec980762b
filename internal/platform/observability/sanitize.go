package observability

import (
	"strings"
	"unicode"
)

// Request-derived log fields pass through here before they reach zap so
// header injection and oversized identifiers cannot mangle the log stream.

const maxFieldRunes = 256

func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = maxFieldRunes
	}

	var b strings.Builder
	b.Grow(len(value))
	written := 0
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		written++
		if written >= limit {
			break
		}
	}
	return b.String()
}

// SanitizeRoute bounds the chi route pattern recorded on request logs.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod bounds the HTTP method field.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeUserID caps identifiers so raw tokens mistaken for user IDs never
// land in logs whole.
func SanitizeUserID(uid string) string {
	return sanitizeString(uid, 64)
}
