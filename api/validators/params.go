package validators

import (
	"net/http"
	"strconv"
	"strings"
	"unicode"

	pkgerrors "github.com/buildmart/storefront/pkg/errors"
)

// maxFilterRunes caps catalog filter values taken from the query string.
const maxFilterRunes = 64

func invalidParam(field, msg string, extra map[string]any) *pkgerrors.Error {
	details := map[string]any{"field": field}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(details)
}

// ParseQueryInt returns def when key is absent and rejects values outside
// [min, max].
func ParseQueryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidParam(key, key+" must be a whole number", nil)
	}
	if value < min || value > max {
		return 0, invalidParam(key, key+" is out of range", map[string]any{"min": min, "max": max})
	}
	return value, nil
}

// ParseQueryBool accepts the strconv forms plus yes/no and on/off.
func ParseQueryBool(r *http.Request, key string, def bool) (bool, error) {
	raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key)))
	switch raw {
	case "":
		return def, nil
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalidParam(key, key+" must be true or false", nil)
	}
	return value, nil
}

// ParseID parses a positive identifier from a path segment.
func ParseID(raw, field string) (int64, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value <= 0 {
		return 0, invalidParam(field, "invalid "+field, nil)
	}
	return value, nil
}

// CleanFilter normalises a free-text catalog filter. Control characters are
// dropped, whitespace runs collapse to one space and the result is cut to
// maxFilterRunes runes.
func CleanFilter(raw string) string {
	printable := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, raw)
	out := []rune(strings.Join(strings.Fields(printable), " "))
	if len(out) > maxFilterRunes {
		out = out[:maxFilterRunes]
	}
	return strings.TrimSpace(string(out))
}
