package verify

import (
	"net/url"
	"strings"

	"github.com/samber/lo"
)

// The helpers below read members of a decoded credential. Each accepts the
// shapes JSON-LD allows: a single value or an array of values.

func stringValues(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		return lo.FilterMap(t, func(item any, _ int) (string, bool) {
			s, ok := item.(string)
			return s, ok
		})
	default:
		return nil
	}
}

func stringAt(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func objectAt(m map[string]any, key string) map[string]any {
	o, _ := m[key].(map[string]any)
	return o
}

func issuerID(doc map[string]any) string {
	switch v := doc["issuer"].(type) {
	case string:
		return v
	case map[string]any:
		return stringAt(v, "id")
	default:
		return ""
	}
}

func proofsOf(doc map[string]any) []map[string]any {
	switch v := doc["proof"].(type) {
	case map[string]any:
		return []map[string]any{v}
	case []any:
		return lo.FilterMap(v, func(item any, _ int) (map[string]any, bool) {
			p, ok := item.(map[string]any)
			return p, ok
		})
	default:
		return nil
	}
}

func achievementID(doc map[string]any) string {
	return stringAt(objectAt(objectAt(doc, "credentialSubject"), "achievement"), "id")
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
