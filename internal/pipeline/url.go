package pipeline

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL reduces a URL to its deduplication key. The key is
// scheme-insensitive (http and https variants of the same page collide),
// lowercases the host, removes default ports and fragments, sorts query
// parameters, and strips any trailing slash.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("parse url: missing host in %q", rawURL)
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")

	path := strings.TrimSuffix(u.EscapedPath(), "/")

	// Sorted encoding keeps ?b=2&a=1 and ?a=1&b=2 on the same key.
	query := u.Query().Encode()

	key := host + path
	if query != "" {
		key += "?" + query
	}
	return key, nil
}

// TargetKey extracts the rate-limiting key (the host) for a URL. Unparsable
// URLs share the "unknown" bucket rather than bypassing the limiter.
func TargetKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ClassifySourceType infers the institution class from the URL host. Used
// when the descriptor carries no hint.
func ClassifySourceType(rawURL string) SourceType {
	host := TargetKey(rawURL)
	switch {
	case containsAny(host, "bps.go.id", "kemdikbud", "kemendikbud", "kemnaker", ".go.id", ".gov"):
		return SourceGovernment
	case containsAny(host, "worldbank", "unesco", "oecd", "adb.org", "un.org", "ilo.org"):
		return SourceInternational
	case containsAny(host, "scholar.google", "researchgate", "ieee", "springer", "elsevier", ".ac.id", ".edu"):
		return SourceAcademic
	default:
		return SourceUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
