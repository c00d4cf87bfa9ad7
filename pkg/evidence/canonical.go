// Package evidence aggregates per-query search result bags into ranked,
// tiered evidence for the writer: URL canonicalization, two-stage dedup,
// per-query caps, score ranking, and the stable-citation context projection.
package evidence

import (
	"net/url"
	"strings"
)

// trackingKeys are query parameters stripped during canonicalization. utm_*
// is matched by prefix.
var trackingKeys = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"msclkid": true,
	"igshid":  true,
	"ref":     true,
	"ref_src": true,
	"source":  true,
}

// CanonicalURL normalizes a URL for dedup: lowercased scheme and host,
// fragment dropped, tracking query keys removed, query re-encoded in sorted
// key order, trailing slash stripped from the path. The function is
// idempotent, and unparseable input is returned trimmed rather than failing
// — a bad URL still participates in dedup by exact match.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" && u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if trackingKeys[strings.ToLower(key)] || strings.HasPrefix(strings.ToLower(key), "utm_") {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode() // Encode sorts keys, making the form stable
	}

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""

	return u.String()
}
