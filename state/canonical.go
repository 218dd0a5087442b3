package state

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// trackingParams are query parameters stripped during canonicalization.
// Two URLs differing only in these are the same content.
var trackingParams = map[string]bool{
	"gclid":    true,
	"fbclid":   true,
	"igshid":   true,
	"mc_cid":   true,
	"mc_eid":   true,
	"ref":      true,
	"ref_src":  true,
	"referrer": true,
	"spm":      true,
}

// CanonicalURL normalizes a URL for deduplication: lowercased scheme and
// host, default ports stripped, tracking parameters removed, remaining
// query sorted, fragment dropped, trailing slash trimmed.
func CanonicalURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no scheme or host", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Host[:strings.LastIndexByte(u.Host, ':')]
	}

	u.Fragment = ""
	u.RawQuery = canonicalQuery(u.Query())
	u.Path = strings.TrimRight(u.Path, "/")

	return u.String(), nil
}

func canonicalQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if trackingParams[strings.ToLower(k)] || strings.HasPrefix(strings.ToLower(k), "utm_") {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	kept := url.Values{}
	for _, k := range keys {
		kept[k] = values[k]
	}
	return kept.Encode()
}
