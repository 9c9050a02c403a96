// Package ingestion prepares incoming listings for duplicate detection.
package ingestion

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

var (
	// ErrInvalidURL is returned when URL is malformed
	ErrInvalidURL = fmt.Errorf("invalid URL")
)

// trackingParams are query keys stripped during canonicalization
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"gclid":        true,
	"fbclid":       true,
	"mc_cid":       true,
	"mc_eid":       true,
	"sessionid":    true,
	"phpsessid":    true,
	"ref":          true,
	"tracking_id":  true,
}

// NormalizeURL returns the canonical form of a listing URL so equivalent
// URLs compare equal:
//
//	HTTP://www.Bücher.com/foo/./bar/../baz/?b=2&utm_source=x&a=1#top
//	https://xn--bcher-kva.com/foo/baz?a=1&b=2
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	host, err := normalizeHost(u.Hostname(), u.Scheme, u.Port())
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("https://")
	b.WriteString(host)
	b.WriteString(normalizePath(u.Path))
	if q := normalizeQuery(u.RawQuery); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}
	return b.String(), nil
}

func normalizeHost(hostname, scheme, port string) (string, error) {
	host, err := idna.ToASCII(strings.ToLower(hostname))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	host = strings.TrimPrefix(host, "www.")

	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	return host, nil
}

// normalizePath resolves dot segments, drops empty segments and trailing
// slashes, and re-encodes each segment. The root path becomes empty.
func normalizePath(decoded string) string {
	segments := []string{}
	for _, seg := range strings.Split(decoded, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(segments) > 0 {
				segments = segments[:len(segments)-1]
			}
		default:
			segments = append(segments, escapePathSegment(seg))
		}
	}
	if len(segments) == 0 {
		return ""
	}
	return "/" + strings.Join(segments, "/")
}

const pathSafe = "-._~:@!$&'()*+,;="

func escapePathSegment(seg string) string {
	var b strings.Builder
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		if isAlnum(c) || strings.IndexByte(pathSafe, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func isAlnum(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

type queryPair struct {
	key   string
	value string
}

// normalizeQuery drops blank values and tracking params, lowercases keys and
// sorts by key, keeping the original order of repeated keys.
func normalizeQuery(raw string) string {
	if raw == "" {
		return ""
	}

	var pairs []queryPair
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			continue
		}
		value, err := url.QueryUnescape(v)
		if err != nil || value == "" {
			continue
		}
		key = strings.ToLower(key)
		if trackingParams[key] {
			continue
		}
		pairs = append(pairs, queryPair{key: key, value: value})
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].key < pairs[j].key
	})

	encoded := make([]string, len(pairs))
	for i, p := range pairs {
		encoded[i] = url.QueryEscape(p.key) + "=" + url.QueryEscape(p.value)
	}
	return strings.Join(encoded, "&")
}
