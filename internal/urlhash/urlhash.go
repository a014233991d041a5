// Package urlhash derives the stable content-address used to deduplicate
// articles. Equivalent spellings of a URL normalize to the same string
// before hashing, so they collapse to one stored record.
package urlhash

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"sort"
	"strings"
)

// Hasher hashes normalized URLs with SHA-256.
type Hasher struct{}

// New returns a URL hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash normalizes the URL and returns the hex SHA-256 digest. Inputs that do
// not parse are hashed as-is so the caller still gets a stable key.
func (h *Hasher) Hash(rawURL string) string {
	sum := sha256.Sum256([]byte(Normalize(rawURL)))
	return hex.EncodeToString(sum[:])
}

// Normalize canonicalizes a URL: lowercase scheme and host, default ports
// stripped, path cleaned, query parameters sorted, fragment dropped.
func Normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && !isDefaultPort(scheme, port) {
		host += ":" + port
	}

	p := u.Path
	if p == "" {
		p = "/"
	} else {
		p = path.Clean(p)
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
	}

	norm := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     p,
		RawQuery: sortQuery(u.RawQuery),
	}
	return norm.String()
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

func sortQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	type pair struct{ k, v string }
	pairs := make([]pair, 0, len(values))
	for k, vs := range values {
		for _, v := range vs {
			pairs = append(pairs, pair{k, v})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.v))
	}
	return b.String()
}
