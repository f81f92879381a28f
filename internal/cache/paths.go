package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// volatileSegments mark admin paths whose data changes without a mutation
// made through this client. They are never cached.
var volatileSegments = map[string]bool{
	"health":    true,
	"is-authed": true,
	"peers":     true,
	"storage":   true,
	"proposals": true,
	"sync":      true,
}

// cacheablePrefixes are the admin resources whose GET responses may be cached
var cacheablePrefixes = []string{
	"/admin-api/applications",
	"/admin-api/contexts",
	"/admin-api/blobs",
	"/admin-api/aliases",
	"/admin-api/certificate",
}

// Policy decides which admin GET paths are cacheable
type Policy struct {
	disabled map[string]bool
}

// NewPolicy creates a Policy. Paths listed in disabled are never cached.
func NewPolicy(disabled []string) *Policy {
	p := &Policy{disabled: make(map[string]bool, len(disabled))}
	for _, path := range disabled {
		p.disabled[strings.TrimRight(path, "/")] = true
	}
	return p
}

// IsCacheable reports whether a GET of path may be served from cache
func (p *Policy) IsCacheable(path string) bool {
	path = strings.TrimRight(path, "/")
	if p.disabled[path] {
		return false
	}
	for _, seg := range strings.Split(path, "/") {
		if volatileSegments[seg] {
			return false
		}
	}
	for _, prefix := range cacheablePrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// GenerateCacheKey creates a unique cache key for a request
func GenerateCacheKey(method, path string, query url.Values) string {
	// Encode sorts by key
	hash := sha256.Sum256([]byte(query.Encode()))
	queryHash := hex.EncodeToString(hash[:8])

	return method + ":" + strings.TrimRight(path, "/") + ":" + queryHash
}
