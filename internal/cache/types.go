package cache

// Cache stores admin API response bodies keyed by request
type Cache interface {
	// Get retrieves a cached body by key
	// Returns the cached data and true if found, nil and false otherwise
	Get(key string) ([]byte, bool)

	// Set stores a body with the given key
	Set(key string, value []byte)

	// Purge drops every entry
	Purge()

	// Close releases any resources held by the cache
	Close()
}
