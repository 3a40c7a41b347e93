// Package cache stores small build artifacts between atlas builds.
//
// The build only caches image metadata (dimensions), keyed by the source
// file's path, size and modification time, so an unchanged asset is never
// opened during the metadata pass. Three backends are available:
//
//   - FileCache: one JSON file per entry under a directory (CLI default)
//   - RedisCache: a shared cache for build machines
//   - NullCache: caching disabled
//
// # Usage
//
//	c, err := cache.NewFileCache(afero.NewOsFs(), dir)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//	key := cache.NewDefaultKeyer().MetadataKey(path, info.Size(), info.ModTime())
//	data, hit, err := c.Get(ctx, key)
package cache

import (
	"context"
	"time"
)

// TTLMetadata is how long image metadata stays cached. Entries are also
// invalidated by any change to the source file's size or modification
// time, so the TTL only bounds cache growth.
const TTLMetadata = 30 * 24 * time.Hour

// Cache is a byte-oriented key/value store with expiry.
type Cache interface {
	// Get returns the value for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the backend's resources.
	Close() error
}

// Keyer derives cache keys.
type Keyer interface {
	// MetadataKey identifies the probed dimensions of one source file
	// version.
	MetadataKey(path string, size int64, modTime time.Time) string
}

// DefaultKeyer hashes key components with SHA-256.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// MetadataKey returns "meta:<sha256>" of the path, size and mtime.
func (DefaultKeyer) MetadataKey(path string, size int64, modTime time.Time) string {
	return "meta:" + metadataHash(path, size, modTime)
}
