package cache

import "time"

// ScopedKeyer wraps a Keyer with a prefix so several projects can share
// one Redis instance without seeing each other's entries.
//
// Example usage:
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "atlaspack:game-ui:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// MetadataKey generates a prefixed metadata key.
func (k *ScopedKeyer) MetadataKey(path string, size int64, modTime time.Time) string {
	return k.prefix + k.inner.MetadataKey(path, size, modTime)
}
