package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// metadataHash digests one version of a source file. Fields are separated
// by NUL, which cannot appear in a path, so no two versions share input.
func metadataHash(path string, size int64, modTime time.Time) string {
	buf := make([]byte, 0, len(path)+48)
	buf = append(buf, path...)
	buf = append(buf, 0)
	buf = strconv.AppendInt(buf, size, 10)
	buf = append(buf, 0)
	buf = strconv.AppendInt(buf, modTime.UnixNano(), 10)
	return Hash(buf)
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
