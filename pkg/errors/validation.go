package errors

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxSpriteNameLength bounds sprite names so a descriptor record stays
// small enough to scan linearly at startup.
const MaxSpriteNameLength = 1024

// ValidateSpriteName validates a sprite name for storage in a descriptor.
//
// Names are NUL-terminated on disk, so the rules are:
//   - No empty names
//   - Valid UTF-8
//   - No control characters (this includes NUL)
//   - No backslashes (names are always slash-separated)
//   - Maximum length of MaxSpriteNameLength bytes
func ValidateSpriteName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidName, "sprite name cannot be empty")
	}

	if len(name) > MaxSpriteNameLength {
		return New(ErrCodeInvalidName, "sprite name too long (max %d bytes)", MaxSpriteNameLength)
	}

	if !utf8.ValidString(name) {
		return New(ErrCodeInvalidName, "sprite name is not valid UTF-8: %q", name)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidName, "sprite name contains control characters: %q", name)
		}
	}

	if strings.Contains(name, "\\") {
		return New(ErrCodeInvalidName, "sprite name cannot contain backslashes: %q", name)
	}

	return nil
}

// ValidateCanvas checks that both canvas dimensions are non-zero.
func ValidateCanvas(width, height uint32) error {
	if width == 0 || height == 0 {
		return New(ErrCodeInvalidCanvas, "canvas must be non-empty, got %dx%d", width, height)
	}
	return nil
}
