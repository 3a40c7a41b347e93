// Package descriptor reads and writes .ats atlas descriptors.
//
// A descriptor is the side-table that maps sprite names to their
// placement in an atlas, plus the canvas metadata a runtime needs to turn
// pixel rectangles into normalized UV transforms. The build tool writes it
// last, so a present and well-formed descriptor marks a complete atlas.
//
// # Format
//
// All integers are big-endian uint32:
//
//	spriteCount
//	canvasWidth
//	canvasHeight
//	layerCount
//	repeated spriteCount times:
//	    x, y, layer, w, h     (20 bytes)
//	    name                  (UTF-8, no length prefix)
//	    0x00                  (terminator)
//
// Nothing may follow the last terminator.
package descriptor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/matzehuels/atlaspack/pkg/errors"
)

// Extension is the conventional descriptor file extension.
const Extension = ".ats"

// MaxNameSize bounds a record name on disk, terminator excluded. Decode
// stops reading a name at this size instead of buffering the input.
const MaxNameSize = 64 << 10

const (
	headerSize = 16
	fixedSize  = 20
)

// Record is one sprite's placement within the atlas.
type Record struct {
	X, Y  uint32
	Layer uint32
	W, H  uint32
	Name  string
}

// Descriptor is a decoded .ats file. Records keep the order they were
// written in, which for the build tool is source enumeration order.
type Descriptor struct {
	CanvasWidth  uint32
	CanvasHeight uint32
	LayerCount   uint32
	Records      []Record
}

// Kind identifies why a descriptor failed to decode.
type Kind int

const (
	// UnexpectedEOF means the input ended inside the header or a record.
	UnexpectedEOF Kind = iota + 1
	// MissingTerminator means a name ran to the end of input without a NUL.
	MissingTerminator
	// DuplicateName means two records share a name.
	DuplicateName
	// TrailingData means bytes follow the last record.
	TrailingData
	// InvalidHeader means the canvas is empty or records exist without layers.
	InvalidHeader
	// LayerOutOfRange means a record names a layer ≥ layerCount.
	LayerOutOfRange
	// InvalidName means a name is empty, not UTF-8, or longer than
	// MaxNameSize.
	InvalidName
	// LayerGap means a layer below layerCount holds no record.
	LayerGap
)

var kindNames = map[Kind]string{
	UnexpectedEOF:     "unexpected EOF",
	MissingTerminator: "missing name terminator",
	DuplicateName:     "duplicate name",
	TrailingData:      "trailing data",
	InvalidHeader:     "invalid header",
	LayerOutOfRange:   "layer out of range",
	InvalidName:       "invalid name",
	LayerGap:          "empty layer",
}

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// FormatError describes a malformed descriptor. Offset is the byte offset
// at which the problem was detected; Record is the zero-based record index,
// or -1 for header problems.
type FormatError struct {
	Kind   Kind
	Offset int64
	Record int
	Name   string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	msg := fmt.Sprintf("descriptor: %s at byte %d", e.Kind, e.Offset)
	if e.Record >= 0 {
		msg += fmt.Sprintf(" (record %d)", e.Record)
	}
	if e.Name != "" {
		msg += fmt.Sprintf(": %q", e.Name)
	}
	return msg
}

// Lookup returns the record with the given name.
func (d *Descriptor) Lookup(name string) (Record, bool) {
	for _, r := range d.Records {
		if r.Name == name {
			return r, true
		}
	}
	return Record{}, false
}

// EmptyLayer returns the lowest layer below LayerCount that holds no
// record. ok is false when layers 0..LayerCount-1 are all in use.
func (d *Descriptor) EmptyLayer() (layer uint32, ok bool) {
	// With more layers than records some layer among the first
	// len(Records)+1 is empty, so that many flags are enough.
	n := min(uint64(d.LayerCount), uint64(len(d.Records))+1)
	used := make([]bool, n)
	for _, r := range d.Records {
		if uint64(r.Layer) < n {
			used[r.Layer] = true
		}
	}
	for i, u := range used {
		if !u {
			return uint32(i), true
		}
	}
	return 0, false
}

// checkName applies the format's own name rules: non-empty UTF-8 that fits
// MaxNameSize and carries no NUL. Stricter rules belong to the build.
func checkName(name string) error {
	switch {
	case name == "":
		return errors.New(errors.ErrCodeInvalidName, "sprite name cannot be empty")
	case len(name) > MaxNameSize:
		return errors.New(errors.ErrCodeInvalidName, "sprite name too long (max %d bytes)", MaxNameSize)
	case !utf8.ValidString(name):
		return errors.New(errors.ErrCodeInvalidName, "sprite name is not valid UTF-8: %q", name)
	case strings.IndexByte(name, 0) >= 0:
		return errors.New(errors.ErrCodeInvalidName, "sprite name contains NUL: %q", name)
	}
	return nil
}
