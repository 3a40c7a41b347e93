package descriptor

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/atlaspack/pkg/errors"
)

func sampleDescriptor() *Descriptor {
	return &Descriptor{
		CanvasWidth:  10,
		CanvasHeight: 10,
		LayerCount:   2,
		Records: []Record{
			{X: 0, Y: 0, Layer: 0, W: 6, H: 4, Name: "a"},
			{X: 0, Y: 5, Layer: 0, W: 6, H: 4, Name: "b"},
			{X: 0, Y: 0, Layer: 1, W: 6, H: 4, Name: "ui/héros"},
		},
	}
}

func TestMarshalLayout(t *testing.T) {
	d := &Descriptor{
		CanvasWidth:  256,
		CanvasHeight: 128,
		LayerCount:   1,
		Records:      []Record{{X: 1, Y: 2, Layer: 0, W: 3, H: 4, Name: "ab"}},
	}

	got, err := Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	want := []byte{
		0, 0, 0, 1, // count
		0, 0, 1, 0, // canvas width
		0, 0, 0, 128, // canvas height
		0, 0, 0, 1, // layers
		0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0, 3, 0, 0, 0, 4,
		'a', 'b', 0,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Marshal() =\n%v\nwant\n%v", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		d    *Descriptor
	}{
		{"sample", sampleDescriptor()},
		{"empty", &Descriptor{CanvasWidth: 4096, CanvasHeight: 4096, Records: []Record{}}},
		{"large values", &Descriptor{
			CanvasWidth:  0xFFFFFFFF,
			CanvasHeight: 0x01020304,
			LayerCount:   1,
			Records:      []Record{{X: 0xFFFFFFFE, Y: 0x80000000, Layer: 0, W: 1, H: 0xFFFFFFFF, Name: "big"}},
		}},
		{"names the build would not produce", &Descriptor{
			CanvasWidth:  8,
			CanvasHeight: 8,
			LayerCount:   1,
			Records: []Record{
				{W: 1, H: 1, Name: `ui\legacy\ok`},
				{W: 1, H: 1, Name: "tab\there"},
				{W: 1, H: 1, Name: strings.Repeat("n", 4000)},
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(tt.d)
			if err != nil {
				t.Fatalf("Marshal() error: %v", err)
			}
			got, err := Unmarshal(data)
			if err != nil {
				t.Fatalf("Unmarshal() error: %v", err)
			}
			if diff := cmp.Diff(tt.d, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}

			again, err := Marshal(got)
			if err != nil {
				t.Fatalf("second Marshal() error: %v", err)
			}
			if !bytes.Equal(data, again) {
				t.Error("encode(decode(bytes)) != bytes")
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	valid, err := Marshal(sampleDescriptor())
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	// First record starts after the 16 byte header.
	firstName := headerSize + fixedSize

	dup := sampleDescriptor()
	dupData := mustMarshal(t, dup)
	// Rewrite "b" to "a" in place.
	dupData[bytes.IndexByte(dupData[firstName+2:], 'b')+firstName+2] = 'a'

	tests := []struct {
		name string
		data []byte
		kind Kind
	}{
		{"empty input", nil, UnexpectedEOF},
		{"short header", valid[:10], UnexpectedEOF},
		{"truncated fixed block", valid[:headerSize+7], UnexpectedEOF},
		{"truncated before name", valid[:firstName], MissingTerminator},
		{"missing terminator", valid[:firstName+1], MissingTerminator},
		{"truncated after first record", valid[:firstName+2], UnexpectedEOF},
		{"trailing byte", append(bytes.Clone(valid), 0), TrailingData},
		{"duplicate name", dupData, DuplicateName},
		{"zero canvas width", patchUint32(valid, 4, 0), InvalidHeader},
		{"zero canvas height", patchUint32(valid, 8, 0), InvalidHeader},
		{"records without layers", patchUint32(valid, 12, 0), InvalidHeader},
		{"layer out of range", patchUint32(valid, headerSize+8, 2), LayerOutOfRange},
		{"empty name", append(patchUint32(patchUint32(valid[:headerSize], 0, 1), 12, 1), make([]byte, fixedSize+1)...), InvalidName},
		{"more layers than records", patchUint32(valid, 12, 4), LayerGap},
		{"unused layer", patchUint32(valid, firstName+2+fixedSize+2+8, 0), LayerGap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Unmarshal(tt.data)
			if err == nil {
				t.Fatalf("Unmarshal() = %+v, want error", d)
			}
			if d != nil {
				t.Error("Unmarshal() should not return a partial descriptor")
			}
			if !errors.Is(err, errors.ErrCodeInvalidFormat) {
				t.Errorf("code = %v, want %v", errors.GetCode(err), errors.ErrCodeInvalidFormat)
			}
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("error %v is not a *FormatError", err)
			}
			if fe.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", fe.Kind, tt.kind)
			}
		})
	}
}

func TestDecodeLayerCountBeyondRecords(t *testing.T) {
	// One record claiming 2^32-1 layers: 44 bytes that must not size any
	// per-layer table.
	var buf bytes.Buffer
	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header[0:], 1)
	binary.BigEndian.PutUint32(header[4:], 8)
	binary.BigEndian.PutUint32(header[8:], 8)
	binary.BigEndian.PutUint32(header[12:], 0xFFFFFFFF)
	buf.Write(header)
	buf.Write(make([]byte, fixedSize))
	buf.WriteString("unknown\x00")
	if buf.Len() != 44 {
		t.Fatalf("fixture is %d bytes, want 44", buf.Len())
	}

	d, err := Unmarshal(buf.Bytes())
	var fe *FormatError
	if !errors.As(err, &fe) || fe.Kind != LayerGap {
		t.Fatalf("Unmarshal() = %+v, %v; want %v", d, err, LayerGap)
	}
}

func TestDecodeNames(t *testing.T) {
	record := func(name []byte) []byte {
		out := make([]byte, headerSize+fixedSize)
		binary.BigEndian.PutUint32(out[0:], 1)
		binary.BigEndian.PutUint32(out[4:], 8)
		binary.BigEndian.PutUint32(out[8:], 8)
		binary.BigEndian.PutUint32(out[12:], 1)
		return append(out, name...)
	}

	tests := []struct {
		name string
		data []byte
		kind Kind
	}{
		{"invalid utf-8", record([]byte{0xff, 0xfe, 0}), InvalidName},
		{"longer than MaxNameSize", record(append(bytes.Repeat([]byte("x"), MaxNameSize+1), 0)), InvalidName},
		{"unterminated and unbounded", record(bytes.Repeat([]byte("x"), 4*MaxNameSize)), InvalidName},
		{"unterminated", record([]byte("hero")), MissingTerminator},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(tt.data)
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("Unmarshal() error = %v, want *FormatError", err)
			}
			if fe.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", fe.Kind, tt.kind)
			}
		})
	}

	longest := record(append(bytes.Repeat([]byte("x"), MaxNameSize), 0))
	d, err := Unmarshal(longest)
	if err != nil {
		t.Fatalf("Unmarshal() of a MaxNameSize name error: %v", err)
	}
	if got := len(d.Records[0].Name); got != MaxNameSize {
		t.Errorf("name length = %d, want %d", got, MaxNameSize)
	}
}

func TestEmptyLayer(t *testing.T) {
	tests := []struct {
		name   string
		d      *Descriptor
		layer  uint32
		hasGap bool
	}{
		{"no layers", &Descriptor{}, 0, false},
		{"all used", sampleDescriptor(), 0, false},
		{"middle gap", &Descriptor{LayerCount: 3, Records: []Record{{Layer: 0}, {Layer: 2}}}, 1, true},
		{"more layers than records", &Descriptor{LayerCount: 0xFFFFFFFF, Records: []Record{{Layer: 0}}}, 1, true},
		{"layers without records", &Descriptor{LayerCount: 2}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layer, ok := tt.d.EmptyLayer()
			if ok != tt.hasGap || (ok && layer != tt.layer) {
				t.Errorf("EmptyLayer() = %d, %v; want %d, %v", layer, ok, tt.layer, tt.hasGap)
			}
		})
	}
}

func TestDecodeDuplicateNameReportsName(t *testing.T) {
	d := &Descriptor{CanvasWidth: 8, CanvasHeight: 8, LayerCount: 1}
	var buf bytes.Buffer
	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header[0:], 2)
	binary.BigEndian.PutUint32(header[4:], d.CanvasWidth)
	binary.BigEndian.PutUint32(header[8:], d.CanvasHeight)
	binary.BigEndian.PutUint32(header[12:], d.LayerCount)
	buf.Write(header)
	for range 2 {
		buf.Write(make([]byte, fixedSize))
		buf.WriteString("twin\x00")
	}

	_, err := Unmarshal(buf.Bytes())
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("Unmarshal() error = %v, want *FormatError", err)
	}
	if fe.Kind != DuplicateName || fe.Name != "twin" || fe.Record != 1 {
		t.Errorf("FormatError = %+v, want duplicate %q at record 1", fe, "twin")
	}
}

func TestEncodeRejects(t *testing.T) {
	tests := []struct {
		name string
		d    *Descriptor
	}{
		{"nil", nil},
		{"zero width", &Descriptor{CanvasWidth: 0, CanvasHeight: 1}},
		{"records without layers", &Descriptor{CanvasWidth: 1, CanvasHeight: 1, Records: []Record{{Name: "a", W: 1, H: 1}}}},
		{"duplicate", &Descriptor{CanvasWidth: 4, CanvasHeight: 4, LayerCount: 1, Records: []Record{{Name: "a"}, {Name: "a"}}}},
		{"nul in name", &Descriptor{CanvasWidth: 4, CanvasHeight: 4, LayerCount: 1, Records: []Record{{Name: "a\x00b"}}}},
		{"empty name", &Descriptor{CanvasWidth: 4, CanvasHeight: 4, LayerCount: 1, Records: []Record{{Name: ""}}}},
		{"layer out of range", &Descriptor{CanvasWidth: 4, CanvasHeight: 4, LayerCount: 1, Records: []Record{{Name: "a", Layer: 1}}}},
		{"empty layer", &Descriptor{CanvasWidth: 4, CanvasHeight: 4, LayerCount: 2, Records: []Record{{Name: "a"}, {Name: "b"}}}},
		{"invalid utf-8", &Descriptor{CanvasWidth: 4, CanvasHeight: 4, LayerCount: 1, Records: []Record{{Name: "\xff"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := Encode(&buf, tt.d)
			if !errors.Is(err, errors.ErrCodeEncode) {
				t.Errorf("Encode() error = %v, want code %v", err, errors.ErrCodeEncode)
			}
			if buf.Len() != 0 {
				t.Errorf("Encode() wrote %d bytes before failing", buf.Len())
			}
		})
	}
}

func TestLookup(t *testing.T) {
	d := sampleDescriptor()
	r, ok := d.Lookup("b")
	if !ok || r.Y != 5 {
		t.Errorf("Lookup(b) = %+v, %v; want Y=5, true", r, ok)
	}
	if _, ok := d.Lookup("missing"); ok {
		t.Error("Lookup(missing) should miss")
	}
}

func TestFormatErrorMessage(t *testing.T) {
	fe := &FormatError{Kind: DuplicateName, Offset: 42, Record: 3, Name: "hero"}
	want := `descriptor: duplicate name at byte 42 (record 3): "hero"`
	if got := fe.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	fe = &FormatError{Kind: TrailingData, Offset: 9, Record: -1}
	want = "descriptor: trailing data at byte 9"
	if got := fe.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func mustMarshal(t *testing.T, d *Descriptor) []byte {
	t.Helper()
	data, err := Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	return data
}

func patchUint32(data []byte, off int, v uint32) []byte {
	out := bytes.Clone(data)
	binary.BigEndian.PutUint32(out[off:], v)
	return out
}
