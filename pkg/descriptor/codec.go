package descriptor

import (
	"bufio"
	"bytes"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/matzehuels/atlaspack/pkg/errors"
)

// Marshal encodes d into a new byte slice.
func Marshal(d *Descriptor) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes d to w in .ats format.
//
// It refuses to write anything a decoder would reject: an empty canvas,
// duplicate or invalid names, records on layers ≥ LayerCount, or a layer
// without records. These fail with ENCODE_FAILED before any byte is
// written.
func Encode(w io.Writer, d *Descriptor) error {
	if err := validate(d); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	var fixed [fixedSize]byte

	binary.BigEndian.PutUint32(fixed[0:], uint32(len(d.Records)))
	binary.BigEndian.PutUint32(fixed[4:], d.CanvasWidth)
	binary.BigEndian.PutUint32(fixed[8:], d.CanvasHeight)
	binary.BigEndian.PutUint32(fixed[12:], d.LayerCount)
	if _, err := bw.Write(fixed[:headerSize]); err != nil {
		return errors.Wrap(errors.ErrCodeEncode, err, "write descriptor header")
	}

	for _, r := range d.Records {
		binary.BigEndian.PutUint32(fixed[0:], r.X)
		binary.BigEndian.PutUint32(fixed[4:], r.Y)
		binary.BigEndian.PutUint32(fixed[8:], r.Layer)
		binary.BigEndian.PutUint32(fixed[12:], r.W)
		binary.BigEndian.PutUint32(fixed[16:], r.H)
		if _, err := bw.Write(fixed[:]); err != nil {
			return errors.Wrap(errors.ErrCodeEncode, err, "write record %q", r.Name)
		}
		if _, err := bw.WriteString(r.Name); err != nil {
			return errors.Wrap(errors.ErrCodeEncode, err, "write record %q", r.Name)
		}
		if err := bw.WriteByte(0); err != nil {
			return errors.Wrap(errors.ErrCodeEncode, err, "write record %q", r.Name)
		}
	}

	if err := bw.Flush(); err != nil {
		return errors.Wrap(errors.ErrCodeEncode, err, "flush descriptor")
	}
	return nil
}

func validate(d *Descriptor) error {
	if d == nil {
		return errors.New(errors.ErrCodeEncode, "nil descriptor")
	}
	if err := errors.ValidateCanvas(d.CanvasWidth, d.CanvasHeight); err != nil {
		return errors.Wrap(errors.ErrCodeEncode, err, "invalid descriptor header")
	}
	if len(d.Records) > 0 && d.LayerCount == 0 {
		return errors.New(errors.ErrCodeEncode, "descriptor has %d records but no layers", len(d.Records))
	}

	seen := make(map[string]struct{}, len(d.Records))
	for _, r := range d.Records {
		if err := checkName(r.Name); err != nil {
			return errors.Wrap(errors.ErrCodeEncode, err, "invalid record name")
		}
		if _, dup := seen[r.Name]; dup {
			return errors.New(errors.ErrCodeEncode, "duplicate sprite name %q", r.Name)
		}
		seen[r.Name] = struct{}{}
		if r.Layer >= d.LayerCount {
			return errors.New(errors.ErrCodeEncode, "sprite %q on layer %d, descriptor has %d layers", r.Name, r.Layer, d.LayerCount)
		}
	}
	if l, ok := d.EmptyLayer(); ok {
		return errors.New(errors.ErrCodeEncode, "layer %d of %d holds no sprite", l, d.LayerCount)
	}
	return nil
}

// Unmarshal decodes a complete descriptor from data.
func Unmarshal(data []byte) (*Descriptor, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads a complete descriptor from r. It consumes r to EOF and
// fails if anything follows the last record.
//
// Malformed input yields an INVALID_FORMAT error wrapping a *FormatError,
// which callers can recover with errors.As. Read failures other than EOF
// are returned wrapped as INVALID_FORMAT with the underlying cause.
func Decode(r io.Reader) (*Descriptor, error) {
	dec := decoder{r: bufio.NewReader(r)}
	d, err := dec.decode()
	if err != nil {
		return nil, err
	}
	return d, nil
}

type decoder struct {
	r   *bufio.Reader
	off int64
}

func (dec *decoder) fail(kind Kind, record int, name string) error {
	fe := &FormatError{Kind: kind, Offset: dec.off, Record: record, Name: name}
	return errors.Wrap(errors.ErrCodeInvalidFormat, fe, "malformed descriptor")
}

func (dec *decoder) readFull(buf []byte, record int) error {
	n, err := io.ReadFull(dec.r, buf)
	dec.off += int64(n)
	if err == nil {
		return nil
	}
	if stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF) {
		return dec.fail(UnexpectedEOF, record, "")
	}
	return errors.Wrap(errors.ErrCodeInvalidFormat, err, "read descriptor")
}

func (dec *decoder) decode() (*Descriptor, error) {
	var fixed [fixedSize]byte

	if err := dec.readFull(fixed[:headerSize], -1); err != nil {
		return nil, err
	}
	count := binary.BigEndian.Uint32(fixed[0:])
	d := &Descriptor{
		CanvasWidth:  binary.BigEndian.Uint32(fixed[4:]),
		CanvasHeight: binary.BigEndian.Uint32(fixed[8:]),
		LayerCount:   binary.BigEndian.Uint32(fixed[12:]),
	}
	if d.CanvasWidth == 0 || d.CanvasHeight == 0 || (count > 0 && d.LayerCount == 0) {
		return nil, dec.fail(InvalidHeader, -1, "")
	}
	// Every layer holds at least one record.
	if d.LayerCount > count {
		return nil, dec.fail(LayerGap, -1, "")
	}

	// count comes from the file; grow as records arrive rather than
	// trusting it for a single allocation.
	d.Records = make([]Record, 0, min(count, 1024))
	seen := make(map[string]struct{}, min(count, 1024))

	for i := 0; i < int(count); i++ {
		if err := dec.readFull(fixed[:], i); err != nil {
			return nil, err
		}
		rec := Record{
			X:     binary.BigEndian.Uint32(fixed[0:]),
			Y:     binary.BigEndian.Uint32(fixed[4:]),
			Layer: binary.BigEndian.Uint32(fixed[8:]),
			W:     binary.BigEndian.Uint32(fixed[12:]),
			H:     binary.BigEndian.Uint32(fixed[16:]),
		}

		name, err := dec.readName(i)
		if err != nil {
			return nil, err
		}
		rec.Name = name
		if _, dup := seen[rec.Name]; dup {
			return nil, dec.fail(DuplicateName, i, rec.Name)
		}
		if rec.Layer >= d.LayerCount {
			return nil, dec.fail(LayerOutOfRange, i, rec.Name)
		}
		seen[rec.Name] = struct{}{}
		d.Records = append(d.Records, rec)
	}

	if l, ok := d.EmptyLayer(); ok {
		return nil, dec.fail(LayerGap, -1, fmt.Sprintf("layer %d", l))
	}

	if _, err := dec.r.ReadByte(); err == nil {
		dec.off++
		return nil, dec.fail(TrailingData, -1, "")
	} else if !stderrors.Is(err, io.EOF) {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "read descriptor")
	}
	return d, nil
}

// readName reads one NUL-terminated name of at most MaxNameSize bytes.
func (dec *decoder) readName(record int) (string, error) {
	var name []byte
	for {
		chunk, err := dec.r.ReadSlice(0)
		dec.off += int64(len(chunk))
		name = append(name, chunk...)
		switch {
		case err == nil:
			name = name[:len(name)-1]
			if len(name) == 0 || len(name) > MaxNameSize || !utf8.Valid(name) {
				return "", dec.fail(InvalidName, record, string(name))
			}
			return string(name), nil
		case len(name) > MaxNameSize:
			return "", dec.fail(InvalidName, record, "")
		case stderrors.Is(err, bufio.ErrBufferFull):
			continue
		case stderrors.Is(err, io.EOF):
			return "", dec.fail(MissingTerminator, record, string(name))
		default:
			return "", errors.Wrap(errors.ErrCodeInvalidFormat, err, "read descriptor")
		}
	}
}
