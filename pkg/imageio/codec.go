package imageio

import (
	"bufio"
	"image"
	"image/png"
	"io"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/image/draw"

	// Register decoders with image.Decode and image.DecodeConfig.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/matzehuels/atlaspack/pkg/errors"
)

// Codec is the default Decoder and Encoder. It reads PNG, BMP and WebP and
// writes PNG.
type Codec struct {
	fs  afero.Fs
	enc png.Encoder
}

// NewCodec returns a codec reading and writing through fs.
func NewCodec(fs afero.Fs) *Codec {
	return &Codec{fs: fs, enc: png.Encoder{CompressionLevel: png.DefaultCompression}}
}

// WithCompression returns a copy of c that writes layers at level.
func (c *Codec) WithCompression(level png.CompressionLevel) *Codec {
	cp := *c
	cp.enc.CompressionLevel = level
	return &cp
}

var compressionLevels = map[string]png.CompressionLevel{
	"default": png.DefaultCompression,
	"fast":    png.BestSpeed,
	"best":    png.BestCompression,
	"none":    png.NoCompression,
}

// CompressionNames lists the names ParseCompression accepts.
var CompressionNames = []string{"default", "fast", "best", "none"}

// ParseCompression maps a level name to a PNG compression level. An empty
// name is the default level.
func ParseCompression(name string) (png.CompressionLevel, error) {
	if name == "" {
		return png.DefaultCompression, nil
	}
	level, ok := compressionLevels[strings.ToLower(name)]
	if !ok {
		return 0, errors.New(errors.ErrCodeInvalidInput, "unknown compression %q (want one of %s)", name, strings.Join(CompressionNames, ", "))
	}
	return level, nil
}

// Open reads the image header and returns a handle that decodes pixels on
// demand.
func (c *Codec) Open(path string) (Handle, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecode, err, "open %s", path)
	}
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(errors.ErrCodeDecode, err, "read header of %s", path)
	}
	return &fileHandle{path: path, f: f, cfg: cfg}, nil
}

// WriteImage encodes pix as a PNG at path.
func (c *Codec) WriteImage(path string, w, h int, pix []byte) error {
	if w <= 0 || h <= 0 || len(pix) != w*h*4 {
		return errors.New(errors.ErrCodeEncode, "%s: %d bytes is not a %dx%d RGBA buffer", path, len(pix), w, h)
	}
	img := &image.NRGBA{Pix: pix, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}

	f, err := c.fs.Create(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeEncode, err, "create %s", path)
	}
	bw := bufio.NewWriter(f)
	if err := c.enc.Encode(bw, img); err != nil {
		f.Close()
		return errors.Wrap(errors.ErrCodeEncode, err, "encode %s", path)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return errors.Wrap(errors.ErrCodeEncode, err, "write %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeEncode, err, "close %s", path)
	}
	return nil
}

type fileHandle struct {
	path string
	f    afero.File
	cfg  image.Config
}

func (h *fileHandle) Width() int  { return h.cfg.Width }
func (h *fileHandle) Height() int { return h.cfg.Height }

func (h *fileHandle) ReadRows() ([]byte, error) {
	if _, err := h.f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecode, err, "rewind %s", h.path)
	}
	img, _, err := image.Decode(h.f)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecode, err, "decode %s", h.path)
	}
	return ToNRGBA(img).Pix, nil
}

func (h *fileHandle) Close() error { return h.f.Close() }

// ToNRGBA returns img as a tightly packed, zero-origin NRGBA image,
// converting through draw.Src when needed.
func ToNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) && n.Stride == b.Dx()*4 {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
