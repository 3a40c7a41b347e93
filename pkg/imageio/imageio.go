// Package imageio defines the image decoding and encoding collaborators used
// by the atlas build, and a default implementation backed by the standard
// image codecs plus golang.org/x/image.
//
// Pixels cross the interfaces as tightly packed 8-bit RGBA rows with
// straight (non-premultiplied) alpha, top row first, stride Width*4.
//
// # Usage
//
//	codec := imageio.NewCodec(afero.NewOsFs())
//	h, err := codec.Open("sprites/hero.png")
//	if err != nil {
//	    return err
//	}
//	defer h.Close()
//	fmt.Println(h.Width(), h.Height()) // header only, no pixel decode
//	pix, err := h.ReadRows()
package imageio

// Decoder opens source images. Open must be cheap: it reads only what is
// needed to report dimensions.
type Decoder interface {
	Open(path string) (Handle, error)
}

// Handle is an opened source image.
type Handle interface {
	Width() int
	Height() int

	// ReadRows decodes the full image and returns Width*Height*4 bytes of
	// RGBA8 pixels.
	ReadRows() ([]byte, error)

	Close() error
}

// Encoder writes a composited layer.
type Encoder interface {
	WriteImage(path string, w, h int, pix []byte) error
}

// DefaultExtensions lists the source file extensions the default codec
// can decode.
var DefaultExtensions = []string{".png", ".bmp", ".webp"}

// OutputExtension is the extension of layer images written by the
// default codec.
const OutputExtension = ".png"
