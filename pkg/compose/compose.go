// Package compose renders packed sprites into layer images.
//
// Each layer is a zero-initialised Width*Height RGBA8 buffer. Every sprite
// assigned to the layer is decoded and copied row by row to its placement,
// then the buffer is handed to the encoder. Gutter pixels are never written
// and stay transparent black.
//
// Layers are independent and run in parallel, one goroutine owning each
// buffer. The first failure cancels the remaining layers and is returned.
package compose

import (
	"context"
	"io"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/atlaspack/pkg/errors"
	"github.com/matzehuels/atlaspack/pkg/imageio"
	"github.com/matzehuels/atlaspack/pkg/observability"
)

// Image is one placed sprite.
type Image struct {
	Name  string
	Path  string
	X, Y  uint32
	Layer uint32
	W, H  uint32
}

// Job describes one compositing run.
type Job struct {
	Width, Height uint32
	Layers        int
	Images        []Image

	Decoder imageio.Decoder
	Encoder imageio.Encoder

	// LayerPath returns the output path of layer i.
	LayerPath func(layer int) string

	// Workers bounds the number of layers composited at once.
	// Zero means runtime.GOMAXPROCS(0).
	Workers int

	Logger *log.Logger
}

// Compose composites and writes every layer of job. It returns
// DIMENSION_MISMATCH when a source image no longer has the size it was
// packed with, and passes decoder and encoder failures through.
func Compose(ctx context.Context, job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	logger := job.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	byLayer := make([][]Image, job.Layers)
	for _, img := range job.Images {
		byLayer[img.Layer] = append(byLayer[img.Layer], img)
	}

	workers := job.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for layer := range job.Layers {
		g.Go(func() error {
			return composeLayer(ctx, job, layer, byLayer[layer], logger)
		})
	}
	return g.Wait()
}

func composeLayer(ctx context.Context, job Job, layer int, images []Image, logger *log.Logger) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	observability.Build().OnLayerStart(ctx, layer, len(images))
	defer func() {
		observability.Build().OnLayerComplete(ctx, layer, time.Since(start), err)
	}()

	stride := int(job.Width) * 4
	buf := make([]byte, stride*int(job.Height))

	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := blitFrom(job.Decoder, img, buf, stride); err != nil {
			return err
		}
	}

	path := job.LayerPath(layer)
	if err := job.Encoder.WriteImage(path, int(job.Width), int(job.Height), buf); err != nil {
		return err
	}
	logger.Debug("layer written", "layer", layer, "path", path, "sprites", len(images), "duration", time.Since(start))
	return nil
}

func blitFrom(dec imageio.Decoder, img Image, dst []byte, stride int) error {
	h, err := dec.Open(img.Path)
	if err != nil {
		return err
	}
	defer h.Close()

	if h.Width() != int(img.W) || h.Height() != int(img.H) {
		return errors.New(errors.ErrCodeDimensionMismatch,
			"image %q is %dx%d, was %dx%d when packed", img.Name, h.Width(), h.Height(), img.W, img.H)
	}

	src, err := h.ReadRows()
	if err != nil {
		return err
	}
	row := int(img.W) * 4
	if len(src) != row*int(img.H) {
		return errors.New(errors.ErrCodeDecode, "image %q: decoder returned %d bytes, want %d", img.Name, len(src), row*int(img.H))
	}

	Blit(dst, stride, src, row, int(img.X), int(img.Y), int(img.H))
	return nil
}

// Blit copies rows rows of width srcStride bytes from src into dst at pixel
// (x, y). dst has a row pitch of dstStride bytes. The caller guarantees the
// rectangle lies within dst.
func Blit(dst []byte, dstStride int, src []byte, srcStride, x, y, rows int) {
	off := y*dstStride + x*4
	for r := range rows {
		copy(dst[off:off+srcStride], src[r*srcStride:(r+1)*srcStride])
		off += dstStride
	}
}

func (job *Job) validate() error {
	if err := errors.ValidateCanvas(job.Width, job.Height); err != nil {
		return err
	}
	if job.Decoder == nil || job.Encoder == nil || job.LayerPath == nil {
		return errors.New(errors.ErrCodeInvalidInput, "compose job is missing its decoder, encoder or layer path")
	}
	if job.Layers < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "negative layer count %d", job.Layers)
	}
	for _, img := range job.Images {
		if img.Layer >= uint32(job.Layers) {
			return errors.New(errors.ErrCodeInvalidInput, "image %q is on layer %d of %d", img.Name, img.Layer, job.Layers)
		}
		if uint64(img.X)+uint64(img.W) > uint64(job.Width) || uint64(img.Y)+uint64(img.H) > uint64(job.Height) {
			return errors.New(errors.ErrCodeInvalidInput, "image %q at (%d,%d) %dx%d exceeds the %dx%d canvas",
				img.Name, img.X, img.Y, img.W, img.H, job.Width, job.Height)
		}
	}
	return nil
}
