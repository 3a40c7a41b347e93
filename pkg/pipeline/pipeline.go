// Package pipeline provides the atlas build pipeline for atlaspack.
//
// This package implements the complete scan → metadata → pack → compose →
// descriptor build used by the CLI. Centralizing it keeps stage ordering in
// one place: nothing is packed before every image has metadata, nothing is
// composited before packing succeeded, and the descriptor is written last.
//
// # Architecture
//
// The pipeline consists of five stages:
//
//  1. Scan: Enumerate source images under the root directory
//  2. Metadata: Probe each image's dimensions (cached by file version)
//  3. Pack: Assign every image a layer and position
//  4. Compose: Write one RGBA image per layer
//  5. Descriptor: Atomically write the .ats file (the commit point)
//
// A failure in any stage aborts the build before the descriptor is written,
// so a stale or partial set of layer images is never described.
//
// # Usage
//
//	runner := pipeline.NewRunner(afero.NewOsFs(), c, nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{Root: "textures"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.DescriptorPath, result.Stats.Layers)
package pipeline

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/atlaspack/pkg/descriptor"
	"github.com/matzehuels/atlaspack/pkg/errors"
	"github.com/matzehuels/atlaspack/pkg/imageio"
	"github.com/matzehuels/atlaspack/pkg/pack"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and Config
// =============================================================================

const (
	// DefaultCanvasSize is the default layer width and height in pixels.
	DefaultCanvasSize = 4096

	// MaxCanvasSize bounds a layer so its RGBA buffer stays addressable.
	MaxCanvasSize = 1 << 15

	// DefaultWorkers composites one layer per CPU.
	DefaultWorkers = 0

	// TreeSuffix is appended to the layer base name for --dump-trees output.
	TreeSuffix = ".tree.svg"
)

// DefaultExtensions returns the source extensions scanned by default.
func DefaultExtensions() []string {
	return append([]string(nil), imageio.DefaultExtensions...)
}

// =============================================================================
// Options - Build Configuration
// =============================================================================

// Options contains all configuration for one atlas build.
type Options struct {
	// Root is the directory scanned for source images.
	Root string `json:"root"`

	// Output is the base path of the build artifacts: layers are written
	// to <Output><i>.png and the descriptor to <Output>.ats. It defaults
	// to Root without its trailing separator.
	Output string `json:"output,omitempty"`

	Width      uint32   `json:"width,omitempty"`
	Height     uint32   `json:"height,omitempty"`
	Workers    int      `json:"workers,omitempty"`
	Extensions []string `json:"extensions,omitempty"`

	// Compression names the PNG level for layer images (see
	// imageio.CompressionNames). Empty means the default level. It only
	// applies when the runner's encoder is the default codec.
	Compression string `json:"compression,omitempty"`

	// Refresh ignores cached metadata and re-probes every image.
	Refresh bool `json:"refresh,omitempty"`

	// DumpTrees writes each layer's free-rectangle tree as SVG.
	DumpTrees bool `json:"dump_trees,omitempty"`

	// Runtime options (not serialized)
	Logger *log.Logger `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// ImageRecord is one source image as it moves through the build.
// Placement is pack.Unassigned until the pack stage sets it.
type ImageRecord struct {
	Name      string
	Path      string
	Width     uint32
	Height    uint32
	Placement pack.Placement
}

// Result contains the outputs of a build.
type Result struct {
	// BuildID identifies this run in logs.
	BuildID string

	// Records holds every image in enumeration order with its placement.
	Records []ImageRecord

	// Descriptor is what was written to DescriptorPath.
	Descriptor *descriptor.Descriptor

	LayerPaths     []string
	DescriptorPath string
	TreePaths      []string

	// Stats contains timing and size information.
	Stats Stats

	// CacheInfo tracks metadata cache usage.
	CacheInfo CacheInfo
}

// Stats contains build execution statistics.
type Stats struct {
	Sprites      int
	Layers       int
	Fill         []float64
	ScanTime     time.Duration
	MetadataTime time.Duration
	PackTime     time.Duration
	ComposeTime  time.Duration
}

// CacheInfo tracks metadata cache hits and misses.
type CacheInfo struct {
	MetadataHits   int
	MetadataMisses int
}

// =============================================================================
// Validation Functions
// =============================================================================

// ValidateCanvasSize checks that a canvas dimension is usable.
func ValidateCanvasSize(name string, v uint32) error {
	if v == 0 {
		return errors.New(errors.ErrCodeInvalidCanvas, "%s must be positive", name)
	}
	if v > MaxCanvasSize {
		return errors.New(errors.ErrCodeInvalidCanvas, "%s %d exceeds the maximum of %d", name, v, MaxCanvasSize)
	}
	return nil
}

// ValidateExtensions checks that every extension starts with a dot.
func ValidateExtensions(exts []string) error {
	for _, e := range exts {
		if len(e) < 2 || e[0] != '.' || strings.ContainsAny(e, `/\`) {
			return errors.New(errors.ErrCodeInvalidInput, "invalid extension %q (want a form like .png)", e)
		}
	}
	return nil
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults checks required fields and applies defaults.
// This method is idempotent - calling it multiple times has the same effect as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.Root == "" {
		return errors.New(errors.ErrCodeInvalidInput, "source directory is required")
	}
	if o.Output == "" {
		o.Output = DefaultOutputBase(o.Root)
	}
	if o.Width == 0 {
		o.Width = DefaultCanvasSize
	}
	if o.Height == 0 {
		o.Height = DefaultCanvasSize
	}
	if err := ValidateCanvasSize("canvas width", o.Width); err != nil {
		return err
	}
	if err := ValidateCanvasSize("canvas height", o.Height); err != nil {
		return err
	}
	if o.Workers < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "workers must not be negative, got %d", o.Workers)
	}
	if len(o.Extensions) == 0 {
		o.Extensions = DefaultExtensions()
	}
	if err := ValidateExtensions(o.Extensions); err != nil {
		return err
	}
	if _, err := imageio.ParseCompression(o.Compression); err != nil {
		return err
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// LayerPath returns the output path of layer i.
func (o *Options) LayerPath(i int) string {
	return fmt.Sprintf("%s%d%s", o.Output, i, imageio.OutputExtension)
}

// DescriptorPath returns the output path of the descriptor.
func (o *Options) DescriptorPath() string {
	return o.Output + descriptor.Extension
}

// TreePath returns the output path of layer i's tree dump.
func (o *Options) TreePath(i int) string {
	return fmt.Sprintf("%s%d%s", o.Output, i, TreeSuffix)
}

// IsLayerPath reports whether path is one of the layer images this build
// writes, <Output><digits>.png. An output base inside Root would otherwise
// feed the previous build's layers back in as sprites.
func (o *Options) IsLayerPath(path string) bool {
	if o.Output == "" {
		return false
	}
	base, p := filepath.Clean(o.Output), filepath.Clean(path)
	if ab, err := filepath.Abs(base); err == nil {
		if ap, err := filepath.Abs(p); err == nil {
			base, p = ab, ap
		}
	}
	rest, ok := strings.CutPrefix(p, base)
	if !ok {
		return false
	}
	digits, ok := strings.CutSuffix(rest, imageio.OutputExtension)
	return ok && digits != "" && strings.Trim(digits, "0123456789") == ""
}

// DefaultOutputBase returns root without trailing separators, so
// "textures/" builds textures0.png and textures.ats beside the directory.
// Relative roots that name no directory of their own ("." and "..") are
// made absolute first.
func DefaultOutputBase(root string) string {
	base := filepath.Clean(root)
	if base == "." || base == ".." {
		if abs, err := filepath.Abs(base); err == nil {
			base = abs
		}
	}
	return base
}
