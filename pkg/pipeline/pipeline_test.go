package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/matzehuels/atlaspack/pkg/cache"
	"github.com/matzehuels/atlaspack/pkg/descriptor"
	"github.com/matzehuels/atlaspack/pkg/errors"
	"github.com/matzehuels/atlaspack/pkg/imageio"
	"github.com/matzehuels/atlaspack/pkg/pack"
	"github.com/matzehuels/atlaspack/pkg/sprite"
)

func TestValidateAndSetDefaults(t *testing.T) {
	opts := Options{Root: "textures/"}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("ValidateAndSetDefaults() error: %v", err)
	}
	if opts.Width != DefaultCanvasSize || opts.Height != DefaultCanvasSize {
		t.Errorf("canvas = %dx%d, want %dx%d", opts.Width, opts.Height, DefaultCanvasSize, DefaultCanvasSize)
	}
	if opts.Output != "textures" {
		t.Errorf("Output = %q, want %q", opts.Output, "textures")
	}
	if diff := cmp.Diff(imageio.DefaultExtensions, opts.Extensions); diff != "" {
		t.Errorf("Extensions mismatch (-want +got):\n%s", diff)
	}
	if opts.Logger == nil {
		t.Error("Logger should default to a discard logger")
	}

	// Idempotent
	opts.Width = 0
	if err := opts.ValidateAndSetDefaults(); err != nil || opts.Width != 0 {
		t.Errorf("second call should be a no-op, got width %d, err %v", opts.Width, err)
	}
}

func TestValidateAndSetDefaultsErrors(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		code errors.Code
	}{
		{"missing root", Options{}, errors.ErrCodeInvalidInput},
		{"huge canvas", Options{Root: "a", Width: MaxCanvasSize + 1}, errors.ErrCodeInvalidCanvas},
		{"negative workers", Options{Root: "a", Workers: -1}, errors.ErrCodeInvalidInput},
		{"extension without dot", Options{Root: "a", Extensions: []string{"png"}}, errors.ErrCodeInvalidInput},
		{"extension with separator", Options{Root: "a", Extensions: []string{"./png"}}, errors.ErrCodeInvalidInput},
		{"unknown compression", Options{Root: "a", Compression: "max"}, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.opts.ValidateAndSetDefaults(); !errors.Is(err, tt.code) {
				t.Errorf("ValidateAndSetDefaults() error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestOutputPaths(t *testing.T) {
	tests := []struct {
		root string
		want string
	}{
		{"textures", "textures"},
		{"textures/", "textures"},
		{"assets/ui//", filepath.Join("assets", "ui")},
	}
	for _, tt := range tests {
		if got := DefaultOutputBase(tt.root); got != tt.want {
			t.Errorf("DefaultOutputBase(%q) = %q, want %q", tt.root, got, tt.want)
		}
	}

	if got := DefaultOutputBase("."); !filepath.IsAbs(got) {
		t.Errorf("DefaultOutputBase(\".\") = %q, want an absolute path", got)
	}

	opts := Options{Output: "out/atlas"}
	if got := opts.LayerPath(2); got != "out/atlas2.png" {
		t.Errorf("LayerPath(2) = %q", got)
	}
	if got := opts.DescriptorPath(); got != "out/atlas.ats" {
		t.Errorf("DescriptorPath() = %q", got)
	}
	if got := opts.TreePath(0); got != "out/atlas0.tree.svg" {
		t.Errorf("TreePath(0) = %q", got)
	}
}

// countingDecoder counts Open calls on the wrapped decoder.
type countingDecoder struct {
	imageio.Decoder
	opens atomic.Int32
}

func (d *countingDecoder) Open(path string) (imageio.Handle, error) {
	d.opens.Add(1)
	return d.Decoder.Open(path)
}

func writePNG(t *testing.T, fs afero.Fs, path string, w, h int, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testRunner(fs afero.Fs, c cache.Cache) (*Runner, *countingDecoder) {
	r := NewRunner(fs, c, nil, log.NewWithOptions(io.Discard, log.Options{}))
	dec := &countingDecoder{Decoder: r.Decoder}
	r.Decoder = dec
	return r, dec
}

func seedTextures(t *testing.T, fs afero.Fs) {
	t.Helper()
	writePNG(t, fs, "/textures/a.png", 6, 4, color.NRGBA{R: 255, A: 255})
	writePNG(t, fs, "/textures/b.png", 6, 4, color.NRGBA{G: 255, A: 255})
	writePNG(t, fs, "/textures/unknown.png", 6, 4, color.NRGBA{R: 255, B: 255, A: 255})
}

func TestExecute(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedTextures(t, fs)
	r, _ := testRunner(fs, nil)

	res, err := r.Execute(context.Background(), Options{Root: "/textures/", Width: 10, Height: 10})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	want := []descriptor.Record{
		{X: 0, Y: 0, Layer: 0, W: 6, H: 4, Name: "a"},
		{X: 0, Y: 5, Layer: 0, W: 6, H: 4, Name: "b"},
		{X: 0, Y: 0, Layer: 1, W: 6, H: 4, Name: "unknown"},
	}
	if diff := cmp.Diff(want, res.Descriptor.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if res.Stats.Layers != 2 || res.Descriptor.LayerCount != 2 {
		t.Errorf("layers = %d / %d, want 2", res.Stats.Layers, res.Descriptor.LayerCount)
	}
	if res.DescriptorPath != "/textures.ats" {
		t.Errorf("DescriptorPath = %q, want /textures.ats", res.DescriptorPath)
	}
	if diff := cmp.Diff([]string{"/textures0.png", "/textures1.png"}, res.LayerPaths); diff != "" {
		t.Errorf("LayerPaths mismatch (-want +got):\n%s", diff)
	}
	for _, p := range res.LayerPaths {
		if ok, _ := afero.Exists(fs, p); !ok {
			t.Errorf("layer %s was not written", p)
		}
	}
	for _, rec := range res.Records {
		if !rec.Placement.Assigned() {
			t.Errorf("record %q left unassigned", rec.Name)
		}
	}

	reg, err := sprite.Load(fs, res.DescriptorPath)
	if err != nil {
		t.Fatalf("sprite.Load() error: %v", err)
	}
	if id := reg.Lookup("b"); id == sprite.Miss {
		t.Error("built atlas should resolve b")
	}
}

func TestIsLayerPath(t *testing.T) {
	opts := Options{Output: "/textures/atlas"}
	tests := []struct {
		path string
		want bool
	}{
		{"/textures/atlas0.png", true},
		{"/textures/atlas12.png", true},
		{"/textures/../textures/atlas1.png", true},
		{"/textures/atlas.png", false},
		{"/textures/atlasx.png", false},
		{"/textures/atlas0.bmp", false},
		{"/textures/atlas/0.png", false},
		{"/textures/hero.png", false},
	}
	for _, tt := range tests {
		if got := opts.IsLayerPath(tt.path); got != tt.want {
			t.Errorf("IsLayerPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
	if (&Options{}).IsLayerPath("0.png") {
		t.Error("IsLayerPath without an output base should be false")
	}
}

func TestExecuteOutputInsideRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedTextures(t, fs)
	r, _ := testRunner(fs, nil)
	opts := Options{Root: "/textures", Output: "/textures/atlas", Width: 10, Height: 10}

	first, err := r.Execute(context.Background(), opts)
	if err != nil {
		t.Fatalf("first Execute() error: %v", err)
	}
	second, err := r.Execute(context.Background(), opts)
	if err != nil {
		t.Fatalf("second Execute() error: %v", err)
	}

	if diff := cmp.Diff(first.Descriptor, second.Descriptor); diff != "" {
		t.Errorf("rebuild picked up its own layers (-first +second):\n%s", diff)
	}
	for _, rec := range second.Descriptor.Records {
		if rec.Name == "atlas0" || rec.Name == "atlas1" {
			t.Errorf("layer image %q was packed as a sprite", rec.Name)
		}
	}
}

func TestExecuteCompression(t *testing.T) {
	sizes := make(map[string]int64)
	for _, level := range []string{"best", "none"} {
		fs := afero.NewMemMapFs()
		seedTextures(t, fs)
		r, _ := testRunner(fs, nil)
		res, err := r.Execute(context.Background(), Options{Root: "/textures", Width: 64, Height: 64, Compression: level})
		if err != nil {
			t.Fatalf("Execute(%s) error: %v", level, err)
		}
		fi, err := fs.Stat(res.LayerPaths[0])
		if err != nil {
			t.Fatal(err)
		}
		sizes[level] = fi.Size()
	}
	if sizes["best"] >= sizes["none"] {
		t.Errorf("best = %d bytes, none = %d bytes; want best smaller", sizes["best"], sizes["none"])
	}
}

func TestExecuteComposesPixels(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedTextures(t, fs)
	r, _ := testRunner(fs, nil)

	if _, err := r.Execute(context.Background(), Options{Root: "/textures", Output: "/out/atlas", Width: 10, Height: 10}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	f, err := fs.Open("/out/atlas0.png")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	layer := imageio.ToNRGBA(img)

	tests := []struct {
		x, y int
		want color.NRGBA
	}{
		{0, 0, color.NRGBA{R: 255, A: 255}},
		{5, 3, color.NRGBA{R: 255, A: 255}},
		{0, 4, color.NRGBA{}},
		{0, 5, color.NRGBA{G: 255, A: 255}},
		{6, 5, color.NRGBA{}},
	}
	for _, tt := range tests {
		if got := layer.NRGBAAt(tt.x, tt.y); got != tt.want {
			t.Errorf("pixel(%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestExecuteMetadataCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedTextures(t, fs)
	c, err := cache.NewFileCache(fs, "/cache")
	if err != nil {
		t.Fatal(err)
	}
	opts := Options{Root: "/textures", Width: 10, Height: 10}

	r, dec := testRunner(fs, c)
	first, err := r.Execute(context.Background(), opts)
	if err != nil {
		t.Fatalf("first Execute() error: %v", err)
	}
	if first.CacheInfo.MetadataMisses != 3 || first.CacheInfo.MetadataHits != 0 {
		t.Errorf("first run cache info = %+v, want 3 misses", first.CacheInfo)
	}
	// Three metadata probes plus three compose decodes.
	if n := dec.opens.Load(); n != 6 {
		t.Errorf("first run opened images %d times, want 6", n)
	}

	r, dec = testRunner(fs, c)
	second, err := r.Execute(context.Background(), opts)
	if err != nil {
		t.Fatalf("second Execute() error: %v", err)
	}
	if second.CacheInfo.MetadataHits != 3 {
		t.Errorf("second run cache info = %+v, want 3 hits", second.CacheInfo)
	}
	// Only compose decodes remain.
	if n := dec.opens.Load(); n != 3 {
		t.Errorf("second run opened images %d times, want 3", n)
	}
	if diff := cmp.Diff(first.Descriptor, second.Descriptor); diff != "" {
		t.Errorf("cached build differs (-first +second):\n%s", diff)
	}

	r, dec = testRunner(fs, c)
	opts.Refresh = true
	if _, err := r.Execute(context.Background(), opts); err != nil {
		t.Fatalf("refresh Execute() error: %v", err)
	}
	if n := dec.opens.Load(); n != 6 {
		t.Errorf("refresh run opened images %d times, want 6", n)
	}
}

func TestExecuteFailuresWriteNoDescriptor(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, fs afero.Fs)
		code  errors.Code
	}{
		{"no images", func(t *testing.T, fs afero.Fs) {
			if err := fs.MkdirAll("/textures", 0o755); err != nil {
				t.Fatal(err)
			}
		}, errors.ErrCodeInvalidInput},
		{"missing root", func(t *testing.T, fs afero.Fs) {}, errors.ErrCodeScan},
		{"image too large", func(t *testing.T, fs afero.Fs) {
			writePNG(t, fs, "/textures/unknown.png", 2, 2, color.NRGBA{A: 255})
			writePNG(t, fs, "/textures/huge.png", 11, 3, color.NRGBA{A: 255})
		}, errors.ErrCodeImageTooLarge},
		{"corrupt image", func(t *testing.T, fs afero.Fs) {
			writePNG(t, fs, "/textures/unknown.png", 2, 2, color.NRGBA{A: 255})
			if err := afero.WriteFile(fs, "/textures/bad.png", []byte("garbage"), 0o644); err != nil {
				t.Fatal(err)
			}
		}, errors.ErrCodeDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			tt.setup(t, fs)
			r, _ := testRunner(fs, nil)

			res, err := r.Execute(context.Background(), Options{Root: "/textures", Width: 10, Height: 10})
			if res != nil || !errors.Is(err, tt.code) {
				t.Fatalf("Execute() = %v, %v; want nil, %s", res, err, tt.code)
			}
			if ok, _ := afero.Exists(fs, "/textures.ats"); ok {
				t.Error("failed build wrote a descriptor")
			}
		})
	}
}

func TestExecuteCancelled(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedTextures(t, fs)
	r, _ := testRunner(fs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Execute(ctx, Options{Root: "/textures", Width: 10, Height: 10}); err == nil {
		t.Fatal("Execute() with cancelled context should fail")
	}
	if ok, _ := afero.Exists(fs, "/textures.ats"); ok {
		t.Error("cancelled build wrote a descriptor")
	}
}

func TestBuildDescriptor(t *testing.T) {
	records := []ImageRecord{
		{Name: "z", Width: 2, Height: 3, Placement: pack.Placement{X: 4, Y: 5, Layer: 1}},
		{Name: "a", Width: 1, Height: 1, Placement: pack.Placement{}},
	}
	d := BuildDescriptor(records, 2, Options{Width: 64, Height: 32})

	want := &descriptor.Descriptor{
		CanvasWidth: 64, CanvasHeight: 32, LayerCount: 2,
		Records: []descriptor.Record{
			{X: 4, Y: 5, Layer: 1, W: 2, H: 3, Name: "z"},
			{W: 1, H: 1, Name: "a"},
		},
	}
	if diff := cmp.Diff(want, d); diff != "" {
		t.Errorf("BuildDescriptor() mismatch (-want +got):\n%s", diff)
	}
}
