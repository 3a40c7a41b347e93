package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/matzehuels/atlaspack/pkg/cache"
	"github.com/matzehuels/atlaspack/pkg/compose"
	"github.com/matzehuels/atlaspack/pkg/descriptor"
	"github.com/matzehuels/atlaspack/pkg/errors"
	"github.com/matzehuels/atlaspack/pkg/imageio"
	"github.com/matzehuels/atlaspack/pkg/observability"
	"github.com/matzehuels/atlaspack/pkg/pack"
	"github.com/matzehuels/atlaspack/pkg/scan"
	"github.com/matzehuels/atlaspack/pkg/sprite"
)

// Runner encapsulates build execution with metadata caching.
//
// The Runner is stateless except for its collaborators - it doesn't
// store build results. Multiple goroutines can safely use the same
// Runner with different options, as long as they write to different
// output paths.
type Runner struct {
	FS      afero.Fs
	Decoder imageio.Decoder
	Encoder imageio.Encoder
	Cache   cache.Cache
	Keyer   cache.Keyer
	Logger  *log.Logger

	// MetadataTTL is how long probed image sizes stay cached.
	MetadataTTL time.Duration
}

// NewRunner creates a runner reading and writing through fs with the
// default image codec.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(fs afero.Fs, c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	codec := imageio.NewCodec(fs)
	return &Runner{
		FS:      fs,
		Decoder: codec,
		Encoder: codec,
		Cache:   c,
		Keyer:   keyer,
		Logger:  logger,

		MetadataTTL: cache.TTLMetadata,
	}
}

// Execute runs the complete scan → metadata → pack → compose → descriptor
// build. The descriptor is only written when every earlier stage
// succeeded.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	result := &Result{BuildID: uuid.NewString()}
	logger := opts.Logger.With("build", result.BuildID[:8])

	// Stage 1: Scan
	scanStart := time.Now()
	assets, err := r.Scan(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	result.Stats.ScanTime = time.Since(scanStart)
	if len(assets) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no source images found in %s", opts.Root)
	}
	logger.Info("found images",
		"count", len(assets),
		"root", opts.Root,
		"duration", result.Stats.ScanTime)

	if !hasUnknown(assets) {
		logger.Warn("fallback sprite missing, the atlas will not load at run time",
			"want", sprite.UnknownName)
	}

	// Stage 2: Metadata
	metaStart := time.Now()
	records, info, err := r.LoadMetadata(ctx, assets, opts)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	result.Records = records
	result.CacheInfo = info
	result.Stats.MetadataTime = time.Since(metaStart)
	result.Stats.Sprites = len(records)
	logger.Info("read image sizes",
		"cached", info.MetadataHits,
		"probed", info.MetadataMisses,
		"duration", result.Stats.MetadataTime)

	// Stage 3: Pack
	packStart := time.Now()
	packed, err := r.Pack(ctx, records, opts)
	if err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}
	result.Stats.PackTime = time.Since(packStart)
	result.Stats.Layers = packed.Layers
	result.Stats.Fill = make([]float64, packed.Layers)
	for l := range packed.Layers {
		result.Stats.Fill[l] = packed.Fill(l)
		logger.Debug("layer fill", "layer", l, "fill", fmt.Sprintf("%.1f%%", 100*packed.Fill(l)))
	}
	for _, rec := range records {
		logger.Debug("placed", "name", rec.Name, "x", rec.Placement.X, "y", rec.Placement.Y, "layer", rec.Placement.Layer)
	}
	logger.Info("packed sprites",
		"layers", packed.Layers,
		"canvas", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"duration", result.Stats.PackTime)

	// Stage 4: Compose
	composeStart := time.Now()
	if err := r.Compose(ctx, records, packed.Layers, opts); err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}
	result.Stats.ComposeTime = time.Since(composeStart)
	for l := range packed.Layers {
		result.LayerPaths = append(result.LayerPaths, opts.LayerPath(l))
	}
	logger.Info("wrote layers",
		"count", packed.Layers,
		"duration", result.Stats.ComposeTime)

	if opts.DumpTrees {
		paths, err := r.DumpTrees(ctx, packed.Trees, opts)
		if err != nil {
			return nil, fmt.Errorf("dump trees: %w", err)
		}
		result.TreePaths = paths
	}

	// Stage 5: Descriptor (commit point)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d := BuildDescriptor(records, packed.Layers, opts)
	path := opts.DescriptorPath()
	err = descriptor.WriteFile(r.FS, path, d)
	observability.Build().OnDescriptorWritten(ctx, path, len(d.Records), err)
	if err != nil {
		return nil, fmt.Errorf("descriptor: %w", err)
	}
	result.Descriptor = d
	result.DescriptorPath = path
	logger.Info("wrote descriptor", "path", path, "sprites", len(d.Records))

	return result, nil
}

// Scan enumerates the source images for opts.
func (r *Runner) Scan(ctx context.Context, opts Options) (assets []scan.Asset, err error) {
	r.applyLogger(&opts)
	start := time.Now()
	observability.Build().OnScanStart(ctx, opts.Root)
	defer func() {
		observability.Build().OnScanComplete(ctx, opts.Root, len(assets), time.Since(start), err)
	}()
	found, err := scan.Walk(r.FS, opts.Root, opts.Extensions)
	if err != nil {
		return nil, err
	}
	assets = found[:0]
	for _, a := range found {
		if opts.IsLayerPath(a.Path) {
			opts.Logger.Debug("skipping build output", "path", a.Path)
			continue
		}
		assets = append(assets, a)
	}
	return assets, nil
}

// Pack assigns placements to records in place and returns the packer's
// result.
func (r *Runner) Pack(ctx context.Context, records []ImageRecord, opts Options) (res *pack.Result, err error) {
	start := time.Now()
	observability.Build().OnPackStart(ctx, len(records))
	defer func() {
		layers := 0
		if res != nil {
			layers = res.Layers
		}
		observability.Build().OnPackComplete(ctx, layers, time.Since(start), err)
	}()

	items := make([]pack.Item, len(records))
	for i, rec := range records {
		items[i] = pack.Item{Name: rec.Name, W: rec.Width, H: rec.Height}
	}

	var packOpts []pack.Option
	if opts.DumpTrees {
		packOpts = append(packOpts, pack.WithTreeCapture())
	}
	res, err = pack.Pack(items, pack.Size{W: opts.Width, H: opts.Height}, packOpts...)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Placement = res.Placements[i]
	}
	return res, nil
}

// Compose writes one image per layer.
func (r *Runner) Compose(ctx context.Context, records []ImageRecord, layers int, opts Options) error {
	images := make([]compose.Image, len(records))
	for i, rec := range records {
		if !rec.Placement.Assigned() {
			return errors.New(errors.ErrCodeInternal, "image %q was never placed", rec.Name)
		}
		images[i] = compose.Image{
			Name:  rec.Name,
			Path:  rec.Path,
			X:     rec.Placement.X,
			Y:     rec.Placement.Y,
			Layer: rec.Placement.Layer,
			W:     rec.Width,
			H:     rec.Height,
		}
	}
	encoder := r.Encoder
	if codec, ok := encoder.(*imageio.Codec); ok && opts.Compression != "" {
		level, err := imageio.ParseCompression(opts.Compression)
		if err != nil {
			return err
		}
		encoder = codec.WithCompression(level)
	}
	return compose.Compose(ctx, compose.Job{
		Width:     opts.Width,
		Height:    opts.Height,
		Layers:    layers,
		Images:    images,
		Decoder:   r.Decoder,
		Encoder:   encoder,
		LayerPath: opts.LayerPath,
		Workers:   opts.Workers,
		Logger:    opts.Logger,
	})
}

// BuildDescriptor describes placed records in enumeration order.
func BuildDescriptor(records []ImageRecord, layers int, opts Options) *descriptor.Descriptor {
	d := &descriptor.Descriptor{
		CanvasWidth:  opts.Width,
		CanvasHeight: opts.Height,
		LayerCount:   uint32(layers),
		Records:      make([]descriptor.Record, len(records)),
	}
	for i, rec := range records {
		d.Records[i] = descriptor.Record{
			X:     rec.Placement.X,
			Y:     rec.Placement.Y,
			Layer: rec.Placement.Layer,
			W:     rec.Width,
			H:     rec.Height,
			Name:  rec.Name,
		}
	}
	return d
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}

func hasUnknown(assets []scan.Asset) bool {
	for _, a := range assets {
		if a.Name == sprite.UnknownName {
			return true
		}
	}
	return false
}
