package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/matzehuels/atlaspack/pkg/cache"
	"github.com/matzehuels/atlaspack/pkg/errors"
	"github.com/matzehuels/atlaspack/pkg/observability"
	"github.com/matzehuels/atlaspack/pkg/pack"
	"github.com/matzehuels/atlaspack/pkg/scan"
)

// imageMeta is the cached form of a probed image.
type imageMeta struct {
	W uint32 `json:"w"`
	H uint32 `json:"h"`
}

// LoadMetadata probes the dimensions of every asset without decoding
// pixels. Probes are cached under the file's path, size and mtime, so an
// edited image is always re-probed. Records keep the asset order and start
// unassigned.
func (r *Runner) LoadMetadata(ctx context.Context, assets []scan.Asset, opts Options) (records []ImageRecord, info CacheInfo, err error) {
	start := time.Now()
	observability.Build().OnMetadataStart(ctx, len(assets))
	defer func() {
		observability.Build().OnMetadataComplete(ctx, len(assets), info.MetadataHits, time.Since(start), err)
	}()

	records = make([]ImageRecord, len(assets))
	for i, a := range assets {
		if err := ctx.Err(); err != nil {
			return nil, info, err
		}

		meta, hit, err := r.probe(ctx, a, opts)
		if err != nil {
			return nil, info, err
		}
		if hit {
			info.MetadataHits++
		} else {
			info.MetadataMisses++
		}

		records[i] = ImageRecord{
			Name:      a.Name,
			Path:      a.Path,
			Width:     meta.W,
			Height:    meta.H,
			Placement: pack.Placement{Layer: pack.Unassigned},
		}
	}
	return records, info, nil
}

func (r *Runner) probe(ctx context.Context, a scan.Asset, opts Options) (imageMeta, bool, error) {
	fi, err := r.FS.Stat(a.Path)
	if err != nil {
		return imageMeta{}, false, errors.Wrap(errors.ErrCodeScan, err, "stat %s", a.Path)
	}
	key := r.Keyer.MetadataKey(a.Path, fi.Size(), fi.ModTime())

	if !opts.Refresh {
		if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
			var m imageMeta
			if err := json.Unmarshal(data, &m); err == nil && m.W > 0 && m.H > 0 {
				observability.Cache().OnCacheHit(ctx, "metadata")
				return m, true, nil
			}
			// If deserialization fails, fall through to re-probe
		} else if err != nil {
			opts.Logger.Debug("metadata cache unavailable", "error", err)
		}
		observability.Cache().OnCacheMiss(ctx, "metadata")
	}

	h, err := r.Decoder.Open(a.Path)
	if err != nil {
		return imageMeta{}, false, err
	}
	w, hgt := h.Width(), h.Height()
	if err := h.Close(); err != nil {
		return imageMeta{}, false, errors.Wrap(errors.ErrCodeDecode, err, "close %s", a.Path)
	}
	if w <= 0 || hgt <= 0 {
		return imageMeta{}, false, errors.New(errors.ErrCodeDecode, "image %q has no pixels (%dx%d)", a.Name, w, hgt)
	}
	if uint64(w) > uint64(^uint32(0)) || uint64(hgt) > uint64(^uint32(0)) {
		return imageMeta{}, false, errors.New(errors.ErrCodeImageTooLarge, "image %q is %dx%d", a.Name, w, hgt)
	}

	m := imageMeta{W: uint32(w), H: uint32(hgt)}
	if data, err := json.Marshal(m); err == nil {
		if err := r.Cache.Set(ctx, key, data, r.metadataTTL()); err == nil {
			observability.Cache().OnCacheSet(ctx, "metadata", len(data))
		}
	}
	return m, false, nil
}

func (r *Runner) metadataTTL() time.Duration {
	if r.MetadataTTL > 0 {
		return r.MetadataTTL
	}
	return cache.TTLMetadata
}
