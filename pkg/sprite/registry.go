// Package sprite resolves sprite names to normalized atlas transforms at
// run time.
//
// A Registry is built once from a decoded descriptor and is immutable
// afterwards, so any number of goroutines may call Lookup and TransformFor
// without locking. Lookups never fail: an unknown name resolves to ID 0,
// and ID 0 (or any out-of-range ID) resolves to the transform of the
// sprite named "unknown", which every descriptor must contain.
//
// # Usage
//
//	reg, err := sprite.Load(afero.NewOsFs(), "textures/sprites.ats")
//	if err != nil {
//	    log.Fatal(err) // a missing or malformed descriptor is fatal
//	}
//	id := reg.Lookup("ui/buttons/ok")
//	m := reg.TransformFor(id)
package sprite

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/matzehuels/atlaspack/pkg/descriptor"
	"github.com/matzehuels/atlaspack/pkg/errors"
)

// UnknownName is the sprite every descriptor must contain. Its transform
// stands in for any sprite that cannot be resolved.
const UnknownName = "unknown"

// ID identifies a sprite within one registry. IDs are 1-based; 0 is the
// lookup-miss sentinel.
type ID uint32

// Miss is the ID returned for names not in the registry.
const Miss ID = 0

// Sprite is one resolved atlas entry.
type Sprite struct {
	ID        ID
	Name      string
	Layer     uint32
	Transform Mat3
}

// Registry maps sprite names to IDs and IDs to transforms.
type Registry struct {
	canvas    Canvas
	byName    map[string]ID
	sprites   []Sprite
	unknownID ID
	unknownT  Mat3
}

// Canvas describes the atlas a registry was built from.
type Canvas struct {
	Width, Height uint32
	Layers        uint32
}

// New builds a registry from a decoded descriptor. Sprite IDs follow
// record order, starting at 1.
//
// It fails with SPRITE_UNKNOWN_MISSING when no record is named "unknown",
// and with INVALID_FORMAT when the descriptor would make normalisation
// impossible (empty canvas, no layers, layers without sprites, sprites
// beyond the last layer) or repeats a name. No registry is returned on
// failure.
func New(d *descriptor.Descriptor) (*Registry, error) {
	if d == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "nil descriptor")
	}
	if d.CanvasWidth == 0 || d.CanvasHeight == 0 || d.LayerCount == 0 {
		return nil, errors.New(errors.ErrCodeInvalidFormat,
			"descriptor canvas %dx%d with %d layers cannot be normalized",
			d.CanvasWidth, d.CanvasHeight, d.LayerCount)
	}
	if l, ok := d.EmptyLayer(); ok {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "descriptor layer %d of %d holds no sprite", l, d.LayerCount)
	}

	r := &Registry{
		canvas:  Canvas{Width: d.CanvasWidth, Height: d.CanvasHeight, Layers: d.LayerCount},
		byName:  make(map[string]ID, len(d.Records)),
		sprites: make([]Sprite, len(d.Records)),
	}

	w := float32(d.CanvasWidth)
	h := float32(d.CanvasHeight)
	layers := float32(d.LayerCount)

	for i, rec := range d.Records {
		id := ID(i + 1)
		if _, dup := r.byName[rec.Name]; dup {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "duplicate sprite name %q", rec.Name)
		}
		if rec.Layer >= d.LayerCount {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "sprite %q on layer %d, descriptor has %d layers", rec.Name, rec.Layer, d.LayerCount)
		}
		r.byName[rec.Name] = id
		r.sprites[i] = Sprite{
			ID:    id,
			Name:  rec.Name,
			Layer: rec.Layer,
			Transform: UVTransform(
				float32(rec.W)/w, float32(rec.H)/h,
				float32(rec.X)/w, float32(rec.Y)/h,
				float32(rec.Layer)/layers,
			),
		}
	}

	r.unknownID = r.Lookup(UnknownName)
	if r.unknownID == Miss {
		return nil, errors.New(errors.ErrCodeUnknownMissing, "descriptor has no %q sprite", UnknownName)
	}
	r.unknownT = r.sprites[r.unknownID-1].Transform
	return r, nil
}

// Load reads a descriptor file and builds a registry from it.
func Load(fs afero.Fs, path string) (*Registry, error) {
	d, err := descriptor.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	r, err := New(d)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Lookup returns the ID of the named sprite, or Miss.
func (r *Registry) Lookup(name string) ID {
	return r.byName[name]
}

// TransformFor returns the UV transform of a sprite. Miss and out-of-range
// IDs return the "unknown" sprite's transform.
func (r *Registry) TransformFor(id ID) Mat3 {
	if id == Miss || int(id) > len(r.sprites) {
		return r.unknownT
	}
	return r.sprites[id-1].Transform
}

// Resolve looks up a name and returns its sprite, falling back to the
// "unknown" sprite. The boolean reports whether the name was found.
func (r *Registry) Resolve(name string) (Sprite, bool) {
	if id := r.Lookup(name); id != Miss {
		return r.sprites[id-1], true
	}
	return r.sprites[r.unknownID-1], false
}

// Sprite returns the sprite with the given ID.
func (r *Registry) Sprite(id ID) (Sprite, bool) {
	if id == Miss || int(id) > len(r.sprites) {
		return Sprite{}, false
	}
	return r.sprites[id-1], true
}

// UnknownID returns the ID of the "unknown" sprite.
func (r *Registry) UnknownID() ID { return r.unknownID }

// Len returns the number of sprites.
func (r *Registry) Len() int { return len(r.sprites) }

// Canvas returns the atlas dimensions the registry normalises against.
func (r *Registry) Canvas() Canvas { return r.canvas }

// Sprites returns a copy of all sprites in ID order.
func (r *Registry) Sprites() []Sprite {
	out := make([]Sprite, len(r.sprites))
	copy(out, r.sprites)
	return out
}
