// Package pack assigns sprite rectangles to positions on a growing set of
// fixed-size atlas layers.
//
// The packer is a greedy guillotine heuristic. Items are sorted by width
// then height (both descending, stable), and each is placed in the first
// layer whose free-rectangle tree accepts it. A layer is a binary tree of
// free rectangles: accepting a request carves it out of a free node's
// corner and splits the remainder into a "right" strip (as tall as the
// request) and a "down" strip (the node's full width).
//
// Every item reserves a (w+1)x(h+1) footprint so neighbours are separated
// by a one-pixel gutter on +x/+y. The layer root is (W+1)x(H+1) so an item
// touching the right or bottom edge still fits.
//
// Packing is fully deterministic for a given input order, which keeps
// atlas builds reproducible.
//
// # Usage
//
//	res, err := pack.Pack(items, pack.Size{W: 4096, H: 4096})
//	if err != nil {
//	    return err // IMAGE_TOO_LARGE or INVALID_CANVAS
//	}
//	for i, p := range res.Placements {
//	    fmt.Println(items[i].Name, p.X, p.Y, p.Layer)
//	}
package pack

import (
	"cmp"
	"slices"

	"github.com/matzehuels/atlaspack/pkg/errors"
)

// Unassigned is the layer value of a placement that has not been packed.
const Unassigned = ^uint32(0)

// Size is a canvas or image extent in pixels.
type Size struct {
	W, H uint32
}

// Item is one rectangle to pack. Its identity is its index in the slice
// passed to Pack; Name is only used for error reporting.
type Item struct {
	Name string
	W, H uint32
}

// Placement is the unpadded top-left corner of an item and its layer.
type Placement struct {
	X, Y  uint32
	Layer uint32
}

// Assigned reports whether the placement has been set by the packer.
func (p Placement) Assigned() bool { return p.Layer != Unassigned }

// Result holds the placements of a successful Pack call.
type Result struct {
	// Canvas is the layer size the items were packed into.
	Canvas Size

	// Placements is indexed like the input items.
	Placements []Placement

	// Layers is the number of layers opened. Layer indices are 0..Layers-1.
	Layers int

	// Trees holds each layer's final free-rectangle tree when packing ran
	// with WithTreeCapture, and is nil otherwise.
	Trees []*Tree

	area []uint64
}

// Fill returns the fraction of a layer's pixels covered by sprites,
// excluding gutters. It returns 0 for an out-of-range layer.
func (r *Result) Fill(layer int) float64 {
	if layer < 0 || layer >= len(r.area) {
		return 0
	}
	total := uint64(r.Canvas.W) * uint64(r.Canvas.H)
	if total == 0 {
		return 0
	}
	return float64(r.area[layer]) / float64(total)
}

// Option configures a Pack call.
type Option func(*config)

type config struct {
	captureTrees bool
}

// WithTreeCapture keeps a read-only snapshot of every layer's tree in
// Result.Trees for debugging.
func WithTreeCapture() Option {
	return func(c *config) { c.captureTrees = true }
}

// Pack places every item on a layer of the given canvas size.
//
// It fails with INVALID_CANVAS when either canvas dimension is zero,
// INVALID_INPUT when an item has a zero dimension, and IMAGE_TOO_LARGE,
// naming the item, when an item cannot fit even an empty layer. On error
// no placements are returned.
func Pack(items []Item, canvas Size, opts ...Option) (*Result, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := errors.ValidateCanvas(canvas.W, canvas.H); err != nil {
		return nil, err
	}
	for _, it := range items {
		if it.W == 0 || it.H == 0 {
			return nil, errors.New(errors.ErrCodeInvalidInput, "image %q has zero size (%dx%d)", it.Name, it.W, it.H)
		}
	}

	order := packOrder(items)

	res := &Result{
		Canvas:     canvas,
		Placements: make([]Placement, len(items)),
	}
	for i := range res.Placements {
		res.Placements[i].Layer = Unassigned
	}

	var layers []*arena
	for _, idx := range order {
		it := items[idx]
		if it.W > canvas.W || it.H > canvas.H {
			return nil, errors.New(errors.ErrCodeImageTooLarge,
				"image %q (%dx%d) does not fit a %dx%d canvas with a 1px gutter",
				it.Name, it.W, it.H, canvas.W, canvas.H)
		}

		pw, ph := uint64(it.W)+1, uint64(it.H)+1
		placed := false
		for l, a := range layers {
			if n, ok := a.insert(pw, ph); ok {
				res.place(idx, a.nodes[n], l, it)
				placed = true
				break
			}
		}
		if placed {
			continue
		}

		a := newArena(canvas)
		n, ok := a.insert(pw, ph)
		if !ok {
			// Unreachable after the size check above.
			return nil, errors.New(errors.ErrCodeImageTooLarge, "image %q does not fit an empty layer", it.Name)
		}
		layers = append(layers, a)
		res.area = append(res.area, 0)
		res.place(idx, a.nodes[n], len(layers)-1, it)
	}

	res.Layers = len(layers)
	if cfg.captureTrees {
		res.Trees = make([]*Tree, len(layers))
		for l, a := range layers {
			res.Trees[l] = a.snapshot(l)
		}
	}
	return res, nil
}

func (r *Result) place(idx int, n node, layer int, it Item) {
	r.Placements[idx] = Placement{X: uint32(n.x), Y: uint32(n.y), Layer: uint32(layer)}
	r.area[layer] += uint64(it.W) * uint64(it.H)
}

// packOrder returns item indices sorted by width then height, both
// descending. The sort is stable so equal items keep enumeration order.
func packOrder(items []Item) []int {
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		if c := cmp.Compare(items[b].W, items[a].W); c != 0 {
			return c
		}
		return cmp.Compare(items[b].H, items[a].H)
	})
	return order
}
