package pack

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
)

// TreeNode is a read-only copy of one free-rectangle tree node. Right and
// Down are indices into Tree.Nodes, or -1.
type TreeNode struct {
	X, Y, W, H  uint32
	Used        bool
	Right, Down int
}

// Tree is a snapshot of one layer's free-rectangle tree after packing.
// Coordinates are in padded space, so the root is (W+1)x(H+1).
type Tree struct {
	Layer int
	Nodes []TreeNode
}

func (a *arena) snapshot(layer int) *Tree {
	t := &Tree{Layer: layer, Nodes: make([]TreeNode, len(a.nodes))}
	for i, n := range a.nodes {
		t.Nodes[i] = TreeNode{
			X: uint32(n.x), Y: uint32(n.y), W: uint32(n.w), H: uint32(n.h),
			Used: n.used, Right: n.right, Down: n.down,
		}
	}
	return t
}

// FreeArea returns the padded area of all free leaves.
func (t *Tree) FreeArea() uint64 {
	var total uint64
	for _, n := range t.Nodes {
		if !n.Used {
			total += uint64(n.W) * uint64(n.H)
		}
	}
	return total
}

// DOT renders the tree in Graphviz DOT format. Used nodes are filled,
// free leaves are dashed; edges are labelled "right" and "down".
func (t *Tree) DOT() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "digraph layer%d {\n", t.Layer)
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  node [shape=box, fontsize=10, fontname=\"monospace\"];\n")
	buf.WriteString("\n")

	for i, n := range t.Nodes {
		label := fmt.Sprintf("(%d,%d) %dx%d", n.X, n.Y, n.W, n.H)
		style := `style="dashed"`
		if n.Used {
			style = `style="filled", fillcolor=lightgrey`
		}
		fmt.Fprintf(&buf, "  n%d [label=%q, %s];\n", i, label, style)
	}

	buf.WriteString("\n")
	for i, n := range t.Nodes {
		if n.Right != none {
			fmt.Fprintf(&buf, "  n%d -> n%d [label=\"right\"];\n", i, n.Right)
		}
		if n.Down != none {
			fmt.Fprintf(&buf, "  n%d -> n%d [label=\"down\"];\n", i, n.Down)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// RenderTreeSVG renders the tree to SVG using Graphviz.
func RenderTreeSVG(ctx context.Context, t *Tree) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(t.DOT()))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
