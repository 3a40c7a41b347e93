package pack

// none marks a missing child.
const none = -1

// node is one rectangle of a layer's guillotine tree. A free node has no
// children. A used node is exactly the size of the request it accepted and
// owns the right and down strips split off from it.
type node struct {
	x, y, w, h  uint64
	used        bool
	right, down int
}

// arena stores one layer's tree as a flat slice addressed by index. The
// root is always nodes[0].
type arena struct {
	nodes []node
	stack []int
}

func newArena(canvas Size) *arena {
	a := &arena{nodes: make([]node, 0, 64)}
	a.nodes = append(a.nodes, node{
		w:     uint64(canvas.W) + 1,
		h:     uint64(canvas.H) + 1,
		right: none,
		down:  none,
	})
	return a
}

// insert finds the first free node, in depth-first right-before-down order,
// that can hold a w x h request, splits it, and returns its index.
func (a *arena) insert(w, h uint64) (int, bool) {
	a.stack = append(a.stack[:0], 0)
	for len(a.stack) > 0 {
		i := a.stack[len(a.stack)-1]
		a.stack = a.stack[:len(a.stack)-1]

		n := a.nodes[i]
		if !n.used {
			if w <= n.w && h <= n.h {
				a.split(i, w, h)
				return i, true
			}
			continue
		}
		// Pushed in reverse so right is visited first.
		if n.down != none {
			a.stack = append(a.stack, n.down)
		}
		if n.right != none {
			a.stack = append(a.stack, n.right)
		}
	}
	return none, false
}

// split carves a w x h rectangle out of the free node at i. Strips with
// zero area can never accept a request and are not stored.
func (a *arena) split(i int, w, h uint64) {
	n := a.nodes[i]
	right, down := none, none
	if n.w > w {
		right = a.add(node{x: n.x + w, y: n.y, w: n.w - w, h: h})
	}
	if n.h > h {
		down = a.add(node{x: n.x, y: n.y + h, w: n.w, h: n.h - h})
	}
	a.nodes[i] = node{x: n.x, y: n.y, w: w, h: h, used: true, right: right, down: down}
}

func (a *arena) add(n node) int {
	n.right, n.down = none, none
	a.nodes = append(a.nodes, n)
	return len(a.nodes) - 1
}
