package elementtree

import "gonum.org/v1/gonum/spatial/r3"

// EnclosingBall returns a ball containing both B(m1,r1) and B(m2,r2). When
// one ball contains the other the larger one is returned unchanged.
func EnclosingBall(m1 r3.Vec, r1 float64, m2 r3.Vec, r2 float64) (r3.Vec, float64) {
	z := r3.Sub(m1, m2)
	norm := r3.Norm(z)
	switch {
	case norm+r2 <= r1:
		return m1, r1
	case norm+r1 <= r2:
		return m2, r2
	}
	m := r3.Scale(0.5, r3.Add(r3.Add(m1, m2), r3.Scale((r1-r2)/norm, z)))
	return m, 0.5 * (r1 + r2 + norm)
}

// computeBalls fills Midpoint and Radius bottom up. Elements use their two
// diagonals, quadtree nodes combine the diagonal children pairs and the root
// folds over the patches.
func (t *Tree) computeBalls() {
	var ball func(i int)
	ball = func(i int) {
		for _, c := range t.nodes[i].Children {
			ball(c)
		}
		n := &t.nodes[i]
		switch {
		case n.IsRoot():
			first := &t.nodes[n.Children[0]]
			m, r := first.Midpoint, first.Radius
			for _, c := range n.Children[1:] {
				m, r = EnclosingBall(m, r, t.nodes[c].Midpoint, t.nodes[c].Radius)
			}
			n.Midpoint, n.Radius = m, r
		case n.IsLeaf():
			v := n.Vertices
			m1, r1 := EnclosingBall(t.points[v[0]], 0, t.points[v[2]], 0)
			m2, r2 := EnclosingBall(t.points[v[1]], 0, t.points[v[3]], 0)
			n.Midpoint, n.Radius = EnclosingBall(m1, r1, m2, r2)
		default:
			c := n.Children
			m1, r1 := EnclosingBall(t.nodes[c[0]].Midpoint, t.nodes[c[0]].Radius,
				t.nodes[c[2]].Midpoint, t.nodes[c[2]].Radius)
			m2, r2 := EnclosingBall(t.nodes[c[1]].Midpoint, t.nodes[c[1]].Radius,
				t.nodes[c[3]].Midpoint, t.nodes[c[3]].Radius)
			n.Midpoint, n.Radius = EnclosingBall(m1, r1, m2, r2)
		}
	}
	ball(0)
}
