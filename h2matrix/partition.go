package h2matrix

import "github.com/notargets/H2Kernel/blocktree"

// partitionLeaves splits the leaves, kept in tree order, into at most parts
// consecutive groups of roughly equal cost. Tree order keeps the blocks of a
// group close in the row and column vectors.
func partitionLeaves(leaves []*blocktree.Node, parts int, cost func(*blocktree.Node) int) [][]*blocktree.Node {
	if len(leaves) == 0 {
		return nil
	}
	parts = max(1, min(parts, len(leaves)))
	var total int
	for _, l := range leaves {
		total += cost(l)
	}
	target := (total + parts - 1) / parts

	out := make([][]*blocktree.Node, 0, parts)
	start, acc := 0, 0
	for i, l := range leaves {
		acc += cost(l)
		// the last group takes whatever is left
		if acc >= target && len(out) < parts-1 {
			out = append(out, leaves[start:i+1])
			start, acc = i+1, 0
		}
	}
	if start < len(leaves) {
		out = append(out, leaves[start:])
	}
	return out
}
