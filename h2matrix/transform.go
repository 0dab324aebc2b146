package h2matrix

import (
	"fmt"
	"math"

	"github.com/james-bowman/sparse"

	"github.com/notargets/H2Kernel/element"
	"github.com/notargets/H2Kernel/elementtree"
)

// ProlongationTransform maps coefficients of the L2 normalized piecewise
// constants on the cells of coarseLevel to the discontinuous coefficients of
// the elements, one block per component of the form. Only the constant shape
// function of each element is hit; its coefficient is h/H times the cell's.
func ProlongationTransform(tree *elementtree.Tree, coarseLevel int, basis element.Basis, form Form) (*sparse.CSR, error) {
	if coarseLevel < 0 || coarseLevel > tree.MaxLevel() {
		return nil, fmt.Errorf("%w: coarse level %d outside [0,%d]", ErrInvalidConfig, coarseLevel, tree.MaxLevel())
	}
	if !form.valid() {
		return nil, fmt.Errorf("%w: unknown form %v", ErrInvalidConfig, form)
	}
	var (
		dim   = form.VectorDimension()
		nb    = basis.Count()
		ne    = tree.NumElements()
		shift = 2 * (tree.MaxLevel() - coarseLevel)
		cells = tree.NumPatches() << (2 * coarseLevel)
		ratio = math.Ldexp(1, coarseLevel-tree.MaxLevel())
		dok   = sparse.NewDOK(dim*ne*nb, dim*cells)
	)
	for c := 0; c < dim; c++ {
		for e := 0; e < ne; e++ {
			// element IDs are hierarchical, so the cell is a prefix
			dok.Set(c*ne*nb+e*nb, c*cells+(e>>shift), ratio)
		}
	}
	return dok.ToCSR(), nil
}
