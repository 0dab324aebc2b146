package multipole

import (
	"gonum.org/v1/gonum/mat"

	"golang.org/x/sync/errgroup"
)

// Forward aggregates coefficients into interpolation values on every cluster
// level. x has one row per cluster of the finest cluster level holding that
// cluster's element coefficients in hierarchical order. The result holds
// steps+1 matrices, finest level first, with one row of n² values per
// cluster; row c of level l belongs to the cluster with level-local ID c.
func Forward(moment, transfer *mat.Dense, steps int, x *mat.Dense, workers int) []*mat.Dense {
	var (
		rows, m = x.Dims()
		np2, _  = moment.Dims()
		out     = make([]*mat.Dense, 0, steps+1)
	)
	v := mat.NewDense(rows, np2, nil)
	eachRowBlock(rows, workers, func(r0, r1 int) {
		v.Slice(r0, r1, 0, np2).(*mat.Dense).Mul(x.Slice(r0, r1, 0, m), moment.T())
	})
	out = append(out, v)
	for l := 0; l < steps; l++ {
		rows /= 4
		// four consecutive rows are the children of one parent
		stacked := mat.NewDense(rows, 4*np2, v.RawMatrix().Data)
		next := mat.NewDense(rows, np2, nil)
		eachRowBlock(rows, workers, func(r0, r1 int) {
			next.Slice(r0, r1, 0, np2).(*mat.Dense).Mul(stacked.Slice(r0, r1, 0, 4*np2), transfer.T())
		})
		out = append(out, next)
		v = next
	}
	return out
}

// Backward distributes the interpolation values accumulated per level down to
// element coefficients. The contents of buffers are destroyed. The result has
// one row of element coefficients per cluster of the finest cluster level.
func Backward(moment, transfer *mat.Dense, steps int, buffers []*mat.Dense, workers int) *mat.Dense {
	np2, m := moment.Dims()
	for l := steps; l > 0; l-- {
		rows, _ := buffers[l].Dims()
		spread := mat.NewDense(rows, 4*np2, nil)
		eachRowBlock(rows, workers, func(r0, r1 int) {
			spread.Slice(r0, r1, 0, 4*np2).(*mat.Dense).Mul(buffers[l].Slice(r0, r1, 0, np2), transfer)
		})
		fine := buffers[l-1]
		fine.Add(fine, mat.NewDense(4*rows, np2, spread.RawMatrix().Data))
	}
	rows, _ := buffers[0].Dims()
	y := mat.NewDense(rows, m, nil)
	eachRowBlock(rows, workers, func(r0, r1 int) {
		y.Slice(r0, r1, 0, m).(*mat.Dense).Mul(buffers[0].Slice(r0, r1, 0, np2), moment)
	})
	return y
}

// eachRowBlock splits [0,rows) into contiguous blocks and runs fn on them
// with at most workers goroutines.
func eachRowBlock(rows, workers int, fn func(r0, r1 int)) {
	if workers <= 1 || rows < 2*workers {
		fn(0, rows)
		return
	}
	var g errgroup.Group
	g.SetLimit(workers)
	chunk := (rows + workers - 1) / workers
	for r0 := 0; r0 < rows; r0 += chunk {
		r1 := min(r0+chunk, rows)
		g.Go(func() error {
			fn(r0, r1)
			return nil
		})
	}
	_ = g.Wait()
}
