// Package visualize draws the block structure of a compressed operator.
package visualize

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/notargets/H2Kernel/blocktree"
)

var (
	DenseColor   = color.RGBA{R: 200, G: 40, B: 40, A: 255}
	LowRankColor = color.RGBA{R: 60, G: 170, B: 80, A: 255}
)

// PartitionPlot shows every leaf as a rectangle over its element ranges, in
// matrix orientation: row 0 at the top.
func PartitionPlot(bt *blocktree.Tree) (*plot.Plot, error) {
	var (
		p     = plot.New()
		n     = float64(bt.ElementTree().NumElements())
		st    = bt.Stats()
		first = map[bool]bool{}
	)
	p.Title.Text = fmt.Sprintf("eta %g: %d dense, %d low rank", bt.Parameters().Eta, st.Dense, st.LowRank)
	p.X.Label.Text = "column element"
	p.Y.Label.Text = "row element"
	p.X.Min, p.X.Max = 0, n
	p.Y.Min, p.Y.Max = 0, n

	for _, leaf := range bt.Leaves() {
		r0, r1 := leaf.RowElements()
		c0, c1 := leaf.ColElements()
		y0, y1 := n-float64(r1), n-float64(r0)
		poly, err := plotter.NewPolygon(plotter.XYs{
			{X: float64(c0), Y: y0},
			{X: float64(c1), Y: y0},
			{X: float64(c1), Y: y1},
			{X: float64(c0), Y: y1},
		})
		if err != nil {
			return nil, fmt.Errorf("leaf (%d,%d): %w", leaf.RowID(), leaf.ColID(), err)
		}
		lowRank := leaf.Adm == blocktree.LowRank
		poly.Color = DenseColor
		if lowRank {
			poly.Color = LowRankColor
		}
		poly.LineStyle.Width = vg.Points(0.25)
		poly.LineStyle.Color = color.Black
		p.Add(poly)
		if !first[lowRank] {
			first[lowRank] = true
			p.Legend.Add(leaf.Adm.String(), poly)
		}
	}
	return p, nil
}

// Partition renders the partition to path; the format follows the extension.
func Partition(bt *blocktree.Tree, path string, size vg.Length) error {
	p, err := PartitionPlot(bt)
	if err != nil {
		return err
	}
	if err := p.Save(size, size, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
