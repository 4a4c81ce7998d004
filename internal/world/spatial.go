package world

import "math"

// Neighbor is a grid hit with its precomputed squared distance.
type Neighbor struct {
	Index  int // Position in the caller's collection
	DistSq float64
}

type gridEntry struct {
	index int
	x, y  float64
}

// Grid buckets points into square cells so radius queries only visit the
// cells that overlap the query circle. The world is bounded, not toroidal.
type Grid struct {
	cellSize float64
	cols     int
	rows     int
	cells    [][]gridEntry
}

// NewGrid creates a grid covering the bounds. cellSize should be close to
// the most common query radius.
func NewGrid(b Bounds, cellSize float64) *Grid {
	if cellSize <= 0 {
		cellSize = 1
	}
	cols := int(b.Width/cellSize) + 1
	rows := int(b.Height/cellSize) + 1

	cells := make([][]gridEntry, cols*rows)
	for i := range cells {
		cells[i] = make([]gridEntry, 0, 8)
	}
	return &Grid{cellSize: cellSize, cols: cols, rows: rows, cells: cells}
}

// Clear empties every cell, keeping capacity.
func (g *Grid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

// Insert adds a point under the caller's index.
func (g *Grid) Insert(index int, x, y float64) {
	col, row := g.cellOf(x, y)
	idx := row*g.cols + col
	g.cells[idx] = append(g.cells[idx], gridEntry{index: index, x: x, y: y})
}

// QueryInto appends every point within radius of (x, y) to dst.
// Reuse dst across calls to avoid allocations.
func (g *Grid) QueryInto(dst []Neighbor, x, y, radius float64) []Neighbor {
	if radius < 0 || math.IsNaN(x) || math.IsNaN(y) {
		return dst
	}
	radiusSq := radius * radius

	minCol, minRow := g.cellOf(x-radius, y-radius)
	maxCol, maxRow := g.cellOf(x+radius, y+radius)

	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			for _, e := range g.cells[row*g.cols+col] {
				d := DistSq(x, y, e.x, e.y)
				if d <= radiusSq {
					dst = append(dst, Neighbor{Index: e.index, DistSq: d})
				}
			}
		}
	}
	return dst
}

// cellOf returns the clamped cell column and row for a world position.
func (g *Grid) cellOf(x, y float64) (int, int) {
	col, row := 0, 0
	if x > 0 {
		col = int(math.Min(x/g.cellSize, float64(g.cols-1)))
	}
	if y > 0 {
		row = int(math.Min(y/g.cellSize, float64(g.rows-1)))
	}
	return col, row
}
