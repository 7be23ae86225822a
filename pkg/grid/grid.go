// Package grid lays out fixed-size cells row by row, as the desktop board
// view does with its pin tiles.
package grid

import "image"

// Coords returns the column and row of cell index in a grid cols wide.
func Coords(index, cols int) (x, y int) {
	return index % cols, index / cols
}

// Layout positions cells of one size in rows of Cols.
type Layout struct {
	Cols         int
	CellW, CellH int
	Gap          int
	Origin       image.Point
}

// Rect is the screen rectangle of cell index.
func (l Layout) Rect(index int) image.Rectangle {
	x, y := Coords(index, l.Cols)
	tl := l.Origin.Add(image.Pt(x*(l.CellW+l.Gap), y*(l.CellH+l.Gap)))
	return image.Rectangle{Min: tl, Max: tl.Add(image.Pt(l.CellW, l.CellH))}
}

// Hit returns the cell under p among the first n cells. Gaps hit nothing.
func (l Layout) Hit(p image.Point, n int) (int, bool) {
	for i := 0; i < n; i++ {
		if p.In(l.Rect(i)) {
			return i, true
		}
	}
	return 0, false
}

// Size is the bounding box of n cells.
func (l Layout) Size(n int) image.Point {
	if n == 0 {
		return image.Point{}
	}
	rows := (n + l.Cols - 1) / l.Cols
	cols := min(n, l.Cols)
	return image.Pt(cols*(l.CellW+l.Gap)-l.Gap, rows*(l.CellH+l.Gap)-l.Gap)
}
