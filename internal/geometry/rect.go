package geometry

import "github.com/golang/geo/r2"

// Rect is an axis-aligned rectangle in normalized image coordinates.
type Rect struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// Bounds returns the smallest Rect containing all points.
// It returns the zero Rect when no points are given.
func Bounds(points ...Point) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	vs := make([]r2.Point, len(points))
	for i, p := range points {
		vs[i] = p.vec()
	}
	return fromR2(r2.RectFromPoints(vs...))
}

// RectAround returns a w x h rectangle centered on c.
func RectAround(c Point, w, h float64) Rect {
	return fromR2(r2.RectFromCenterSize(c.vec(), r2.Point{X: w, Y: h}))
}

func fromR2(r r2.Rect) Rect {
	lo, hi := r.Lo(), r.Hi()
	return Rect{MinX: lo.X, MinY: lo.Y, MaxX: hi.X, MaxY: hi.Y}
}

func (r Rect) r2() r2.Rect {
	return r2.RectFromPoints(r2.Point{X: r.MinX, Y: r.MinY}, r2.Point{X: r.MaxX, Y: r.MaxY})
}

// Center returns the center point of r.
func (r Rect) Center() Point {
	return fromVec(r.r2().Center())
}

// Width returns the horizontal extent of r.
func (r Rect) Width() float64 {
	return r.MaxX - r.MinX
}

// Height returns the vertical extent of r.
func (r Rect) Height() float64 {
	return r.MaxY - r.MinY
}

// Contains reports whether p lies inside r (edges inclusive).
func (r Rect) Contains(p Point) bool {
	return r.r2().ContainsPoint(p.vec())
}

// IsEmpty reports whether r has zero area.
func (r Rect) IsEmpty() bool {
	return r.Width() <= 0 || r.Height() <= 0
}
