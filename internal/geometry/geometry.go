// Package geometry provides the 2-D point and rectangle helpers shared by the
// perception pipeline. All coordinates are in normalized [0,1] image space.
package geometry

import (
	"math"

	"github.com/golang/geo/r2"
)

// epsilon is the length below which a vector is treated as zero.
const epsilon = 1e-12

// Point is a 2-D point in normalized image coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

func (p Point) vec() r2.Point {
	return r2.Point{X: p.X, Y: p.Y}
}

func fromVec(v r2.Point) Point {
	return Point{X: v.X, Y: v.Y}
}

// Add returns p+q.
func (p Point) Add(q Point) Point {
	return fromVec(p.vec().Add(q.vec()))
}

// Sub returns p-q.
func (p Point) Sub(q Point) Point {
	return fromVec(p.vec().Sub(q.vec()))
}

// Scale returns p scaled by k.
func (p Point) Scale(k float64) Point {
	return fromVec(p.vec().Mul(k))
}

// IsFinite reports whether both coordinates are finite numbers.
func (p Point) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// InUnitSquare reports whether p lies in [0,1]x[0,1].
func (p Point) InUnitSquare() bool {
	return p.IsFinite() && p.X >= 0 && p.X <= 1 && p.Y >= 0 && p.Y <= 1
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return a.vec().Sub(b.vec()).Norm()
}

// AngleAt returns the angle in degrees formed at vertex by the arms towards a
// and b. The result is in [0,180]. A zero-length arm yields 0.
func AngleAt(vertex, a, b Point) float64 {
	va := a.vec().Sub(vertex.vec())
	vb := b.vec().Sub(vertex.vec())

	if va.Norm() < epsilon || vb.Norm() < epsilon {
		return 0
	}

	// atan2 stays exact near 0 and 180 degrees where acos does not.
	return math.Abs(math.Atan2(va.Cross(vb), va.Dot(vb))) * 180 / math.Pi
}

// DistanceToSegment returns the shortest distance from p to the segment ab.
// A degenerate segment (a == b) returns the distance from p to a.
func DistanceToSegment(p, a, b Point) float64 {
	ab := b.vec().Sub(a.vec())
	lenSq := ab.Dot(ab)
	if lenSq < epsilon {
		return Distance(p, a)
	}

	t := p.vec().Sub(a.vec()).Dot(ab) / lenSq
	t = math.Max(0, math.Min(1, t))

	proj := a.vec().Add(ab.Mul(t))
	return proj.Sub(p.vec()).Norm()
}

// Centroid returns the arithmetic mean of the given points.
// It returns the zero Point for an empty slice.
func Centroid(points ...Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var sum r2.Point
	for _, p := range points {
		sum = sum.Add(p.vec())
	}
	return fromVec(sum.Mul(1 / float64(len(points))))
}
