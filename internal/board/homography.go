package board

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ayusman/playsight/internal/geometry"
)

// ErrDegenerateQuad is returned when four points do not define a
// perspective transform.
var ErrDegenerateQuad = errors.New("degenerate quadrilateral")

// Homography is a 3x3 planar perspective transform.
type Homography struct {
	h [9]float64
}

// NewHomography returns the transform mapping each src corner onto the
// matching dst corner.
func NewHomography(src, dst [4]geometry.Point) (*Homography, error) {
	// Solve A x = b for the eight unknowns with h33 fixed at 1.
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y

		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y})
		b.SetVec(2*i, u)
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y})
		b.SetVec(2*i+1, v)
	}

	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateQuad, err)
	}

	var hm Homography
	for i := 0; i < 8; i++ {
		hm.h[i] = sol.AtVec(i)
		if math.IsNaN(hm.h[i]) || math.IsInf(hm.h[i], 0) {
			return nil, ErrDegenerateQuad
		}
	}
	hm.h[8] = 1
	return &hm, nil
}

// Apply maps p through the transform.
func (hm *Homography) Apply(p geometry.Point) geometry.Point {
	h := &hm.h
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if w == 0 {
		return geometry.Pt(math.Inf(1), math.Inf(1))
	}
	return geometry.Pt(
		(h[0]*p.X+h[1]*p.Y+h[2])/w,
		(h[3]*p.X+h[4]*p.Y+h[5])/w,
	)
}

// Inverse returns the inverse transform.
func (hm *Homography) Inverse() (*Homography, error) {
	m := mat.NewDense(3, 3, hm.h[:])
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateQuad, err)
	}
	var out Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out.h[3*r+c] = inv.At(r, c)
		}
	}
	if out.h[8] != 0 {
		for i := range out.h {
			out.h[i] /= out.h[8]
		}
	}
	return &out, nil
}

// unitSquare is the board's own coordinate frame, ordered like the corners
// of a RectangleObservation.
var unitSquare = [4]geometry.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}

// BoardToImage returns the transform from board coordinates (the unit
// square, x right, y down) to the image quadrilateral corners.
func BoardToImage(corners [4]geometry.Point) (*Homography, error) {
	return NewHomography(unitSquare, corners)
}
