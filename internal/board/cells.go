package board

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ayusman/playsight/internal/detector"
	"github.com/ayusman/playsight/internal/geometry"
)

// Supported grid sizes.
const (
	GridSmall = 4
	GridLarge = 9
)

// BoardDetection is one time-stamped sample of a candidate board.
type BoardDetection struct {
	Corners    [4]geometry.Point
	Confidence float64
	Timestamp  time.Time
	// Transform maps board coordinates (unit square) to image coordinates.
	// Nil when the corners are degenerate.
	Transform *Homography
}

// NewBoardDetection builds a sample from a rectangle observation.
func NewBoardDetection(r *detector.RectangleObservation, ts time.Time) BoardDetection {
	d := BoardDetection{
		Corners:    r.Corners,
		Confidence: r.Confidence,
		Timestamp:  ts,
	}
	if hm, err := BoardToImage(r.Corners); err == nil {
		d.Transform = hm
	}
	return d
}

// Position is a cell address on the board, zero based.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (p Position) String() string {
	return fmt.Sprintf("r%dc%d", p.Row, p.Col)
}

// TileDetection is a glyph located on a board cell. Number is nil when the
// glyph is not a digit valid for the grid.
type TileDetection struct {
	Position    Position
	Number      *int
	Confidence  float64
	Timestamp   time.Time
	BoundingBox geometry.Rect
}

// ValidGridSize reports whether n is a supported grid size.
func ValidGridSize(n int) bool {
	return n == GridSmall || n == GridLarge
}

// CellMapper maps glyph positions on a board image onto grid cells.
type CellMapper struct {
	gridSize int
	toBoard  *Homography
}

// NewCellMapper creates a mapper for a board whose transform maps board
// coordinates to the image.
func NewCellMapper(gridSize int, boardToImage *Homography) (*CellMapper, error) {
	if !ValidGridSize(gridSize) {
		return nil, fmt.Errorf("unsupported grid size %d", gridSize)
	}
	if boardToImage == nil {
		return nil, ErrDegenerateQuad
	}
	inv, err := boardToImage.Inverse()
	if err != nil {
		return nil, err
	}
	return &CellMapper{gridSize: gridSize, toBoard: inv}, nil
}

// GridSize returns the number of rows (and columns) of the grid.
func (m *CellMapper) GridSize() int {
	return m.gridSize
}

// Cell returns the cell containing image point p.
func (m *CellMapper) Cell(p geometry.Point) (Position, bool) {
	b := m.toBoard.Apply(p)
	if !b.IsFinite() || b.X < 0 || b.X >= 1 || b.Y < 0 || b.Y >= 1 {
		return Position{}, false
	}
	n := float64(m.gridSize)
	return Position{
		Row: int(math.Floor(b.Y * n)),
		Col: int(math.Floor(b.X * n)),
	}, true
}

// Map places a glyph on the grid. It returns false when the glyph lies
// outside the board.
func (m *CellMapper) Map(g *detector.GlyphObservation, ts time.Time) (TileDetection, bool) {
	pos, ok := m.Cell(g.BoundingBox.Center())
	if !ok {
		return TileDetection{}, false
	}
	tile := TileDetection{
		Position:    pos,
		Confidence:  g.Confidence,
		Timestamp:   ts,
		BoundingBox: g.BoundingBox,
	}
	if n, err := strconv.Atoi(g.Value); err == nil && n >= 1 && n <= m.gridSize {
		tile.Number = &n
	}
	return tile, true
}

// CellCenter returns the image position of the center of cell pos on the
// board described by boardToImage.
func CellCenter(boardToImage *Homography, gridSize int, pos Position) geometry.Point {
	n := float64(gridSize)
	return boardToImage.Apply(geometry.Pt((float64(pos.Col)+0.5)/n, (float64(pos.Row)+0.5)/n))
}
