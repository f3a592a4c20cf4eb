// Package mapper converts between raster cell indices and world coordinates.
package mapper

import (
	"errors"
	"fmt"
	"math"
)

var ErrSingular = errors.New("geotransform is not invertible")

type Mapper interface {
	CellToWorld(row, col int) (x, y float64)
	WorldToCell(x, y float64) (row, col int, err error)
}

// Affine is a GDAL style geotransform:
//
//	x = gt[0] + col*gt[1] + row*gt[2]
//	y = gt[3] + col*gt[4] + row*gt[5]
//
// Coordinates returned by CellToWorld address the cell centre.
type Affine struct {
	gt  [6]float64
	inv [4]float64
}

var _ Mapper = (*Affine)(nil)

func NewAffine(gt [6]float64) (*Affine, error) {
	det := gt[1]*gt[5] - gt[2]*gt[4]
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return nil, fmt.Errorf("affine %v: %w", gt, ErrSingular)
	}
	return &Affine{
		gt: gt,
		inv: [4]float64{
			gt[5] / det, -gt[2] / det,
			-gt[4] / det, gt[1] / det,
		},
	}, nil
}

// Identity maps cell (row, col) onto (col+0.5, row+0.5).
func Identity() *Affine {
	a, _ := NewAffine([6]float64{0, 1, 0, 0, 0, 1})
	return a
}

func (a *Affine) GeoTransform() [6]float64 { return a.gt }

func (a *Affine) CellToWorld(row, col int) (x, y float64) {
	c := float64(col) + 0.5
	r := float64(row) + 0.5
	x = a.gt[0] + c*a.gt[1] + r*a.gt[2]
	y = a.gt[3] + c*a.gt[4] + r*a.gt[5]
	return x, y
}

func (a *Affine) WorldToCell(x, y float64) (row, col int, err error) {
	if math.IsNaN(x) || math.IsNaN(y) {
		return 0, 0, fmt.Errorf("world coordinate (%v, %v) is not a number", x, y)
	}
	dx := x - a.gt[0]
	dy := y - a.gt[3]
	c := a.inv[0]*dx + a.inv[1]*dy
	r := a.inv[2]*dx + a.inv[3]*dy
	return int(math.Floor(r)), int(math.Floor(c)), nil
}
