package raster

import (
	"fmt"

	"github.com/mohammed-shakir/h3-raster-store/internal/mapper"
)

// mask addresses local (r, c) as (row+r, col+c) on src. It holds no samples.
type mask struct {
	src     Raster
	row     int
	col     int
	rows    int
	cols    int
	mapper  mapper.Mapper
	factory *Factory
}

func validateWindow(src Raster, row, col, rows, cols int) error {
	srcRows, srcCols := src.NumberOfRows(), src.NumberOfColumns()
	switch {
	case row < 0 || row >= srcRows:
		return fmt.Errorf("row index %d outside [0,%d): %w", row, srcRows, ErrInvalidWindow)
	case col < 0 || col >= srcCols:
		return fmt.Errorf("column index %d outside [0,%d): %w", col, srcCols, ErrInvalidWindow)
	case rows < 0 || row+rows > srcRows:
		return fmt.Errorf("%d rows from %d exceed %d: %w", rows, row, srcRows, ErrInvalidWindow)
	case cols < 0 || col+cols > srcCols:
		return fmt.Errorf("%d columns from %d exceed %d: %w", cols, col, srcCols, ErrInvalidWindow)
	}
	return nil
}

// Window reports the source and the window of a masked raster.
func Window(r Raster) (src Raster, row, col, rows, cols int, ok bool) {
	m, ok := r.(*mask)
	if !ok {
		return nil, 0, 0, 0, 0, false
	}
	return m.src, m.row, m.col, m.rows, m.cols, true
}

func (m *mask) Format() Format                { return m.src.Format() }
func (m *mask) NumberOfBands() int            { return m.src.NumberOfBands() }
func (m *mask) NumberOfRows() int             { return m.rows }
func (m *mask) NumberOfColumns() int          { return m.cols }
func (m *mask) RadiometricResolutions() []int { return m.src.RadiometricResolutions() }
func (m *mask) Mapper() mapper.Mapper         { return m.mapper }
func (m *mask) Factory() *Factory             { return m.factory }

func (m *mask) Value(row, col, band int) uint64 {
	if !inBounds(m, row, col, band) {
		return 0
	}
	return m.src.Value(m.row+row, m.col+col, band)
}

func (m *mask) SetValue(row, col, band int, v uint64) {
	if inBounds(m, row, col, band) {
		m.src.SetValue(m.row+row, m.col+col, band, v)
	}
}

func (m *mask) FloatValue(row, col, band int) float64 {
	if !inBounds(m, row, col, band) {
		return 0
	}
	return m.src.FloatValue(m.row+row, m.col+col, band)
}

func (m *mask) SetFloatValue(row, col, band int, v float64) {
	if inBounds(m, row, col, band) {
		m.src.SetFloatValue(m.row+row, m.col+col, band, v)
	}
}

// offsetMapper keeps a mask georeferenced like the source cells it covers.
type offsetMapper struct {
	inner    mapper.Mapper
	row, col int
}

func (o offsetMapper) CellToWorld(row, col int) (x, y float64) {
	return o.inner.CellToWorld(row+o.row, col+o.col)
}

func (o offsetMapper) WorldToCell(x, y float64) (row, col int, err error) {
	row, col, err = o.inner.WorldToCell(x, y)
	if err != nil {
		return 0, 0, err
	}
	return row - o.row, col - o.col, nil
}
