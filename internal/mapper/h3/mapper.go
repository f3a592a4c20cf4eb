package h3mapper

import (
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/h3-raster-store/internal/mapper"
)

type Cells []string

// Mapper is an affine raster mapper whose world coordinates are EPSG:4326
// degrees (x = lon, y = lat), so raster cells can be indexed in H3.
type Mapper struct {
	*mapper.Affine
}

var _ mapper.Mapper = (*Mapper)(nil)

func New(a *mapper.Affine) *Mapper {
	if a == nil {
		a = mapper.Identity()
	}
	return &Mapper{Affine: a}
}

// CellIndex returns the H3 cell that contains the centre of raster cell (row, col).
func (m *Mapper) CellIndex(row, col, res int) (string, error) {
	return IndexOf(m, row, col, res)
}

// IndexOf indexes a raster cell through any mapper whose world coordinates
// are lon/lat degrees, such as the translated mapper of a masked raster.
func IndexOf(m mapper.Mapper, row, col, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	if m == nil {
		return "", fmt.Errorf("raster has no coordinate mapper")
	}
	lon, lat := m.CellToWorld(row, col)
	c, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell for (%d,%d): %w", row, col, err)
	}
	return c.String(), nil
}

// RasterCells returns the sorted, unique H3 cells covering the raster window
// starting at (row, col) with the given extent.
func (m *Mapper) RasterCells(row, col, rows, cols, res int) (Cells, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("empty window %dx%d", rows, cols)
	}

	gt := m.GeoTransform()
	corner := func(r, c int) h3.LatLng {
		x := gt[0] + float64(c)*gt[1] + float64(r)*gt[2]
		y := gt[3] + float64(c)*gt[4] + float64(r)*gt[5]
		return h3.LatLng{Lat: y, Lng: x}
	}
	outer := h3.GeoLoop{
		corner(row, col),
		corner(row, col+cols),
		corner(row+rows, col+cols),
		corner(row+rows, col),
	}
	indexes, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer}, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}

	seen := make(map[string]struct{}, len(indexes)+4)
	out := make([]string, 0, len(indexes)+4)
	add := func(s string) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, idx := range indexes {
		add(idx.String())
	}
	// polyfill is centroid based; windows smaller than a cell would come back empty
	for _, rc := range [][2]int{
		{row, col}, {row, col + cols - 1}, {row + rows - 1, col}, {row + rows - 1, col + cols - 1},
	} {
		s, err := m.CellIndex(rc[0], rc[1], res)
		if err != nil {
			return nil, err
		}
		add(s)
	}
	sort.Strings(out)
	return out, nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}
