// Package raster builds in-memory, proxied and masked rasters behind a single
// Raster interface. The Factory decides which fixed-width storage backs the
// samples from the requested format and per-band radiometric resolution.
//
// Rasters are not safe for concurrent mutation; callers serialize writers.
package raster

import "github.com/mohammed-shakir/h3-raster-store/internal/mapper"

// Sampler is per-cell sample access plus geometry. Exactly one sample family
// (integer or floating) is authoritative, as reported by Format; the other
// family is a conversion of it.
//
// Reads outside the raster extent return zero and writes outside it are
// ignored.
type Sampler interface {
	Format() Format
	NumberOfBands() int
	NumberOfRows() int
	NumberOfColumns() int
	// RadiometricResolutions returns a copy of the per-band bit depths.
	RadiometricResolutions() []int

	Value(row, col, band int) uint64
	SetValue(row, col, band int, v uint64)
	FloatValue(row, col, band int) float64
	SetFloatValue(row, col, band int, v float64)
}

// Service is an external raster data service. It owns both geometry and
// samples; a proxy raster only forwards to it.
type Service interface {
	Sampler
}

type Raster interface {
	Sampler
	// Mapper may be nil.
	Mapper() mapper.Mapper
	// Factory is the creator of record.
	Factory() *Factory
}

func inBounds(s Sampler, row, col, band int) bool {
	return band >= 0 && band < s.NumberOfBands() &&
		row >= 0 && row < s.NumberOfRows() &&
		col >= 0 && col < s.NumberOfColumns()
}
