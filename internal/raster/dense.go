package raster

import (
	"math"

	"github.com/mohammed-shakir/h3-raster-store/internal/mapper"
)

type sample interface {
	uint8 | uint16 | uint32 | float32 | float64
}

// dense stores every sample at the width of T in one band-major slice.
type dense[T sample] struct {
	kind        Kind
	format      Format
	bands       int
	rows        int
	cols        int
	resolutions []int
	mapper      mapper.Mapper
	factory     *Factory
	data        []T
}

func newDense[T sample](kind Kind, format Format, bands, rows, cols int, res []int, m mapper.Mapper, f *Factory) *dense[T] {
	return &dense[T]{
		kind:        kind,
		format:      format,
		bands:       bands,
		rows:        rows,
		cols:        cols,
		resolutions: res,
		mapper:      m,
		factory:     f,
		data:        make([]T, bands*rows*cols),
	}
}

// newKind allocates the storage for kind. Callers have validated geometry.
func newKind(kind Kind, format Format, bands, rows, cols int, res []int, m mapper.Mapper, f *Factory) Raster {
	switch kind {
	case KindInt8:
		return newDense[uint8](kind, format, bands, rows, cols, res, m, f)
	case KindInt16:
		return newDense[uint16](kind, format, bands, rows, cols, res, m, f)
	case KindInt32:
		return newDense[uint32](kind, format, bands, rows, cols, res, m, f)
	case KindFloat32:
		return newDense[float32](kind, format, bands, rows, cols, res, m, f)
	default:
		return newDense[float64](KindFloat64, format, bands, rows, cols, res, m, f)
	}
}

// KindOf reports the storage kind of r, or false for proxies and masks.
func KindOf(r Raster) (Kind, bool) {
	if k, ok := r.(interface{ Kind() Kind }); ok {
		return k.Kind(), true
	}
	return 0, false
}

func (d *dense[T]) Kind() Kind                    { return d.kind }
func (d *dense[T]) Format() Format                { return d.format }
func (d *dense[T]) NumberOfBands() int            { return d.bands }
func (d *dense[T]) NumberOfRows() int             { return d.rows }
func (d *dense[T]) NumberOfColumns() int          { return d.cols }
func (d *dense[T]) Mapper() mapper.Mapper         { return d.mapper }
func (d *dense[T]) Factory() *Factory             { return d.factory }
func (d *dense[T]) RadiometricResolutions() []int { return append([]int(nil), d.resolutions...) }

func (d *dense[T]) index(row, col, band int) (int, bool) {
	if !inBounds(d, row, col, band) {
		return 0, false
	}
	return (band*d.rows+row)*d.cols + col, true
}

func (d *dense[T]) Value(row, col, band int) uint64 {
	i, ok := d.index(row, col, band)
	if !ok {
		return 0
	}
	if d.kind.Floating() {
		return FloatToUint(float64(d.data[i]))
	}
	return uint64(d.data[i])
}

// SetValue truncates v to the storage width.
func (d *dense[T]) SetValue(row, col, band int, v uint64) {
	if i, ok := d.index(row, col, band); ok {
		d.data[i] = T(v)
	}
}

func (d *dense[T]) FloatValue(row, col, band int) float64 {
	i, ok := d.index(row, col, band)
	if !ok {
		return 0
	}
	return float64(d.data[i])
}

func (d *dense[T]) SetFloatValue(row, col, band int, v float64) {
	i, ok := d.index(row, col, band)
	if !ok {
		return
	}
	if d.kind.Floating() {
		d.data[i] = T(v)
		return
	}
	d.data[i] = T(FloatToUint(v))
}

// FloatToUint truncates toward zero; negatives and NaN become 0 and values
// past the uint64 range saturate.
func FloatToUint(v float64) uint64 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= math.MaxUint64:
		return math.MaxUint64
	default:
		return uint64(v)
	}
}
