package raster

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/mohammed-shakir/h3-raster-store/internal/mapper"
)

// Observer receives construction outcomes, typically for metrics.
type Observer interface {
	RasterCreated(kind string)
	ValidationFailed(reason string)
	CellsCopied(n int)
}

type Option func(*Factory)

func WithLogger(l *slog.Logger) Option {
	return func(f *Factory) {
		if l != nil {
			f.log = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(f *Factory) { f.obs = o }
}

// WithMaxCells caps bands*rows*cols for rasters the factory allocates,
// clones included. Zero or less means no cap.
func WithMaxCells(n int) Option {
	return func(f *Factory) { f.maxCells = n }
}

// Factory is stateless apart from its identity, which every raster it
// produces reports through Raster.Factory.
type Factory struct {
	log      *slog.Logger
	obs      Observer
	maxCells int
}

func NewFactory(opts ...Option) *Factory {
	f := &Factory{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *Factory) Create(bands, rows, cols int, m mapper.Mapper) (Raster, error) {
	return f.CreateRaster(Any, bands, rows, cols, nil, m)
}

// CreateWithResolution applies one resolution to every band.
func (f *Factory) CreateWithResolution(bands, rows, cols, resolution int, m mapper.Mapper) (Raster, error) {
	return f.CreateFormatWithResolution(Any, bands, rows, cols, resolution, m)
}

func (f *Factory) CreateWithResolutions(bands, rows, cols int, resolutions []int, m mapper.Mapper) (Raster, error) {
	return f.CreateRaster(Any, bands, rows, cols, resolutions, m)
}

func (f *Factory) CreateFormat(format Format, bands, rows, cols int, m mapper.Mapper) (Raster, error) {
	return f.CreateRaster(format, bands, rows, cols, nil, m)
}

func (f *Factory) CreateFormatWithResolution(format Format, bands, rows, cols, resolution int, m mapper.Mapper) (Raster, error) {
	if bands < 1 {
		// let CreateRaster report the geometry error instead of a count mismatch
		return f.CreateRaster(format, bands, rows, cols, nil, m)
	}
	res := make([]int, bands)
	for i := range res {
		res[i] = resolution
	}
	return f.CreateRaster(format, bands, rows, cols, res, m)
}

func (f *Factory) CreateFormatWithResolutions(format Format, bands, rows, cols int, resolutions []int, m mapper.Mapper) (Raster, error) {
	return f.CreateRaster(format, bands, rows, cols, resolutions, m)
}

// CreateRaster is the canonical constructor all other Create variants use.
// A nil resolutions slice selects DefaultResolution(format) for every band.
func (f *Factory) CreateRaster(format Format, bands, rows, cols int, resolutions []int, m mapper.Mapper) (Raster, error) {
	if err := Validate(format, bands, rows, cols, resolutions); err != nil {
		return nil, f.reject(err)
	}
	if n, _ := CellCount(bands, rows, cols); f.maxCells > 0 && n > f.maxCells {
		return nil, f.reject(fmt.Errorf("%d samples, limit %d: %w", n, f.maxCells, ErrTooLarge))
	}
	kind, ok := Select(format, resolutions)
	if !ok {
		return nil, f.reject(fmt.Errorf("%s: %w", format, ErrUnknownFormat))
	}
	if format == Any {
		format = Integer
	}

	r := newKind(kind, format, bands, rows, cols, resolveResolutions(format, bands, resolutions), m, f)
	f.created(kind.String(), r)
	return r, nil
}

// Clone allocates a new raster with the geometry, format, resolutions and
// mapper of other and deep copies every sample, band by band, row by row.
func (f *Factory) Clone(other Raster) (Raster, error) {
	if other == nil {
		return nil, f.reject(fmt.Errorf("clone: %w", ErrNullSource))
	}
	r, err := f.CreateRaster(other.Format(), other.NumberOfBands(), other.NumberOfRows(),
		other.NumberOfColumns(), other.RadiometricResolutions(), other.Mapper())
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}

	bands, rows, cols := r.NumberOfBands(), r.NumberOfRows(), r.NumberOfColumns()
	floating := r.Format() == Floating
	for b := range bands {
		for row := range rows {
			for col := range cols {
				if floating {
					r.SetFloatValue(row, col, b, other.FloatValue(row, col, b))
				} else {
					r.SetValue(row, col, b, other.Value(row, col, b))
				}
			}
		}
	}
	if f.obs != nil {
		f.obs.CellsCopied(bands * rows * cols)
	}
	return r, nil
}

// CreateProxy wraps svc; geometry and resolution checks are left to svc.
func (f *Factory) CreateProxy(svc Service, m mapper.Mapper) (Raster, error) {
	if svc == nil {
		return nil, f.reject(fmt.Errorf("proxy: %w", ErrNullSource))
	}
	r := &proxy{svc: svc, mapper: m, factory: f}
	f.created("proxy", r)
	return r, nil
}

// CreateMask returns a live view of the rows x cols window of src whose
// top-left cell is (rowIndex, columnIndex).
func (f *Factory) CreateMask(src Raster, rowIndex, columnIndex, rows, cols int) (Raster, error) {
	if src == nil {
		return nil, f.reject(fmt.Errorf("mask: %w", ErrNullSource))
	}
	if err := validateWindow(src, rowIndex, columnIndex, rows, cols); err != nil {
		return nil, f.reject(err)
	}
	r := &mask{src: src, row: rowIndex, col: columnIndex, rows: rows, cols: cols, factory: f}
	if m := src.Mapper(); m != nil {
		r.mapper = offsetMapper{inner: m, row: rowIndex, col: columnIndex}
	}
	f.created("mask", r)
	return r, nil
}

func (f *Factory) reject(err error) error {
	reason := Reason(err)
	f.log.Warn("raster construction rejected", "reason", reason, "err", err)
	if f.obs != nil {
		f.obs.ValidationFailed(reason)
	}
	return err
}

func (f *Factory) created(kind string, r Raster) {
	f.log.Debug("raster created",
		"kind", kind,
		"format", r.Format().String(),
		"bands", r.NumberOfBands(),
		"rows", r.NumberOfRows(),
		"columns", r.NumberOfColumns())
	if f.obs != nil {
		f.obs.RasterCreated(kind)
	}
}
