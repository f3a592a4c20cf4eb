package raster

import (
	"fmt"
	"math"
)

const (
	MinResolution = 1
	MaxResolution = 64
)

// Validate checks raster construction parameters. Checks run in a fixed order
// and only the first violation is reported. A nil resolutions slice is valid
// and means the format default applies to every band.
func Validate(format Format, bands, rows, cols int, resolutions []int) error {
	if bands < 1 {
		return fmt.Errorf("number of bands %d is less than 1: %w", bands, ErrInvalidGeometry)
	}
	if rows < 0 {
		return fmt.Errorf("number of rows %d is less than 0: %w", rows, ErrInvalidGeometry)
	}
	if cols < 0 {
		return fmt.Errorf("number of columns %d is less than 0: %w", cols, ErrInvalidGeometry)
	}
	if _, ok := CellCount(bands, rows, cols); !ok {
		return fmt.Errorf("%d x %d x %d samples overflow int: %w", bands, rows, cols, ErrInvalidGeometry)
	}
	if resolutions != nil {
		if len(resolutions) != bands {
			return fmt.Errorf("%d resolutions for %d bands: %w", len(resolutions), bands, ErrResolutionCountMismatch)
		}
		for i, r := range resolutions {
			if r < MinResolution {
				return fmt.Errorf("band %d resolution %d less than minimum: %w", i, r, ErrInvalidResolution)
			}
			if r > MaxResolution {
				return fmt.Errorf("band %d resolution %d exceeds maximum of %d: %w", i, r, MaxResolution, ErrInvalidResolution)
			}
		}
	}
	if !format.valid() {
		return fmt.Errorf("%s: %w", format, ErrUnknownFormat)
	}
	return nil
}

// resolveResolutions returns a fresh per-band slice, broadcasting the format
// default when resolutions is nil.
func resolveResolutions(format Format, bands int, resolutions []int) []int {
	out := make([]int, bands)
	if resolutions == nil {
		def := DefaultResolution(format)
		for i := range out {
			out[i] = def
		}
		return out
	}
	copy(out, resolutions)
	return out
}

// CellCount returns bands*rows*cols, or false when the product overflows int.
// Dimensions must be non-negative.
func CellCount(bands, rows, cols int) (int, bool) {
	n := bands
	for _, d := range [...]int{rows, cols} {
		if d != 0 && n > math.MaxInt/d {
			return 0, false
		}
		n *= d
	}
	return n, true
}
