package raster

import "errors"

var (
	ErrInvalidGeometry         = errors.New("invalid raster geometry")
	ErrInvalidResolution       = errors.New("invalid radiometric resolution")
	ErrResolutionCountMismatch = errors.New("resolution count does not match number of bands")
	ErrNullSource              = errors.New("source raster is nil")
	ErrInvalidWindow           = errors.New("mask window outside source raster")
	ErrUnknownFormat           = errors.New("unknown raster format")
	ErrTooLarge                = errors.New("raster exceeds the sample limit")
)

// Reason returns a short label for the error class of err, or "other".
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidGeometry):
		return "invalid_geometry"
	case errors.Is(err, ErrInvalidResolution):
		return "invalid_resolution"
	case errors.Is(err, ErrResolutionCountMismatch):
		return "resolution_count_mismatch"
	case errors.Is(err, ErrNullSource):
		return "null_source"
	case errors.Is(err, ErrInvalidWindow):
		return "invalid_window"
	case errors.Is(err, ErrUnknownFormat):
		return "unknown_format"
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	default:
		return "other"
	}
}
