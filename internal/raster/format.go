package raster

import (
	"fmt"
	"strings"
)

// Format selects which sample family is authoritative for a raster.
type Format int

const (
	// Any lets the selector choose; it always prefers the integer family.
	Any Format = iota
	Integer
	Floating
)

func (f Format) String() string {
	switch f {
	case Any:
		return "any"
	case Integer:
		return "integer"
	case Floating:
		return "floating"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

func (f Format) valid() bool {
	return f == Any || f == Integer || f == Floating
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return Any, nil
	case "integer", "int":
		return Integer, nil
	case "floating", "float":
		return Floating, nil
	default:
		return 0, fmt.Errorf("format %q: %w", s, ErrUnknownFormat)
	}
}

// DefaultResolution is the per-band bit depth used when no resolutions are given.
func DefaultResolution(f Format) int {
	if f == Floating {
		return 32
	}
	return 16
}
