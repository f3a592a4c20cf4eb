// Package keys builds the Redis keys under which rasters are persisted.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const prefix = "raster"

// Header is the key of the JSON geometry header of raster id.
func Header(id string) string {
	id = sanitizeID(id)
	return fmt.Sprintf("%s:%s:%s:hdr", prefix, tag(id), id)
}

// Band is the hash holding the samples of one band, keyed "row:col".
func Band(id string, band int) string {
	id = sanitizeID(id)
	return fmt.Sprintf("%s:%s:%s:b%d", prefix, tag(id), id, band)
}

// Bands returns the keys of bands [0, n).
func Bands(id string, n int) []string {
	out := make([]string, 0, n)
	for b := range n {
		out = append(out, Band(id, b))
	}
	return out
}

func Cell(row, col int) string {
	return fmt.Sprintf("%d:%d", row, col)
}

// tag is a Redis cluster hash tag, so all keys of one raster share a slot.
func tag(id string) string {
	return fmt.Sprintf("{%016x}", xxhash.Sum64String(id))
}

func sanitizeID(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
