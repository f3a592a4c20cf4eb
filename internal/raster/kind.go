package raster

// Kind identifies the concrete storage backing a raster.
type Kind int

const (
	KindInt8 Kind = iota + 1
	KindInt16
	KindInt32
	KindFloat32
	KindFloat64
)

var kindNames = map[Kind]string{
	KindInt8:    "int8",
	KindInt16:   "int16",
	KindInt32:   "int32",
	KindFloat32: "float32",
	KindFloat64: "float64",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Bits is the storage width of one sample.
func (k Kind) Bits() int {
	switch k {
	case KindInt8:
		return 8
	case KindInt16:
		return 16
	case KindInt32, KindFloat32:
		return 32
	case KindFloat64:
		return 64
	default:
		return 0
	}
}

func (k Kind) Floating() bool {
	return k == KindFloat32 || k == KindFloat64
}

// KeepUint is what an integer kind keeps of v: the low Bits bits.
func (k Kind) KeepUint(v uint64) uint64 {
	switch k {
	case KindInt8:
		return uint64(uint8(v))
	case KindInt16:
		return uint64(uint16(v))
	case KindInt32:
		return uint64(uint32(v))
	default:
		return v
	}
}

// KeepFloat is what a floating kind keeps of v.
func (k Kind) KeepFloat(v float64) float64 {
	if k == KindFloat32 {
		return float64(float32(v))
	}
	return v
}

// KeepUintAsFloat is what a floating kind keeps of the integer write v.
func (k Kind) KeepUintAsFloat(v uint64) float64 {
	if k == KindFloat32 {
		return float64(float32(v))
	}
	return float64(v)
}

type tier struct {
	maxBits int
	kind    Kind
}

// Integer resolutions wider than 32 bits fall through to KindFloat64.
var (
	integerTiers  = []tier{{8, KindInt8}, {16, KindInt16}, {32, KindInt32}}
	floatingTiers = []tier{{32, KindFloat32}}
)

// Select picks the narrowest kind whose width covers the widest requested
// band resolution. It assumes the resolutions passed Validate; ok is false
// only for an unknown format.
func Select(format Format, resolutions []int) (kind Kind, ok bool) {
	var tiers []tier
	switch format {
	case Any, Integer:
		tiers = integerTiers
	case Floating:
		tiers = floatingTiers
	default:
		return 0, false
	}

	m := DefaultResolution(format)
	if len(resolutions) > 0 {
		m = resolutions[0]
		for _, r := range resolutions[1:] {
			m = max(m, r)
		}
	}
	for _, t := range tiers {
		if m <= t.maxBits {
			return t.kind, true
		}
	}
	return KindFloat64, true
}
