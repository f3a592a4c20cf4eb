package raster

import (
	"math"
	"testing"
)

func TestSelect_IntegerTiers(t *testing.T) {
	for _, f := range []Format{Any, Integer} {
		for res := 1; res <= 64; res++ {
			var want Kind
			switch {
			case res <= 8:
				want = KindInt8
			case res <= 16:
				want = KindInt16
			case res <= 32:
				want = KindInt32
			default:
				want = KindFloat64
			}
			got, ok := Select(f, []int{res})
			if !ok || got != want {
				t.Fatalf("Select(%s, %d)=%s,%v want %s", f, res, got, ok, want)
			}
		}
	}
}

func TestSelect_FloatingTiers(t *testing.T) {
	for res := 1; res <= 64; res++ {
		want := KindFloat32
		if res > 32 {
			want = KindFloat64
		}
		got, ok := Select(Floating, []int{res})
		if !ok || got != want {
			t.Fatalf("Select(floating, %d)=%s,%v want %s", res, got, ok, want)
		}
	}
}

func TestSelect_WidestBandAndDefaults(t *testing.T) {
	if k, _ := Select(Integer, []int{3, 12, 7}); k != KindInt16 {
		t.Fatalf("widest band must drive selection, got %s", k)
	}
	if k, _ := Select(Any, nil); k != KindInt16 {
		t.Fatalf("default any -> %s want int16", k)
	}
	if k, _ := Select(Floating, nil); k != KindFloat32 {
		t.Fatalf("default floating -> %s want float32", k)
	}
	if _, ok := Select(Format(42), nil); ok {
		t.Fatalf("unknown format must not select a kind")
	}
}

func TestKind_BitsAndNames(t *testing.T) {
	for k, bits := range map[Kind]int{KindInt8: 8, KindInt16: 16, KindInt32: 32, KindFloat32: 32, KindFloat64: 64} {
		if k.Bits() != bits {
			t.Fatalf("%s.Bits()=%d want %d", k, k.Bits(), bits)
		}
	}
	if Kind(0).String() != "unknown" {
		t.Fatalf("zero kind name = %q", Kind(0).String())
	}
}

func TestKind_KeepMatchesDenseStorage(t *testing.T) {
	uints := []uint64{0, 5, 100, 300, 70000, 1<<32 + 7, 1<<53 + 1, math.MaxUint64}
	floats := []float64{0, 1.1, -2.5, 9.7, 300.25, 1e10, 1e30}
	for _, k := range []Kind{KindInt8, KindInt16, KindInt32, KindFloat32, KindFloat64} {
		format := Integer
		if k.Floating() {
			format = Floating
		}
		r := newKind(k, format, 1, 1, 1, []int{k.Bits()}, nil, nil)
		for _, v := range uints {
			r.SetValue(0, 0, 0, v)
			want := k.KeepUint(v)
			if k.Floating() {
				want = FloatToUint(k.KeepUintAsFloat(v))
			}
			if got := r.Value(0, 0, 0); got != want {
				t.Fatalf("%s SetValue(%d): Value=%d want %d", k, v, got, want)
			}
		}
		for _, v := range floats {
			r.SetFloatValue(0, 0, 0, v)
			want := float64(k.KeepUint(FloatToUint(v)))
			if k.Floating() {
				want = k.KeepFloat(v)
			}
			if got := r.FloatValue(0, 0, 0); got != want {
				t.Fatalf("%s SetFloatValue(%v): FloatValue=%v want %v", k, v, got, want)
			}
		}
	}
}
