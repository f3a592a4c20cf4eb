package registry

import (
	"testing"

	"github.com/mohammed-shakir/h3-raster-store/internal/raster"
)

func TestRegistry_PutGetRemove(t *testing.T) {
	f := raster.NewFactory()
	r1, _ := f.Create(1, 2, 2, nil)

	reg := New(4, nil)
	reg.Put("a", r1)
	got, ok := reg.Get("a")
	if !ok || got != r1 {
		t.Fatalf("Get(a) = %v,%v", got, ok)
	}
	if !reg.Remove("a") || reg.Len() != 0 {
		t.Fatalf("Remove did not drop the entry")
	}
	if _, ok := reg.Get("a"); ok {
		t.Fatalf("removed entry still present")
	}
}

func TestRegistry_EvictsLeastRecentlyUsed(t *testing.T) {
	f := raster.NewFactory()
	src, _ := f.Create(1, 4, 4, nil)
	view, _ := f.CreateMask(src, 0, 0, 2, 2)

	var evicted []string
	reg := New(2, func(id string) { evicted = append(evicted, id) })
	reg.Put("src", src)
	reg.Put("view", view)
	reg.Get("src")
	other, _ := f.Create(1, 1, 1, nil)
	reg.Put("other", other)

	if len(evicted) != 1 || evicted[0] != "view" {
		t.Fatalf("evicted=%v want [view]", evicted)
	}
	if _, ok := reg.Get("src"); !ok {
		t.Fatalf("recently used entry was evicted")
	}

	// the evicted view's source keeps working
	view.SetValue(1, 1, 0, 3)
	if src.Value(1, 1, 0) != 3 {
		t.Fatalf("source no longer reachable through the evicted view")
	}
}

func TestRegistry_RemoveTreeDropsViews(t *testing.T) {
	f := raster.NewFactory()
	src, _ := f.Create(1, 4, 4, nil)
	view, _ := f.CreateMask(src, 0, 0, 2, 2)
	inner, _ := f.CreateMask(view, 1, 1, 1, 1)
	clone, _ := f.Clone(src)
	other, _ := f.Create(1, 2, 2, nil)
	otherView, _ := f.CreateMask(other, 0, 0, 1, 1)

	reg := New(8, nil)
	reg.Put("src", src)
	reg.Put("m-view", view)
	reg.Put("m-inner", inner)
	reg.Put("c-src", clone)
	reg.Put("other", other)
	reg.Put("m-other", otherView)

	if n := reg.RemoveTree("src"); n != 3 {
		t.Fatalf("RemoveTree(src) = %d want 3", n)
	}
	for _, id := range []string{"src", "m-view", "m-inner"} {
		if _, ok := reg.Get(id); ok {
			t.Fatalf("%s still registered", id)
		}
	}
	for _, id := range []string{"c-src", "other", "m-other"} {
		if _, ok := reg.Get(id); !ok {
			t.Fatalf("%s was removed", id)
		}
	}
	if n := reg.RemoveTree("missing"); n != 0 {
		t.Fatalf("RemoveTree(missing) = %d want 0", n)
	}
}
