// Package registry keeps live rasters addressable by id.
package registry

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/h3-raster-store/internal/raster"
)

// Registry is a bounded LRU of rasters. Evicting a mask or clone only drops
// the handle; persisted sources are untouched.
type Registry struct {
	c *lru.Cache[string, raster.Raster]
}

func New(size int, onEvict func(id string)) *Registry {
	if size <= 0 {
		size = 1024
	}
	var c *lru.Cache[string, raster.Raster]
	if onEvict != nil {
		c, _ = lru.NewWithEvict[string, raster.Raster](size, func(id string, _ raster.Raster) { onEvict(id) })
	} else {
		c, _ = lru.New[string, raster.Raster](size)
	}
	return &Registry{c: c}
}

func (r *Registry) Put(id string, rs raster.Raster) { r.c.Add(id, rs) }

func (r *Registry) Get(id string) (raster.Raster, bool) { return r.c.Get(id) }

func (r *Registry) Remove(id string) bool { return r.c.Remove(id) }

// RemoveTree drops id together with every registered mask whose source chain
// reaches the raster stored under id. It returns how many entries were removed.
func (r *Registry) RemoveTree(id string) int {
	root, ok := r.c.Peek(id)
	if !ok {
		return 0
	}
	n := 0
	if r.c.Remove(id) {
		n++
	}
	for _, k := range r.c.Keys() {
		rs, ok := r.c.Peek(k)
		if ok && viewsOf(rs, root) && r.c.Remove(k) {
			n++
		}
	}
	return n
}

func viewsOf(rs, root raster.Raster) bool {
	for {
		src, _, _, _, _, ok := raster.Window(rs)
		if !ok {
			return false
		}
		if src == root {
			return true
		}
		rs = src
	}
}

func (r *Registry) Len() int { return r.c.Len() }
