package cartview

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Registry keeps the most recently used views. Evicting or removing a view
// closes it, which stops its timers.
type Registry struct {
	cache *lru.Cache[string, *View]
}

func NewRegistry(size int) (*Registry, error) {
	c, err := lru.NewWithEvict[string, *View](size, func(_ string, v *View) {
		v.Close()
	})
	if err != nil {
		return nil, err
	}
	return &Registry{cache: c}, nil
}

func (r *Registry) Add(v *View) { r.cache.Add(v.ID, v) }

func (r *Registry) Get(id string) (*View, bool) { return r.cache.Get(id) }

func (r *Registry) Remove(id string) { r.cache.Remove(id) }

func (r *Registry) Len() int { return r.cache.Len() }

// Purge closes every view.
func (r *Registry) Purge() { r.cache.Purge() }
