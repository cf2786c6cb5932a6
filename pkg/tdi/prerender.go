package tdi

import (
	"sync"
)

type cacheKey struct {
	tree  uint64
	start string
}

type cacheEntry struct {
	mu      sync.Mutex
	valid   bool
	version string
	nodes   []nodeData
	top     []int
}

// PrerenderCache keeps the skeletons produced by prerender models. It is
// safe for concurrent use; renders of the same tree and start path wait
// for a skeleton being built instead of building it twice.
type PrerenderCache struct {
	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
}

// NewPrerenderCache creates an empty cache.
func NewPrerenderCache() *PrerenderCache {
	return &PrerenderCache{entries: make(map[cacheKey]*cacheEntry)}
}

func (c *PrerenderCache) entry(k cacheKey) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k]
	if !ok {
		e = &cacheEntry{}
		c.entries[k] = e
	}
	return e
}

// Invalidate drops every skeleton of t.
func (c *PrerenderCache) Invalidate(t *Tree) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.tree == t.id {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of cached skeletons.
func (c *PrerenderCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		e.mu.Lock()
		if e.valid {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// prerender runs the prerender model and returns the skeleton arena with
// the indices that replace start. Cached arenas are shared and must not be
// written.
func (t *Tree) prerender(cfg *renderConfig, start int) ([]nodeData, []int, error) {
	build := func() ([]nodeData, []int, error) {
		r := t.newRenderer(t.nodes, cfg.pre, cfg)
		top, err := r.run(start, []int{start})
		if err != nil {
			return nil, nil, err
		}
		return r.nodes, top, nil
	}

	v, ok := cfg.pre.(Versioner)
	if !ok || cfg.cache == nil {
		return build()
	}
	dirty, version := v.PrerenderVersion()
	if dirty {
		return build()
	}

	e := cfg.cache.entry(cacheKey{tree: t.id, start: cfg.start})
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.valid && e.version == version {
		cfg.logger.Debug(cfg.ctx, "prerender cache hit", "source", t.source, "version", version)
		return e.nodes, e.top, nil
	}
	nodes, top, err := build()
	if err != nil {
		e.valid = false
		return nil, nil, err
	}
	e.valid, e.version, e.nodes, e.top = true, version, nodes, top
	return nodes, top, nil
}
