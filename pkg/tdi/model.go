package tdi

// RenderFunc handles an addressed node during a render.
type RenderFunc func(n *Node) error

// RepeatFunc fills one clone of a repeated node.
type RepeatFunc func(n *Node, item any, ctx *Context) error

// SeparatorFunc fills one separator placed between two clones. ctx is the
// context of the clone following the separator.
type SeparatorFunc func(n *Node, ctx *Context) error

// Model maps the leaf name of an address onto its handler. A nil
// RenderFunc leaves the node untouched.
type Model interface {
	RenderFunc(leaf string) RenderFunc
}

// Scoper is implemented by models that own nested scopes.
type Scoper interface {
	Scope(name string) (Model, bool)
}

// Separator is implemented by models that fill separators.
type Separator interface {
	SeparatorFunc(leaf string) SeparatorFunc
}

// Versioner is implemented by prerender models whose structural decisions
// can be cached. The skeleton is reused while version stays the same and
// dirty is false.
type Versioner interface {
	PrerenderVersion() (dirty bool, version string)
}

// Handlers is a Model assembled from maps. The zero value handles
// nothing.
type Handlers struct {
	Render   map[string]RenderFunc
	Separate map[string]SeparatorFunc
	Scopes   map[string]Model
	// Version backs PrerenderVersion. A nil Version is always dirty.
	Version func() (dirty bool, version string)
}

func (h *Handlers) RenderFunc(leaf string) RenderFunc {
	if h == nil {
		return nil
	}
	return h.Render[leaf]
}

func (h *Handlers) SeparatorFunc(leaf string) SeparatorFunc {
	if h == nil {
		return nil
	}
	return h.Separate[leaf]
}

func (h *Handlers) Scope(name string) (Model, bool) {
	if h == nil {
		return nil, false
	}
	m, ok := h.Scopes[name]
	return m, ok
}

func (h *Handlers) PrerenderVersion() (bool, string) {
	if h == nil || h.Version == nil {
		return true, ""
	}
	return h.Version()
}

// resolveScope walks path through nested Scopers.
func resolveScope(m Model, path []string) (Model, bool) {
	for _, name := range path {
		s, ok := m.(Scoper)
		if !ok {
			return nil, false
		}
		if m, ok = s.Scope(name); !ok || m == nil {
			return nil, false
		}
	}
	return m, true
}

func separatorOf(m Model, leaf string) SeparatorFunc {
	if s, ok := m.(Separator); ok {
		return s.SeparatorFunc(leaf)
	}
	return nil
}
