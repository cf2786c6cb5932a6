// Package tdi builds addressable template trees from markup and renders
// them under the control of a model.
//
// A template marks the nodes a model may touch with directive attributes:
//
//	<ul tdi="menu">
//	  <li tdi="*item"><a tdi="link" href="#">entry</a></li>
//	  <li tdi=":item">|</li>
//	</ul>
//
// Parsing yields an immutable Tree. Rendering copies the tree, walks the
// addressed nodes, calls the model's handlers for them and serializes the
// result. A Tree may be rendered by any number of goroutines at once.
package tdi

import (
	"strings"
	"sync/atomic"

	"github.com/conneroisu/tdi/internal/errors"
	"github.com/conneroisu/tdi/pkg/directive"
	"github.com/conneroisu/tdi/pkg/markup"
)

// NodeKind is the type of a tree node.
type NodeKind uint8

const (
	RootNode NodeKind = iota
	ElementNode
	TextNode
	CommentNode
	ProcessingInstructionNode
	DeclarationNode
	MarkedSectionNode
)

// String returns the string representation of the NodeKind
func (k NodeKind) String() string {
	switch k {
	case RootNode:
		return "root"
	case ElementNode:
		return "element"
	case TextNode:
		return "text"
	case CommentNode:
		return "comment"
	case ProcessingInstructionNode:
		return "pi"
	case DeclarationNode:
		return "declaration"
	case MarkedSectionNode:
		return "marked-section"
	default:
		return "unknown"
	}
}

type originRef struct {
	tree uint64
	idx  int
}

// nodeData is one arena entry. Slices are shared between arenas and
// replaced, never written in place.
type nodeData struct {
	kind   NodeKind
	name   string
	head   string
	attrs  []markup.Attr
	tail   string
	endRaw string
	raw    string
	offset int

	children []int
	parent   int

	addr    *directive.Address
	scope   *directive.Scope
	overlay *directive.Overlay
	// path is the dotted address path, scopePath the effective scope.
	path      string
	scopePath string

	hidden       bool
	removed      bool
	materialized bool
	ctx          *Context
	origin       originRef
}

func (n *nodeData) isSeparator() bool {
	return n.addr != nil && n.addr.Flags.Has(directive.Separator)
}

func (n *nodeData) leaf() string {
	if n.addr == nil {
		return ""
	}
	return n.addr.Name
}

var treeIDs atomic.Uint64

// Tree is a parsed template. It is immutable; Overlay returns a new tree.
type Tree struct {
	id       uint64
	source   string
	nodes    []nodeData
	dialect  markup.Dialect
	encoding string
	codec    Codec

	addrs    map[string][]int
	seps     map[string][]int
	overlays map[string][]int
	scopes   []string
	diags    []errors.Diagnostic
}

// ID identifies the tree in prerender caches.
func (t *Tree) ID() uint64 { return t.id }

// Source returns the source name given at parse time.
func (t *Tree) Source() string { return t.source }

// Encoding returns the declared or configured charset.
func (t *Tree) Encoding() string { return t.encoding }

// Dialect returns the markup dialect of the tree.
func (t *Tree) Dialect() markup.Dialect { return t.dialect }

// Diagnostics returns the non-fatal findings of the parse.
func (t *Tree) Diagnostics() []errors.Diagnostic {
	out := make([]errors.Diagnostic, len(t.diags))
	copy(out, t.diags)
	return out
}

// Scopes returns the effective scope paths in declaration order.
func (t *Tree) Scopes() []string {
	out := make([]string, len(t.scopes))
	copy(out, t.scopes)
	return out
}

// Has reports whether an address path exists.
func (t *Tree) Has(path string) bool {
	return len(t.addrs[path]) > 0
}

// Lookup returns a read-only handle on the first node with the path.
func (t *Tree) Lookup(path string) *Node {
	idx := t.addrs[path]
	if len(idx) == 0 {
		return nil
	}
	return &Node{tree: t, idx: idx[0]}
}

// AddressInfo describes an addressed node.
type AddressInfo struct {
	Path      string `json:"path" yaml:"path"`
	Directive string `json:"directive" yaml:"directive"`
	Tag       string `json:"tag" yaml:"tag"`
	Scope     string `json:"scope,omitempty" yaml:"scope,omitempty"`
	Separator bool   `json:"separator,omitempty" yaml:"separator,omitempty"`
	Offset    int    `json:"offset" yaml:"offset"`
}

// Addresses lists the addressed nodes in document order.
func (t *Tree) Addresses() []AddressInfo {
	var out []AddressInfo
	t.walk(0, func(idx int) bool {
		n := &t.nodes[idx]
		if n.addr != nil && n.addr.Name != "" && n.path != "" {
			out = append(out, AddressInfo{
				Path:      n.path,
				Directive: n.addr.String(),
				Tag:       n.name,
				Scope:     n.scopePath,
				Separator: n.isSeparator(),
				Offset:    n.offset,
			})
		}
		return true
	})
	return out
}

// OverlayInfo describes an overlay declaration.
type OverlayInfo struct {
	Name      string `json:"name" yaml:"name"`
	Directive string `json:"directive" yaml:"directive"`
	Role      string `json:"role" yaml:"role"`
	Placement string `json:"placement" yaml:"placement"`
	Tag       string `json:"tag" yaml:"tag"`
	Offset    int    `json:"offset" yaml:"offset"`
}

// Overlays lists the overlay declarations in document order.
func (t *Tree) Overlays() []OverlayInfo {
	var out []OverlayInfo
	t.walk(0, func(idx int) bool {
		n := &t.nodes[idx]
		if n.overlay != nil {
			out = append(out, OverlayInfo{
				Name:      n.overlay.Name,
				Directive: n.overlay.String(),
				Role:      n.overlay.Role.String(),
				Placement: n.overlay.Placement.String(),
				Tag:       n.name,
				Offset:    n.offset,
			})
		}
		return true
	})
	return out
}

// walk visits live nodes in document order. fn returns false to skip the
// children of a node.
func (t *Tree) walk(idx int, fn func(int) bool) {
	if !fn(idx) {
		return
	}
	for _, c := range t.nodes[idx].children {
		t.walk(c, fn)
	}
}

// index rebuilds the address, separator, overlay and scope indices.
func (t *Tree) index() error {
	t.addrs = make(map[string][]int)
	t.seps = make(map[string][]int)
	t.overlays = make(map[string][]int)
	t.scopes = nil

	seenScope := make(map[string]bool)
	type sepKey struct {
		parent int
		name   string
	}
	seenSep := make(map[sepKey]bool)

	var visit func(idx int, prefix string, scope []string, inSep bool) error
	visit = func(idx int, prefix string, scope []string, inSep bool) error {
		n := &t.nodes[idx]
		path := prefix
		if n.kind == ElementNode {
			if n.scope != nil {
				if n.scope.Absolute {
					scope = n.scope.Path
				} else {
					scope = append(scope[:len(scope):len(scope)], n.scope.Path...)
				}
				key := strings.Join(scope, ".")
				if !seenScope[key] {
					seenScope[key] = true
					t.scopes = append(t.scopes, key)
				}
			}
			n.scopePath = strings.Join(scope, ".")
			n.path = ""

			if n.overlay != nil {
				t.overlays[n.overlay.Name] = append(t.overlays[n.overlay.Name], idx)
			}

			if n.addr != nil && n.addr.Name != "" && !inSep {
				full := joinPath(prefix, n.addr.Name)
				n.path = full
				if n.isSeparator() {
					key := sepKey{n.parent, n.addr.Name}
					if seenSep[key] {
						return errors.NewTreeError(errors.ErrCodeDuplicateSeparator, "duplicate separator "+full).
							WithLocation(t.source, n.offset)
					}
					seenSep[key] = true
					t.seps[full] = append(t.seps[full], idx)
					inSep = true
				} else {
					if err := t.checkDuplicate(full, idx); err != nil {
						return err
					}
					t.addrs[full] = append(t.addrs[full], idx)
					path = full
				}
			}
		}
		for _, c := range n.children {
			if err := visit(c, path, scope, inSep); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(0, "", nil, false)
}

func (t *Tree) checkDuplicate(path string, idx int) error {
	existing := t.addrs[path]
	if len(existing) == 0 {
		return nil
	}
	repeat := t.nodes[idx].addr.Flags.Has(directive.Repeat)
	for _, e := range existing {
		if !repeat || !t.nodes[e].addr.Flags.Has(directive.Repeat) {
			return errors.NewTreeError(errors.ErrCodeDuplicateAddress, "duplicate address "+path).
				WithLocation(t.source, t.nodes[idx].offset).
				WithContext("first_offset", t.nodes[e].offset)
		}
	}
	return nil
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// appendSubtree copies the subtree at src[idx] onto dst under parent and
// returns the grown arena and the index of the copy. mark, when set, sees
// every copied node.
func appendSubtree(dst, src []nodeData, idx, parent int, mark func(*nodeData)) ([]nodeData, int) {
	n := src[idx]
	n.parent = parent
	kids := n.children
	n.children = nil
	if mark != nil {
		mark(&n)
	}
	self := len(dst)
	dst = append(dst, n)
	if len(kids) > 0 {
		out := make([]int, 0, len(kids))
		for _, k := range kids {
			var c int
			dst, c = appendSubtree(dst, src, k, self, mark)
			out = append(out, c)
		}
		dst[self].children = out
	}
	return dst, self
}

// String serializes the tree without rendering it.
func (t *Tree) String() string {
	var b strings.Builder
	_ = serialize(&b, t.nodes, []int{0})
	return b.String()
}
