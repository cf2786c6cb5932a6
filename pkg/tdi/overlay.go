package tdi

import (
	"slices"
	"strconv"

	"github.com/conneroisu/tdi/internal/errors"
	"github.com/conneroisu/tdi/pkg/directive"
)

// maxOverlayPasses bounds the rounds of one overlay tree. A round that
// still splices after that means two sources keep filling each other.
const maxOverlayPasses = 64

type splice struct {
	src    int
	target int
}

type merger struct {
	nodes   []nodeData
	other   *Tree
	sources []int
	names   map[int]string
	applied map[splice]bool
}

// Overlay merges the overlay declarations of others into a copy of t, left
// to right, and returns the merged tree. Neither t nor others change.
func (t *Tree) Overlay(others ...*Tree) (*Tree, error) {
	nodes := slices.Clone(t.nodes)
	for _, o := range others {
		if o == nil {
			continue
		}
		m := &merger{nodes: nodes, other: o, names: make(map[int]string), applied: make(map[splice]bool)}
		m.collect(0)
		if err := m.run(); err != nil {
			return nil, err
		}
		nodes = m.nodes
	}

	merged := &Tree{
		id:       treeIDs.Add(1),
		source:   t.source,
		nodes:    nodes,
		dialect:  t.dialect,
		encoding: t.encoding,
		codec:    t.codec,
		diags:    slices.Clone(t.diags),
	}
	for _, o := range others {
		if o != nil {
			merged.diags = append(merged.diags, o.diags...)
		}
	}
	if err := merged.index(); err != nil {
		return nil, err
	}
	return merged, nil
}

// collect gathers the outermost source declarations of the overlay tree.
func (m *merger) collect(idx int) {
	n := &m.other.nodes[idx]
	if n.overlay != nil && n.overlay.IsSource() {
		m.sources = append(m.sources, idx)
		m.names[idx] = n.overlay.Name
		return
	}
	for _, c := range n.children {
		m.collect(c)
	}
}

func (m *merger) run() error {
	for range maxOverlayPasses {
		changed := false
		for _, src := range m.sources {
			for _, target := range m.targets(src) {
				m.apply(src, target)
				changed = true
			}
		}
		if !changed {
			return nil
		}
	}
	return errors.NewOverlayError(errors.ErrCodeOverlayCycle,
		"overlay sources keep filling each other after "+strconv.Itoa(maxOverlayPasses)+" passes").
		WithLocation(m.other.source, 0)
}

// targets returns the reachable target declarations src may fill.
func (m *merger) targets(src int) []int {
	name := m.names[src]
	var out []int
	var walk func(int)
	walk = func(idx int) {
		n := &m.nodes[idx]
		if n.removed {
			return
		}
		if n.overlay != nil && n.overlay.IsTarget() && n.overlay.Name == name && !m.applied[splice{src, idx}] {
			// copies made from a source of this name never become its targets
			o := n.origin
			if o.tree != m.other.id || m.names[o.idx] != name {
				out = append(out, idx)
				return
			}
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(0)
	return out
}

func (m *merger) apply(src, target int) {
	m.applied[splice{src, target}] = true
	decl := m.other.nodes[src].overlay
	parent := m.nodes[target].parent
	mark := func(d *nodeData) {
		d.origin = originRef{tree: m.other.id, idx: src}
		d.ctx = nil
	}

	var copies []int
	s := &m.other.nodes[src]
	if decl.Transparent && s.addr == nil {
		for _, c := range s.children {
			var idx int
			m.nodes, idx = appendSubtree(m.nodes, m.other.nodes, c, parent, mark)
			copies = append(copies, idx)
		}
	} else {
		var idx int
		m.nodes, idx = appendSubtree(m.nodes, m.other.nodes, src, parent, mark)
		copies = append(copies, idx)
	}

	siblings := m.nodes[parent].children
	pos := slices.Index(siblings, target)
	out := make([]int, 0, len(siblings)+len(copies))
	out = append(out, siblings[:pos]...)
	switch decl.Placement {
	case directive.Before:
		out = append(out, copies...)
		out = append(out, target)
	case directive.After:
		out = append(out, target)
		out = append(out, copies...)
	default:
		out = append(out, copies...)
	}
	out = append(out, siblings[pos+1:]...)
	m.nodes[parent].children = out
}
