package tdi

import (
	"iter"
	"reflect"
	"slices"
	"strings"

	"github.com/conneroisu/tdi/internal/errors"
	"github.com/conneroisu/tdi/pkg/directive"
	"github.com/conneroisu/tdi/pkg/markup"
)

type outcomeKind uint8

const (
	outcomeNone outcomeKind = iota
	outcomeRepeat
	outcomeIterate
	outcomeReplace
)

type iterClone struct {
	node *Node
	ctx  *Context
}

// outcome is the structural decision a handler recorded on a node.
type outcome struct {
	kind  outcomeKind
	ran   bool
	fn    RepeatFunc
	sep   SeparatorFunc
	items []any

	clones []iterClone

	replaceFn   RenderFunc
	replaceTree *Tree
	replaceIdx  int
}

// session spans one handler callback. Handles opened in it expire when the
// callback returns.
type session struct {
	r    *renderer
	done bool
	errs []error
}

func (s *session) fail(err error) {
	s.errs = append(s.errs, err)
}

func (s *session) err() error {
	if len(s.errs) == 0 {
		return nil
	}
	return s.errs[0]
}

// Node is a handle on a tree node. Handles passed to handlers are valid
// until the handler returns. Handles from Tree.Lookup and Node.Template
// are read-only.
type Node struct {
	s       *session
	tree    *Tree
	idx     int
	ctx     *Context
	primary bool
	out     *outcome
}

// Attribute is a decoded attribute of an element.
type Attribute struct {
	Name     string
	Value    string
	HasValue bool
}

// RepeatOption configures Repeat and Iterate.
type RepeatOption func(*outcome)

// WithSeparator fills the separators between clones with fn instead of the
// model's SeparatorFunc.
func WithSeparator(fn SeparatorFunc) RepeatOption {
	return func(o *outcome) { o.sep = fn }
}

func (n *Node) nodes() []nodeData {
	if n.s == nil {
		return n.tree.nodes
	}
	n.live()
	return n.s.r.nodes
}

func (n *Node) data() *nodeData {
	return &n.nodes()[n.idx]
}

func (n *Node) codec() Codec {
	if n.s == nil {
		return n.tree.codec
	}
	return n.s.r.codec
}

func (n *Node) live() {
	if n.s.done {
		panic("tdi: node handle used after its callback returned")
	}
}

// mutable returns the arena entry for writing.
func (n *Node) mutable() *nodeData {
	if n.s == nil {
		panic("tdi: template nodes are read-only")
	}
	n.live()
	return &n.s.r.nodes[n.idx]
}

func (n *Node) structural(op string) {
	n.mutable()
	if !n.primary {
		panic("tdi: " + op + " is only allowed on the node passed to the handler")
	}
}

// Name returns the tag name as written.
func (n *Node) Name() string { return n.data().name }

// Kind returns the node kind.
func (n *Node) Kind() NodeKind { return n.data().kind }

// Address returns the dotted address path.
func (n *Node) Address() string { return n.data().path }

// Leaf returns the last segment of the address.
func (n *Node) Leaf() string { return n.data().leaf() }

// Ctx returns the render context of the node. It is nil outside repeats.
func (n *Node) Ctx() *Context { return n.ctx }

// Attr returns the decoded value of the first attribute named name,
// compared case-insensitively.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.data().attrs {
		if strings.EqualFold(a.Name, name) {
			if !a.HasValue {
				return "", true
			}
			v, err := n.codec().DecodeAttr(a.Value)
			if err != nil {
				return a.Unquoted(), true
			}
			return v, true
		}
	}
	return "", false
}

// Attrs returns the decoded attributes in source order.
func (n *Node) Attrs() []Attribute {
	attrs := n.data().attrs
	out := make([]Attribute, 0, len(attrs))
	for _, a := range attrs {
		v := ""
		if a.HasValue {
			var err error
			if v, err = n.codec().DecodeAttr(a.Value); err != nil {
				v = a.Unquoted()
			}
		}
		out = append(out, Attribute{Name: a.Name, Value: v, HasValue: a.HasValue})
	}
	return out
}

// SetAttr sets an attribute, replacing an existing one with the same name
// in place.
func (n *Node) SetAttr(name, value string) {
	d := n.mutable()
	lit, err := n.codec().EncodeAttr(value)
	if err != nil {
		n.s.fail(err)
		return
	}
	attrs := slices.Clone(d.attrs)
	for i, a := range attrs {
		if strings.EqualFold(a.Name, name) {
			ws := a.Raw[:len(a.Raw)-len(strings.TrimLeft(a.Raw, " \t\r\n\f"))]
			if ws == "" {
				ws = " "
			}
			attrs[i] = markup.Attr{Name: a.Name, Value: lit, HasValue: true, Raw: ws + a.Name + "=" + lit}
			d.attrs = attrs
			return
		}
	}
	d.attrs = append(attrs, markup.Attr{Name: name, Value: lit, HasValue: true, Raw: " " + name + "=" + lit})
}

// SetFlag sets a valueless attribute such as "checked".
func (n *Node) SetFlag(name string) {
	d := n.mutable()
	attrs := slices.DeleteFunc(slices.Clone(d.attrs), func(a markup.Attr) bool {
		return strings.EqualFold(a.Name, name)
	})
	d.attrs = append(attrs, markup.Attr{Name: name, Raw: " " + name})
}

// DelAttr removes every attribute named name.
func (n *Node) DelAttr(name string) {
	d := n.mutable()
	d.attrs = slices.DeleteFunc(slices.Clone(d.attrs), func(a markup.Attr) bool {
		return strings.EqualFold(a.Name, name)
	})
}

// Content returns the decoded text of the node's subtree.
func (n *Node) Content() string {
	nodes := n.nodes()
	var b strings.Builder
	var collect func(int)
	collect = func(idx int) {
		d := &nodes[idx]
		if d.removed {
			return
		}
		if d.kind == TextNode {
			b.WriteString(d.raw)
			return
		}
		for _, c := range d.children {
			collect(c)
		}
	}
	for _, c := range nodes[n.idx].children {
		collect(c)
	}
	text, err := n.codec().DecodeText(b.String())
	if err != nil {
		return b.String()
	}
	return text
}

// RawContent returns the serialized children of the node.
func (n *Node) RawContent() string {
	var b strings.Builder
	nodes := n.nodes()
	_ = serialize(&b, nodes, nodes[n.idx].children)
	return b.String()
}

// SetContent replaces the children with the encoded text.
func (n *Node) SetContent(text string) {
	n.mutable()
	raw, err := n.codec().EncodeText(text)
	if err != nil {
		n.s.fail(err)
		return
	}
	n.setText(raw)
}

// SetRawContent replaces the children with raw markup, written as is.
func (n *Node) SetRawContent(raw string) {
	n.mutable()
	n.setText(raw)
}

func (n *Node) setText(raw string) {
	r := n.s.r
	child := len(r.nodes)
	r.nodes = append(r.nodes, nodeData{kind: TextNode, raw: raw, parent: n.idx, offset: -1})
	d := &r.nodes[n.idx]
	d.children = []int{child}
	// a self-closed element needs real tags once it has content
	if t := d.tail; d.endRaw == "" && len(t) >= 2 && t[len(t)-2] == '/' && d.head != "" {
		closer := t[len(t)-1:]
		d.tail = strings.TrimRight(t[:len(t)-2], " \t\r\n\f") + closer
		d.endRaw = d.head[:1] + "/" + d.name + closer
	}
}

// Hidden reports whether the element's tags are omitted.
func (n *Node) Hidden() bool { return n.data().hidden }

// SetHidden omits or restores the element's tags. Content is kept.
func (n *Node) SetHidden(hidden bool) {
	n.mutable().hidden = hidden
}

// Remove drops the node and its subtree from the output.
func (n *Node) Remove() {
	n.mutable().removed = true
}

// Removed reports whether Remove was called.
func (n *Node) Removed() bool { return n.data().removed }

// Repeat renders one clone of the node per item. fn fills each clone.
// Zero items remove the node. items is a slice, an array, an iter.Seq[any]
// or an int count.
func (n *Node) Repeat(fn RepeatFunc, items any, opts ...RepeatOption) {
	n.structural("Repeat")
	list, err := itemsOf(items)
	if err != nil {
		n.s.fail(err.WithLocation(n.s.r.tree.source, n.data().offset))
		return
	}
	n.out.kind = outcomeRepeat
	n.out.fn = fn
	n.out.items = list
	n.out.sep = nil
	for _, opt := range opts {
		opt(n.out)
	}
}

// Iterate is Repeat driven by the caller: every step yields a fresh clone
// and its item. Stopping early keeps the clones created so far; no steps
// remove the node.
func (n *Node) Iterate(items any, opts ...RepeatOption) iter.Seq2[*Node, any] {
	n.structural("Iterate")
	list, err := itemsOf(items)
	if err != nil {
		n.s.fail(err.WithLocation(n.s.r.tree.source, n.data().offset))
		list = nil
	}
	n.out.kind = outcomeIterate
	n.out.clones = nil
	n.out.sep = nil
	for _, opt := range opts {
		opt(n.out)
	}
	return func(yield func(*Node, any) bool) {
		n.live()
		for i, item := range list {
			ctx := n.ctx.Push(i, item)
			c := n.s.r.clone(n.idx, ctx)
			h := &Node{s: n.s, idx: c, ctx: ctx, primary: true, out: &outcome{ran: true}}
			n.out.clones = append(n.out.clones, iterClone{node: h, ctx: ctx})
			if !yield(h, item) {
				return
			}
		}
	}
}

// Replace puts a copy of other in the node's place and calls fn on the
// copy. other may be any node of the render or of a template tree,
// including n itself.
func (n *Node) Replace(fn RenderFunc, other *Node) {
	n.structural("Replace")
	if other == nil {
		return
	}
	n.out.kind = outcomeReplace
	n.out.replaceFn = fn
	n.out.replaceIdx = other.idx
	n.out.replaceTree = nil
	if other.s == nil {
		n.out.replaceTree = other.tree
	}
}

// UseModel renders the node's descendants with m.
func (n *Node) UseModel(m Model) {
	n.mutable()
	n.s.r.models[n.idx] = m
}

// Child returns the addressed descendant at the relative path. Anonymous
// and unaddressed elements are looked through.
func (n *Node) Child(path string) *Node {
	nodes := n.nodes()
	idx := n.idx
	for _, name := range strings.Split(path, ".") {
		idx = findAddressed(nodes, idx, name)
		if idx < 0 {
			return nil
		}
	}
	return &Node{s: n.s, tree: n.tree, idx: idx, ctx: n.ctx}
}

func findAddressed(nodes []nodeData, from int, name string) int {
	for _, c := range nodes[from].children {
		d := &nodes[c]
		if d.kind != ElementNode || d.removed {
			continue
		}
		if d.addr != nil && d.addr.Name != "" {
			if d.addr.Name == name && !d.addr.Flags.Has(directive.Separator) {
				return c
			}
			continue
		}
		if found := findAddressed(nodes, c, name); found >= 0 {
			return found
		}
	}
	return -1
}

// Template returns a read-only handle on a node of the template tree.
func (n *Node) Template(path string) *Node {
	t := n.tree
	if n.s != nil {
		n.live()
		t = n.s.r.tree
	}
	return t.Lookup(path)
}

// itemsOf flattens the accepted repeat inputs into a list.
func itemsOf(items any) ([]any, *errors.TemplateError) {
	switch v := items.(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	case int:
		out := make([]any, max(v, 0))
		for i := range out {
			out[i] = i
		}
		return out, nil
	case iter.Seq[any]:
		return slices.Collect(v), nil
	case func(func(any) bool):
		return slices.Collect(iter.Seq[any](v)), nil
	}
	rv := reflect.ValueOf(items)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	}
	return nil, errors.NewModelError(errors.ErrCodeUnsupportedItems, "cannot repeat over "+rv.Type().String())
}
