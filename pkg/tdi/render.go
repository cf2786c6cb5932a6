package tdi

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"slices"

	"github.com/conneroisu/tdi/internal/errors"
	"github.com/conneroisu/tdi/internal/logging"
	"github.com/conneroisu/tdi/pkg/codec"
	"github.com/conneroisu/tdi/pkg/directive"
)

type renderConfig struct {
	model  Model
	pre    Model
	cache  *PrerenderCache
	start  string
	strict bool
	policy *codec.Policy
	logger logging.Logger
	ctx    context.Context
}

// RenderOption configures a render.
type RenderOption func(*renderConfig)

// WithModel sets the model that fills the template.
func WithModel(m Model) RenderOption {
	return func(c *renderConfig) { c.model = m }
}

// WithPrerender runs pre over the template first and renders the result
// with the render model. Skeletons of Versioner models are kept in cache;
// a nil cache disables caching.
func WithPrerender(pre Model, cache *PrerenderCache) RenderOption {
	return func(c *renderConfig) {
		c.pre = pre
		c.cache = cache
	}
}

// WithStart renders only the subtree at the address path.
func WithStart(path string) RenderOption {
	return func(c *renderConfig) { c.start = path }
}

// WithStrictScopes makes a scope the model cannot resolve an error.
func WithStrictScopes() RenderOption {
	return func(c *renderConfig) { c.strict = true }
}

// WithCodecPolicy overrides the encoding error policy for content and
// attributes set during the render.
func WithCodecPolicy(p codec.Policy) RenderOption {
	return func(c *renderConfig) { c.policy = &p }
}

// WithLogger sets the logger of the render.
func WithLogger(l logging.Logger) RenderOption {
	return func(c *renderConfig) { c.logger = l }
}

// WithContext cancels the render when ctx is done.
func WithContext(ctx context.Context) RenderOption {
	return func(c *renderConfig) { c.ctx = ctx }
}

func newRenderConfig(opts []RenderOption) *renderConfig {
	c := &renderConfig{
		logger: logging.Nop(),
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// renderer owns the working copy of one render phase.
type renderer struct {
	tree   *Tree
	nodes  []nodeData
	root   Model
	codec  Codec
	models map[int]Model
	cfg    *renderConfig
	log    logging.Logger
}

func (t *Tree) newRenderer(nodes []nodeData, root Model, cfg *renderConfig) *renderer {
	r := &renderer{
		tree:   t,
		nodes:  slices.Clone(nodes),
		root:   root,
		codec:  t.codec,
		models: make(map[int]Model),
		cfg:    cfg,
		log:    cfg.logger.WithComponent("render"),
	}
	if cd, ok := t.codec.(*codec.Codec); ok && cfg.policy != nil && cd.Policy() != *cfg.policy {
		if c, err := codec.New(cd.Name(), codec.WithPolicy(*cfg.policy), codec.WithMode(cd.Mode())); err == nil {
			r.codec = c
		}
	}
	return r
}

// Render renders the tree into w.
func (t *Tree) Render(w io.Writer, opts ...RenderOption) error {
	cfg := newRenderConfig(opts)
	op := logging.StartOperation(cfg.logger, "render")

	nodes, top, err := t.render(cfg)
	if err != nil {
		op.EndWithError(cfg.ctx, err)
		return err
	}
	bw := bufio.NewWriter(w)
	if err := serialize(bw, nodes, top); err != nil {
		op.EndWithError(cfg.ctx, err)
		return err
	}
	if err := bw.Flush(); err != nil {
		op.EndWithError(cfg.ctx, err)
		return err
	}
	op.End(cfg.ctx, "source", t.source, "start", cfg.start)
	return nil
}

// Bytes renders the tree into a new buffer.
func (t *Tree) Bytes(opts ...RenderOption) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Render(&buf, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderString is Bytes as a string.
func (t *Tree) RenderString(opts ...RenderOption) (string, error) {
	b, err := t.Bytes(opts...)
	return string(b), err
}

func (t *Tree) render(cfg *renderConfig) ([]nodeData, []int, error) {
	start := 0
	if cfg.start != "" {
		idx := t.addrs[cfg.start]
		if len(idx) == 0 {
			return nil, nil, errors.NewTreeError(errors.ErrCodeUnknownAddress, "unknown address "+cfg.start).
				WithLocation(t.source, 0)
		}
		start = idx[0]
	}

	nodes, top := t.nodes, []int{start}
	if cfg.pre != nil {
		var err error
		if nodes, top, err = t.prerender(cfg, start); err != nil {
			return nil, nil, err
		}
	}
	r := t.newRenderer(nodes, cfg.model, cfg)
	out, err := r.run(start, top)
	if err != nil {
		return nil, nil, err
	}
	return r.nodes, out, nil
}

// run visits top with the scope in effect at start.
func (r *renderer) run(start int, top []int) ([]int, error) {
	model, err := r.ancestorModel(start)
	if err != nil {
		return nil, err
	}
	var out []int
	for _, idx := range top {
		list, err := r.visit(idx, model, nil, true)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}

// ancestorModel resolves the scopes declared above idx.
func (r *renderer) ancestorModel(idx int) (Model, error) {
	var chain []int
	for p := r.nodes[idx].parent; p > 0; p = r.nodes[p].parent {
		chain = append(chain, p)
	}
	model := r.root
	for i := len(chain) - 1; i >= 0; i-- {
		var err error
		if model, err = r.enterScope(chain[i], model); err != nil {
			return nil, err
		}
	}
	return model, nil
}

func (r *renderer) enterScope(idx int, model Model) (Model, error) {
	n := &r.nodes[idx]
	if n.scope == nil {
		return model, nil
	}
	from := model
	if n.scope.Absolute {
		from = r.root
	}
	var m Model
	ok := false
	if from != nil {
		m, ok = resolveScope(from, n.scope.Path)
	}
	if ok {
		return m, nil
	}
	if r.cfg.strict {
		return nil, errors.NewModelError(errors.ErrCodeMissingScope, "missing scope "+n.scope.String()).
			WithLocation(r.tree.source, n.offset)
	}
	r.log.Debug(r.cfg.ctx, "scope not provided by model", "scope", n.scope.String(), "offset", n.offset)
	return nil, nil
}

// open starts a handler session on idx.
func (r *renderer) open(idx int, ctx *Context, primary bool) *Node {
	return &Node{s: &session{r: r}, idx: idx, ctx: ctx, primary: primary, out: &outcome{}}
}

// call runs fn and closes the session of h.
func (r *renderer) call(h *Node, fn func() error) error {
	h.out.ran = true
	err := fn()
	h.s.done = true
	if err != nil {
		return err
	}
	return h.s.err()
}

// visit renders the subtree at idx and returns the indices that take its
// place in the parent.
func (r *renderer) visit(idx int, model Model, rctx *Context, dispatch bool) ([]int, error) {
	n := &r.nodes[idx]
	switch {
	case n.kind == RootNode:
		return []int{idx}, r.visitChildren(idx, model, rctx, dispatch)
	case n.kind != ElementNode || n.removed:
		return []int{idx}, nil
	case n.isSeparator() && !n.materialized:
		return nil, nil
	}
	if n.ctx != nil {
		rctx = n.ctx
	}
	model, err := r.enterScope(idx, model)
	if err != nil {
		return nil, err
	}
	n = &r.nodes[idx]
	if !dispatch || n.addr == nil || n.addr.Name == "" {
		return []int{idx}, r.visitChildren(idx, model, rctx, dispatch)
	}
	if err := r.cfg.ctx.Err(); err != nil {
		return nil, err
	}

	leaf := n.addr.Name
	var handler func(*Node) error
	if n.isSeparator() {
		if fn := separatorOf(model, leaf); fn != nil {
			handler = func(h *Node) error { return fn(h, h.ctx) }
		}
	} else if model != nil {
		if fn := model.RenderFunc(leaf); fn != nil {
			handler = fn
		}
	}

	h := r.open(idx, rctx, !n.isSeparator())
	if handler == nil {
		r.log.Debug(r.cfg.ctx, "no handler", "address", n.path, "leaf", leaf)
		return r.settle(idx, h.out, model, rctx, dispatch)
	}
	if err := r.call(h, func() error { return handler(h) }); err != nil {
		return nil, err
	}
	return r.settle(idx, h.out, model, rctx, dispatch)
}

// settle applies the outcome recorded for idx.
func (r *renderer) settle(idx int, out *outcome, model Model, rctx *Context, dispatch bool) ([]int, error) {
	if r.nodes[idx].removed {
		return []int{idx}, nil
	}
	switch out.kind {
	case outcomeReplace:
		return r.replace(idx, out, model, rctx, dispatch)
	case outcomeRepeat, outcomeIterate:
		return r.repeat(idx, out, model, rctx, dispatch)
	}
	if m, ok := r.models[idx]; ok {
		model = m
	}
	n := &r.nodes[idx]
	if out.ran && n.addr != nil && n.addr.Flags.Has(directive.Forget) {
		dispatch = false
	}
	return []int{idx}, r.visitChildren(idx, model, rctx, dispatch)
}

func (r *renderer) visitChildren(idx int, model Model, rctx *Context, dispatch bool) error {
	kids := r.nodes[idx].children
	var out []int
	changed := false
	for i, c := range kids {
		list, err := r.visit(c, model, rctx, dispatch)
		if err != nil {
			return err
		}
		if !changed && (len(list) != 1 || list[0] != c) {
			changed = true
			out = append(make([]int, 0, len(kids)+len(list)), kids[:i]...)
		}
		if changed {
			out = append(out, list...)
		}
	}
	if changed {
		for _, c := range out {
			r.nodes[c].parent = idx
		}
		r.nodes[idx].children = out
	}
	return nil
}

// clone copies the subtree at idx into the arena under the same parent.
func (r *renderer) clone(idx int, ctx *Context) int {
	var c int
	r.nodes, c = appendSubtree(r.nodes, r.nodes, idx, r.nodes[idx].parent, nil)
	r.nodes[c].ctx = ctx
	return c
}

func (r *renderer) replace(idx int, out *outcome, model Model, rctx *Context, dispatch bool) ([]int, error) {
	src := r.nodes
	if out.replaceTree != nil {
		src = out.replaceTree.nodes
	}
	var c int
	r.nodes, c = appendSubtree(r.nodes, src, out.replaceIdx, r.nodes[idx].parent, nil)
	r.nodes[c].ctx = rctx
	r.nodes[c].scope = nil
	r.nodes[c].removed = false

	h := r.open(c, rctx, true)
	if out.replaceFn != nil {
		if err := r.call(h, func() error { return out.replaceFn(h) }); err != nil {
			return nil, err
		}
	}
	return r.settle(c, h.out, model, rctx, dispatch)
}

// separatorFor finds the unmaterialized separator sibling of idx.
func (r *renderer) separatorFor(idx int) int {
	n := &r.nodes[idx]
	if n.parent < 0 {
		return -1
	}
	leaf := n.leaf()
	for _, c := range r.nodes[n.parent].children {
		s := &r.nodes[c]
		if s.isSeparator() && !s.materialized && s.leaf() == leaf {
			return c
		}
	}
	return -1
}

func (r *renderer) repeat(idx int, out *outcome, model Model, rctx *Context, dispatch bool) ([]int, error) {
	sepIdx := r.separatorFor(idx)
	sepFn := out.sep
	if sepFn == nil {
		sepFn = separatorOf(model, r.nodes[idx].leaf())
	}

	var result []int
	step := func(i int, c int, o *outcome, ctx *Context) error {
		if i > 0 && sepIdx >= 0 {
			list, err := r.materialize(sepIdx, ctx, sepFn, model, dispatch)
			if err != nil {
				return err
			}
			result = append(result, list...)
		}
		// the template's handler stands in for each clone's own
		o.ran = o.ran || out.ran
		list, err := r.settle(c, o, model, ctx, dispatch)
		if err != nil {
			return err
		}
		result = append(result, list...)
		return nil
	}

	if out.kind == outcomeIterate {
		for i, cl := range out.clones {
			if err := step(i, cl.node.idx, cl.node.out, cl.ctx); err != nil {
				return nil, err
			}
		}
		return result, nil
	}
	for i, item := range out.items {
		ctx := rctx.Push(i, item)
		c := r.clone(idx, ctx)
		h := r.open(c, ctx, true)
		if out.fn != nil {
			if err := r.call(h, func() error { return out.fn(h, item, ctx) }); err != nil {
				return nil, err
			}
		}
		if err := step(i, c, h.out, ctx); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// materialize places a filled copy of the separator at sepIdx.
func (r *renderer) materialize(sepIdx int, ctx *Context, fn SeparatorFunc, model Model, dispatch bool) ([]int, error) {
	c := r.clone(sepIdx, ctx)
	r.nodes[c].materialized = true
	h := r.open(c, ctx, false)
	if fn != nil {
		if err := r.call(h, func() error { return fn(h, ctx) }); err != nil {
			return nil, err
		}
	}
	return r.settle(c, h.out, model, ctx, dispatch)
}
