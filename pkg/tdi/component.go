package tdi

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// Component adapts a render of the tree to a templ component, so a
// template can be used inside templ pages. The context passed to Render
// cancels the render.
func (t *Tree) Component(model Model, opts ...RenderOption) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		all := make([]RenderOption, 0, len(opts)+2)
		all = append(all, WithModel(model))
		all = append(all, opts...)
		all = append(all, WithContext(ctx))
		return t.Render(w, all...)
	})
}
