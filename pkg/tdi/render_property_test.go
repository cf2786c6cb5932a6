//go:build property
// +build property

package tdi

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var plainFragments = []string{
	"<p>", "</p>", "<div class=\"a\">", "</div>", "<br/>", "<br>", "text ",
	"<!-- c -->", "<!DOCTYPE html>", "<li>", "<ul>", "</ul>", "&amp;", "\n",
	"<a href='x'>", "</A>", "<table><tr><td>", "</td>", "</nope>",
}

func genPlainDocument() gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, len(plainFragments)-1)).Map(func(idx []int) string {
		var b strings.Builder
		for _, i := range idx {
			b.WriteString(plainFragments[i])
		}
		return b.String()
	})
}

// TestRenderProperties tests tree round trips and repeat cardinality
func TestRenderProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property: documents without directives render unchanged
	properties.Property("unmodified render is the identity", prop.ForAll(
		func(doc string) bool {
			tree, err := ParseString(doc)
			if err != nil {
				return false
			}
			out, err := tree.RenderString()
			return err == nil && out == doc && tree.String() == doc
		},
		genPlainDocument(),
	))

	// Property: n clones are joined by n-1 separators
	properties.Property("separators sit between clones", prop.ForAll(
		func(n int) bool {
			tree, err := ParseString(listTemplate)
			if err != nil {
				return false
			}
			out, err := tree.RenderString(WithModel(&Handlers{Render: map[string]RenderFunc{
				"item": func(node *Node) error {
					node.Repeat(func(c *Node, _ any, _ *Context) error {
						c.SetContent("i")
						return nil
					}, n)
					return nil
				},
			}}))
			if err != nil {
				return false
			}
			return strings.Count(out, "<li>i</li>") == n &&
				strings.Count(out, "<li>, </li>") == max(n-1, 0)
		},
		gen.IntRange(0, 50),
	))

	// Property: overlaying a tree without declarations changes nothing
	properties.Property("overlay without declarations is a no-op", prop.ForAll(
		func(doc string) bool {
			base, err := ParseString(`<div tdi:overlay="slot">` + doc + `</div>`)
			if err != nil {
				return false
			}
			other, err := ParseString(doc)
			if err != nil {
				return false
			}
			merged, err := base.Overlay(other)
			return err == nil && merged.String() == base.String()
		},
		genPlainDocument(),
	))

	properties.TestingRun(t)
}
