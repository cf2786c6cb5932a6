package tdi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) *Tree {
	t.Helper()
	tree, err := ParseString(src)
	require.NoError(t, err)
	return tree
}

func TestOverlayPlacements(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		overlay string
		want    string
	}{
		{
			name:    "no declarations",
			base:    `<body><div tdi:overlay="content">x</div></body>`,
			overlay: `<p>z</p>`,
			want:    `<body><div>x</div></body>`,
		},
		{
			name:    "unmatched name",
			base:    `<body><div tdi:overlay="content">x</div></body>`,
			overlay: `<p tdi:overlay="<other">z</p>`,
			want:    `<body><div>x</div></body>`,
		},
		{
			name:    "replace",
			base:    `<body><div tdi:overlay="content">default</div></body>`,
			overlay: `<html><section tdi:overlay="<content">new</section></html>`,
			want:    `<body><section>new</section></body>`,
		},
		{
			name:    "before and after",
			base:    `<div tdi:overlay=">content">x</div>`,
			overlay: `<p tdi:overlay="+content">pre</p><p tdi:overlay="content+">post</p>`,
			want:    `<p>pre</p><div>x</div><p>post</p>`,
		},
		{
			name:    "transparent wrapper",
			base:    `<main><div tdi:overlay="content">x</div></main>`,
			overlay: `<div tdi:overlay="-<content"><b>1</b><i>2</i></div>`,
			want:    `<main><b>1</b><i>2</i></main>`,
		},
		{
			name:    "every target",
			base:    `<i tdi:overlay="s">1</i><i tdi:overlay="s">2</i>`,
			overlay: `<b tdi:overlay="<s">B</b>`,
			want:    `<b>B</b><b>B</b>`,
		},
		{
			name:    "source-only declarations are not targets",
			base:    `<i tdi:overlay="<s">1</i>`,
			overlay: `<b tdi:overlay="<s">B</b>`,
			want:    `<i>1</i>`,
		},
		{
			name:    "nested sources travel with their parent",
			base:    `<div tdi:overlay="a">A</div>`,
			overlay: `<section tdi:overlay="<a"><p tdi:overlay="<b">inner</p></section>`,
			want:    `<section><p>inner</p></section>`,
		},
		{
			name:    "targets created by a splice are filled",
			base:    `<div tdi:overlay="a">A</div>`,
			overlay: `<section tdi:overlay="<a"><p tdi:overlay="b">inner</p></section><em tdi:overlay="<b">B</em>`,
			want:    `<section><em>B</em></section>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := mustParse(t, tt.base)
			before := base.String()

			merged, err := base.Overlay(mustParse(t, tt.overlay))
			require.NoError(t, err)
			assert.Equal(t, tt.want, merged.String())
			assert.Equal(t, before, base.String())
			assert.NotEqual(t, base.ID(), merged.ID())
		})
	}
}

func TestOverlayLeftToRight(t *testing.T) {
	base := mustParse(t, `<div tdi:overlay="slot">base</div>`)
	first := mustParse(t, `<p tdi:overlay="slot">first</p>`)
	second := mustParse(t, `<b tdi:overlay="<slot">second</b>`)

	merged, err := base.Overlay(first, second)
	require.NoError(t, err)
	assert.Equal(t, `<b>second</b>`, merged.String())

	merged, err = base.Overlay(second, first)
	require.NoError(t, err)
	assert.Equal(t, `<b>second</b>`, merged.String(), "a source-only copy cannot be replaced")

	merged, err = base.Overlay(nil, first)
	require.NoError(t, err)
	assert.Equal(t, `<p>first</p>`, merged.String())
}

func TestOverlayAddressesAreReindexed(t *testing.T) {
	base := mustParse(t, `<div tdi="page"><div tdi:overlay="body"></div></div>`)
	over := mustParse(t, `<article tdi="post" tdi:overlay="<body"><h1 tdi="title">t</h1></article>`)

	merged, err := base.Overlay(over)
	require.NoError(t, err)
	assert.True(t, merged.Has("page.post.title"))
	assert.False(t, base.Has("page.post"))

	out, err := merged.RenderString(WithModel(&Handlers{Render: map[string]RenderFunc{
		"title": content("Hello"),
	}}))
	require.NoError(t, err)
	assert.Equal(t, `<div><article><h1>Hello</h1></article></div>`, out)
}

func TestOverlayErrors(t *testing.T) {
	base := mustParse(t, `<div tdi="x"></div><div tdi:overlay="c"></div>`)
	_, err := base.Overlay(mustParse(t, `<p tdi="x" tdi:overlay="<c"></p>`))
	assert.True(t, errors.Is(err, ErrDuplicateAddress))

	base = mustParse(t, `<div tdi:overlay="p"></div>`)
	cycle := mustParse(t, `<a tdi:overlay="<p"><b tdi:overlay=">q"></b></a><i tdi:overlay="<q"><u tdi:overlay=">p"></u></i>`)
	_, err = base.Overlay(cycle)
	assert.True(t, errors.Is(err, ErrOverlayCycle))
}
