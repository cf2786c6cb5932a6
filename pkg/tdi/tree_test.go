package tdi

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tdierrors "github.com/conneroisu/tdi/internal/errors"
)

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"document", "<!DOCTYPE html>\n<html><head><title>x</title></head><body><p class='a'>hi<br/><!-- c --></body></html>"},
		{"unbalanced", "<p>lalala<s></P>xxx"},
		{"unclosed", "unclosed <div><span>text"},
		{"stray end tag", "a</nope>b"},
		{"raw text", "<script>if (a < b) { x = '</p>' }</script>"},
		{"odd spacing", "<p \n  id = \"a\"\t>text</p >"},
		{"processing instruction", "<?xml version=\"1.0\"?><r/>"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := ParseString(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.input, tree.String())

			out, err := tree.RenderString()
			require.NoError(t, err)
			assert.Equal(t, tt.input, out)
		})
	}
}

func TestParseReaderMatchesParse(t *testing.T) {
	src := `<ul tdi="menu"><li tdi="*item" class="x">a &amp; b</li><li tdi=":item">,</li></ul>`
	whole, err := ParseString(src)
	require.NoError(t, err)

	streamed, err := ParseReader(iotest.OneByteReader(strings.NewReader(src)))
	require.NoError(t, err)

	assert.Equal(t, whole.String(), streamed.String())
	assert.Equal(t, whole.Addresses(), streamed.Addresses())
	assert.NotEqual(t, whole.ID(), streamed.ID())
}

func TestParseUnfinished(t *testing.T) {
	_, err := ParseString(`hey<a href="link>ho.`, WithSource("page.html"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnfinished))
	assert.Contains(t, err.Error(), "unfinished STARTTAG")

	var te *Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "page.html", te.Source)
	assert.Equal(t, 3, te.Offset)
}

func TestTreeAddresses(t *testing.T) {
	src := `<div tdi="a"><p tdi="b">x</p><span><p tdi="*c"></p><p tdi="*c"></p></span><i tdi="-">h</i></div>`
	tree, err := ParseString(src)
	require.NoError(t, err)

	assert.True(t, tree.Has("a"))
	assert.True(t, tree.Has("a.b"))
	assert.True(t, tree.Has("a.c"))
	assert.False(t, tree.Has("b"))

	var paths []string
	for _, a := range tree.Addresses() {
		paths = append(paths, a.Path)
	}
	assert.Equal(t, []string{"a", "a.b", "a.c", "a.c"}, paths)

	n := tree.Lookup("a.b")
	require.NotNil(t, n)
	assert.Equal(t, "p", n.Name())
	assert.Equal(t, "b", n.Leaf())
	assert.Equal(t, "x", n.Content())
	assert.Nil(t, tree.Lookup("nope"))

	// directives are stripped from the serialized tree
	assert.Equal(t, `<div><p>x</p><span><p></p><p></p></span>h</div>`, tree.String())
}

func TestTreeDuplicates(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"address", `<b tdi="x"></b><i tdi="x"></i>`, ErrDuplicateAddress},
		{"repeat and plain", `<b tdi="*x"></b><i tdi="x"></i>`, ErrDuplicateAddress},
		{"separator", `<ul><li tdi="*i"></li><li tdi=":i"></li><li tdi=":i"></li></ul>`, ErrDuplicateSeparator},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseString(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.False(t, tdierrors.IsRecoverable(err))
		})
	}

	_, err := ParseString(`<b tdi="*x"></b><i tdi="*x"></i>`)
	assert.NoError(t, err)
}

func TestTreeDirectiveDiagnostics(t *testing.T) {
	src := `<p tdi="1bad">x</p><p tdi="ok" tdi="again">y</p>`
	tree, err := ParseString(src)
	require.NoError(t, err)

	diags := tree.Diagnostics()
	require.Len(t, diags, 2)
	assert.True(t, errors.Is(diags[0], ErrDirectiveSyntax))
	assert.True(t, errors.Is(diags[1], ErrDirectiveConflict))
	assert.Equal(t, 0, diags[0].Offset)

	assert.True(t, tree.Has("ok"))
	// rejected directives pass through as plain attributes
	assert.Equal(t, `<p tdi="1bad">x</p><p tdi="again">y</p>`, tree.String())
}

func TestTreeScopes(t *testing.T) {
	src := `<div tdi:scope="a"><div tdi:scope="b"></div><div tdi:scope="=c"><i tdi:scope="d"></i></div></div>`
	tree, err := ParseString(src)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a.b", "c", "c.d"}, tree.Scopes())
}

func TestTreeEncoding(t *testing.T) {
	tree, err := ParseString(`<meta charset="windows-1252"><p>x</p>`)
	require.NoError(t, err)
	assert.Equal(t, "windows-1252", tree.Encoding())

	tree, err = ParseString(`<meta charset="klingon"><p>x</p>`)
	require.NoError(t, err)
	assert.Equal(t, "utf-8", tree.Encoding())
	require.Len(t, tree.Diagnostics(), 1)
	assert.True(t, errors.Is(tree.Diagnostics()[0], ErrUnknownEncoding))

	tree, err = ParseString(`<p>x</p>`, WithEncoding("iso-8859-2"))
	require.NoError(t, err)
	assert.Equal(t, "iso-8859-2", tree.Encoding())
}

func TestTreeOverlaysInfo(t *testing.T) {
	tree, err := ParseString(`<div tdi:overlay="<main"></div><p tdi:overlay="side+"></p>`)
	require.NoError(t, err)

	infos := tree.Overlays()
	require.Len(t, infos, 2)
	assert.Equal(t, "main", infos[0].Name)
	assert.Equal(t, "source", infos[0].Role)
	assert.Equal(t, "side", infos[1].Name)
	assert.Equal(t, "after", infos[1].Placement)
}

func TestParseText(t *testing.T) {
	tree, err := ParseText([]byte("Dear [b tdi=\"name\"]someone[/b], <kept> & more"))
	require.NoError(t, err)
	assert.True(t, tree.Has("name"))

	out, err := tree.RenderString(WithModel(&Handlers{Render: map[string]RenderFunc{
		"name": func(n *Node) error {
			n.SetContent("Ann & <Bob>")
			return nil
		},
	}}))
	require.NoError(t, err)
	assert.Equal(t, "Dear [b]Ann & <Bob>[/b], <kept> & more", out)
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse(`<b tdi="x"></b><b tdi="x"></b>`) })
	assert.NotPanics(t, func() { MustParse(`<b tdi="x"></b>`) })
}
