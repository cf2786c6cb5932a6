package markup

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tdierrors "github.com/conneroisu/tdi/internal/errors"
)

func joinRaw(toks []Token) string {
	var b strings.Builder
	for _, t := range toks {
		b.WriteString(t.Raw)
	}
	return b.String()
}

func TestTokenizeRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"plain text", "just some text\nwith lines"},
		{"simple element", `<div class="x">hi</div>`},
		{"quoting styles", `<a href='single' title="double" data-x=bare checked>x</a>`},
		{"whitespace in tags", "<p \n  id = \"a\"\t>text</p >"},
		{"self closing", `<br/><img src="a.png" />`},
		{"comment", "<!-- a comment -->after"},
		{"empty comment", "<!---->x<!-->y"},
		{"doctype", "<!DOCTYPE html>\n<html></html>"},
		{"processing instruction", `<?xml version="1.0" encoding="utf-8"?><root/>`},
		{"cdata section", "<![CDATA[ <not a tag> ]]>"},
		{"conditional comment", "<!--[if IE]><p>old</p><![endif]-->"},
		{"downlevel revealed", "<![if !IE]><p>new</p><![endif]>"},
		{"stray less-than", "a < b and c <= d"},
		{"stray end marker", "x </ y </1>"},
		{"stray slash in tag", `<a / href="x" / >y</a>`},
		{"uppercase", `<DIV ID="Top">X</DIV>`},
		{"entities", "<p title=\"&amp;&#65;\">&lt;&gt;</p>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks, err := Tokenize([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.input, joinRaw(toks))
		})
	}
}

func TestTokenizeIncrementalFeed(t *testing.T) {
	input := `<!DOCTYPE html><html><head><?php echo 1 ?><!--[if IE]>x<![endif]-->` +
		`<meta charset="utf-8"><style>a{}</style></head>` +
		`<body class=main data-v='1'><p>Hello <b>world</b><br/></p><![CDATA[raw]]></body></html>`

	whole, err := Tokenize([]byte(input))
	require.NoError(t, err)

	var pieces []Token
	l := NewLexer(func(tok Token) error {
		pieces = append(pieces, tok)
		return nil
	})
	for i := 0; i < len(input); i++ {
		require.NoError(t, l.Feed([]byte{input[i]}))
	}
	require.NoError(t, l.Finalize())

	assert.Equal(t, whole, pieces)
	assert.Equal(t, input, joinRaw(pieces))
}

func TestTokenizeUnfinishedStartTag(t *testing.T) {
	toks, err := Tokenize([]byte(`hey<a href="link>ho.`))
	require.Error(t, err)

	var unfinished *UnfinishedError
	require.True(t, errors.As(err, &unfinished))
	assert.Equal(t, StateStartTag, unfinished.State)
	assert.Equal(t, 3, unfinished.Offset)
	assert.Contains(t, err.Error(), "unfinished STARTTAG")
	assert.True(t, errors.Is(err, tdierrors.ErrUnfinished))

	require.Len(t, toks, 1)
	assert.Equal(t, TextToken, toks[0].Type)
	assert.Equal(t, "hey", toks[0].Raw)
}

func TestTokenizeUnfinishedStates(t *testing.T) {
	tests := []struct {
		input string
		state State
	}{
		{"<!-- open comment", StateComment},
		{"<!DOCTYPE html", StateDecl},
		{"<?xml version", StatePI},
		{"<![CDATA[ never closed", StateMSection},
		{"</div", StateEndTag},
		{"<div class", StateStartTag},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			_, err := Tokenize([]byte(tt.input))
			var unfinished *UnfinishedError
			require.True(t, errors.As(err, &unfinished))
			assert.Equal(t, tt.state, unfinished.State)
		})
	}
}

func TestLexerCDATAContainment(t *testing.T) {
	var toks []Token
	l := NewLexer(func(tok Token) error {
		toks = append(toks, tok)
		return nil
	})
	l.SetCDATA("foo")
	assert.Equal(t, StateCDATA, l.State())

	require.NoError(t, l.Feed([]byte("<x<</bar>xxx</fOo>yyy")))
	require.NoError(t, l.Finalize())

	require.Len(t, toks, 3)
	assert.Equal(t, TextToken, toks[0].Type)
	assert.Equal(t, "<x<</bar>xxx", toks[0].Raw)
	assert.Equal(t, EndTagToken, toks[1].Type)
	assert.Equal(t, "fOo", toks[1].Name)
	assert.Equal(t, "</fOo>", toks[1].Raw)
	assert.Equal(t, TextToken, toks[2].Type)
	assert.Equal(t, "yyy", toks[2].Raw)
}

func TestLexerCDATAFlushedAtEOF(t *testing.T) {
	var toks []Token
	l := NewLexer(func(tok Token) error {
		toks = append(toks, tok)
		return nil
	})
	l.SetCDATA("script")
	require.NoError(t, l.Feed([]byte("if (a < b) { x() } </scrip")))
	require.NoError(t, l.Finalize())

	require.Len(t, toks, 1)
	assert.Equal(t, "if (a < b) { x() } </scrip", toks[0].Raw)
	assert.Equal(t, StateText, l.State())
}

func TestLexerSetCDATAFromCallback(t *testing.T) {
	var toks []Token
	var l *Lexer
	l = NewLexer(func(tok Token) error {
		toks = append(toks, tok)
		if tok.Type == StartTagToken && tok.Name == "script" {
			l.SetCDATA(tok.Name)
		}
		return nil
	})
	require.NoError(t, l.Feed([]byte(`<script>if (a<b && c>d) {}</SCRIPT>`)))
	require.NoError(t, l.Finalize())

	require.Len(t, toks, 3)
	assert.Equal(t, "if (a<b && c>d) {}", toks[1].Raw)
	assert.Equal(t, EndTagToken, toks[2].Type)
}

func TestConditionalComments(t *testing.T) {
	input := "<!--[if IE]><p>x</p><![endif]--><![if !IE]>y<![endif]>"

	t.Run("passthrough", func(t *testing.T) {
		toks, err := Tokenize([]byte(input))
		require.NoError(t, err)

		var types []TokenType
		for _, tok := range toks {
			types = append(types, tok.Type)
		}
		assert.Equal(t, []TokenType{
			TextToken, StartTagToken, TextToken, EndTagToken, TextToken,
			TextToken, TextToken, TextToken,
		}, types)
		assert.Equal(t, "<!--[if IE]>", toks[0].Raw)
		assert.Equal(t, "<![endif]-->", toks[4].Raw)
		assert.Equal(t, "<![if !IE]>", toks[5].Raw)
	})

	t.Run("collapsed", func(t *testing.T) {
		toks, err := Tokenize([]byte(input), WithConditionalComments(false))
		require.NoError(t, err)
		require.Len(t, toks, 2)

		assert.Equal(t, CommentToken, toks[0].Type)
		assert.Equal(t, "<!--[if IE]><p>x</p><![endif]-->", toks[0].Raw)
		assert.Equal(t, MarkedSectionToken, toks[1].Type)
		assert.Equal(t, "if", toks[1].Name)
		assert.Equal(t, " !IE", toks[1].Body)
		assert.Equal(t, "<![if !IE]>y<![endif]>", toks[1].Raw)
		assert.Equal(t, input, joinRaw(toks))
	})

	t.Run("collapsed while streaming", func(t *testing.T) {
		var toks []Token
		l := NewLexer(func(tok Token) error {
			toks = append(toks, tok)
			return nil
		}, WithConditionalComments(false))
		src := []byte("<![if !IE]><b>y</b><![ENDIF]>z")
		for i := range src {
			require.NoError(t, l.Feed(src[i:i+1]))
		}
		require.NoError(t, l.Finalize())

		require.Len(t, toks, 2)
		assert.Equal(t, "<![if !IE]><b>y</b><![ENDIF]>", toks[0].Raw)
		assert.Equal(t, "z", toks[1].Raw)
	})

	t.Run("unterminated block", func(t *testing.T) {
		toks, err := Tokenize([]byte("<![if !IE]>y"), WithConditionalComments(false))
		require.NoError(t, err)
		require.Len(t, toks, 2)
		assert.Equal(t, "<![if !IE]>", toks[0].Raw)
		assert.Equal(t, "y", toks[1].Raw)
	})
}

func TestStartTagAttributes(t *testing.T) {
	toks, err := Tokenize([]byte(`<a href='x' title = "y z" checked data-n=1 >`))
	require.NoError(t, err)
	require.Len(t, toks, 1)

	tok := toks[0]
	assert.Equal(t, StartTagToken, tok.Type)
	assert.Equal(t, "a", tok.Name)
	assert.Equal(t, "<a", tok.Head())
	assert.Equal(t, " >", tok.Tail)
	assert.False(t, tok.SelfClosing)

	require.Len(t, tok.Attrs, 4)
	assert.Equal(t, Attr{Name: "href", Value: "'x'", HasValue: true, Raw: " href='x'"}, tok.Attrs[0])
	assert.Equal(t, `"y z"`, tok.Attrs[1].Value)
	assert.Equal(t, "y z", tok.Attrs[1].Unquoted())
	assert.Equal(t, ` title = "y z"`, tok.Attrs[1].Raw)
	assert.Equal(t, Attr{Name: "checked", Raw: " checked"}, tok.Attrs[2])
	assert.Equal(t, "1", tok.Attrs[3].Unquoted())

	a, ok := tok.Attr("TITLE")
	require.True(t, ok)
	assert.Equal(t, "title", a.Name)
	_, ok = tok.Attr("missing")
	assert.False(t, ok)
}

func TestSelfClosingIndependentOfDTD(t *testing.T) {
	toks, err := Tokenize([]byte(`<div/><br /><span a="1"/>`))
	require.NoError(t, err)
	require.Len(t, toks, 3)
	for _, tok := range toks {
		assert.True(t, tok.SelfClosing, tok.Raw)
	}
	assert.Equal(t, " />", toks[1].Tail)
}

func TestDeclarationAndPI(t *testing.T) {
	toks, err := Tokenize([]byte(`<!DOCTYPE html PUBLIC "-//W3C//DTD>X" ><?xml version="1.0"?>`))
	require.NoError(t, err)
	require.Len(t, toks, 2)

	assert.Equal(t, DeclarationToken, toks[0].Type)
	assert.Equal(t, "DOCTYPE", toks[0].Name)
	assert.Equal(t, `html PUBLIC "-//W3C//DTD>X" `, toks[0].Body)

	assert.Equal(t, ProcessingInstructionToken, toks[1].Type)
	assert.Equal(t, "xml", toks[1].Name)
	assert.Equal(t, `version="1.0"`, toks[1].Body)
}

func TestMarkedSectionBody(t *testing.T) {
	toks, err := Tokenize([]byte("<![CDATA[a <b> c]]>"))
	require.NoError(t, err)
	require.Len(t, toks, 1)
	assert.Equal(t, MarkedSectionToken, toks[0].Type)
	assert.Equal(t, "CDATA", toks[0].Name)
	assert.Equal(t, "a <b> c", toks[0].Body)
}

func TestTextDialect(t *testing.T) {
	input := "Dear [b tdi=\"name\"]someone[/b],\n<not markup> [!x] a[0]\n"
	toks, err := Tokenize([]byte(input), WithDialect(DialectText))
	require.NoError(t, err)
	assert.Equal(t, input, joinRaw(toks))

	var tags []string
	for _, tok := range toks {
		switch tok.Type {
		case StartTagToken:
			tags = append(tags, "+"+tok.Name)
		case EndTagToken:
			tags = append(tags, "-"+tok.Name)
		case TextToken:
		default:
			t.Fatalf("unexpected %s token in text dialect", tok.Type)
		}
	}
	assert.Equal(t, []string{"+b", "-b"}, tags)
}

func TestFeedAfterFinalize(t *testing.T) {
	l := NewLexer(func(Token) error { return nil })
	require.NoError(t, l.Finalize())
	assert.ErrorIs(t, l.Feed([]byte("x")), ErrFinalized)
	assert.NoError(t, l.Finalize())
}

func TestTokenFuncErrorStops(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	l := NewLexer(func(Token) error {
		calls++
		return stop
	})
	err := l.Feed([]byte("<a><b><c>"))
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("TEXT")
	require.NoError(t, err)
	assert.Equal(t, DialectText, d)

	d, err = ParseDialect("")
	require.NoError(t, err)
	assert.Equal(t, DialectHTML, d)

	_, err = ParseDialect("xml")
	assert.Error(t, err)
}
