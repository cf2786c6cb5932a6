package markup

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// describe renders events as compact strings such as "+p", "-s!" (implicit
// end) or "t:lalala".
func describe(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		switch e.Type {
		case StartTagEvent:
			out = append(out, "+"+e.Name)
		case EndTagEvent:
			if e.Implicit {
				out = append(out, "-"+e.Name+"!")
			} else {
				out = append(out, "-"+e.Token.Name)
			}
		case TextEvent:
			out = append(out, "t:"+e.Token.Raw)
		case EncodingEvent:
			out = append(out, "enc:"+e.Encoding)
		default:
			out = append(out, fmt.Sprintf("%s:%s", e.Type, e.Token.Raw))
		}
	}
	return out
}

func TestParserTagBalancing(t *testing.T) {
	events, err := Events([]byte("<p>lalala<s></P>xxx"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"+p", "t:lalala", "+s", "-s!", "-P", "t:xxx"}, describe(events))

	end := events[4]
	assert.False(t, end.Implicit)
	assert.Equal(t, "</P>", end.Token.Raw)
	assert.Empty(t, events[3].Token.Raw)
}

func TestParserImplicitCloses(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "paragraph closed by block",
			input:    "<p>a<div>b</div>",
			expected: []string{"+p", "t:a", "-p!", "+div", "t:b", "-div"},
		},
		{
			name:     "list items",
			input:    "<ul><li>a<li>b</ul>",
			expected: []string{"+ul", "+li", "t:a", "-li!", "+li", "t:b", "-li!", "-ul"},
		},
		{
			name:     "nested list keeps outer item open",
			input:    "<li>a<ul><li>b</li></ul></li>",
			expected: []string{"+li", "t:a", "+ul", "+li", "t:b", "-li", "-ul", "-li"},
		},
		{
			name:     "table cells",
			input:    "<table><tr><td>1<td>2<tr><td>3</table>",
			expected: []string{"+table", "+tr", "+td", "t:1", "-td!", "+td", "t:2", "-td!", "-tr!", "+tr", "+td", "t:3", "-td!", "-tr!", "-table"},
		},
		{
			name:     "void elements",
			input:    "a<br>b<img src=x>",
			expected: []string{"t:a", "+br", "-br!", "t:b", "+img", "-img!"},
		},
		{
			name:     "self closing",
			input:    "<div/><x:y/>",
			expected: []string{"+div", "-div!", "+x:y", "-x:y!"},
		},
		{
			name:     "eof closes open elements",
			input:    "<div><span>x",
			expected: []string{"+div", "+span", "t:x", "-span!", "-div!"},
		},
		{
			name:     "unmatched end tag is text",
			input:    "<b>x</i></b></br>",
			expected: []string{"+b", "t:x", "t:</i>", "-b", "t:</br>"},
		},
		{
			name:     "options",
			input:    "<select><option>a<option>b</select>",
			expected: []string{"+select", "+option", "t:a", "-option!", "+option", "t:b", "-option!", "-select"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := Events([]byte(tt.input), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, describe(events))
		})
	}
}

func TestParserRawTextElements(t *testing.T) {
	input := `<script type="text/javascript">if (a<b && c</d) { x("</p>") }</SCRIPT><style>p>a{}</style>`
	events, err := Events([]byte(input), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"+script", `t:if (a<b && c</d) { x("</p>") }`, "-SCRIPT",
		"+style", "t:p>a{}", "-style",
	}, describe(events))
}

func TestParserRoundTrip(t *testing.T) {
	inputs := []string{
		"<p>lalala<s></P>xxx",
		"<html><head><meta charset=utf-8><title>T</title></head><body><p>a<p>b</body></html>",
		"<!DOCTYPE html><!-- c --><?pi x?><![CDATA[z]]></orphan>",
		"<script>var x = '<b>';</script>",
		"<ul><li>one<li>two</ul>",
	}
	for _, input := range inputs {
		events, err := Events([]byte(input), nil)
		require.NoError(t, err)

		var b strings.Builder
		for _, e := range events {
			b.WriteString(e.Token.Raw)
		}
		assert.Equal(t, input, b.String())
	}
}

func TestParserEncodingEvents(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"meta charset", `<meta charset="ISO-8859-1">`, "ISO-8859-1"},
		{"meta http-equiv", `<meta http-equiv="Content-Type" content="text/html; charset=windows-1252">`, "windows-1252"},
		{"xml prolog", `<?xml version="1.0" encoding='Shift_JIS'?>`, "Shift_JIS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := Events([]byte(tt.input), nil)
			require.NoError(t, err)

			var found []string
			for _, e := range events {
				if e.Type == EncodingEvent {
					found = append(found, e.Encoding)
				}
			}
			assert.Equal(t, []string{tt.expected}, found)
		})
	}

	events, err := Events([]byte(`<meta name="x" content="charset=utf-8">`), nil)
	require.NoError(t, err)
	for _, e := range events {
		assert.NotEqual(t, EncodingEvent, e.Type)
	}
}

func TestParserTextDialect(t *testing.T) {
	events, err := Events([]byte("[list][item]a[item]b[/list] [br]"), nil, WithDialect(DialectText))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"+list", "+item", "t:a", "+item", "t:b", "-item!", "-item!", "-list", "t: ", "+br", "-br!",
	}, describe(events))
}

func TestParserMarkers(t *testing.T) {
	dtd := &HTMLDTD{Markers: map[string][]string{"slot": {"name"}}}
	events, err := Events([]byte(`<slot name="a">x<slot class="b">y</slot>`), dtd)
	require.NoError(t, err)
	assert.Equal(t, []string{"+slot", "-slot!", "t:x", "+slot", "t:y", "-slot"}, describe(events))
}

func TestParserPropagatesUnfinished(t *testing.T) {
	_, err := Events([]byte(`<div><a href="x`), nil)
	var unfinished *UnfinishedError
	require.ErrorAs(t, err, &unfinished)
	assert.Equal(t, StateStartTag, unfinished.State)
}

func TestHTMLDTD(t *testing.T) {
	dtd := NewHTMLDTD()

	assert.True(t, dtd.IsCDATA("SCRIPT"))
	assert.False(t, dtd.IsCDATA("div"))
	assert.True(t, dtd.IsVoid("br"))
	assert.True(t, dtd.IsVoid("Input"))
	assert.False(t, dtd.IsVoid("p"))
	assert.False(t, dtd.Nestable("p", "div"))
	assert.True(t, dtd.Nestable("p", "span"))
	assert.False(t, dtd.Nestable("a", "a"))
	assert.True(t, dtd.Nestable("custom-tag", "custom-tag"))
	assert.False(t, dtd.ImplicitClose("slot", nil))

	var text TextDTD
	assert.True(t, text.Nestable("p", "div"))
	assert.False(t, text.IsVoid("br"))
	assert.False(t, text.IsCDATA("script"))
}
