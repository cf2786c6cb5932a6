package markup

import (
	"strings"

	"golang.org/x/net/html/atom"
)

// DTD answers element level questions for a markup dialect. Names are
// passed lowercased.
type DTD interface {
	// IsCDATA reports whether the element's content is raw text ending
	// only at its own end tag.
	IsCDATA(name string) bool
	// Nestable reports whether inner may open while outer is the current
	// element. False closes outer first.
	Nestable(outer, inner string) bool
	// IsVoid reports whether the element never has an end tag.
	IsVoid(name string) bool
	// ImplicitClose reports whether the start tag closes itself because of
	// its attributes.
	ImplicitClose(name string, attrs []Attr) bool
}

var htmlCDATA = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
}

var htmlVoid = map[atom.Atom]bool{
	atom.Area:   true,
	atom.Base:   true,
	atom.Br:     true,
	atom.Col:    true,
	atom.Embed:  true,
	atom.Hr:     true,
	atom.Img:    true,
	atom.Input:  true,
	atom.Link:   true,
	atom.Meta:   true,
	atom.Param:  true,
	atom.Source: true,
	atom.Track:  true,
	atom.Wbr:    true,
}

// block level starts that close an open <p>
var htmlBlock = map[atom.Atom]bool{
	atom.Address:    true,
	atom.Article:    true,
	atom.Aside:      true,
	atom.Blockquote: true,
	atom.Details:    true,
	atom.Div:        true,
	atom.Dl:         true,
	atom.Fieldset:   true,
	atom.Figcaption: true,
	atom.Figure:     true,
	atom.Footer:     true,
	atom.Form:       true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Header:     true,
	atom.Hr:         true,
	atom.Main:       true,
	atom.Menu:       true,
	atom.Nav:        true,
	atom.Ol:         true,
	atom.P:          true,
	atom.Pre:        true,
	atom.Section:    true,
	atom.Table:      true,
	atom.Ul:         true,
}

// closers maps an element onto the open elements its start tag closes.
var htmlClosers = map[atom.Atom][]atom.Atom{
	atom.Li:       {atom.Li},
	atom.Dt:       {atom.Dt, atom.Dd},
	atom.Dd:       {atom.Dt, atom.Dd},
	atom.Option:   {atom.Option},
	atom.Optgroup: {atom.Option, atom.Optgroup},
	atom.Tr:       {atom.Tr, atom.Td, atom.Th},
	atom.Td:       {atom.Td, atom.Th},
	atom.Th:       {atom.Td, atom.Th},
	atom.Thead:    {atom.Thead, atom.Tbody, atom.Tfoot, atom.Tr, atom.Td, atom.Th},
	atom.Tbody:    {atom.Thead, atom.Tbody, atom.Tfoot, atom.Tr, atom.Td, atom.Th},
	atom.Tfoot:    {atom.Thead, atom.Tbody, atom.Tfoot, atom.Tr, atom.Td, atom.Th},
	atom.A:        {atom.A},
}

// HTMLDTD is the default HTML flavored DTD. It knows the standard void
// elements, the raw text elements and the common implicit end tag rules;
// it is not a full HTML5 tree construction table.
type HTMLDTD struct {
	// Markers lists elements that close themselves when they carry no
	// attributes other than the ones named in the map value. An empty
	// value list means the element always closes itself.
	Markers map[string][]string
}

// NewHTMLDTD returns an HTML DTD without markers.
func NewHTMLDTD() *HTMLDTD {
	return &HTMLDTD{}
}

func lookup(name string) atom.Atom {
	return atom.Lookup([]byte(strings.ToLower(name)))
}

func (d *HTMLDTD) IsCDATA(name string) bool {
	return htmlCDATA[lookup(name)]
}

func (d *HTMLDTD) IsVoid(name string) bool {
	return htmlVoid[lookup(name)]
}

func (d *HTMLDTD) Nestable(outer, inner string) bool {
	o, i := lookup(outer), lookup(inner)
	if o == 0 || i == 0 {
		return true
	}
	if o == atom.P && htmlBlock[i] {
		return false
	}
	for _, c := range htmlClosers[i] {
		if c == o {
			return false
		}
	}
	return true
}

func (d *HTMLDTD) ImplicitClose(name string, attrs []Attr) bool {
	if d == nil || d.Markers == nil {
		return false
	}
	allowed, ok := d.Markers[strings.ToLower(name)]
	if !ok {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	for _, a := range attrs {
		found := false
		for _, n := range allowed {
			if strings.EqualFold(a.Name, n) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// TextDTD is the DTD of the text dialect: everything nests and nothing is
// void or raw text.
type TextDTD struct{}

func (TextDTD) IsCDATA(string) bool               { return false }
func (TextDTD) Nestable(string, string) bool      { return true }
func (TextDTD) IsVoid(string) bool                { return false }
func (TextDTD) ImplicitClose(string, []Attr) bool { return false }

// DefaultDTD returns the DTD matching a dialect.
func DefaultDTD(d Dialect) DTD {
	if d == DialectText {
		return TextDTD{}
	}
	return NewHTMLDTD()
}
