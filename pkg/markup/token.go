package markup

import (
	"strings"
)

// TokenType is the type of a Token.
type TokenType uint8

const (
	// TextToken is literal character data.
	TextToken TokenType = iota
	// StartTagToken looks like <a href="x"> or <br/>.
	StartTagToken
	// EndTagToken looks like </a>.
	EndTagToken
	// CommentToken looks like <!--x-->.
	CommentToken
	// ProcessingInstructionToken looks like <?xml version="1.0"?>.
	ProcessingInstructionToken
	// DeclarationToken looks like <!DOCTYPE html>.
	DeclarationToken
	// MarkedSectionToken looks like <![CDATA[x]]>.
	MarkedSectionToken
)

// String returns the string representation of the TokenType
func (t TokenType) String() string {
	switch t {
	case TextToken:
		return "Text"
	case StartTagToken:
		return "StartTag"
	case EndTagToken:
		return "EndTag"
	case CommentToken:
		return "Comment"
	case ProcessingInstructionToken:
		return "PI"
	case DeclarationToken:
		return "Declaration"
	case MarkedSectionToken:
		return "MarkedSection"
	default:
		return "Unknown"
	}
}

// Attr is a start tag attribute. Value is the literal source value,
// quotes included, so an untouched attribute re-serializes byte for byte.
type Attr struct {
	Name     string
	Value    string
	HasValue bool
	// Raw is the exact source text of the attribute including its
	// leading whitespace.
	Raw string
}

// Unquoted returns the attribute value without its surrounding quotes.
// Entities are not decoded.
func (a Attr) Unquoted() string {
	v := a.Value
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// Token is one lexical unit of markup.
type Token struct {
	Type TokenType
	// Name is the tag name as written for tags, and the keyword for
	// declarations and marked sections.
	Name        string
	Attrs       []Attr
	SelfClosing bool
	// Body is the declaration or marked section body.
	Body string
	// Tail is the part of a start tag after its last attribute, e.g. " />".
	Tail   string
	Raw    string
	Offset int
}

// Head returns the start tag text before the first attribute, e.g. "<div".
func (t Token) Head() string {
	if t.Type != StartTagToken {
		return ""
	}
	n := len(t.Raw) - len(t.Tail)
	for _, a := range t.Attrs {
		n -= len(a.Raw)
	}
	if n < 0 || n > len(t.Raw) {
		return ""
	}
	return t.Raw[:n]
}

// Attr returns the first attribute with the given name, compared
// case-insensitively.
func (t Token) Attr(name string) (Attr, bool) {
	for _, a := range t.Attrs {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return Attr{}, false
}
