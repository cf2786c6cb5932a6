package markup

import (
	"strings"
)

// EventType is the type of a structural Event.
type EventType uint8

const (
	TextEvent EventType = iota
	StartTagEvent
	EndTagEvent
	CommentEvent
	ProcessingInstructionEvent
	DeclarationEvent
	MarkedSectionEvent
	// EncodingEvent is a pseudo event raised after a tag or prolog that
	// declares the document character encoding.
	EncodingEvent
)

// String returns the string representation of the EventType
func (t EventType) String() string {
	switch t {
	case TextEvent:
		return "Text"
	case StartTagEvent:
		return "StartTag"
	case EndTagEvent:
		return "EndTag"
	case CommentEvent:
		return "Comment"
	case ProcessingInstructionEvent:
		return "PI"
	case DeclarationEvent:
		return "Declaration"
	case MarkedSectionEvent:
		return "MarkedSection"
	case EncodingEvent:
		return "Encoding"
	default:
		return "Unknown"
	}
}

// Event is a balanced structural event. Token carries the source token;
// synthesized end tags have an empty Token.Raw and Implicit set.
type Event struct {
	Type  EventType
	Token Token
	// Name is the lowercased tag name of tag events.
	Name     string
	Implicit bool
	// Encoding is the declared charset of an EncodingEvent.
	Encoding string
}

// EventFunc receives parser events in document order.
type EventFunc func(Event) error

// Parser balances the lexer's tag tokens against an open element stack
// using a DTD.
type Parser struct {
	lexer *Lexer
	dtd   DTD
	emit  EventFunc
	stack []string
}

// NewParser creates a parser. A nil dtd selects the dialect default.
func NewParser(emit EventFunc, dtd DTD, opts ...Option) *Parser {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if dtd == nil {
		dtd = DefaultDTD(o.dialect)
	}
	p := &Parser{dtd: dtd, emit: emit}
	p.lexer = NewLexer(p.handle, opts...)
	return p
}

// Feed parses more input.
func (p *Parser) Feed(data []byte) error {
	return p.lexer.Feed(data)
}

// Finalize ends the input and closes every element still open.
func (p *Parser) Finalize() error {
	if err := p.lexer.Finalize(); err != nil {
		return err
	}
	return p.closeTo(0)
}

// Depth returns the number of open elements.
func (p *Parser) Depth() int {
	return len(p.stack)
}

// Parse runs a complete document through a new parser.
func Parse(src []byte, emit EventFunc, dtd DTD, opts ...Option) error {
	p := NewParser(emit, dtd, opts...)
	if err := p.Feed(src); err != nil {
		return err
	}
	return p.Finalize()
}

// Events collects the events of a complete document.
func Events(src []byte, dtd DTD, opts ...Option) ([]Event, error) {
	var events []Event
	err := Parse(src, func(e Event) error {
		events = append(events, e)
		return nil
	}, dtd, opts...)
	return events, err
}

func (p *Parser) handle(tok Token) error {
	switch tok.Type {
	case StartTagToken:
		return p.startTag(tok)
	case EndTagToken:
		return p.endTag(tok)
	case CommentToken:
		return p.emit(Event{Type: CommentEvent, Token: tok})
	case ProcessingInstructionToken:
		if err := p.emit(Event{Type: ProcessingInstructionEvent, Token: tok}); err != nil {
			return err
		}
		if strings.EqualFold(tok.Name, "xml") {
			if enc := attrValue(tok.Body, "encoding"); enc != "" {
				return p.emit(Event{Type: EncodingEvent, Encoding: enc})
			}
		}
		return nil
	case DeclarationToken:
		return p.emit(Event{Type: DeclarationEvent, Token: tok})
	case MarkedSectionToken:
		return p.emit(Event{Type: MarkedSectionEvent, Token: tok})
	default:
		return p.emit(Event{Type: TextEvent, Token: tok})
	}
}

func (p *Parser) startTag(tok Token) error {
	name := strings.ToLower(tok.Name)
	for len(p.stack) > 0 && !p.dtd.Nestable(p.stack[len(p.stack)-1], name) {
		if err := p.closeTo(len(p.stack) - 1); err != nil {
			return err
		}
	}

	if err := p.emit(Event{Type: StartTagEvent, Token: tok, Name: name}); err != nil {
		return err
	}
	if name == "meta" {
		if enc := metaCharset(tok); enc != "" {
			if err := p.emit(Event{Type: EncodingEvent, Encoding: enc}); err != nil {
				return err
			}
		}
	}

	if tok.SelfClosing || p.dtd.IsVoid(name) || p.dtd.ImplicitClose(name, tok.Attrs) {
		return p.emit(Event{Type: EndTagEvent, Name: name, Implicit: true})
	}
	p.stack = append(p.stack, name)
	if p.dtd.IsCDATA(name) {
		p.lexer.SetCDATA(tok.Name)
	}
	return nil
}

func (p *Parser) endTag(tok Token) error {
	name := strings.ToLower(tok.Name)
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i] != name {
			continue
		}
		if err := p.closeTo(i + 1); err != nil {
			return err
		}
		p.stack = p.stack[:i]
		return p.emit(Event{Type: EndTagEvent, Token: tok, Name: name})
	}
	// unmatched end tags stay in the document as inert text
	return p.emit(Event{Type: TextEvent, Token: Token{Type: TextToken, Raw: tok.Raw, Offset: tok.Offset}})
}

// closeTo pops open elements until n remain, emitting implicit ends.
func (p *Parser) closeTo(n int) error {
	for len(p.stack) > n {
		name := p.stack[len(p.stack)-1]
		p.stack = p.stack[:len(p.stack)-1]
		if err := p.emit(Event{Type: EndTagEvent, Name: name, Implicit: true}); err != nil {
			return err
		}
	}
	return nil
}

func metaCharset(tok Token) string {
	if a, ok := tok.Attr("charset"); ok {
		return strings.TrimSpace(a.Unquoted())
	}
	equiv, ok := tok.Attr("http-equiv")
	if !ok || !strings.EqualFold(strings.TrimSpace(equiv.Unquoted()), "content-type") {
		return ""
	}
	content, ok := tok.Attr("content")
	if !ok {
		return ""
	}
	return attrValue(content.Unquoted(), "charset")
}

// attrValue extracts key=value from a pseudo attribute list such as an
// XML prolog body or a content type.
func attrValue(s, key string) string {
	lower := strings.ToLower(s)
	i := strings.Index(lower, key)
	for i >= 0 {
		j := i + len(key)
		for j < len(s) && isSpace(s[j]) {
			j++
		}
		if j < len(s) && s[j] == '=' {
			j++
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '"' || s[j] == '\'') {
				q := s[j]
				if end := strings.IndexByte(s[j+1:], q); end >= 0 {
					return s[j+1 : j+1+end]
				}
				return ""
			}
			k := j
			for k < len(s) && !isSpace(s[k]) && s[k] != ';' && s[k] != '"' && s[k] != '\'' {
				k++
			}
			return s[j:k]
		}
		next := strings.Index(lower[i+1:], key)
		if next < 0 {
			break
		}
		i += 1 + next
	}
	return ""
}
