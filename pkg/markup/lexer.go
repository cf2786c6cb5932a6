package markup

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	tdierrors "github.com/conneroisu/tdi/internal/errors"
)

// State is a lexer state.
type State uint8

const (
	StateText State = iota
	StateMarkup
	StateStartTag
	StateEndTag
	StateComment
	StateDecl
	StatePI
	StateMSection
	StateCDATA
)

// String returns the state name as used in error messages
func (s State) String() string {
	switch s {
	case StateText:
		return "TEXT"
	case StateMarkup:
		return "MARKUP"
	case StateStartTag:
		return "STARTTAG"
	case StateEndTag:
		return "ENDTAG"
	case StateComment:
		return "COMMENT"
	case StateDecl:
		return "DECL"
	case StatePI:
		return "PI"
	case StateMSection:
		return "MSECTION"
	case StateCDATA:
		return "CDATA"
	default:
		return "UNKNOWN"
	}
}

// UnfinishedError reports input that ended in the middle of a token.
type UnfinishedError struct {
	State  State
	Offset int
}

func (e *UnfinishedError) Error() string {
	return fmt.Sprintf("unfinished %s at offset %d", e.State, e.Offset)
}

// Unwrap makes errors.Is(err, errors.ErrUnfinished) hold.
func (e *UnfinishedError) Unwrap() error {
	return tdierrors.ErrUnfinished
}

// ErrFinalized is returned when input is fed after Finalize.
var ErrFinalized = errors.New("markup: lexer already finalized")

// Dialect selects the markup delimiters and which markup constructs exist.
type Dialect uint8

const (
	// DialectHTML uses <...> tags with comments, declarations,
	// processing instructions and marked sections.
	DialectHTML Dialect = iota
	// DialectText uses [...] tags and nothing else.
	DialectText
)

// String returns the dialect name
func (d Dialect) String() string {
	if d == DialectText {
		return "text"
	}
	return "html"
}

// ParseDialect maps a configuration name onto a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "", "html":
		return DialectHTML, nil
	case "text":
		return DialectText, nil
	default:
		return DialectHTML, fmt.Errorf("unknown dialect %q", name)
	}
}

type options struct {
	dialect     Dialect
	passthrough bool
}

func defaultOptions() options {
	return options{dialect: DialectHTML, passthrough: true}
}

// Option configures a Lexer or a Parser.
type Option func(*options)

// WithDialect selects the markup dialect.
func WithDialect(d Dialect) Option {
	return func(o *options) { o.dialect = d }
}

// WithConditionalComments controls vendor conditional comments. When
// passthrough is true (the default) their markers are emitted as literal
// text and the content between them is tokenized normally; otherwise a
// conditional block collapses into one comment or marked section token.
func WithConditionalComments(passthrough bool) Option {
	return func(o *options) { o.passthrough = passthrough }
}

// TokenFunc receives tokens in input order. It may call SetCDATA on the
// lexer before returning.
type TokenFunc func(Token) error

// Lexer is an incremental markup tokenizer. It only emits a token once
// the buffered input proves the token complete.
type Lexer struct {
	buf   []byte
	pos   int
	base  int
	state State
	cdata string
	final bool
	emit  TokenFunc

	open, close byte
	markup      bool
	passthrough bool
}

// NewLexer creates a lexer delivering tokens to emit.
func NewLexer(emit TokenFunc, opts ...Option) *Lexer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	l := &Lexer{
		emit:        emit,
		open:        '<',
		close:       '>',
		markup:      true,
		passthrough: o.passthrough,
	}
	if o.dialect == DialectText {
		l.open, l.close = '[', ']'
		l.markup = false
	}
	return l
}

// State returns the current lexer state.
func (l *Lexer) State() State {
	return l.state
}

// SetCDATA declares the upcoming content raw text terminated by the end
// tag name (matched case-insensitively). An empty name leaves CDATA mode.
func (l *Lexer) SetCDATA(name string) {
	if name == "" {
		l.cdata = ""
		if l.state == StateCDATA {
			l.state = StateText
		}
		return
	}
	l.cdata = name
	l.state = StateCDATA
}

// Feed appends input and emits every token the buffer completes.
func (l *Lexer) Feed(data []byte) error {
	if l.final {
		return ErrFinalized
	}
	l.buf = append(l.buf, data...)
	return l.run()
}

// Finalize signals the end of input. Pending text is flushed; a token
// left incomplete fails with an *UnfinishedError.
func (l *Lexer) Finalize() error {
	if l.final {
		return nil
	}
	l.final = true
	if err := l.run(); err != nil {
		return err
	}
	if l.pos < len(l.buf) {
		return &UnfinishedError{State: l.state, Offset: l.base + l.pos}
	}
	return nil
}

// Tokenize lexes a complete document.
func Tokenize(src []byte, opts ...Option) ([]Token, error) {
	var toks []Token
	l := NewLexer(func(t Token) error {
		toks = append(toks, t)
		return nil
	}, opts...)
	if err := l.Feed(src); err != nil {
		return toks, err
	}
	return toks, l.Finalize()
}

func (l *Lexer) run() error {
	for l.pos < len(l.buf) {
		var ok bool
		var err error
		switch l.state {
		case StateText:
			ok, err = l.lexText()
		case StateCDATA:
			ok, err = l.lexCDATA()
		case StateMarkup:
			ok, err = l.lexMarkup()
		case StateStartTag:
			ok, err = l.lexStartTag()
		case StateEndTag:
			ok, err = l.lexEndTag()
		case StateComment:
			ok, err = l.lexComment()
		case StateDecl:
			ok, err = l.lexDecl()
		case StatePI:
			ok, err = l.lexPI()
		case StateMSection:
			ok, err = l.lexMSection()
		}
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}
	l.compact()
	return nil
}

func (l *Lexer) compact() {
	if l.pos == 0 {
		return
	}
	n := copy(l.buf, l.buf[l.pos:])
	l.buf = l.buf[:n]
	l.base += l.pos
	l.pos = 0
}

func (l *Lexer) incomplete() (bool, error) {
	if l.final {
		return false, &UnfinishedError{State: l.state, Offset: l.base + l.pos}
	}
	return false, nil
}

// emitToken emits the token spanning buf[pos:end]. Callers set the next
// state first so the token callback can override it.
func (l *Lexer) emitToken(t Token, end int) error {
	t.Offset = l.base + l.pos
	t.Raw = string(l.buf[l.pos:end])
	l.pos = end
	return l.emit(t)
}

func (l *Lexer) emitText(end int) error {
	return l.emitToken(Token{Type: TextToken}, end)
}

func (l *Lexer) lexText() (bool, error) {
	i := bytes.IndexByte(l.buf[l.pos:], l.open)
	switch {
	case i < 0:
		if !l.final {
			return false, nil
		}
		return true, l.emitText(len(l.buf))
	case i > 0:
		return true, l.emitText(l.pos + i)
	}
	l.state = StateMarkup
	return true, nil
}

func (l *Lexer) lexMarkup() (bool, error) {
	rest := l.buf[l.pos:]
	if len(rest) < 2 {
		if !l.final {
			return false, nil
		}
		l.state = StateText
		return true, l.emitText(l.pos + 1)
	}
	c := rest[1]
	switch {
	case c == '/':
		l.state = StateEndTag
	case isNameStart(c):
		l.state = StateStartTag
	case l.markup && c == '!':
		switch {
		case bytes.HasPrefix(rest, []byte("<!--")):
			l.state = StateComment
		case bytes.HasPrefix(rest, []byte("<![")):
			l.state = StateMSection
		case len(rest) < 4 && bytes.HasPrefix([]byte("<!--"), rest) && !l.final:
			return false, nil
		default:
			l.state = StateDecl
		}
	case l.markup && c == '?':
		l.state = StatePI
	default:
		l.state = StateText
		return true, l.emitText(l.pos + 1)
	}
	return true, nil
}

func (l *Lexer) lexStartTag() (bool, error) {
	buf := l.buf
	i := l.pos + 1
	for i < len(buf) && !isSpace(buf[i]) && buf[i] != l.close && buf[i] != '/' {
		i++
	}
	if i >= len(buf) {
		return l.incomplete()
	}
	name := string(buf[l.pos+1 : i])

	var attrs []Attr
	attrStart := i
	for {
		j := skipSpace(buf, i)
		if j >= len(buf) {
			return l.incomplete()
		}
		c := buf[j]
		if c == l.close {
			tok := Token{Type: StartTagToken, Name: name, Attrs: attrs, Tail: string(buf[attrStart : j+1])}
			l.state = StateText
			return true, l.emitToken(tok, j+1)
		}
		if c == '/' {
			if j+1 >= len(buf) {
				return l.incomplete()
			}
			if buf[j+1] == l.close {
				tok := Token{Type: StartTagToken, Name: name, Attrs: attrs, SelfClosing: true, Tail: string(buf[attrStart : j+2])}
				l.state = StateText
				return true, l.emitToken(tok, j+2)
			}
			// a stray slash is kept in the raw text of the next attribute
			i = j + 1
			continue
		}

		k := j
		for k < len(buf) && !isSpace(buf[k]) && buf[k] != '=' && buf[k] != l.close && buf[k] != '/' {
			k++
		}
		if k >= len(buf) {
			return l.incomplete()
		}
		if k == j {
			k++
		}
		attr := Attr{Name: string(buf[j:k])}
		end := k

		v := skipSpace(buf, k)
		if v >= len(buf) {
			return l.incomplete()
		}
		if buf[v] == '=' {
			v = skipSpace(buf, v+1)
			if v >= len(buf) {
				return l.incomplete()
			}
			switch q := buf[v]; q {
			case '"', '\'':
				e := bytes.IndexByte(buf[v+1:], q)
				if e < 0 {
					return l.incomplete()
				}
				end = v + e + 2
			default:
				e := v
				for e < len(buf) && !isSpace(buf[e]) && buf[e] != l.close {
					e++
				}
				if e >= len(buf) {
					return l.incomplete()
				}
				end = e
			}
			attr.Value = string(buf[v:end])
			attr.HasValue = true
		}
		attr.Raw = string(buf[attrStart:end])
		attrs = append(attrs, attr)
		i = end
		attrStart = end
	}
}

func (l *Lexer) lexEndTag() (bool, error) {
	rest := l.buf[l.pos:]
	if len(rest) < 3 {
		if !l.final {
			return false, nil
		}
		l.state = StateText
		return true, l.emitText(len(l.buf))
	}
	if !isNameStart(rest[2]) {
		l.state = StateText
		return true, l.emitText(l.pos + 2)
	}
	e := bytes.IndexByte(rest, l.close)
	if e < 0 {
		return l.incomplete()
	}
	n := 2
	for n < e && !isSpace(rest[n]) {
		n++
	}
	l.state = StateText
	return true, l.emitToken(Token{Type: EndTagToken, Name: string(rest[2:n])}, l.pos+e+1)
}

func (l *Lexer) lexComment() (bool, error) {
	rest := l.buf[l.pos:]
	if l.passthrough {
		match, decided := hasPrefixFold(rest[4:], "[if", l.final)
		if !decided {
			return false, nil
		}
		if match {
			e := bytes.Index(rest, []byte("]>"))
			if e < 0 {
				return l.incomplete()
			}
			l.state = StateText
			return true, l.emitText(l.pos + e + 2)
		}
	}
	e := bytes.Index(rest[2:], []byte("-->"))
	if e < 0 {
		return l.incomplete()
	}
	end := l.pos + 2 + e + 3
	body := ""
	if l.pos+4 < end-3 {
		body = string(l.buf[l.pos+4 : end-3])
	}
	l.state = StateText
	return true, l.emitToken(Token{Type: CommentToken, Body: body}, end)
}

func (l *Lexer) lexMSection() (bool, error) {
	rest := l.buf[l.pos:]
	k := 3
	for k < len(rest) && isAlpha(rest[k]) {
		k++
	}
	if k >= len(rest) {
		return l.incomplete()
	}
	keyword := string(rest[3:k])

	switch strings.ToLower(keyword) {
	case "if", "else", "endif":
		e := bytes.IndexByte(rest[k:], ']')
		if e < 0 {
			return l.incomplete()
		}
		e += k
		var end int
		switch {
		case e+1 < len(rest) && rest[e+1] == '>':
			end = e + 2
		case e+4 <= len(rest) && string(rest[e+1:e+4]) == "-->":
			end = e + 4
		case e+4 > len(rest) && !l.final && bytes.HasPrefix([]byte("]-->"), rest[e:]):
			return false, nil
		default:
			l.state = StateText
			return true, l.emitText(l.pos + 3)
		}
		if l.passthrough {
			l.state = StateText
			return true, l.emitText(l.pos + end)
		}
		// a revealed <![if ...]> block runs through its <![endif]>
		if strings.EqualFold(keyword, "if") && end == e+2 {
			stop := bytes.Index(bytes.ToLower(rest[end:]), []byte("<![endif]>"))
			switch {
			case stop >= 0:
				end += stop + len("<![endif]>")
			case !l.final:
				return false, nil
			}
		}
		l.state = StateText
		return true, l.emitToken(Token{Type: MarkedSectionToken, Name: keyword, Body: string(rest[k:e])}, l.pos+end)
	}

	e := bytes.Index(rest, []byte("]]>"))
	if e < 0 {
		return l.incomplete()
	}
	body := rest[k:e]
	if trimmed := bytes.TrimLeft(body, " \t\r\n\f"); len(trimmed) > 0 && trimmed[0] == '[' {
		body = trimmed[1:]
	}
	l.state = StateText
	return true, l.emitToken(Token{Type: MarkedSectionToken, Name: keyword, Body: string(body)}, l.pos+e+3)
}

func (l *Lexer) lexDecl() (bool, error) {
	rest := l.buf[l.pos:]
	var quote byte
	for i := 2; i < len(rest); i++ {
		c := rest[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			inner := rest[2:i]
			k := 0
			for k < len(inner) && !isSpace(inner[k]) {
				k++
			}
			tok := Token{
				Type: DeclarationToken,
				Name: string(inner[:k]),
				Body: string(bytes.TrimLeft(inner[k:], " \t\r\n\f")),
			}
			l.state = StateText
			return true, l.emitToken(tok, l.pos+i+1)
		}
	}
	return l.incomplete()
}

func (l *Lexer) lexPI() (bool, error) {
	rest := l.buf[l.pos:]
	e := bytes.IndexByte(rest, '>')
	if e < 0 {
		return l.incomplete()
	}
	inner := bytes.TrimSuffix(rest[2:e], []byte("?"))
	k := 0
	for k < len(inner) && !isSpace(inner[k]) {
		k++
	}
	tok := Token{
		Type: ProcessingInstructionToken,
		Name: string(inner[:k]),
		Body: string(bytes.TrimSpace(inner[k:])),
	}
	l.state = StateText
	return true, l.emitToken(tok, l.pos+e+1)
}

func (l *Lexer) lexCDATA() (bool, error) {
	rest := l.buf[l.pos:]
	name := []byte(l.cdata)
	from := 0
	for {
		i := bytes.IndexByte(rest[from:], l.open)
		if i < 0 {
			if !l.final {
				return false, nil
			}
			l.cdata = ""
			l.state = StateText
			return true, l.emitText(len(l.buf))
		}
		i += from
		need := i + 2 + len(name) + 1
		if need > len(rest) {
			if !l.final {
				return false, nil
			}
		} else if rest[i+1] == '/' && bytes.EqualFold(rest[i+2:i+2+len(name)], name) && l.isTagEnd(rest[i+2+len(name)]) {
			l.cdata = ""
			l.state = StateEndTag
			if i > 0 {
				return true, l.emitText(l.pos + i)
			}
			return true, nil
		}
		from = i + 1
	}
}

func (l *Lexer) isTagEnd(c byte) bool {
	return isSpace(c) || c == l.close || c == '/'
}

// hasPrefixFold reports whether b starts with prefix, case-insensitively.
// decided is false while b is a proper prefix of prefix and more input may
// still arrive.
func hasPrefixFold(b []byte, prefix string, final bool) (match, decided bool) {
	if len(b) >= len(prefix) {
		return strings.EqualFold(string(b[:len(prefix)]), prefix), true
	}
	if final || !strings.EqualFold(string(b), prefix[:len(b)]) {
		return false, true
	}
	return false, false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameStart(c byte) bool {
	return isAlpha(c)
}

func skipSpace(buf []byte, i int) int {
	for i < len(buf) && isSpace(buf[i]) {
		i++
	}
	return i
}
