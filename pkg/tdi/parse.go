package tdi

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"strings"

	"github.com/conneroisu/tdi/internal/errors"
	"github.com/conneroisu/tdi/internal/logging"
	"github.com/conneroisu/tdi/pkg/codec"
	"github.com/conneroisu/tdi/pkg/directive"
	"github.com/conneroisu/tdi/pkg/markup"
)

// Codec converts between raw tree text and logical text. *codec.Codec
// implements it.
type Codec interface {
	DecodeText(raw string) (string, error)
	EncodeText(text string) (string, error)
	DecodeAttr(literal string) (string, error)
	EncodeAttr(value string) (string, error)
}

type parseConfig struct {
	source      string
	prefix      string
	dialect     markup.Dialect
	dtd         markup.DTD
	passthrough bool
	encoding    string
	policy      codec.Policy
	codec       Codec
	logger      logging.Logger
}

// ParseOption configures Parse.
type ParseOption func(*parseConfig)

// WithSource names the template in errors and diagnostics.
func WithSource(name string) ParseOption {
	return func(c *parseConfig) { c.source = name }
}

// WithPrefix sets the directive attribute prefix. The default is "tdi".
func WithPrefix(prefix string) ParseOption {
	return func(c *parseConfig) { c.prefix = prefix }
}

// WithDialect selects the markup dialect.
func WithDialect(d markup.Dialect) ParseOption {
	return func(c *parseConfig) { c.dialect = d }
}

// WithDTD replaces the dialect's default DTD.
func WithDTD(dtd markup.DTD) ParseOption {
	return func(c *parseConfig) { c.dtd = dtd }
}

// WithConditionalComments controls conditional comment passthrough.
func WithConditionalComments(passthrough bool) ParseOption {
	return func(c *parseConfig) { c.passthrough = passthrough }
}

// WithEncoding sets the charset used when the document declares none.
func WithEncoding(charset string) ParseOption {
	return func(c *parseConfig) { c.encoding = charset }
}

// WithDecodePolicy sets the error policy of the tree's codec.
func WithDecodePolicy(p codec.Policy) ParseOption {
	return func(c *parseConfig) { c.policy = p }
}

// WithCodec overrides the codec derived from the document encoding.
func WithCodec(cd Codec) ParseOption {
	return func(c *parseConfig) { c.codec = cd }
}

// WithParseLogger receives directive diagnostics and encoding fallbacks.
func WithParseLogger(l logging.Logger) ParseOption {
	return func(c *parseConfig) { c.logger = l }
}

func newParseConfig(opts []ParseOption) *parseConfig {
	c := &parseConfig{
		prefix:      directive.DefaultPrefix,
		passthrough: true,
		encoding:    "utf-8",
		policy:      codec.Replace,
		logger:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Builder builds a tree from incrementally fed markup.
type Builder struct {
	cfg      *parseConfig
	parser   *markup.Parser
	analyzer *directive.Analyzer
	diags    *errors.DiagnosticCollector
	tree     *Tree
	stack    []int
	declared string
	done     bool
}

// NewBuilder starts a new tree.
func NewBuilder(opts ...ParseOption) *Builder {
	cfg := newParseConfig(opts)
	b := &Builder{
		cfg:      cfg,
		analyzer: directive.NewAnalyzer(cfg.prefix),
		diags:    errors.NewDiagnosticCollector(),
		tree: &Tree{
			source:  cfg.source,
			dialect: cfg.dialect,
			nodes:   []nodeData{{kind: RootNode, parent: -1}},
		},
		stack: []int{0},
	}
	b.parser = markup.NewParser(b.handle, cfg.dtd,
		markup.WithDialect(cfg.dialect),
		markup.WithConditionalComments(cfg.passthrough),
	)
	return b
}

// Feed parses more input.
func (b *Builder) Feed(data []byte) error {
	return b.located(b.parser.Feed(data))
}

// Finalize ends the input, seals the indices and returns the tree.
func (b *Builder) Finalize() (*Tree, error) {
	if b.done {
		return b.tree, nil
	}
	if err := b.located(b.parser.Finalize()); err != nil {
		return nil, err
	}
	b.done = true

	t := b.tree
	if err := b.setCodec(); err != nil {
		return nil, err
	}
	t.id = treeIDs.Add(1)
	if err := t.index(); err != nil {
		return nil, err
	}
	t.diags = b.diags.Diagnostics()
	return t, nil
}

func (b *Builder) located(err error) error {
	if err == nil {
		return nil
	}
	var unfinished *markup.UnfinishedError
	if stderrors.As(err, &unfinished) {
		return errors.NewLexicalError(errors.ErrCodeUnfinished, unfinished.Error()).
			WithLocation(b.cfg.source, unfinished.Offset).
			WithContext("state", unfinished.State.String())
	}
	return err
}

func (b *Builder) setCodec() error {
	t := b.tree
	t.encoding = b.declared
	if t.encoding == "" {
		t.encoding = b.cfg.encoding
	}
	if b.cfg.codec != nil {
		t.codec = b.cfg.codec
		return nil
	}
	mode := codec.MarkupMode
	if t.dialect == markup.DialectText {
		mode = codec.TextMode
	}
	c, err := codec.New(t.encoding, codec.WithPolicy(b.cfg.policy), codec.WithMode(mode))
	if err != nil {
		b.diags.Add(errors.Diagnostic{Source: b.cfg.source, Severity: errors.SeverityWarning, Err: err})
		b.cfg.logger.Warn(context.Background(), err, "falling back to utf-8", "source", b.cfg.source, "encoding", t.encoding)
		if c, err = codec.New("utf-8", codec.WithPolicy(b.cfg.policy), codec.WithMode(mode)); err != nil {
			return err
		}
		t.encoding = "utf-8"
	}
	t.codec = c
	return nil
}

func (b *Builder) add(n nodeData) int {
	t := b.tree
	parent := b.stack[len(b.stack)-1]
	n.parent = parent
	idx := len(t.nodes)
	t.nodes = append(t.nodes, n)
	t.nodes[parent].children = append(t.nodes[parent].children, idx)
	return idx
}

func (b *Builder) handle(e markup.Event) error {
	switch e.Type {
	case markup.StartTagEvent:
		d, attrs, errs := b.analyzer.Split(e.Token.Attrs)
		for _, err := range errs {
			b.diags.Add(errors.Diagnostic{
				Source:   b.cfg.source,
				Offset:   e.Token.Offset,
				Severity: errors.SeverityWarning,
				Err:      err,
			})
			b.cfg.logger.Warn(context.Background(), err, "ignoring directive", "source", b.cfg.source, "offset", e.Token.Offset)
		}
		n := nodeData{
			kind:    ElementNode,
			name:    e.Token.Name,
			head:    e.Token.Head(),
			attrs:   attrs,
			tail:    e.Token.Tail,
			offset:  e.Token.Offset,
			addr:    d.Address,
			scope:   d.Scope,
			overlay: d.Overlay,
		}
		if d.Address != nil && d.Address.Flags.Has(directive.Hidden) {
			n.hidden = true
		}
		b.stack = append(b.stack, b.add(n))
	case markup.EndTagEvent:
		top := b.stack[len(b.stack)-1]
		b.stack = b.stack[:len(b.stack)-1]
		b.tree.nodes[top].endRaw = e.Token.Raw
	case markup.TextEvent:
		b.add(nodeData{kind: TextNode, raw: e.Token.Raw, offset: e.Token.Offset})
	case markup.CommentEvent:
		b.add(nodeData{kind: CommentNode, raw: e.Token.Raw, offset: e.Token.Offset})
	case markup.ProcessingInstructionEvent:
		b.add(nodeData{kind: ProcessingInstructionNode, raw: e.Token.Raw, offset: e.Token.Offset})
	case markup.DeclarationEvent:
		b.add(nodeData{kind: DeclarationNode, raw: e.Token.Raw, offset: e.Token.Offset})
	case markup.MarkedSectionEvent:
		b.add(nodeData{kind: MarkedSectionNode, raw: e.Token.Raw, offset: e.Token.Offset})
	case markup.EncodingEvent:
		if b.declared == "" {
			b.declared = strings.ToLower(e.Encoding)
		}
	}
	return nil
}

// Parse builds a tree from a complete document.
func Parse(src []byte, opts ...ParseOption) (*Tree, error) {
	b := NewBuilder(opts...)
	if err := b.Feed(src); err != nil {
		return nil, err
	}
	return b.Finalize()
}

// ParseString builds a tree from a string.
func ParseString(src string, opts ...ParseOption) (*Tree, error) {
	return Parse([]byte(src), opts...)
}

// ParseText builds a tree in the text dialect.
func ParseText(src []byte, opts ...ParseOption) (*Tree, error) {
	return Parse(src, append([]ParseOption{WithDialect(markup.DialectText)}, opts...)...)
}

// ParseReader builds a tree from r, feeding the parser as data arrives.
func ParseReader(r io.Reader, opts ...ParseOption) (*Tree, error) {
	b := NewBuilder(opts...)
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if ferr := b.Feed(bytes.Clone(buf[:n])); ferr != nil {
				return nil, ferr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewIOError(errors.ErrCodeReadFailed, "reading template", err).WithLocation(b.cfg.source, 0)
		}
	}
	return b.Finalize()
}

// MustParse is like ParseString but panics on error.
func MustParse(src string, opts ...ParseOption) *Tree {
	t, err := ParseString(src, opts...)
	if err != nil {
		panic(err)
	}
	return t
}
