// Package codec converts between the raw bytes stored in a template tree
// and the logical text a model reads and writes. It handles the document
// character encoding through golang.org/x/text and markup entities through
// golang.org/x/net/html.
package codec

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	tdierrors "github.com/conneroisu/tdi/internal/errors"
)

// Policy selects what happens to bytes or characters that cannot be
// converted.
type Policy uint8

const (
	// Strict fails the conversion.
	Strict Policy = iota
	// Ignore drops the offending input.
	Ignore
	// Replace substitutes a marker: U+FFFD when decoding, a character
	// reference (markup) or the charset's replacement byte (text) when
	// encoding.
	Replace
)

// String returns the string representation of the Policy
func (p Policy) String() string {
	switch p {
	case Strict:
		return "strict"
	case Ignore:
		return "ignore"
	case Replace:
		return "replace"
	default:
		return "unknown"
	}
}

// ParsePolicy maps a configuration name onto a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "strict":
		return Strict, nil
	case "ignore":
		return Ignore, nil
	case "replace", "":
		return Replace, nil
	default:
		return Replace, fmt.Errorf("unknown decode policy %q", name)
	}
}

// Mode selects the escaping rules.
type Mode uint8

const (
	// MarkupMode decodes and escapes entities.
	MarkupMode Mode = iota
	// TextMode passes text through without entity handling.
	TextMode
)

// Option configures a Codec.
type Option func(*Codec)

// WithPolicy sets the error policy. The default is Replace.
func WithPolicy(p Policy) Option {
	return func(c *Codec) { c.policy = p }
}

// WithMode sets the escaping mode. The default is MarkupMode.
func WithMode(m Mode) Option {
	return func(c *Codec) { c.mode = m }
}

// Codec is safe for concurrent use.
type Codec struct {
	name   string
	enc    encoding.Encoding
	utf8   bool
	policy Policy
	mode   Mode
}

// New creates a codec for the named charset. Names follow the WHATWG
// encoding labels; an empty name selects UTF-8.
func New(charset string, opts ...Option) (*Codec, error) {
	if charset == "" {
		charset = "utf-8"
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, tdierrors.NewDecodeError(tdierrors.ErrCodeUnknownEncoding, "unknown encoding "+charset, err)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		name = strings.ToLower(charset)
	}
	c := &Codec{name: name, enc: enc, utf8: name == "utf-8", policy: Replace}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Default returns a UTF-8 markup codec with the Replace policy.
func Default() *Codec {
	c, _ := New("utf-8")
	return c
}

// Name returns the canonical charset name.
func (c *Codec) Name() string { return c.name }

// Policy returns the error policy.
func (c *Codec) Policy() Policy { return c.policy }

// Mode returns the escaping mode.
func (c *Codec) Mode() Mode { return c.mode }

// Decode converts raw document bytes into UTF-8 text. Entities are left
// alone.
func (c *Codec) Decode(raw []byte) (string, error) {
	return c.toUTF8(string(raw))
}

// Encode converts UTF-8 text into document bytes. Nothing is escaped.
func (c *Codec) Encode(text string) ([]byte, error) {
	s, err := c.fromUTF8(text, false)
	return []byte(s), err
}

// DecodeText turns raw content into logical text.
func (c *Codec) DecodeText(raw string) (string, error) {
	s, err := c.toUTF8(raw)
	if err != nil {
		return "", err
	}
	if c.mode == MarkupMode {
		s = html.UnescapeString(s)
	}
	return s, nil
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// EncodeText turns logical text into raw content safe to place between
// tags.
func (c *Codec) EncodeText(text string) (string, error) {
	if c.mode == MarkupMode {
		text = textEscaper.Replace(text)
	}
	return c.fromUTF8(text, c.mode == MarkupMode)
}

// DecodeAttr turns an attribute literal, quotes included, into its
// logical value.
func (c *Codec) DecodeAttr(literal string) (string, error) {
	return c.DecodeText(unquote(literal))
}

// EncodeAttr turns a logical value into a quoted attribute literal.
func (c *Codec) EncodeAttr(value string) (string, error) {
	quote := `"`
	if c.mode == MarkupMode {
		value = html.EscapeString(value)
	} else if strings.Contains(value, `"`) && !strings.Contains(value, "'") {
		quote = "'"
	}
	s, err := c.fromUTF8(value, c.mode == MarkupMode)
	if err != nil {
		return "", err
	}
	return quote + s + quote, nil
}

func (c *Codec) toUTF8(s string) (string, error) {
	if c.utf8 {
		if utf8.ValidString(s) {
			return s, nil
		}
		switch c.policy {
		case Strict:
			return "", tdierrors.NewDecodeError(tdierrors.ErrCodeDecodeFailed, "invalid utf-8 input", nil)
		case Ignore:
			return strings.ToValidUTF8(s, ""), nil
		default:
			return strings.ToValidUTF8(s, "\uFFFD"), nil
		}
	}

	out, err := c.enc.NewDecoder().String(s)
	if err == nil && c.policy == Strict && c.substituted(s, out) {
		err = fmt.Errorf("invalid %s byte sequence", c.name)
	}
	if err != nil {
		if c.policy == Strict {
			return "", tdierrors.NewDecodeError(tdierrors.ErrCodeDecodeFailed, "cannot decode "+c.name+" input", err)
		}
		return out, nil
	}
	if c.policy == Ignore {
		out = strings.ReplaceAll(out, "\uFFFD", "")
	}
	return out, nil
}

// substituted reports whether decoding src produced more U+FFFD than src
// itself encodes. x/text decoders replace undecodable bytes instead of
// failing.
func (c *Codec) substituted(src, out string) bool {
	n := strings.Count(out, "\uFFFD")
	if n == 0 {
		return false
	}
	own, err := c.enc.NewEncoder().String("\uFFFD")
	if err != nil || own == "" {
		return true
	}
	return strings.Count(src, own) < n
}

// fromUTF8 encodes into the document charset. markup selects character
// references as the Replace substitute.
func (c *Codec) fromUTF8(s string, markup bool) (string, error) {
	if c.utf8 {
		switch {
		case utf8.ValidString(s):
			return s, nil
		case c.policy == Ignore:
			return strings.ToValidUTF8(s, ""), nil
		case c.policy == Replace:
			return strings.ToValidUTF8(s, "\uFFFD"), nil
		}
		return "", tdierrors.NewDecodeError(tdierrors.ErrCodeEncodeFailed, "invalid utf-8 text", nil)
	}

	switch c.policy {
	case Strict:
		out, err := c.enc.NewEncoder().String(s)
		if err != nil {
			return "", tdierrors.NewDecodeError(tdierrors.ErrCodeEncodeFailed, "text not representable in "+c.name, err)
		}
		return out, nil
	case Ignore:
		var b strings.Builder
		e := c.enc.NewEncoder()
		for _, r := range s {
			if out, err := e.String(string(r)); err == nil {
				b.WriteString(out)
			}
		}
		return b.String(), nil
	default:
		var e *encoding.Encoder
		if markup {
			e = encoding.HTMLEscapeUnsupported(c.enc.NewEncoder())
		} else {
			e = encoding.ReplaceUnsupported(c.enc.NewEncoder())
		}
		out, err := e.String(s)
		if err != nil {
			return "", tdierrors.NewDecodeError(tdierrors.ErrCodeEncodeFailed, "cannot encode "+c.name+" text", err)
		}
		return out, nil
	}
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}
