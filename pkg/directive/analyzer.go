package directive

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/conneroisu/tdi/pkg/markup"
)

// Analyzer recognizes the directive attributes. The zero value is not
// usable; call NewAnalyzer.
type Analyzer struct {
	AddressAttr string
	ScopeAttr   string
	OverlayAttr string
}

// NewAnalyzer creates an analyzer for the attribute names prefix,
// prefix:scope and prefix:overlay. An empty prefix selects DefaultPrefix.
func NewAnalyzer(prefix string) *Analyzer {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Analyzer{
		AddressAttr: prefix,
		ScopeAttr:   prefix + ":scope",
		OverlayAttr: prefix + ":overlay",
	}
}

// Kind classifies an attribute name. Names are case-sensitive.
func (a *Analyzer) Kind(name string) Kind {
	switch name {
	case a.AddressAttr:
		return KindAddress
	case a.ScopeAttr:
		return KindScope
	case a.OverlayAttr:
		return KindOverlay
	default:
		return KindNone
	}
}

// Result is the outcome of analyzing one attribute. Only the field
// matching Kind is set.
type Result struct {
	Kind    Kind
	Address Address
	Scope   Scope
	Overlay Overlay
}

// Analyze parses one attribute. literal is the value as written in the
// source, quotes included; an empty literal means the attribute has no
// value. Non-directive names yield KindNone and no error.
func (a *Analyzer) Analyze(name, literal string) (Result, error) {
	kind := a.Kind(name)
	if kind == KindNone {
		return Result{}, nil
	}
	value := html.UnescapeString(unquote(literal))
	fail := func(pos int, format string, args ...interface{}) (Result, error) {
		return Result{}, &SyntaxError{Attr: name, Value: value, Pos: pos, Reason: fmt.Sprintf(format, args...)}
	}
	if value == "" {
		return fail(0, "empty value")
	}

	res := Result{Kind: kind}
	switch kind {
	case KindAddress:
		addr, pos, reason := parseAddress(value)
		if reason != "" {
			return fail(pos, "%s", reason)
		}
		res.Address = addr
	case KindScope:
		scope, pos, reason := parseScope(value)
		if reason != "" {
			return fail(pos, "%s", reason)
		}
		res.Scope = scope
	case KindOverlay:
		ov, pos, reason := parseOverlay(value)
		if reason != "" {
			return fail(pos, "%s", reason)
		}
		res.Overlay = ov
	}
	return res, nil
}

// Split extracts the valid directives of a start tag. The returned
// attributes are the input without the stripped directives; invalid and
// conflicting directive attributes stay in place and are reported.
func (a *Analyzer) Split(attrs []markup.Attr) (Directive, []markup.Attr, []error) {
	var d Directive
	var errs []error
	kept := attrs[:0:0]
	for _, attr := range attrs {
		literal := ""
		if attr.HasValue {
			literal = attr.Value
		}
		res, err := a.Analyze(attr.Name, literal)
		if err != nil {
			errs = append(errs, err)
			kept = append(kept, attr)
			continue
		}
		if res.Kind == KindNone {
			kept = append(kept, attr)
			continue
		}

		var taken bool
		switch res.Kind {
		case KindAddress:
			if taken = d.Address != nil; !taken {
				addr := res.Address
				d.Address = &addr
			}
		case KindScope:
			if taken = d.Scope != nil; !taken {
				scope := res.Scope
				d.Scope = &scope
			}
		case KindOverlay:
			if taken = d.Overlay != nil; !taken {
				ov := res.Overlay
				d.Overlay = &ov
			}
		}
		if taken {
			errs = append(errs, &SyntaxError{
				Attr:     attr.Name,
				Value:    html.UnescapeString(unquote(literal)),
				Reason:   "tag already carries a " + res.Kind.String() + " directive",
				Conflict: true,
			})
			kept = append(kept, attr)
		}
	}
	return d, kept, errs
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

func parseAddress(v string) (Address, int, string) {
	var addr Address
	i := 0
	if i < len(v) && v[i] == '-' {
		addr.Flags |= Hidden
		i++
	}
	if i < len(v) {
		switch v[i] {
		case '*':
			addr.Flags |= Repeat
			i++
		case ':':
			addr.Flags |= Separator
			i++
		}
	}
	if i < len(v) && v[i] == '!' {
		addr.Flags |= Forget
		i++
	}
	if i == len(v) {
		if addr.Flags == Hidden {
			return addr, 0, ""
		}
		return Address{}, i, "missing name"
	}
	if pos := invalidName(v[i:]); pos >= 0 {
		return Address{}, i + pos, fmt.Sprintf("unexpected character %q", v[i+pos])
	}
	addr.Name = v[i:]
	return addr, 0, ""
}

func parseScope(v string) (Scope, int, string) {
	var scope Scope
	i := 0
	if v[0] == '=' {
		scope.Absolute = true
		i++
	}
	for _, part := range strings.Split(v[i:], ".") {
		if part == "" {
			return Scope{}, i, "empty scope segment"
		}
		if pos := invalidName(part); pos >= 0 {
			return Scope{}, i + pos, fmt.Sprintf("unexpected character %q", part[pos])
		}
		scope.Path = append(scope.Path, part)
		i += len(part) + 1
	}
	return scope, 0, ""
}

func parseOverlay(v string) (Overlay, int, string) {
	var ov Overlay
	i := 0
	if i < len(v) && v[i] == '-' {
		ov.Transparent = true
		i++
	}
	if i < len(v) {
		switch v[i] {
		case '<':
			ov.Role = RoleSource
			i++
		case '>':
			ov.Role = RoleTarget
			i++
		}
	}
	if i < len(v) && v[i] == '+' {
		ov.Placement = Before
		i++
	}
	end := len(v)
	if end > i && v[end-1] == '+' {
		if ov.Placement == Before {
			return Overlay{}, end - 1, "conflicting placement"
		}
		ov.Placement = After
		end--
	}
	if i == end {
		return Overlay{}, i, "missing name"
	}
	if pos := invalidName(v[i:end]); pos >= 0 {
		return Overlay{}, i + pos, fmt.Sprintf("unexpected character %q", v[i+pos])
	}
	ov.Name = v[i:end]
	return ov, 0, ""
}

// invalidName returns the offset of the first byte breaking the name
// pattern, or -1.
func invalidName(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return i
		}
	}
	return -1
}

// IsName reports whether s is a valid directive name.
func IsName(s string) bool {
	return s != "" && invalidName(s) < 0
}
