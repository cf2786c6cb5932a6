// Package directive parses the three reserved addressing attributes of a
// template (address, scope and overlay) into structured directives.
//
// Grammar of the attribute values, after entity decoding:
//
//	address := ["-"] ["*" | ":"] ["!"] [name]
//	scope   := ["="] name {"." name}
//	overlay := ["-"] ["<" | ">"] ["+"] name ["+"]
//	name    := [A-Za-z_][A-Za-z0-9_]*
//
// An address name may only be omitted when the value is exactly "-".
package directive

import (
	"fmt"
	"strings"

	tdierrors "github.com/conneroisu/tdi/internal/errors"
)

// DefaultPrefix is the default name of the address attribute.
const DefaultPrefix = "tdi"

// Kind identifies which directive attribute a name denotes.
type Kind uint8

const (
	KindNone Kind = iota
	KindAddress
	KindScope
	KindOverlay
)

// String returns the string representation of the Kind
func (k Kind) String() string {
	switch k {
	case KindAddress:
		return "address"
	case KindScope:
		return "scope"
	case KindOverlay:
		return "overlay"
	default:
		return "none"
	}
}

// Flags modify how an addressed node renders.
type Flags uint8

const (
	// Hidden omits the element's own tags; its content still renders.
	Hidden Flags = 1 << iota
	// Repeat allows the address to be shared by several nodes.
	Repeat
	// Separator marks the separator of the sibling with the same name.
	Separator
	// Forget stops handler dispatch below the node once it matched.
	Forget
)

// Has reports whether all bits of f2 are set.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// Address is a parsed address directive.
type Address struct {
	Name  string
	Flags Flags
}

// Anonymous reports whether the address has no name.
func (a Address) Anonymous() bool {
	return a.Name == ""
}

// String returns the address in attribute syntax.
func (a Address) String() string {
	var b strings.Builder
	if a.Flags.Has(Hidden) {
		b.WriteByte('-')
	}
	switch {
	case a.Flags.Has(Repeat):
		b.WriteByte('*')
	case a.Flags.Has(Separator):
		b.WriteByte(':')
	}
	if a.Flags.Has(Forget) {
		b.WriteByte('!')
	}
	b.WriteString(a.Name)
	return b.String()
}

// Scope is a parsed scope directive.
type Scope struct {
	Path []string
	// Absolute scopes resolve from the root model instead of the scope of
	// the enclosing node.
	Absolute bool
}

// String returns the scope in attribute syntax.
func (s Scope) String() string {
	p := strings.Join(s.Path, ".")
	if s.Absolute {
		return "=" + p
	}
	return p
}

// Role selects whether an overlay declaration gives or receives content.
type Role uint8

const (
	RoleBoth Role = iota
	RoleSource
	RoleTarget
)

// String returns the string representation of the Role
func (r Role) String() string {
	switch r {
	case RoleSource:
		return "source"
	case RoleTarget:
		return "target"
	default:
		return "both"
	}
}

// Placement selects where a source lands relative to its target.
type Placement uint8

const (
	Replace Placement = iota
	Before
	After
)

// String returns the string representation of the Placement
func (p Placement) String() string {
	switch p {
	case Before:
		return "before"
	case After:
		return "after"
	default:
		return "replace"
	}
}

// Overlay is a parsed overlay directive.
type Overlay struct {
	Name      string
	Role      Role
	Placement Placement
	// Transparent sources without an address contribute only their
	// children.
	Transparent bool
}

// IsSource reports whether the declaration can provide content.
func (o Overlay) IsSource() bool {
	return o.Role != RoleTarget
}

// IsTarget reports whether the declaration can receive content.
func (o Overlay) IsTarget() bool {
	return o.Role != RoleSource
}

// String returns the overlay in attribute syntax.
func (o Overlay) String() string {
	var b strings.Builder
	if o.Transparent {
		b.WriteByte('-')
	}
	switch o.Role {
	case RoleSource:
		b.WriteByte('<')
	case RoleTarget:
		b.WriteByte('>')
	}
	if o.Placement == Before {
		b.WriteByte('+')
	}
	b.WriteString(o.Name)
	if o.Placement == After {
		b.WriteByte('+')
	}
	return b.String()
}

// Directive is the set of directives found on one start tag.
type Directive struct {
	Address *Address
	Scope   *Scope
	Overlay *Overlay
}

// Empty reports whether no directive was found.
func (d Directive) Empty() bool {
	return d.Address == nil && d.Scope == nil && d.Overlay == nil
}

// SyntaxError describes an invalid or conflicting directive attribute.
// The attribute is kept as a plain attribute.
type SyntaxError struct {
	Attr   string
	Value  string
	Pos    int
	Reason string
	// Conflict is set when the tag already carried a valid directive of
	// the same kind.
	Conflict bool
}

func (e *SyntaxError) Error() string {
	if e.Conflict {
		return fmt.Sprintf("conflicting %s directive %q: %s", e.Attr, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s directive %q at %d: %s", e.Attr, e.Value, e.Pos, e.Reason)
}

// Unwrap lets errors.Is match the directive error sentinels.
func (e *SyntaxError) Unwrap() error {
	if e.Conflict {
		return tdierrors.ErrDirectiveConflict
	}
	return tdierrors.ErrDirectiveSyntax
}
