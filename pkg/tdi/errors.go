package tdi

import (
	"github.com/conneroisu/tdi/internal/errors"
)

// Error is the structured error returned by parsing, merging and
// rendering. Compare with errors.Is against the sentinels below.
type Error = errors.TemplateError

// Diagnostic is a non-fatal finding recorded while parsing.
type Diagnostic = errors.Diagnostic

// Error codes.
const (
	CodeUnfinished         = errors.ErrCodeUnfinished
	CodeDirectiveSyntax    = errors.ErrCodeDirectiveSyntax
	CodeDirectiveConflict  = errors.ErrCodeDirectiveConflict
	CodeDuplicateAddress   = errors.ErrCodeDuplicateAddress
	CodeDuplicateSeparator = errors.ErrCodeDuplicateSeparator
	CodeUnknownAddress     = errors.ErrCodeUnknownAddress
	CodeMissingScope       = errors.ErrCodeMissingScope
	CodeUnsupportedItems   = errors.ErrCodeUnsupportedItems
	CodeUnknownEncoding    = errors.ErrCodeUnknownEncoding
	CodeDecodeFailed       = errors.ErrCodeDecodeFailed
	CodeEncodeFailed       = errors.ErrCodeEncodeFailed
	CodeOverlayCycle       = errors.ErrCodeOverlayCycle
)

// Sentinels for errors.Is.
var (
	ErrUnfinished         = errors.ErrUnfinished
	ErrDirectiveSyntax    = errors.ErrDirectiveSyntax
	ErrDirectiveConflict  = errors.ErrDirectiveConflict
	ErrDuplicateAddress   = errors.ErrDuplicateAddress
	ErrDuplicateSeparator = errors.ErrDuplicateSeparator
	ErrUnknownAddress     = errors.ErrUnknownAddress
	ErrMissingScope       = errors.ErrMissingScope
	ErrUnsupportedItems   = errors.ErrUnsupportedItems
	ErrUnknownEncoding    = errors.ErrUnknownEncoding
	ErrDecodeFailed       = errors.ErrDecodeFailed
	ErrEncodeFailed       = errors.ErrEncodeFailed
	ErrOverlayCycle       = errors.ErrOverlayCycle
)
