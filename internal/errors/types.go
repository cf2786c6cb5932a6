package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the categories of the template error taxonomy.
type ErrorType string

const (
	ErrorTypeLexical   ErrorType = "lexical"
	ErrorTypeDirective ErrorType = "directive"
	ErrorTypeTree      ErrorType = "tree"
	ErrorTypeModel     ErrorType = "model"
	ErrorTypeDecode    ErrorType = "decode"
	ErrorTypeOverlay   ErrorType = "overlay"
	ErrorTypeIO        ErrorType = "io"
	ErrorTypeConfig    ErrorType = "config"
	ErrorTypeInternal  ErrorType = "internal"
)

// TemplateError is a structured error type with context.
type TemplateError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Source      string
	Offset      int
	Recoverable bool
}

// Error implements the error interface.
func (e *TemplateError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Source != "" {
		location := e.Source
		if e.Offset > 0 {
			location += fmt.Sprintf("@%d", e.Offset)
		}
		parts = append(parts, location)
	} else if e.Offset > 0 {
		parts = append(parts, fmt.Sprintf("offset %d:", e.Offset))
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *TemplateError) Is(target error) bool {
	var t *TemplateError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *TemplateError) WithContext(key string, value interface{}) *TemplateError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds source location information.
func (e *TemplateError) WithLocation(source string, offset int) *TemplateError {
	e.Source = source
	e.Offset = offset

	return e
}

// Error creation functions

// NewLexicalError creates a lexical incompleteness error.
func NewLexicalError(code, message string) *TemplateError {
	return &TemplateError{
		Type:        ErrorTypeLexical,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewDirectiveError creates a directive syntax error. Directive errors
// never abort a parse.
func NewDirectiveError(code, message string) *TemplateError {
	return &TemplateError{
		Type:        ErrorTypeDirective,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewTreeError creates a tree structure error.
func NewTreeError(code, message string) *TemplateError {
	return &TemplateError{
		Type:        ErrorTypeTree,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewModelError creates a model lookup error.
func NewModelError(code, message string) *TemplateError {
	return &TemplateError{
		Type:        ErrorTypeModel,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewDecodeError creates an encoding or decoding error.
func NewDecodeError(code, message string, cause error) *TemplateError {
	return &TemplateError{
		Type:        ErrorTypeDecode,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewOverlayError creates an overlay merge error.
func NewOverlayError(code, message string) *TemplateError {
	return &TemplateError{
		Type:        ErrorTypeOverlay,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *TemplateError {
	return &TemplateError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *TemplateError {
	return &TemplateError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *TemplateError {
	return &TemplateError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var te *TemplateError
	if errors.As(err, &te) {
		return te.Recoverable
	}

	return false
}

// IsType reports whether err is a TemplateError of the given type.
func IsType(err error, t ErrorType) bool {
	var te *TemplateError
	if errors.As(err, &te) {
		return te.Type == t
	}

	return false
}

// CodeOf returns the code of the first TemplateError in err's chain.
func CodeOf(err error) string {
	var te *TemplateError
	if errors.As(err, &te) {
		return te.Code
	}

	return ""
}

// Common error codes.
const (
	ErrCodeUnfinished         = "LEX_UNFINISHED"
	ErrCodeDirectiveSyntax    = "DIRECTIVE_SYNTAX"
	ErrCodeDirectiveConflict  = "DIRECTIVE_CONFLICT"
	ErrCodeDuplicateAddress   = "TREE_DUPLICATE_ADDRESS"
	ErrCodeDuplicateSeparator = "TREE_DUPLICATE_SEPARATOR"
	ErrCodeUnknownAddress     = "TREE_UNKNOWN_ADDRESS"
	ErrCodeMissingScope       = "MODEL_MISSING_SCOPE"
	ErrCodeUnsupportedItems   = "MODEL_UNSUPPORTED_ITEMS"
	ErrCodeUnknownEncoding    = "DECODE_UNKNOWN_ENCODING"
	ErrCodeDecodeFailed       = "DECODE_FAILED"
	ErrCodeEncodeFailed       = "ENCODE_FAILED"
	ErrCodeOverlayCycle       = "OVERLAY_CYCLE"
	ErrCodeFileNotFound       = "IO_FILE_NOT_FOUND"
	ErrCodeReadFailed         = "IO_READ_FAILED"
	ErrCodeInvalidPath        = "IO_INVALID_PATH"
	ErrCodeConfigInvalid      = "CONFIG_INVALID"
)

// Sentinels usable with errors.Is; matching compares Type and Code only.
var (
	ErrUnfinished         = &TemplateError{Type: ErrorTypeLexical, Code: ErrCodeUnfinished}
	ErrDirectiveSyntax    = &TemplateError{Type: ErrorTypeDirective, Code: ErrCodeDirectiveSyntax}
	ErrDirectiveConflict  = &TemplateError{Type: ErrorTypeDirective, Code: ErrCodeDirectiveConflict}
	ErrDuplicateSeparator = &TemplateError{Type: ErrorTypeTree, Code: ErrCodeDuplicateSeparator}
	ErrUnsupportedItems   = &TemplateError{Type: ErrorTypeModel, Code: ErrCodeUnsupportedItems}
	ErrDuplicateAddress   = &TemplateError{Type: ErrorTypeTree, Code: ErrCodeDuplicateAddress}
	ErrUnknownAddress     = &TemplateError{Type: ErrorTypeTree, Code: ErrCodeUnknownAddress}
	ErrMissingScope       = &TemplateError{Type: ErrorTypeModel, Code: ErrCodeMissingScope}
	ErrDecodeFailed       = &TemplateError{Type: ErrorTypeDecode, Code: ErrCodeDecodeFailed}
	ErrEncodeFailed       = &TemplateError{Type: ErrorTypeDecode, Code: ErrCodeEncodeFailed}
	ErrUnknownEncoding    = &TemplateError{Type: ErrorTypeDecode, Code: ErrCodeUnknownEncoding}
	ErrOverlayCycle       = &TemplateError{Type: ErrorTypeOverlay, Code: ErrCodeOverlayCycle}
)

// Helper functions for common errors

// ErrInvalidPath creates a path validation error.
func ErrInvalidPath(path string) *TemplateError {
	return &TemplateError{
		Type:    ErrorTypeIO,
		Code:    ErrCodeInvalidPath,
		Message: "invalid path: " + path,
	}
}

// ErrTemplateNotFound creates a template not found error.
func ErrTemplateNotFound(name string, cause error) *TemplateError {
	return NewIOError(ErrCodeFileNotFound, "template not found: "+name, cause)
}
