package errors

import (
	"errors"
)

// Wrap attaches a type, code and message to err. When err already carries a
// TemplateError its location, context and recoverability carry over.
func Wrap(err error, errType ErrorType, code, message string) *TemplateError {
	if err == nil {
		return nil
	}

	wrapped := &TemplateError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeDirective,
	}

	var inner *TemplateError
	if errors.As(err, &inner) {
		wrapped.Source, wrapped.Offset = inner.Source, inner.Offset
		wrapped.Context = inner.Context
		wrapped.Recoverable = inner.Recoverable
	}
	return wrapped
}

// WrapIO wraps err as a fatal I/O error.
func WrapIO(err error, code, message string) *TemplateError {
	wrapped := Wrap(err, ErrorTypeIO, code, message)
	if wrapped != nil {
		wrapped.Recoverable = false
	}
	return wrapped
}

// WrapConfig wraps err as an invalid configuration.
func WrapConfig(err error, message string) *TemplateError {
	return Wrap(err, ErrorTypeConfig, ErrCodeConfigInvalid, message)
}
