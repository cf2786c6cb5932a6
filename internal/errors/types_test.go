package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *TemplateError
		want string
	}{
		{
			name: "code and message",
			err:  NewTreeError(ErrCodeUnknownAddress, "unknown address a.b"),
			want: "[TREE_UNKNOWN_ADDRESS] unknown address a.b",
		},
		{
			name: "with source",
			err:  NewLexicalError(ErrCodeUnfinished, "unfinished STARTTAG").WithLocation("page.html", 3),
			want: "[LEX_UNFINISHED] page.html@3 unfinished STARTTAG",
		},
		{
			name: "source at offset zero",
			err:  NewOverlayError(ErrCodeOverlayCycle, "cycle").WithLocation("layout.html", 0),
			want: "[OVERLAY_CYCLE] layout.html cycle",
		},
		{
			name: "offset only",
			err:  NewDirectiveError(ErrCodeDirectiveSyntax, "bad").WithLocation("", 7),
			want: "[DIRECTIVE_SYNTAX] offset 7: bad",
		},
		{
			name: "with cause",
			err:  NewIOError(ErrCodeReadFailed, "reading page.html", fs.ErrPermission),
			want: "[IO_READ_FAILED] reading page.html: permission denied",
		},
		{
			name: "no code",
			err:  &TemplateError{Message: "plain"},
			want: "plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestConstructors(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name        string
		err         *TemplateError
		errType     ErrorType
		recoverable bool
		cause       error
	}{
		{"lexical", NewLexicalError(ErrCodeUnfinished, "m"), ErrorTypeLexical, false, nil},
		{"directive", NewDirectiveError(ErrCodeDirectiveSyntax, "m"), ErrorTypeDirective, true, nil},
		{"tree", NewTreeError(ErrCodeDuplicateAddress, "m"), ErrorTypeTree, false, nil},
		{"model", NewModelError(ErrCodeMissingScope, "m"), ErrorTypeModel, false, nil},
		{"decode", NewDecodeError(ErrCodeDecodeFailed, "m", cause), ErrorTypeDecode, false, cause},
		{"overlay", NewOverlayError(ErrCodeOverlayCycle, "m"), ErrorTypeOverlay, false, nil},
		{"io", NewIOError(ErrCodeReadFailed, "m", cause), ErrorTypeIO, false, cause},
		{"config", NewConfigError(ErrCodeConfigInvalid, "m"), ErrorTypeConfig, false, nil},
		{"internal", NewInternalError("INTERNAL", "m", cause), ErrorTypeInternal, false, cause},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.errType, tt.err.Type)
			assert.Equal(t, tt.recoverable, IsRecoverable(tt.err))
			assert.True(t, IsType(tt.err, tt.errType))
			assert.Equal(t, tt.cause, tt.err.Unwrap())
		})
	}
}

func TestTemplateErrorIs(t *testing.T) {
	err := NewTreeError(ErrCodeUnknownAddress, "unknown address x").WithLocation("page.html", 4)
	wrapped := fmt.Errorf("rendering: %w", err)

	assert.True(t, errors.Is(wrapped, ErrUnknownAddress))
	assert.False(t, errors.Is(wrapped, ErrDuplicateAddress))
	assert.False(t, errors.Is(wrapped, ErrMissingScope))
	assert.False(t, errors.Is(errors.New("x"), ErrUnknownAddress))
}

func TestWithContext(t *testing.T) {
	err := NewConfigError(ErrCodeConfigInvalid, "bad port").
		WithContext("field", "server.port").
		WithContext("value", 70000)

	assert.Equal(t, map[string]interface{}{"field": "server.port", "value": 70000}, err.Context)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "", CodeOf(nil))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
	assert.Equal(t, ErrCodeInvalidPath, CodeOf(fmt.Errorf("x: %w", ErrInvalidPath("../x"))))
	assert.False(t, IsType(errors.New("plain"), ErrorTypeIO))
	assert.False(t, IsRecoverable(errors.New("plain")))

	notFound := ErrTemplateNotFound("page", fs.ErrNotExist)
	assert.Equal(t, ErrCodeFileNotFound, notFound.Code)
	assert.True(t, errors.Is(notFound, fs.ErrNotExist))
	assert.Contains(t, notFound.Error(), "template not found: page")

	invalid := ErrInvalidPath("/etc/passwd")
	assert.Equal(t, "[IO_INVALID_PATH] invalid path: /etc/passwd", invalid.Error())
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeIO, ErrCodeReadFailed, "x"))
	assert.Nil(t, WrapIO(nil, ErrCodeReadFailed, "x"))
	assert.Nil(t, WrapConfig(nil, "x"))

	t.Run("plain error", func(t *testing.T) {
		err := Wrap(fs.ErrClosed, ErrorTypeDirective, ErrCodeDirectiveSyntax, "parsing")
		require.NotNil(t, err)
		assert.True(t, err.Recoverable)
		assert.True(t, errors.Is(err, fs.ErrClosed))
		assert.Equal(t, "[DIRECTIVE_SYNTAX] parsing: file already closed", err.Error())
	})

	t.Run("template error keeps location", func(t *testing.T) {
		inner := NewDirectiveError(ErrCodeDirectiveSyntax, "bad").
			WithLocation("page.html", 9).
			WithContext("attr", "tdi")
		err := WrapIO(inner, ErrCodeReadFailed, "loading page.html")
		require.NotNil(t, err)

		assert.Equal(t, ErrorTypeIO, err.Type)
		assert.False(t, err.Recoverable)
		assert.Equal(t, "page.html", err.Source)
		assert.Equal(t, 9, err.Offset)
		assert.Equal(t, "tdi", err.Context["attr"])
		assert.True(t, errors.Is(err, ErrDirectiveSyntax))
	})

	t.Run("config", func(t *testing.T) {
		err := WrapConfig(errors.New("expected int"), "decoding configuration")
		assert.True(t, IsType(err, ErrorTypeConfig))
		assert.Equal(t, ErrCodeConfigInvalid, err.Code)
	})
}
