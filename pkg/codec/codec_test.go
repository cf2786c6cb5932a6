package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tdierrors "github.com/conneroisu/tdi/internal/errors"
)

func TestNewResolvesLabels(t *testing.T) {
	tests := []struct {
		label    string
		expected string
	}{
		{"", "utf-8"},
		{"UTF8", "utf-8"},
		{"latin1", "windows-1252"},
		{"ISO-8859-1", "windows-1252"},
		{"shift_jis", "shift_jis"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			c, err := New(tt.label)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, c.Name())
		})
	}

	_, err := New("klingon")
	require.Error(t, err)
	assert.True(t, errors.Is(err, tdierrors.ErrUnknownEncoding))
}

func TestDecodeText(t *testing.T) {
	c, err := New("windows-1252")
	require.NoError(t, err)

	text, err := c.DecodeText("caf\xe9 &amp; &#65;&lt;")
	require.NoError(t, err)
	assert.Equal(t, "café & A<", text)

	raw, err := c.Decode([]byte("caf\xe9 &amp;"))
	require.NoError(t, err)
	assert.Equal(t, "café &amp;", raw)
}

func TestEncodeText(t *testing.T) {
	c, err := New("windows-1252")
	require.NoError(t, err)

	raw, err := c.EncodeText("café <b> & co")
	require.NoError(t, err)
	assert.Equal(t, "caf\xe9 &lt;b&gt; &amp; co", raw)

	b, err := c.Encode("café")
	require.NoError(t, err)
	assert.Equal(t, []byte("caf\xe9"), b)
}

func TestEncodePolicies(t *testing.T) {
	t.Run("replace", func(t *testing.T) {
		c, err := New("windows-1252", WithPolicy(Replace))
		require.NoError(t, err)
		raw, err := c.EncodeText("snow ☃")
		require.NoError(t, err)
		assert.Equal(t, "snow &#9731;", raw)
	})

	t.Run("replace text mode", func(t *testing.T) {
		c, err := New("windows-1252", WithPolicy(Replace), WithMode(TextMode))
		require.NoError(t, err)
		raw, err := c.EncodeText("snow ☃")
		require.NoError(t, err)
		assert.NotContains(t, raw, "☃")
		assert.NotContains(t, raw, "&#")
		assert.Len(t, raw, len("snow ")+1)
	})

	t.Run("ignore", func(t *testing.T) {
		c, err := New("windows-1252", WithPolicy(Ignore))
		require.NoError(t, err)
		raw, err := c.EncodeText("snow ☃!")
		require.NoError(t, err)
		assert.Equal(t, "snow !", raw)
	})

	t.Run("strict", func(t *testing.T) {
		c, err := New("windows-1252", WithPolicy(Strict))
		require.NoError(t, err)
		_, err = c.EncodeText("snow ☃")
		require.Error(t, err)
		assert.True(t, errors.Is(err, tdierrors.ErrEncodeFailed))
	})
}

func TestDecodePoliciesUTF8(t *testing.T) {
	tests := []struct {
		policy   Policy
		expected string
		wantErr  bool
	}{
		{Strict, "", true},
		{Ignore, "ab", false},
		{Replace, "a\uFFFDb", false},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			c, err := New("utf-8", WithPolicy(tt.policy))
			require.NoError(t, err)

			text, err := c.DecodeText("a\xffb")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tdierrors.ErrDecodeFailed))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, text)
		})
	}
}

func TestDecodePoliciesLegacyCharsets(t *testing.T) {
	for _, charset := range []string{"shift_jis", "euc-kr", "gbk"} {
		t.Run(charset, func(t *testing.T) {
			strict, err := New(charset, WithPolicy(Strict))
			require.NoError(t, err)

			_, err = strict.DecodeText("ok\x81")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tdierrors.ErrDecodeFailed))

			text, err := strict.DecodeText("ok")
			require.NoError(t, err)
			assert.Equal(t, "ok", text)

			replace, err := New(charset, WithPolicy(Replace))
			require.NoError(t, err)
			text, err = replace.DecodeText("ok\x81")
			require.NoError(t, err)
			assert.Equal(t, "ok\uFFFD", text)
		})
	}

	t.Run("encoded replacement character", func(t *testing.T) {
		c, err := New("gb18030", WithPolicy(Strict))
		require.NoError(t, err)

		text, err := c.DecodeText("a\x84\x31\xa4\x37b")
		require.NoError(t, err)
		assert.Equal(t, "a\uFFFDb", text)
	})
}

func TestAttributes(t *testing.T) {
	c := Default()

	v, err := c.DecodeAttr(`"a &amp; b"`)
	require.NoError(t, err)
	assert.Equal(t, "a & b", v)

	v, err = c.DecodeAttr(`bare`)
	require.NoError(t, err)
	assert.Equal(t, "bare", v)

	lit, err := c.EncodeAttr(`say "hi" & <bye>`)
	require.NoError(t, err)
	assert.Equal(t, `"say &#34;hi&#34; &amp; &lt;bye&gt;"`, lit)

	back, err := c.DecodeAttr(lit)
	require.NoError(t, err)
	assert.Equal(t, `say "hi" & <bye>`, back)
}

func TestTextMode(t *testing.T) {
	c, err := New("utf-8", WithMode(TextMode))
	require.NoError(t, err)

	text, err := c.DecodeText("a &amp; b")
	require.NoError(t, err)
	assert.Equal(t, "a &amp; b", text)

	raw, err := c.EncodeText("1 < 2")
	require.NoError(t, err)
	assert.Equal(t, "1 < 2", raw)

	lit, err := c.EncodeAttr(`say "hi"`)
	require.NoError(t, err)
	assert.Equal(t, `'say "hi"'`, lit)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("STRICT")
	require.NoError(t, err)
	assert.Equal(t, Strict, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, Replace, p)

	_, err = ParsePolicy("panic")
	assert.Error(t, err)
}
