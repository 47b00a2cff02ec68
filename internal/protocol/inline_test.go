package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenizeInlineSimple(t *testing.T) {
	args, err := tokenizeInline([]byte("SET key value"))
	require.NoError(t, err)
	require.Equal(t, []string{"SET", "key", "value"}, args)
}

func TestTokenizeInlineCollapsesMultipleSpaces(t *testing.T) {
	args, err := tokenizeInline([]byte("GET    foo"))
	require.NoError(t, err)
	require.Equal(t, []string{"GET", "foo"}, args)
}

func TestTokenizeInlineQuotedWithEscape(t *testing.T) {
	args, err := tokenizeInline([]byte(`SET key "hello\nworld"`))
	require.NoError(t, err)
	require.Equal(t, []string{"SET", "key", "hello\nworld"}, args)
}

func TestTokenizeInlineSingleQuote(t *testing.T) {
	args, err := tokenizeInline([]byte(`SET key 'a b c'`))
	require.NoError(t, err)
	require.Equal(t, []string{"SET", "key", "a b c"}, args)
}

func TestTokenizeInlineUnbalancedQuote(t *testing.T) {
	_, err := tokenizeInline([]byte(`SET key "unterminated`))
	require.Error(t, err)
}

func TestTokenizeInlineEmptyLine(t *testing.T) {
	args, err := tokenizeInline([]byte(""))
	require.NoError(t, err)
	require.Empty(t, args)
}

func TestParseInlineIncompleteWithoutNewline(t *testing.T) {
	consumed, _, err := parseInline([]byte("PING"))
	require.NoError(t, err)
	require.Equal(t, 0, consumed)
}
