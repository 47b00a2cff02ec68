package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecoderSimpleString(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("+OK\r\n"))
	frame, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TypeSimpleString, frame.Type)
	require.Equal(t, "OK", frame.Str)
}

func TestDecoderArrayOfBulks(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))
	frame, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"GET", "foo"}, frame.Args())
}

func TestDecoderNullBulkAndArray(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("$-1\r\n*-1\r\n"))

	f1, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TypeNullBulk, f1.Type)
	require.True(t, f1.IsNull)

	f2, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TypeNullArray, f2.Type)
}

func TestDecoderIncompleteIsNonDestructive(t *testing.T) {
	full := "*2\r\n$3\r\nSET\r\n$3\r\nbar\r\n"
	d := NewDecoder()
	// feed one byte at a time; Next must report incomplete until the
	// whole frame has arrived, and never mutate the pending buffer.
	for i := 0; i < len(full)-1; i++ {
		d.Feed([]byte{full[i]})
		frame, ok, err := d.Next()
		require.NoError(t, err)
		require.False(t, ok)
		require.Equal(t, Frame{}, frame)
	}
	d.Feed([]byte{full[len(full)-1]})
	frame, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"SET", "bar"}, frame.Args())
}

func TestDecoderMalformedFaultsUntilReset(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("$abc\r\n"))
	_, ok, err := d.Next()
	require.Error(t, err)
	require.False(t, ok)
	require.True(t, d.Faulted())

	_, _, err = d.Next()
	require.Error(t, err)

	d.Reset()
	require.False(t, d.Faulted())
	d.Feed([]byte("+OK\r\n"))
	frame, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "OK", frame.Str)
}

func TestDecoderInlineCommand(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("PING\r\n"))
	frame, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TypeInline, frame.Type)
	require.Equal(t, []string{"PING"}, frame.Args())
}

func TestDecoderRESP3Types(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("#t\r\n_\r\n,1.5\r\n"))
	f1, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TypeBoolean, f1.Type)
	require.True(t, f1.Bool)

	f2, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TypeNull, f2.Type)

	f3, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TypeDouble, f3.Type)
	require.Equal(t, 1.5, f3.Float)
}

func TestDecoderSequentialFramesOnOneRead(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("+A\r\n+B\r\n"))
	f1, ok, _ := d.Next()
	require.True(t, ok)
	require.Equal(t, "A", f1.Str)
	f2, ok, _ := d.Next()
	require.True(t, ok)
	require.Equal(t, "B", f2.Str)
	_, ok, err := d.Next()
	require.NoError(t, err)
	require.False(t, ok)
}
