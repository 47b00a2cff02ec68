package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rkvd/rkvd/internal/config"
	"github.com/rkvd/rkvd/internal/protocol"
	"github.com/rkvd/rkvd/internal/storage/memory"
)

func newTestState() *connState {
	backend := memory.New(0)
	return newConnState(1, nil, backend, config.Defaults())
}

func TestDispatchPing(t *testing.T) {
	st := newTestState()
	reply, ok := dispatch(context.Background(), st, protocol.NewBulkArray("PING"))
	require.True(t, ok)
	require.Equal(t, protocol.TypeSimpleString, reply.Type)
	require.Equal(t, "PONG", reply.Str)
}

func TestDispatchSetGet(t *testing.T) {
	st := newTestState()
	ctx := context.Background()

	reply, _ := dispatch(ctx, st, protocol.NewBulkArray("SET", "k", "v"))
	require.Equal(t, "OK", reply.Str)

	reply, _ = dispatch(ctx, st, protocol.NewBulkArray("GET", "k"))
	require.Equal(t, protocol.TypeBulkString, reply.Type)
	require.Equal(t, "v", reply.Bulk)
}

func TestDispatchGetMissingIsNullBulk(t *testing.T) {
	st := newTestState()
	reply, _ := dispatch(context.Background(), st, protocol.NewBulkArray("GET", "missing"))
	require.Equal(t, protocol.TypeNullBulk, reply.Type)
}

func TestDispatchDelRejectsNonBulkArgument(t *testing.T) {
	st := newTestState()
	req := protocol.NewArray(
		protocol.BulkString("DEL"),
		protocol.Integer(5),
	)
	reply, _ := dispatch(context.Background(), st, req)
	require.Equal(t, protocol.TypeError, reply.Type)
}

func TestDispatchExistsRejectsNonBulkArgument(t *testing.T) {
	st := newTestState()
	req := protocol.NewArray(
		protocol.BulkString("EXISTS"),
		protocol.Boolean(true),
	)
	reply, _ := dispatch(context.Background(), st, req)
	require.Equal(t, protocol.TypeError, reply.Type)
}

func TestDispatchDelCountsExisting(t *testing.T) {
	st := newTestState()
	ctx := context.Background()
	dispatch(ctx, st, protocol.NewBulkArray("SET", "a", "1"))
	dispatch(ctx, st, protocol.NewBulkArray("SET", "b", "2"))

	reply, _ := dispatch(ctx, st, protocol.NewBulkArray("DEL", "a", "b", "c"))
	require.Equal(t, protocol.TypeInteger, reply.Type)
	require.Equal(t, int64(2), reply.Int)
}

func TestDispatchDBSizeAndFlush(t *testing.T) {
	st := newTestState()
	ctx := context.Background()
	dispatch(ctx, st, protocol.NewBulkArray("SET", "a", "1"))

	reply, _ := dispatch(ctx, st, protocol.NewBulkArray("DBSIZE"))
	require.Equal(t, int64(1), reply.Int)

	reply, _ = dispatch(ctx, st, protocol.NewBulkArray("FLUSHDB"))
	require.Equal(t, "OK", reply.Str)

	reply, _ = dispatch(ctx, st, protocol.NewBulkArray("DBSIZE"))
	require.Equal(t, int64(0), reply.Int)
}

func TestDispatchCommandReturnsEmptyArray(t *testing.T) {
	st := newTestState()
	reply, _ := dispatch(context.Background(), st, protocol.NewBulkArray("COMMAND"))
	require.Equal(t, protocol.TypeArray, reply.Type)
	require.Empty(t, reply.Elems)
}

func TestDispatchHelloNegotiatesVersion3(t *testing.T) {
	st := newTestState()
	reply, _ := dispatch(context.Background(), st, protocol.NewBulkArray("HELLO", "3"))
	require.Equal(t, protocol.TypeMap, reply.Type)
	require.Equal(t, 3, st.version)
}

func TestDispatchHelloRejectsBadVersion(t *testing.T) {
	st := newTestState()
	reply, _ := dispatch(context.Background(), st, protocol.NewBulkArray("HELLO", "9"))
	require.Equal(t, protocol.TypeError, reply.Type)
}

func TestDispatchConfigGetWildcard(t *testing.T) {
	st := newTestState()
	reply, _ := dispatch(context.Background(), st, protocol.NewBulkArray("CONFIG", "GET", "*"))
	require.Equal(t, protocol.TypeArray, reply.Type)
	require.NotEmpty(t, reply.Elems)
}

func TestDispatchConfigGetMultipleParams(t *testing.T) {
	st := newTestState()
	reply, _ := dispatch(context.Background(), st, protocol.NewBulkArray("CONFIG", "GET", "maxmemory", "databases"))
	require.Equal(t, protocol.TypeArray, reply.Type)
	require.Len(t, reply.Elems, 4)
}

func TestDispatchConfigGetUnknownParam(t *testing.T) {
	st := newTestState()
	reply, _ := dispatch(context.Background(), st, protocol.NewBulkArray("CONFIG", "GET", "nonexistent"))
	require.Equal(t, protocol.TypeArray, reply.Type)
	require.Empty(t, reply.Elems)
}

func TestDispatchBlankInlineHasNoReply(t *testing.T) {
	st := newTestState()
	_, ok := dispatch(context.Background(), st, protocol.Frame{Type: protocol.TypeInline})
	require.False(t, ok)
}

// TestConnectionSurvivesMalformedFrame exercises the full accept/read
// loop: a malformed frame must not close the connection, and a
// subsequent well-formed request must still succeed.
func TestConnectionSurvivesMalformedFrame(t *testing.T) {
	backend := memory.New(0)
	srv := New(config.Defaults(), backend)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		srv.handleConn(ctx, serverConn)
		close(done)
	}()

	_, err := clientConn.Write([]byte("$abc\r\n"))
	require.NoError(t, err)

	buf := make([]byte, 256)
	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := clientConn.Read(buf)
	require.NoError(t, err)
	require.Contains(t, string(buf[:n]), "Protocol error")

	_, err = clientConn.Write([]byte("*1\r\n$4\r\nPING\r\n"))
	require.NoError(t, err)

	n, err = clientConn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "+PONG\r\n", string(buf[:n]))

	clientConn.Close()
	<-done
}
