// Package server implements the per-connection state machine: protocol
// negotiation, command dispatch, and the metrics/logging wrapped around
// both.
package server

import (
	"context"
	"net"

	"github.com/rkvd/rkvd/internal/config"
	"github.com/rkvd/rkvd/internal/protocol"
	"github.com/rkvd/rkvd/internal/storage"
)

// connState is the per-connection data the base spec calls out
// explicitly: the negotiated protocol version, the codec's residual
// buffer (owned by the decoder itself), and shared references to the
// backend and configuration snapshot. It needs no synchronization: one
// goroutine owns it for the connection's whole lifetime.
type connState struct {
	id      int64
	version int
	backend storage.Backend
	cfg     config.Config
	decoder *protocol.Decoder
	netConn net.Conn
}

func newConnState(id int64, nc net.Conn, backend storage.Backend, cfg config.Config) *connState {
	return &connState{
		id:      id,
		version: 2,
		backend: backend,
		cfg:     cfg,
		decoder: protocol.NewDecoder(),
		netConn: nc,
	}
}

// dispatch turns one parsed request frame into a reply frame. It never
// returns an error: every failure mode is represented as a RESP error
// reply, so the caller's read loop never has to special-case a broken
// command versus a broken connection.
// dispatch returns (reply, true) for a request that expects a reply, or
// (Frame{}, false) for a blank inline line, which Redis silently
// ignores rather than answering.
func dispatch(ctx context.Context, st *connState, req protocol.Frame) (protocol.Frame, bool) {
	if len(req.Elems) == 0 {
		return protocol.Frame{}, false
	}

	name := normalizeCommand(req.Elems[0].Text(), st.cfg)
	return dispatchCommand(ctx, st, name, req.Elems[1:]), true
}

// normalizeCommand upper-cases command names for lookup, matching the
// case-insensitive command-name convention every Redis client assumes.
func normalizeCommand(cmd string, _ config.Config) string {
	return upper(cmd)
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}
