package server

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rkvd/rkvd/internal/config"
	"github.com/rkvd/rkvd/internal/logging"
	"github.com/rkvd/rkvd/internal/metrics"
	"github.com/rkvd/rkvd/internal/protocol"
	"github.com/rkvd/rkvd/internal/rerrors"
	"github.com/rkvd/rkvd/internal/storage"
)

const readBufferSize = 4096

// Server owns the TCP listener and every accepted connection's
// goroutine. Each connection gets its own goroutine and its own
// connState; nothing about a connection's codec or negotiated version
// is shared, so no locking is needed there. The backend and config
// snapshot are shared read-only across all connections.
type Server struct {
	cfg     config.Config
	backend storage.Backend

	mu        sync.Mutex
	listener  net.Listener
	conns     map[net.Conn]struct{}
	nextConnID int64

	wg sync.WaitGroup
}

// New constructs a Server bound to backend, not yet listening.
func New(cfg config.Config, backend storage.Backend) *Server {
	return &Server{
		cfg:     cfg,
		backend: backend,
		conns:   make(map[net.Conn]struct{}),
	}
}

// ListenAndServe binds the TCP listener and accepts connections until
// ctx is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	logging.Infof("listening on %s", addr)

	go func() {
		<-ctx.Done()
		_ = s.Shutdown()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				return err
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, nc)
		}()
	}
}

// Shutdown closes the listener and every tracked connection, causing
// every connection goroutine's blocking Read to return and exit.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	return nil
}

func (s *Server) trackConn(nc net.Conn) {
	s.mu.Lock()
	s.conns[nc] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrackConn(nc net.Conn) {
	s.mu.Lock()
	delete(s.conns, nc)
	s.mu.Unlock()
}

func (s *Server) handleConn(ctx context.Context, nc net.Conn) {
	id := atomic.AddInt64(&s.nextConnID, 1)
	s.trackConn(nc)
	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Inc()

	defer func() {
		_ = nc.Close()
		s.untrackConn(nc)
		metrics.ConnectionsActive.Dec()
	}()

	st := newConnState(id, nc, s.backend, s.cfg)
	buf := make([]byte, readBufferSize)
	out := make([]byte, 0, readBufferSize)

	for {
		n, err := nc.Read(buf)
		if n > 0 {
			st.decoder.Feed(buf[:n])
		}
		if err != nil {
			if err != io.EOF {
				logging.Debugf("connection %d: %v", id, rerrors.WrapIO(err, "read failed"))
			}
			return
		}

		out = out[:0]
		for {
			frame, ok, decErr := st.decoder.Next()
			if decErr != nil {
				metrics.RecordError("protocol", "")
				out = protocol.Encode(out, protocol.ErrorReply("ERR Protocol error: "+decErr.Error()))
				st.decoder.Reset()
				break
			}
			if !ok {
				break
			}

			reqTimer := metrics.NewTimer()
			reply, expectsReply := dispatch(ctx, st, frame)
			metrics.RecordRequest(time.Duration(reqTimer.ElapsedSeconds() * float64(time.Second)))
			if expectsReply {
				out = protocol.Encode(out, reply)
			}
		}

		if len(out) > 0 {
			if _, werr := nc.Write(out); werr != nil {
				logging.Debugf("connection %d: %v", id, rerrors.WrapIO(werr, "write failed"))
				return
			}
		}
	}
}
