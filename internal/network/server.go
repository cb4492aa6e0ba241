// Package network carries wire envelopes over QUIC: one request and one
// response per stream.
package network

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	quic "github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"credrelay/internal/wire"
)

const (
	maxStreamsPerIP = 64
	streamDeadline  = 10 * time.Second
)

// Handler executes one decoded request. Implementations must not block
// indefinitely; the stream carries a deadline.
type Handler func(wire.Request) wire.Response

type Server struct {
	log     *zap.Logger
	handler Handler

	mu       sync.Mutex
	listener *quic.Listener
	streams  map[string]int
}

func NewServer(log *zap.Logger, handler Handler) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{log: log, handler: handler, streams: make(map[string]int)}
}

// ListenAndServe blocks until ctx is cancelled or the listener fails.
// ready, if non-nil, is closed once the listener is accepting.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready chan<- struct{}) error {
	tlsConf, err := serverTLSConfig()
	if err != nil {
		return err
	}
	listener, err := quic.ListenAddr(addr, tlsConf, nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.log.Info("quic listening", zap.String("addr", addr))
	if ready != nil {
		close(ready)
	}

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn *quic.Conn) {
	ip := remoteIP(conn)
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		if !s.acquireStream(ip) {
			stream.CancelRead(0)
			_ = stream.Close()
			continue
		}
		go func(st *quic.Stream) {
			defer s.releaseStream(ip)
			defer st.Close()
			s.serveStream(st)
		}(stream)
	}
}

func (s *Server) serveStream(stream *quic.Stream) {
	_ = stream.SetDeadline(time.Now().Add(streamDeadline))
	data, err := wire.ReadFrame(stream)
	if err != nil {
		s.log.Debug("bad frame", zap.Error(err))
		return
	}
	var req wire.Request
	if err := json.Unmarshal(data, &req); err != nil {
		s.writeResponse(stream, wire.Response{OK: false, ErrorKind: wire.KindBadRequest, Error: "malformed request"})
		return
	}
	resp := s.handler(req)
	resp.ID = req.ID
	s.writeResponse(stream, resp)
}

func (s *Server) writeResponse(stream *quic.Stream, resp wire.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("encode response", zap.Error(err))
		return
	}
	if err := wire.WriteFrame(stream, data); err != nil {
		s.log.Debug("write response", zap.Error(err))
	}
}

func (s *Server) acquireStream(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streams[ip] >= maxStreamsPerIP {
		return false
	}
	s.streams[ip]++
	return true
}

func (s *Server) releaseStream(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streams[ip] <= 1 {
		delete(s.streams, ip)
		return
	}
	s.streams[ip]--
}

func remoteIP(conn *quic.Conn) string {
	addr := conn.RemoteAddr()
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// Addr reports the bound address once listening, for tests that bind
// port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
