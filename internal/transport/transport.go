// Package transport binds the dispatcher's server role to concrete network
// listeners: plain TCP, TLS, UNIX-domain sockets, and WebSocket. Every
// binding produces an io.ReadWriteCloser that internal/dispatcher drives
// identically — the wire framing above the byte stream never changes.
package transport

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/snode/goqtt/internal/auth"
	"github.com/snode/goqtt/internal/broker"
	"github.com/snode/goqtt/internal/dispatcher"
	"github.com/snode/goqtt/internal/logger"
	"github.com/snode/goqtt/internal/packet"
)

// DefaultMaxConnections bounds concurrent clients per Server, matching the
// teacher's original ceiling.
const DefaultMaxConnections = 1000

// Server fans inbound connections, on any binding, out to dispatcher
// instances running the broker's ServerRole.
type Server struct {
	Broker         *broker.Broker
	Auth           *auth.Store
	Log            *logger.Logger
	MaxConnections int

	shuttingDown atomic.Bool
	connections  atomic.Int32
	closers      []io.Closer
}

// New returns a Server wired to b and authStore.
func New(b *broker.Broker, authStore *auth.Store, log *logger.Logger) *Server {
	return &Server{
		Broker:         b,
		Auth:           authStore,
		Log:            log,
		MaxConnections: DefaultMaxConnections,
	}
}

// Stop closes every listener the server has started.
func (s *Server) Stop() error {
	s.shuttingDown.Store(true)
	var firstErr error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Server) trackCloser(c io.Closer) {
	s.closers = append(s.closers, c)
}

// unavailableReason reports why a new connection should be refused, or "".
func (s *Server) unavailableReason() string {
	if s.shuttingDown.Load() {
		return "server is shutting down"
	}
	if s.connections.Load() >= int32(s.MaxConnections) {
		return "maximum connections exceeded"
	}
	return ""
}

// handleConn runs the dispatcher's server role over conn until the
// connection ends, then fires the client's will if the end wasn't a clean
// DISCONNECT.
func (s *Server) handleConn(ctx context.Context, conn io.ReadWriteCloser) {
	defer conn.Close()

	if reason := s.unavailableReason(); reason != "" {
		_, _ = conn.Write(packet.EncodeConnAck(false, packet.ServerUnavailable))
		if s.Log != nil {
			s.Log.Warn("connection refused", logger.String("reason", reason))
		}
		return
	}

	s.connections.Add(1)
	defer s.connections.Add(-1)

	role := &dispatcher.ServerRole{Broker: s.Broker, Auth: s.Auth, Log: s.Log}
	d := dispatcher.New(conn, role)

	err := d.Run(ctx)
	if err != nil && s.Log != nil {
		s.Log.LogError(err, "connection ended")
	}

	if d.ClientID != "" && d.State != dispatcher.Disconnecting {
		s.Broker.ClientGone(d.ClientID)
	} else if d.ClientID != "" && s.Log != nil {
		s.Log.LogClientConnection(d.ClientID, "", "disconnected cleanly")
	}
}
