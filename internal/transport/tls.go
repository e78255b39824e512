package transport

import (
	"context"
	"crypto/tls"
)

// ListenTLS starts accepting MQTT-over-TLS connections on addr. TLS
// termination is a transport concern stdlib already owns end to end — no
// pack library substitutes for crypto/tls here.
func (s *Server) ListenTLS(ctx context.Context, addr string, cfg *tls.Config) error {
	ln, err := tls.Listen("tcp", addr, cfg)
	if err != nil {
		return err
	}
	s.trackCloser(ln)
	go s.acceptLoop(ctx, ln)
	return nil
}
