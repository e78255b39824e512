package transport

import (
	"context"
	"net"
)

// ListenUnix starts accepting MQTT connections over a UNIX-domain stream
// socket at path, for same-host clients that want to skip the TCP stack.
func (s *Server) ListenUnix(ctx context.Context, path string) error {
	ln, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	s.trackCloser(ln)
	go s.acceptLoop(ctx, ln)
	return nil
}
