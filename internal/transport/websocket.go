package transport

import (
	"bytes"
	"context"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	Subprotocols:    []string{"mqtt"},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsConn adapts a *websocket.Conn's framed messages to the plain
// io.ReadWriteCloser byte stream the packet decoder expects: each MQTT
// frame travels as one binary WebSocket message, but the decoder may read
// it in arbitrary-sized chunks, so partial reads are buffered across calls.
type wsConn struct {
	ws  *websocket.Conn
	buf bytes.Buffer
}

func (c *wsConn) Read(p []byte) (int, error) {
	for c.buf.Len() == 0 {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		c.buf.Write(data)
	}
	return c.buf.Read(p)
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

// ListenWebSocket starts an HTTP server on addr that upgrades requests on
// path to WebSocket connections carrying MQTT framed as binary messages
// (the `mqtt` subprotocol), per the MQTT-over-WebSockets convention.
func (s *Server) ListenWebSocket(ctx context.Context, addr, path string) error {
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			if s.Log != nil {
				s.Log.LogError(err, "websocket upgrade failed")
			}
			return
		}
		s.handleConn(ctx, &wsConn{ws: ws})
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	s.trackCloser(srv)
	go func() {
		if err := srv.ListenAndServe(); err != nil && s.Log != nil {
			s.Log.LogError(err, "websocket listener stopped")
		}
	}()
	return nil
}
