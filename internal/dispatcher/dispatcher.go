// Package dispatcher implements the per-connection MQTT protocol state
// machine shared by the broker's server role and the integrator's client
// role. The two roles differ in which packets they send first and how they
// react to each packet type; the connection lifecycle, keep-alive watchdog
// and read loop are common and live here once, composed into both roles
// instead of duplicated or shared through a base type.
package dispatcher

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/snode/goqtt/internal/packet"
	"github.com/snode/goqtt/pkg/er"
)

// State is the connection's position in the MQTT handshake lifecycle.
type State int

const (
	AwaitingConnect State = iota
	Connected
	Disconnecting
)

// Role handles the packets a Dispatcher decodes. A role owns whatever
// broker- or client-specific state it needs; Dispatcher only drives it.
type Role interface {
	// Start runs once before the read loop begins — the server role does
	// nothing here (it waits for the client's CONNECT); the client role
	// sends its own CONNECT and returns, leaving the CONNACK to Handle.
	Start(d *Dispatcher) error
	// Handle processes one decoded packet. Returning an error ends the
	// connection; io.EOF-equivalent sentinel er.ErrUnexpectedPacketBeforeConnect
	// and friends are treated as protocol violations the same as I/O errors.
	Handle(d *Dispatcher, pkt *packet.Packet) error
}

// Dispatcher drives one connection's read loop: decode, hand to the Role,
// enforce the keep-alive watchdog, repeat until the Role or the connection
// ends it.
type Dispatcher struct {
	Conn      io.ReadWriteCloser
	ClientID  string
	State     State
	KeepAlive uint16

	decoder *packet.Decoder
	role    Role
}

// New returns a Dispatcher reading conn and driving role.
func New(conn io.ReadWriteCloser, role Role) *Dispatcher {
	return &Dispatcher{
		Conn:    conn,
		State:   AwaitingConnect,
		decoder: packet.NewDecoder(conn),
		role:    role,
	}
}

// Run starts the role, then loops decoding and dispatching packets until an
// error or a clean shutdown. It always returns (nil on graceful DISCONNECT).
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.role.Start(d); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		d.armKeepAlive()

		pkt, err := d.decoder.Next()
		if err != nil {
			return err
		}

		if d.State == AwaitingConnect && pkt.Type != packet.CONNECT && pkt.Type != packet.CONNACK {
			return &er.Err{Context: "Dispatcher", Message: er.ErrUnexpectedPacketBeforeConnect}
		}
		if pkt.Type == packet.CONNECT && d.State != AwaitingConnect {
			return &er.Err{Context: "Dispatcher", Message: er.ErrSecondConnect}
		}

		if err := d.role.Handle(d, pkt); err != nil {
			return err
		}

		if d.State == Disconnecting {
			return nil
		}
	}
}

// armKeepAlive sets the connection's read deadline to 1.5x the negotiated
// keep-alive interval (MQTT 3.1.1 §3.1.2.10), if the connection is a
// net.Conn and a keep-alive has been negotiated.
func (d *Dispatcher) armKeepAlive() {
	if d.KeepAlive == 0 {
		return
	}
	nc, ok := d.Conn.(net.Conn)
	if !ok {
		return
	}
	timeout := time.Duration(float64(d.KeepAlive) * 1.5 * float64(time.Second))
	_ = nc.SetReadDeadline(time.Now().Add(timeout))
}

// Write sends an already-encoded packet directly to the connection.
func (d *Dispatcher) Write(encoded []byte) error {
	_, err := d.Conn.Write(encoded)
	return err
}
