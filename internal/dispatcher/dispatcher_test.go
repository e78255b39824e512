package dispatcher

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/snode/goqtt/internal/packet"
)

// recordingRole is a minimal Role used to exercise Dispatcher in isolation,
// without pulling in ServerRole/ClientRole and their broker/auth dependencies.
type recordingRole struct {
	started bool
	seen    []packet.Type
}

func (r *recordingRole) Start(d *Dispatcher) error {
	r.started = true
	return nil
}

func (r *recordingRole) Handle(d *Dispatcher, pkt *packet.Packet) error {
	r.seen = append(r.seen, pkt.Type)
	if pkt.Type == packet.CONNECT {
		d.ClientID = pkt.Connect.ClientID
		d.KeepAlive = pkt.Connect.KeepAlive
		d.State = Connected
	}
	if pkt.Type == packet.DISCONNECT {
		d.State = Disconnecting
	}
	return nil
}

func runDispatcher(role Role, conn net.Conn) (*Dispatcher, chan error) {
	d := New(conn, role)
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()
	return d, done
}

func TestDispatcherRejectsPacketBeforeConnect(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	role := &recordingRole{}
	_, done := runDispatcher(role, server)

	if _, err := client.Write((&packet.PingreqPacket{}).Encode()); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error for a packet preceding CONNECT")
		}
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not return after a pre-CONNECT packet")
	}
}

func TestDispatcherRejectsSecondConnect(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	role := &recordingRole{}
	_, done := runDispatcher(role, server)

	cp := &packet.ConnectPacket{ProtocolName: "MQTT", ProtocolLevel: 4, CleanSession: true, ClientID: "c1", KeepAlive: 30}
	if _, err := client.Write(cp.Encode()); err != nil {
		t.Fatalf("write connect: %v", err)
	}
	if _, err := client.Write(cp.Encode()); err != nil {
		t.Fatalf("write second connect: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error for a second CONNECT on the same connection")
		}
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not return after a second CONNECT")
	}
}

func TestDispatcherGracefulDisconnectReturnsNil(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	role := &recordingRole{}
	_, done := runDispatcher(role, server)

	cp := &packet.ConnectPacket{ProtocolName: "MQTT", ProtocolLevel: 4, CleanSession: true, ClientID: "c1", KeepAlive: 30}
	if _, err := client.Write(cp.Encode()); err != nil {
		t.Fatalf("write connect: %v", err)
	}
	if _, err := client.Write((&packet.DisconnectPacket{}).Encode()); err != nil {
		t.Fatalf("write disconnect: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on a graceful DISCONNECT, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not return after DISCONNECT")
	}

	if len(role.seen) != 2 || role.seen[0] != packet.CONNECT || role.seen[1] != packet.DISCONNECT {
		t.Fatalf("unexpected packet sequence seen by role: %v", role.seen)
	}
}

func TestDispatcherKeepAliveTimeoutClosesConnection(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	role := &recordingRole{}
	_, done := runDispatcher(role, server)

	// A keep-alive of 1s arms a 1.5s read deadline; with no further traffic
	// from the client the next decode must time out and end the connection.
	cp := &packet.ConnectPacket{ProtocolName: "MQTT", ProtocolLevel: 4, CleanSession: true, ClientID: "c1", KeepAlive: 1}
	if _, err := client.Write(cp.Encode()); err != nil {
		t.Fatalf("write connect: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected a read-deadline error once keep-alive elapses")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("dispatcher did not time out on an idle keep-alive connection")
	}
}
