package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/snode/goqtt/internal/broker"
	"github.com/snode/goqtt/internal/packet"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	b := broker.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	t.Cleanup(cancel)

	srv := New(b, nil, nil)
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func connectAndReadConnAck(t *testing.T, addr string, clientID string) *packet.ConnAckPacket {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	cp := &packet.ConnectPacket{ProtocolName: "MQTT", ProtocolLevel: 4, CleanSession: true, ClientID: clientID, KeepAlive: 30}
	if _, err := conn.Write(cp.Encode()); err != nil {
		t.Fatalf("write connect: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	dec := packet.NewDecoder(conn)
	pkt, err := dec.Next()
	if err != nil {
		t.Fatalf("read connack: %v", err)
	}
	if pkt.Type != packet.CONNACK {
		t.Fatalf("expected CONNACK, got %v", pkt.Type)
	}
	return pkt.Connack
}

func TestListenTCPAcceptsConnectAndRepliesConnAck(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	if err := srv.ListenTCP(ctx, "127.0.0.1:18883"); err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}

	ack := connectAndReadConnAck(t, "127.0.0.1:18883", "c1")
	if ack.ReturnCode != packet.ConnectionAccepted {
		t.Fatalf("expected connection accepted, got %v", ack.ReturnCode)
	}
}

func TestServerRefusesBeyondMaxConnections(t *testing.T) {
	srv := newTestServer(t)
	srv.MaxConnections = 1
	ctx := context.Background()
	if err := srv.ListenTCP(ctx, "127.0.0.1:18884"); err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}

	first, err := net.DialTimeout("tcp", "127.0.0.1:18884", time.Second)
	if err != nil {
		t.Fatalf("dial first: %v", err)
	}
	defer first.Close()
	if _, err := first.Write((&packet.ConnectPacket{ProtocolName: "MQTT", ProtocolLevel: 4, CleanSession: true, ClientID: "c1", KeepAlive: 30}).Encode()); err != nil {
		t.Fatalf("write first connect: %v", err)
	}
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := packet.NewDecoder(first).Next(); err != nil {
		t.Fatalf("read first connack: %v", err)
	}

	// Give the accept loop a moment to bump the connection counter before
	// the second dial races it.
	time.Sleep(50 * time.Millisecond)

	ack := connectAndReadConnAck(t, "127.0.0.1:18884", "c2")
	if ack.ReturnCode != packet.ServerUnavailable {
		t.Fatalf("expected second connection refused as server unavailable, got %v", ack.ReturnCode)
	}
}

func TestServerStopClosesListener(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	if err := srv.ListenTCP(ctx, "127.0.0.1:18885"); err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if _, err := net.DialTimeout("tcp", "127.0.0.1:18885", time.Second); err == nil {
		t.Fatal("expected dial to fail after Stop closed the listener")
	}
}
