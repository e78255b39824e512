package integrator

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/snode/goqtt/internal/dispatcher"
	"github.com/snode/goqtt/internal/mapping"
	"github.com/snode/goqtt/internal/packet"
)

const testMappingDoc = `{
  "connection": {"keep_alive": 30, "client_id": "bridge", "clean_session": true},
  "mappings": {
    "name": "test01",
    "topic_level": {
      "name": "button1",
      "subscription": {
        "qos": 0,
        "static": {
          "mapped_topic": "test02/onboard/set",
          "retain_message": false,
          "message_mapping": [{"message": "pressed", "mapped_message": "on"}]
        }
      }
    }
  }
}`

func TestClientRoleConnectAndTranslate(t *testing.T) {
	doc, err := mapping.Parse([]byte(testMappingDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	clientConn, brokerConn := net.Pipe()
	defer clientConn.Close()
	defer brokerConn.Close()

	role := &ClientRole{Doc: doc}
	d := dispatcher.New(clientConn, role)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	dec := packet.NewDecoder(brokerConn)

	connectPkt, err := dec.Next()
	if err != nil {
		t.Fatalf("reading CONNECT: %v", err)
	}
	if connectPkt.Type != packet.CONNECT || connectPkt.Connect.ClientID != "bridge" {
		t.Fatalf("unexpected first packet: %+v", connectPkt)
	}

	if _, err := brokerConn.Write(packet.EncodeConnAck(false, packet.ConnectionAccepted)); err != nil {
		t.Fatalf("write CONNACK: %v", err)
	}

	connJSON, err := dec.Next()
	if err != nil || connJSON.Type != packet.PUBLISH || connJSON.Publish.Topic != ConfigConnectionTopic {
		t.Fatalf("expected connection config publish, got %+v, err=%v", connJSON, err)
	}
	mapJSON, err := dec.Next()
	if err != nil || mapJSON.Type != packet.PUBLISH || mapJSON.Publish.Topic != ConfigMappingTopic {
		t.Fatalf("expected mapping config publish, got %+v, err=%v", mapJSON, err)
	}

	sub, err := dec.Next()
	if err != nil || sub.Type != packet.SUBSCRIBE {
		t.Fatalf("expected SUBSCRIBE, got %+v, err=%v", sub, err)
	}
	if len(sub.Subscribe.Subscriptions) != 1 || sub.Subscribe.Subscriptions[0].Filter != "test01/button1" {
		t.Fatalf("unexpected subscriptions: %+v", sub.Subscribe.Subscriptions)
	}

	pub := &packet.PublishPacket{Topic: "test01/button1", Payload: []byte("pressed"), QoS: packet.QoSAtMostOnce}
	if _, err := brokerConn.Write(pub.Encode()); err != nil {
		t.Fatalf("write PUBLISH: %v", err)
	}

	translated, err := dec.Next()
	if err != nil {
		t.Fatalf("reading translated publish: %v", err)
	}
	if translated.Type != packet.PUBLISH || translated.Publish.Topic != "test02/onboard/set" || string(translated.Publish.Payload) != "on" {
		t.Fatalf("unexpected translated publish: %+v", translated.Publish)
	}

	_ = brokerConn.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not exit after connection close")
	}
}
