package dispatcher

import (
	"io"

	"github.com/snode/goqtt/internal/auth"
	"github.com/snode/goqtt/internal/broker"
	"github.com/snode/goqtt/internal/logger"
	"github.com/snode/goqtt/internal/packet"
	"github.com/snode/goqtt/pkg/er"
)

// ServerRole is the broker-side Role: it waits for the client's CONNECT,
// authenticates it, and routes every subsequent packet through the broker
// facade.
type ServerRole struct {
	Broker *broker.Broker
	Auth   *auth.Store
	Log    *logger.Logger
}

// Start does nothing — the server waits for the client to speak first.
func (r *ServerRole) Start(d *Dispatcher) error { return nil }

// Handle processes one packet from an MQTT client.
func (r *ServerRole) Handle(d *Dispatcher, pkt *packet.Packet) error {
	switch pkt.Type {
	case packet.CONNECT:
		return r.handleConnect(d, pkt.Connect)

	case packet.PUBLISH:
		ack := r.Broker.HandleIncomingPublish(d.ClientID, pkt.Publish)
		switch ack.Type {
		case packet.PUBACK:
			return d.Write(ack.Puback.Encode())
		case packet.PUBREC:
			return d.Write(ack.Pubrec.Encode())
		}
		return nil

	case packet.PUBACK:
		r.Broker.HandlePubAck(d.ClientID, pkt.Puback.PacketID)
		return nil

	case packet.PUBREC:
		r.Broker.HandlePubRec(d.ClientID, pkt.Pubrec.PacketID)
		return nil

	case packet.PUBREL:
		pubcomp := r.Broker.HandlePubRel(d.ClientID, pkt.Pubrel.PacketID)
		return d.Write(pubcomp.Encode())

	case packet.PUBCOMP:
		r.Broker.HandlePubComp(d.ClientID, pkt.Pubcomp.PacketID)
		return nil

	case packet.SUBSCRIBE:
		suback := r.Broker.HandleSubscribe(d.ClientID, pkt.Subscribe)
		return d.Write(suback.Encode())

	case packet.UNSUBSCRIBE:
		unsuback := r.Broker.HandleUnsubscribe(d.ClientID, pkt.Unsubscribe)
		return d.Write(unsuback.Encode())

	case packet.PINGREQ:
		return d.Write(packet.NewPingresp().Encode())

	case packet.DISCONNECT:
		d.State = Disconnecting
		r.Broker.Disconnect(d.ClientID)
		return nil

	default:
		return &er.Err{Context: "ServerRole", Message: er.ErrUnknownPacketType}
	}
}

func (r *ServerRole) handleConnect(d *Dispatcher, cp *packet.ConnectPacket) error {
	if cp.UsernameFlag && cp.PasswordFlag && r.Auth != nil {
		if err := r.Auth.Authenticate(cp.Username, string(cp.Password)); err != nil {
			if r.Log != nil {
				r.Log.LogAuth(cp.ClientID, cp.Username, false, err.Error())
			}
			_ = d.Write(packet.EncodeConnAck(false, packet.BadUsernameOrPassword))
			return err
		}
		if r.Log != nil {
			r.Log.LogAuth(cp.ClientID, cp.Username, true, "")
		}
	}

	conn, ok := d.Conn.(io.Writer)
	if !ok {
		return &er.Err{Context: "ServerRole", Message: er.ErrInvalidConnPacket}
	}

	d.ClientID = cp.ClientID
	d.KeepAlive = cp.KeepAlive

	sessionPresent := r.Broker.Connect(cp.ClientID, cp.CleanSession, conn)
	if cp.WillFlag {
		r.Broker.SetWill(cp.ClientID, cp.WillTopic, cp.WillMessage, cp.WillQoS, cp.WillRetain)
	}

	if r.Log != nil {
		r.Log.LogClientConnection(cp.ClientID, "", "connect")
	}

	d.State = Connected
	return d.Write(packet.EncodeConnAck(sessionPresent, packet.ConnectionAccepted))
}
