// Package integrator implements the bridging MQTT client: it connects to a
// broker, subscribes to every topic filter the mapping document names, and
// on each inbound PUBLISH runs the mapping engine's translate() to produce
// derived outbound publications. It composes internal/dispatcher in its
// client role rather than deriving from any shared base, mirroring the
// server role's composition.
package integrator

import (
	"encoding/json"

	"github.com/snode/goqtt/internal/dispatcher"
	"github.com/snode/goqtt/internal/logger"
	"github.com/snode/goqtt/internal/mapping"
	"github.com/snode/goqtt/internal/packet"
	"github.com/snode/goqtt/pkg/er"
)

// Well-known retained config topics the integrator announces itself on
// after a fresh (non-resumed) session, per the mapping document format.
const (
	ConfigConnectionTopic = "snode.c/_cfg_/connection"
	ConfigMappingTopic    = "snode.c/_cfg_/mapping"
)

// ClientRole is the integrator's Role: it drives the CONNECT handshake,
// announces its configuration, subscribes from the mapping tree, and
// translates every inbound publish.
type ClientRole struct {
	Doc *mapping.Document
	Log *logger.Logger

	nextID uint16
}

// Start sends the CONNECT built from the mapping document's connection
// object. Dispatcher's read loop then waits for CONNACK, which arrives
// through Handle like any other packet.
func (c *ClientRole) Start(d *Dispatcher) error {
	cp := c.buildConnect()
	d.KeepAlive = cp.KeepAlive
	return d.Write(cp.Encode())
}

func (c *ClientRole) buildConnect() *packet.ConnectPacket {
	conn := c.Doc.Connection
	cp := &packet.ConnectPacket{
		ProtocolName:  "MQTT",
		ProtocolLevel: 4,
		CleanSession:  true,
		KeepAlive:     60,
	}
	if conn == nil {
		return cp
	}
	cp.ClientID = conn.ClientID
	cp.CleanSession = conn.CleanSession
	cp.KeepAlive = conn.KeepAlive
	if conn.WillTopic != "" {
		cp.WillFlag = true
		cp.WillTopic = conn.WillTopic
		cp.WillMessage = []byte(conn.WillMessage)
		cp.WillQoS = packet.QoSLevel(conn.WillQoS)
		cp.WillRetain = conn.WillRetain
	}
	if conn.Username != "" {
		cp.UsernameFlag = true
		cp.Username = conn.Username
		if conn.Password != "" {
			cp.PasswordFlag = true
			cp.Password = []byte(conn.Password)
		}
	}
	return cp
}

// Handle processes one decoded packet arriving from the broker side of the
// bridged connection.
func (c *ClientRole) Handle(d *Dispatcher, pkt *packet.Packet) error {
	switch pkt.Type {
	case packet.CONNACK:
		return c.handleConnAck(d, pkt.Connack)

	case packet.PUBLISH:
		return c.handlePublish(d, pkt.Publish)

	case packet.PUBREC:
		return d.Write((&packet.PubRelPacket{PacketID: pkt.Pubrec.PacketID}).Encode())

	case packet.PUBREL:
		return d.Write((&packet.PubCompPacket{PacketID: pkt.Pubrel.PacketID}).Encode())

	case packet.PUBACK, packet.PUBCOMP, packet.SUBACK, packet.UNSUBACK, packet.PINGRESP:
		return nil

	default:
		return &er.Err{Context: "ClientRole", Message: er.ErrUnknownPacketType}
	}
}

func (c *ClientRole) handleConnAck(d *Dispatcher, ack *packet.ConnAckPacket) error {
	if ack.ReturnCode != packet.ConnectionAccepted {
		return &er.Err{Context: "ClientRole", Message: er.ErrConnectionRefused}
	}
	d.State = Connected

	if ack.SessionPresent {
		return nil
	}

	if err := c.announceConfig(d); err != nil {
		return err
	}
	return c.subscribeFromMapping(d)
}

func (c *ClientRole) announceConfig(d *Dispatcher) error {
	connJSON, err := json.Marshal(c.Doc.Connection)
	if err != nil {
		return err
	}
	if err := d.Write((&packet.PublishPacket{
		Topic:   ConfigConnectionTopic,
		Payload: connJSON,
		QoS:     packet.QoSAtMostOnce,
		Retain:  true,
	}).Encode()); err != nil {
		return err
	}

	return d.Write((&packet.PublishPacket{
		Topic:   ConfigMappingTopic,
		Payload: c.Doc.Raw,
		QoS:     packet.QoSAtMostOnce,
		Retain:  true,
	}).Encode())
}

func (c *ClientRole) subscribeFromMapping(d *Dispatcher) error {
	filters := c.Doc.ExtractSubscriptions()
	if len(filters) == 0 {
		return nil
	}

	sp := &packet.SubscribePacket{PacketID: c.nextPacketID()}
	for _, f := range filters {
		sp.Subscriptions = append(sp.Subscriptions, packet.Subscription{
			Filter: f.Filter,
			QoS:    packet.QoSLevel(f.QoS),
		})
	}
	return d.Write(sp.Encode())
}

func (c *ClientRole) handlePublish(d *Dispatcher, pp *packet.PublishPacket) error {
	switch pp.QoS {
	case packet.QoSAtLeastOnce:
		if err := d.Write((&packet.PubAckPacket{PacketID: pp.PacketID}).Encode()); err != nil {
			return err
		}
	case packet.QoSExactlyOnce:
		if err := d.Write((&packet.PubRecPacket{PacketID: pp.PacketID}).Encode()); err != nil {
			return err
		}
	}

	for _, t := range c.Doc.Translate(pp.Topic, pp.Payload, byte(pp.QoS)) {
		out := &packet.PublishPacket{
			Topic:   t.Topic,
			Payload: []byte(t.Payload),
			QoS:     packet.QoSLevel(t.QoS),
			Retain:  t.Retain,
		}
		if out.QoS > packet.QoSAtMostOnce {
			out.PacketID = c.nextPacketID()
		}
		if err := d.Write(out.Encode()); err != nil {
			if c.Log != nil {
				c.Log.LogError(err, "integrator: republish failed")
			}
			continue
		}
	}
	return nil
}

// nextPacketID allocates the next outbound packet identifier, 16-bit and
// non-zero, wrapping past zero.
func (c *ClientRole) nextPacketID() uint16 {
	c.nextID++
	if c.nextID == 0 {
		c.nextID = 1
	}
	return c.nextID
}

// Dispatcher and Connected are re-exported so this file
// reads naturally; the real types live in internal/dispatcher.
type Dispatcher = dispatcher.Dispatcher

const Connected = dispatcher.Connected
