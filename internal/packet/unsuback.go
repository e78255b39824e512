package packet

import (
	"encoding/binary"

	"github.com/snode/goqtt/pkg/er"
)

// UnsubackPacket acknowledges an UNSUBSCRIBE packet (MQTT 3.1.1 §3.11).
type UnsubackPacket struct{ PacketID uint16 }

// NewUnsubAck builds an UNSUBACK for the given UNSUBSCRIBE.
func NewUnsubAck(up *UnsubscribePacket) *UnsubackPacket {
	return &UnsubackPacket{PacketID: up.PacketID}
}

// Encode serializes the UNSUBACK packet.
func (p *UnsubackPacket) Encode() []byte {
	id := make([]byte, 2)
	binary.BigEndian.PutUint16(id, p.PacketID)
	return append([]byte{byte(UNSUBACK), 0x02}, id...)
}

// Parse decodes an UNSUBACK packet, used by the integrator client.
func (p *UnsubackPacket) Parse(raw []byte) error {
	if len(raw) != 4 {
		return &er.Err{Context: "UnsubAck", Message: er.ErrShortBuffer}
	}
	if Type(raw[0]&0xF0) != UNSUBACK {
		return &er.Err{Context: "UnsubAck", Message: er.ErrInvalidPacketType}
	}
	if raw[1] != 0x02 {
		return &er.Err{Context: "UnsubAck", Message: er.ErrInvalidPacketLength}
	}
	p.PacketID = binary.BigEndian.Uint16(raw[2:4])
	return nil
}
