package packet

import (
	"encoding/binary"

	"github.com/snode/goqtt/pkg/er"
)

// PubAckPacket acknowledges a QoS 1 PUBLISH (MQTT 3.1.1 §3.4).
type PubAckPacket struct{ PacketID uint16 }

// PubRecPacket is the first acknowledgement of a QoS 2 PUBLISH (§3.5).
type PubRecPacket struct{ PacketID uint16 }

// PubRelPacket is the publisher's response to PUBREC (§3.6).
type PubRelPacket struct{ PacketID uint16 }

// PubCompPacket completes a QoS 2 exchange (§3.7).
type PubCompPacket struct{ PacketID uint16 }

func encodeIDPacket(t Type, flags byte, packetID uint16) []byte {
	id := make([]byte, 2)
	binary.BigEndian.PutUint16(id, packetID)
	header := []byte{byte(t) | flags, 0x02}
	return append(header, id...)
}

func parseIDPacket(raw []byte, t Type, expectFlags byte, ctx string) (uint16, error) {
	if len(raw) != 4 {
		return 0, &er.Err{Context: ctx, Message: er.ErrInvalidPacketLength}
	}
	if Type(raw[0]&0xF0) != t {
		return 0, &er.Err{Context: ctx, Message: er.ErrInvalidPacketType}
	}
	if raw[0]&0x0F != expectFlags {
		return 0, &er.Err{Context: ctx, Message: er.ErrReservedFlagsViolated}
	}
	if raw[1] != 0x02 {
		return 0, &er.Err{Context: ctx, Message: er.ErrInvalidPacketLength}
	}
	id := binary.BigEndian.Uint16(raw[2:4])
	if id == 0 {
		return 0, &er.Err{Context: ctx, Message: er.ErrInvalidPacketID}
	}
	return id, nil
}

// Encode serializes the receiver.
func (p *PubAckPacket) Encode() []byte { return encodeIDPacket(PUBACK, 0, p.PacketID) }

// Parse decodes a PUBACK packet.
func (p *PubAckPacket) Parse(raw []byte) error {
	id, err := parseIDPacket(raw, PUBACK, 0, "PubAck")
	if err != nil {
		return err
	}
	p.PacketID = id
	return nil
}

// Encode serializes the receiver.
func (p *PubRecPacket) Encode() []byte { return encodeIDPacket(PUBREC, 0, p.PacketID) }

// Parse decodes a PUBREC packet.
func (p *PubRecPacket) Parse(raw []byte) error {
	id, err := parseIDPacket(raw, PUBREC, 0, "PubRec")
	if err != nil {
		return err
	}
	p.PacketID = id
	return nil
}

// Encode serializes the receiver. PUBREL's reserved flags are fixed at
// 0b0010 (MQTT 3.1.1 §3.6.1).
func (p *PubRelPacket) Encode() []byte { return encodeIDPacket(PUBREL, 0x02, p.PacketID) }

// Parse decodes a PUBREL packet.
func (p *PubRelPacket) Parse(raw []byte) error {
	id, err := parseIDPacket(raw, PUBREL, 0x02, "PubRel")
	if err != nil {
		return err
	}
	p.PacketID = id
	return nil
}

// Encode serializes the receiver.
func (p *PubCompPacket) Encode() []byte { return encodeIDPacket(PUBCOMP, 0, p.PacketID) }

// Parse decodes a PUBCOMP packet.
func (p *PubCompPacket) Parse(raw []byte) error {
	id, err := parseIDPacket(raw, PUBCOMP, 0, "PubComp")
	if err != nil {
		return err
	}
	p.PacketID = id
	return nil
}
