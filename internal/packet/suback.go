package packet

import (
	"encoding/binary"

	"github.com/snode/goqtt/pkg/er"
)

// SUBACK return codes (MQTT 3.1.1 §3.9.3).
const (
	SubackMaxQoS0 byte = 0x00
	SubackMaxQoS1 byte = 0x01
	SubackMaxQoS2 byte = 0x02
	SubackFailure byte = 0x80
)

// SubackPacket is the broker's response to a SUBSCRIBE packet.
type SubackPacket struct {
	PacketID    uint16
	ReturnCodes []byte
}

// NewSubAck builds a SUBACK granting each subscription its requested QoS.
// Downgrading to a lower granted QoS (e.g. by server policy) belongs to the
// caller, which should set the wanted QoS on each Subscription beforehand.
func NewSubAck(sp *SubscribePacket) *SubackPacket {
	codes := make([]byte, len(sp.Subscriptions))
	for i, s := range sp.Subscriptions {
		switch s.QoS {
		case QoSAtMostOnce:
			codes[i] = SubackMaxQoS0
		case QoSAtLeastOnce:
			codes[i] = SubackMaxQoS1
		case QoSExactlyOnce:
			codes[i] = SubackMaxQoS2
		default:
			codes[i] = SubackFailure
		}
	}
	return &SubackPacket{PacketID: sp.PacketID, ReturnCodes: codes}
}

// Encode serializes the SUBACK packet.
func (p *SubackPacket) Encode() []byte {
	body := make([]byte, 2, 2+len(p.ReturnCodes))
	binary.BigEndian.PutUint16(body, p.PacketID)
	body = append(body, p.ReturnCodes...)

	header := append([]byte{byte(SUBACK)}, EncodeRemainingLength(len(body))...)
	return append(header, body...)
}

// Parse decodes a SUBACK packet, used by the integrator client.
func (p *SubackPacket) Parse(raw []byte) error {
	if len(raw) < 4 {
		return &er.Err{Context: "SubAck", Message: er.ErrShortBuffer}
	}
	if Type(raw[0]&0xF0) != SUBACK {
		return &er.Err{Context: "SubAck", Message: er.ErrInvalidPacketType}
	}

	remainingLength, rlLen, err := DecodeRemainingLength(raw[1:])
	if err != nil {
		return err
	}
	offset := 1 + rlLen
	if offset+remainingLength != len(raw) {
		return &er.Err{Context: "SubAck", Message: er.ErrInvalidPacketLength}
	}
	if remainingLength < 2 {
		return &er.Err{Context: "SubAck", Message: er.ErrInvalidPacketLength}
	}

	p.PacketID = binary.BigEndian.Uint16(raw[offset : offset+2])
	p.ReturnCodes = append([]byte(nil), raw[offset+2:]...)
	return nil
}
