package packet

import "github.com/snode/goqtt/pkg/er"

// PingreqPacket and PingrespPacket carry no variable header or payload
// (MQTT 3.1.1 §3.12, §3.13).
type PingreqPacket struct{}
type PingrespPacket struct{}

func parseFixedPacket(raw []byte, t Type, ctx string, malformed, badLength error) error {
	if len(raw) != 2 {
		return &er.Err{Context: ctx, Message: malformed}
	}
	if Type(raw[0]&0xF0) != t {
		return &er.Err{Context: ctx, Message: malformed}
	}
	if raw[0]&0x0F != 0x00 {
		return &er.Err{Context: ctx, Message: malformed}
	}
	if raw[1] != 0x00 {
		return &er.Err{Context: ctx, Message: badLength}
	}
	return nil
}

// Parse decodes a PINGREQ packet.
func (pp *PingreqPacket) Parse(raw []byte) error {
	return parseFixedPacket(raw, PINGREQ, "Pingreq", er.ErrInvalidPingreqPacket, er.ErrInvalidPingreqLength)
}

// Encode serializes the PINGREQ packet. The integrator client does not send
// PINGREQ; it issues no keep-alive pings of its own.
func (pp *PingreqPacket) Encode() []byte { return []byte{byte(PINGREQ), 0x00} }

// Parse decodes a PINGRESP packet, used by the integrator client.
func (pp *PingrespPacket) Parse(raw []byte) error {
	return parseFixedPacket(raw, PINGRESP, "Pingresp", er.ErrInvalidPingrespPacket, er.ErrInvalidPingrespLength)
}

// NewPingresp builds a PINGRESP in response to a PINGREQ.
func NewPingresp() *PingrespPacket { return &PingrespPacket{} }

// Encode serializes the PINGRESP packet.
func (pp *PingrespPacket) Encode() []byte { return []byte{byte(PINGRESP), 0x00} }
