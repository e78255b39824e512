package packet

import "github.com/snode/goqtt/pkg/er"

// DisconnectPacket carries no variable header or payload (MQTT 3.1.1 §3.14).
type DisconnectPacket struct{}

// Parse decodes a DISCONNECT packet.
func (dp *DisconnectPacket) Parse(raw []byte) error {
	if len(raw) != 2 {
		return &er.Err{Context: "Disconnect", Message: er.ErrInvalidDisconnectPacket}
	}
	if Type(raw[0]) != DISCONNECT {
		return &er.Err{Context: "Disconnect", Message: er.ErrInvalidDisconnectPacket}
	}
	if raw[1] != 0x00 {
		return &er.Err{Context: "Disconnect", Message: er.ErrInvalidDisconnectPacket}
	}
	return nil
}

// Encode serializes the DISCONNECT packet. The integrator client does not
// send DISCONNECT when it stops.
func (dp *DisconnectPacket) Encode() []byte { return []byte{byte(DISCONNECT), 0x00} }
