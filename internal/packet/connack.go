package packet

import "github.com/snode/goqtt/pkg/er"

// CONNACK return codes (MQTT 3.1.1 §3.2.2.3).
const (
	ConnectionAccepted          byte = 0x00
	UnacceptableProtocolVersion byte = 0x01
	IdentifierRejected          byte = 0x02
	ServerUnavailable           byte = 0x03
	BadUsernameOrPassword       byte = 0x04
	NotAuthorized               byte = 0x05
)

// ConnAckPacket is the CONNACK control packet.
type ConnAckPacket struct {
	SessionPresent bool
	ReturnCode     byte
}

// EncodeConnAck serializes a CONNACK packet directly to bytes, mirroring
// the teacher's fixed 4-byte layout (type/flags, remaining length 2,
// session-present flags, return code).
func EncodeConnAck(sessionPresent bool, returnCode byte) []byte {
	flags := byte(0x00)
	if sessionPresent {
		flags = 0x01
	}
	return []byte{byte(CONNACK), 0x02, flags, returnCode}
}

// Encode serializes the receiver to bytes.
func (cp *ConnAckPacket) Encode() []byte {
	return EncodeConnAck(cp.SessionPresent, cp.ReturnCode)
}

// Parse decodes a CONNACK packet, used by the integrator client.
func (cp *ConnAckPacket) Parse(raw []byte) error {
	if len(raw) != 4 {
		return &er.Err{Context: "ConnAck", Message: er.ErrInvalidPacketLength}
	}
	if Type(raw[0]&0xF0) != CONNACK {
		return &er.Err{Context: "ConnAck", Message: er.ErrInvalidPacketType}
	}
	if raw[1] != 0x02 {
		return &er.Err{Context: "ConnAck", Message: er.ErrInvalidPacketLength}
	}
	cp.SessionPresent = raw[2]&0x01 != 0
	cp.ReturnCode = raw[3]
	return nil
}
