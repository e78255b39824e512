package packet

import (
	"encoding/binary"

	"github.com/snode/goqtt/pkg/er"
)

// UnsubscribePacket is the UNSUBSCRIBE control packet (MQTT 3.1.1 §3.10).
type UnsubscribePacket struct {
	PacketID     uint16
	TopicFilters []string
}

// Parse decodes an UNSUBSCRIBE packet from a fully-buffered raw frame.
func (up *UnsubscribePacket) Parse(raw []byte) error {
	if len(raw) < 2 {
		return &er.Err{Context: "Unsubscribe", Message: er.ErrInvalidUnsubscribePacket}
	}
	if Type(raw[0]&0xF0) != UNSUBSCRIBE {
		return &er.Err{Context: "Unsubscribe", Message: er.ErrInvalidUnsubscribePacket}
	}
	if raw[0]&0x0F != 0x02 {
		return &er.Err{Context: "Unsubscribe", Message: er.ErrInvalidUnsubscribeFlags}
	}

	remainingLength, rlLen, err := DecodeRemainingLength(raw[1:])
	if err != nil {
		return err
	}
	offset := 1 + rlLen
	if offset+remainingLength != len(raw) {
		return &er.Err{Context: "Unsubscribe", Message: er.ErrInvalidPacketLength}
	}

	if offset+2 > len(raw) {
		return &er.Err{Context: "Unsubscribe, PacketID", Message: er.ErrMissingPacketID}
	}
	up.PacketID = binary.BigEndian.Uint16(raw[offset : offset+2])
	offset += 2
	if up.PacketID == 0 {
		return &er.Err{Context: "Unsubscribe, PacketID", Message: er.ErrInvalidPacketID}
	}

	for offset < len(raw) {
		filter, n, err := decodeString(raw[offset:])
		if err != nil {
			return &er.Err{Context: "Unsubscribe, Filter", Message: err}
		}
		offset += n

		if err := ValidateTopicFilter(filter); err != nil {
			return err
		}

		up.TopicFilters = append(up.TopicFilters, filter)
	}

	if len(up.TopicFilters) == 0 {
		return &er.Err{Context: "Unsubscribe", Message: er.ErrNoTopicFilters}
	}

	return nil
}

// Encode serializes the UNSUBSCRIBE packet, used by the integrator client.
func (up *UnsubscribePacket) Encode() []byte {
	var body []byte
	id := make([]byte, 2)
	binary.BigEndian.PutUint16(id, up.PacketID)
	body = append(body, id...)

	for _, f := range up.TopicFilters {
		body = append(body, encodeString(f)...)
	}

	header := append([]byte{byte(UNSUBSCRIBE) | 0x02}, EncodeRemainingLength(len(body))...)
	return append(header, body...)
}
