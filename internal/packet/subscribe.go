package packet

import (
	"encoding/binary"

	"github.com/snode/goqtt/pkg/er"
)

// Subscription is a single topic filter / requested QoS pair within a
// SUBSCRIBE packet.
type Subscription struct {
	Filter string
	QoS    QoSLevel
}

// SubscribePacket is the SUBSCRIBE control packet (MQTT 3.1.1 §3.8).
type SubscribePacket struct {
	PacketID      uint16
	Subscriptions []Subscription
}

// Parse decodes a SUBSCRIBE packet from a fully-buffered raw frame.
func (sp *SubscribePacket) Parse(raw []byte) error {
	if len(raw) < 2 {
		return &er.Err{Context: "Subscribe", Message: er.ErrInvalidSubscribePacket}
	}
	if Type(raw[0]&0xF0) != SUBSCRIBE {
		return &er.Err{Context: "Subscribe", Message: er.ErrInvalidSubscribePacket}
	}
	if raw[0]&0x0F != 0x02 {
		return &er.Err{Context: "Subscribe", Message: er.ErrInvalidSubscribeFlags}
	}

	remainingLength, rlLen, err := DecodeRemainingLength(raw[1:])
	if err != nil {
		return err
	}
	offset := 1 + rlLen
	if offset+remainingLength != len(raw) {
		return &er.Err{Context: "Subscribe", Message: er.ErrInvalidPacketLength}
	}

	if offset+2 > len(raw) {
		return &er.Err{Context: "Subscribe, PacketID", Message: er.ErrMissingPacketID}
	}
	sp.PacketID = binary.BigEndian.Uint16(raw[offset : offset+2])
	offset += 2
	if sp.PacketID == 0 {
		return &er.Err{Context: "Subscribe, PacketID", Message: er.ErrInvalidPacketID}
	}

	for offset < len(raw) {
		filter, n, err := decodeString(raw[offset:])
		if err != nil {
			return &er.Err{Context: "Subscribe, Filter", Message: err}
		}
		offset += n

		if err := ValidateTopicFilter(filter); err != nil {
			return err
		}

		if offset >= len(raw) {
			return &er.Err{Context: "Subscribe, QoS", Message: er.ErrMissingQoSByte}
		}
		qosByte := raw[offset]
		offset++
		if qosByte&0xFC != 0 {
			return &er.Err{Context: "Subscribe, QoS", Message: er.ErrInvalidQoSReservedBits}
		}
		qos := QoSLevel(qosByte)
		if qos > QoSExactlyOnce {
			return &er.Err{Context: "Subscribe, QoS", Message: er.ErrInvalidQoSLevel}
		}

		sp.Subscriptions = append(sp.Subscriptions, Subscription{Filter: filter, QoS: qos})
	}

	if len(sp.Subscriptions) == 0 {
		return &er.Err{Context: "Subscribe", Message: er.ErrNoTopicFilters}
	}

	return nil
}

// Encode serializes the SUBSCRIBE packet, used by the integrator client.
func (sp *SubscribePacket) Encode() []byte {
	var body []byte
	id := make([]byte, 2)
	binary.BigEndian.PutUint16(id, sp.PacketID)
	body = append(body, id...)

	for _, s := range sp.Subscriptions {
		body = append(body, encodeString(s.Filter)...)
		body = append(body, byte(s.QoS))
	}

	header := append([]byte{byte(SUBSCRIBE) | 0x02}, EncodeRemainingLength(len(body))...)
	return append(header, body...)
}
