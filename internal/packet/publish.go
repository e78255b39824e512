package packet

import (
	"encoding/binary"

	"github.com/snode/goqtt/pkg/er"
)

// PublishPacket is the PUBLISH control packet (MQTT 3.1.1 §3.3).
type PublishPacket struct {
	Dup      bool
	QoS      QoSLevel
	Retain   bool
	Topic    string
	PacketID uint16 // zero for QoS 0
	Payload  []byte
}

// Parse decodes a PUBLISH packet from a fully-buffered raw frame, including
// the fixed header byte.
func (pp *PublishPacket) Parse(raw []byte) error {
	if len(raw) < 2 {
		return &er.Err{Context: "Publish", Message: er.ErrInvalidPublishPacket}
	}
	if Type(raw[0]&0xF0) != PUBLISH {
		return &er.Err{Context: "Publish", Message: er.ErrInvalidPublishPacket}
	}

	flags := raw[0] & 0x0F
	pp.Dup = flags&0x08 != 0
	pp.QoS = QoSLevel((flags & 0x06) >> 1)
	pp.Retain = flags&0x01 != 0

	if pp.QoS > QoSExactlyOnce {
		return &er.Err{Context: "Publish, QoS", Message: er.ErrInvalidQoSLevel}
	}
	if pp.QoS == QoSAtMostOnce && pp.Dup {
		return &er.Err{Context: "Publish, Dup", Message: er.ErrInvalidDUPFlag}
	}

	remainingLength, rlLen, err := DecodeRemainingLength(raw[1:])
	if err != nil {
		return err
	}
	offset := 1 + rlLen
	if offset+remainingLength != len(raw) {
		return &er.Err{Context: "Publish", Message: er.ErrInvalidPacketLength}
	}

	topic, n, err := decodeString(raw[offset:])
	if err != nil {
		return &er.Err{Context: "Publish, Topic", Message: err}
	}
	offset += n

	if err := ValidateTopicName(topic); err != nil {
		return err
	}
	pp.Topic = topic

	if pp.QoS > QoSAtMostOnce {
		if offset+2 > len(raw) {
			return &er.Err{Context: "Publish, PacketID", Message: er.ErrMissingPacketID}
		}
		pp.PacketID = binary.BigEndian.Uint16(raw[offset : offset+2])
		offset += 2
		if pp.PacketID == 0 {
			return &er.Err{Context: "Publish, PacketID", Message: er.ErrInvalidPacketID}
		}
	}

	pp.Payload = append([]byte(nil), raw[offset:]...)
	return nil
}

// Encode serializes the PUBLISH packet.
func (pp *PublishPacket) Encode() []byte {
	var body []byte
	body = append(body, encodeString(pp.Topic)...)

	if pp.QoS > QoSAtMostOnce {
		id := make([]byte, 2)
		binary.BigEndian.PutUint16(id, pp.PacketID)
		body = append(body, id...)
	}
	body = append(body, pp.Payload...)

	var flags byte
	if pp.Dup {
		flags |= 0x08
	}
	flags |= byte(pp.QoS) << 1
	if pp.Retain {
		flags |= 0x01
	}

	header := append([]byte{byte(PUBLISH) | flags}, EncodeRemainingLength(len(body))...)
	return append(header, body...)
}
