package packet

import "github.com/snode/goqtt/pkg/er"

// EncodeRemainingLength encodes length using the MQTT base-128
// continuation-bit varint (MQTT 3.1.1 §2.2.3). Supports up to 4 bytes.
func EncodeRemainingLength(length int) []byte {
	if length < 0 {
		return []byte{0}
	}

	var encoded []byte
	for {
		b := byte(length % 128)
		length /= 128
		if length > 0 {
			b |= 0x80
		}
		encoded = append(encoded, b)
		if length == 0 || len(encoded) >= 4 {
			break
		}
	}
	return encoded
}

// DecodeRemainingLength decodes the varint remaining-length field from data.
// It returns the decoded length, the number of bytes consumed, and an error
// if the field is incomplete or exceeds the 4-byte encoding.
func DecodeRemainingLength(data []byte) (length int, consumed int, err error) {
	multiplier := 1

	for {
		if consumed >= len(data) {
			return 0, 0, &er.Err{Context: "DecodeRemainingLength", Message: er.ErrShortBuffer}
		}
		if consumed >= 4 {
			return 0, 0, &er.Err{Context: "DecodeRemainingLength", Message: er.ErrRemainingLengthExceeded}
		}

		b := data[consumed]
		length += int(b&0x7F) * multiplier
		if length > MaxRemainingLength {
			return 0, 0, &er.Err{Context: "DecodeRemainingLength", Message: er.ErrRemainingLengthExceeded}
		}

		multiplier *= 128
		consumed++

		if b&0x80 == 0 {
			break
		}
	}

	return length, consumed, nil
}
