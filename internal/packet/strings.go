package packet

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/snode/goqtt/pkg/er"
)

// decodeString reads a 2-byte-length-prefixed UTF-8 string from data and
// returns the string, the number of bytes consumed, and any error.
func decodeString(data []byte) (string, int, error) {
	if len(data) < 2 {
		return "", 0, &er.Err{Context: "decodeString", Message: er.ErrShortBuffer}
	}

	length := int(binary.BigEndian.Uint16(data[:2]))
	if len(data) < 2+length {
		return "", 0, &er.Err{Context: "decodeString", Message: er.ErrRemainingLenMissmatch}
	}

	s := string(data[2 : 2+length])
	if !utf8.ValidString(s) {
		return "", 0, &er.Err{Context: "decodeString", Message: er.ErrInvalidUTF8String}
	}

	return s, 2 + length, nil
}

// encodeString encodes s with a 2-byte big-endian length prefix.
func encodeString(s string) []byte {
	buf := make([]byte, 2+len(s))
	binary.BigEndian.PutUint16(buf, uint16(len(s)))
	copy(buf[2:], s)
	return buf
}

// encodeBytes encodes b with a 2-byte big-endian length prefix (used for
// the will message and password fields, which are binary rather than text).
func encodeBytes(b []byte) []byte {
	buf := make([]byte, 2+len(b))
	binary.BigEndian.PutUint16(buf, uint16(len(b)))
	copy(buf[2:], b)
	return buf
}
