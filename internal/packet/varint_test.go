package packet

import "testing"

func TestRemainingLengthRoundTrip(t *testing.T) {
	cases := []int{0, 1, 127, 128, 16383, 16384, 2097151, 2097152, MaxRemainingLength}

	for _, length := range cases {
		encoded := EncodeRemainingLength(length)
		decoded, consumed, err := DecodeRemainingLength(encoded)
		if err != nil {
			t.Fatalf("DecodeRemainingLength(%d): %v", length, err)
		}
		if decoded != length {
			t.Errorf("length %d round-tripped to %d", length, decoded)
		}
		if consumed != len(encoded) {
			t.Errorf("length %d: consumed %d, encoded length %d", length, consumed, len(encoded))
		}
	}
}

func TestDecodeRemainingLengthTruncated(t *testing.T) {
	_, _, err := DecodeRemainingLength([]byte{0x80})
	if err == nil {
		t.Fatal("expected error for truncated continuation byte")
	}
}

func TestDecodeRemainingLengthExceedsFourBytes(t *testing.T) {
	_, _, err := DecodeRemainingLength([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x7F})
	if err == nil {
		t.Fatal("expected error for 5-byte varint")
	}
}
