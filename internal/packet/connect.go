package packet

import (
	"encoding/binary"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/snode/goqtt/pkg/er"
)

// ConnectPacket is the CONNECT control packet (MQTT 3.1.1 §3.1).
type ConnectPacket struct {
	// Variable header
	ProtocolName  string
	ProtocolLevel byte
	UsernameFlag  bool
	PasswordFlag  bool
	WillRetain    bool
	WillQoS       QoSLevel
	WillFlag      bool
	CleanSession  bool
	KeepAlive     uint16

	// Payload
	ClientID    string
	WillTopic   string
	WillMessage []byte
	Username    string
	Password    []byte
}

// Parse decodes a CONNECT packet from a fully-buffered raw frame, including
// the fixed header.
func (cp *ConnectPacket) Parse(raw []byte) error {
	if len(raw) < 4 {
		return &er.Err{Context: "Connect", Message: er.ErrInvalidConnPacket}
	}
	if Type(raw[0]&0xF0) != CONNECT {
		return &er.Err{Context: "Connect", Message: er.ErrInvalidConnPacket}
	}

	_, rlLen, err := DecodeRemainingLength(raw[1:])
	if err != nil {
		return err
	}
	offset := 1 + rlLen

	protocolName, n, err := decodeString(raw[offset:])
	if err != nil {
		return &er.Err{Context: "Connect, ProtocolName", Message: er.ErrInvalidConnPacket}
	}
	cp.ProtocolName = protocolName
	offset += n

	if cp.ProtocolName != "MQTT" {
		return &er.Err{Context: "Connect, ProtocolName", Message: er.ErrUnsupportedProtocolName}
	}

	if offset >= len(raw) {
		return &er.Err{Context: "Connect", Message: er.ErrInvalidConnPacket}
	}
	cp.ProtocolLevel = raw[offset]
	offset++
	if cp.ProtocolLevel != 4 {
		return &er.Err{Context: "Connect, ProtocolLevel", Message: er.ErrUnsupportedProtocolLevel}
	}

	if offset >= len(raw) {
		return &er.Err{Context: "Connect", Message: er.ErrInvalidConnPacket}
	}
	flags := raw[offset]
	offset++

	cp.UsernameFlag = flags&0x80 != 0
	cp.PasswordFlag = flags&0x40 != 0
	cp.WillRetain = flags&0x20 != 0
	cp.WillQoS = QoSLevel((flags & 0x18) >> 3)
	cp.WillFlag = flags&0x04 != 0
	cp.CleanSession = flags&0x02 != 0

	if cp.WillFlag && cp.WillQoS > QoSExactlyOnce {
		return &er.Err{Context: "Connect, WillQoS", Message: er.ErrInvalidWillQos}
	}
	if !cp.WillFlag && cp.WillQoS != 0 {
		return &er.Err{Context: "Connect, WillQoS", Message: er.ErrInvalidWillQos}
	}

	if offset+2 > len(raw) {
		return &er.Err{Context: "Connect", Message: er.ErrInvalidConnPacket}
	}
	cp.KeepAlive = binary.BigEndian.Uint16(raw[offset : offset+2])
	offset += 2

	clientID, n, err := decodeString(raw[offset:])
	if err != nil {
		return &er.Err{Context: "Connect, ClientID", Message: er.ErrInvalidConnPacket}
	}
	cp.ClientID = clientID
	offset += n

	if err := cp.validateClientID(); err != nil {
		if errors.Is(err, er.ErrEmptyClientID) {
			cp.ClientID = uuid.NewString()
		} else {
			return err
		}
	}

	if cp.WillFlag {
		willTopic, n, err := decodeString(raw[offset:])
		if err != nil {
			return &er.Err{Context: "Connect, WillTopic", Message: er.ErrInvalidConnPacket}
		}
		cp.WillTopic = willTopic
		offset += n

		if offset+2 > len(raw) {
			return &er.Err{Context: "Connect, WillMessage", Message: er.ErrInvalidConnPacket}
		}
		willLen := int(binary.BigEndian.Uint16(raw[offset : offset+2]))
		offset += 2
		if offset+willLen > len(raw) {
			return &er.Err{Context: "Connect, WillMessage", Message: er.ErrInvalidConnPacket}
		}
		cp.WillMessage = append([]byte(nil), raw[offset:offset+willLen]...)
		offset += willLen
	}

	if !cp.UsernameFlag && cp.PasswordFlag {
		return &er.Err{Context: "Connect, UsernameFlag", Message: er.ErrPasswordWithoutUsername}
	}

	if cp.UsernameFlag {
		username, n, err := decodeString(raw[offset:])
		if err != nil {
			return &er.Err{Context: "Connect, Username", Message: er.ErrMalformedUsernameField}
		}
		cp.Username = username
		offset += n
	}

	if cp.PasswordFlag {
		if offset+2 > len(raw) {
			return &er.Err{Context: "Connect, Password", Message: er.ErrMalformedPasswordField}
		}
		passLen := int(binary.BigEndian.Uint16(raw[offset : offset+2]))
		offset += 2
		if offset+passLen > len(raw) {
			return &er.Err{Context: "Connect, Password", Message: er.ErrMalformedPasswordField}
		}
		cp.Password = append([]byte(nil), raw[offset:offset+passLen]...)
		offset += passLen
	}

	return nil
}

func (cp *ConnectPacket) validateClientID() error {
	if len(cp.ClientID) == 0 {
		if !cp.CleanSession {
			return &er.Err{Context: "Connect, ClientID", Message: er.ErrEmptyAndCleanSessionClientID}
		}
		return &er.Err{Context: "Connect, ClientID", Message: er.ErrEmptyClientID}
	}

	if len(cp.ClientID) > 23 {
		return &er.Err{Context: "Connect, ClientID", Message: er.ErrClientIDLengthExceed}
	}

	const allowed = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	for _, r := range cp.ClientID {
		if !strings.ContainsRune(allowed, r) {
			return &er.Err{Context: "Connect, ClientID", Message: er.ErrInvalidCharsClientID}
		}
	}
	return nil
}

// Encode serializes the CONNECT packet, used by the integrator client.
func (cp *ConnectPacket) Encode() []byte {
	var body []byte
	body = append(body, encodeString("MQTT")...)
	body = append(body, 4) // protocol level: MQTT 3.1.1

	var flags byte
	if cp.UsernameFlag {
		flags |= 0x80
	}
	if cp.PasswordFlag {
		flags |= 0x40
	}
	if cp.WillFlag {
		if cp.WillRetain {
			flags |= 0x20
		}
		flags |= byte(cp.WillQoS) << 3
		flags |= 0x04
	}
	if cp.CleanSession {
		flags |= 0x02
	}
	body = append(body, flags)

	keepAlive := make([]byte, 2)
	binary.BigEndian.PutUint16(keepAlive, cp.KeepAlive)
	body = append(body, keepAlive...)

	body = append(body, encodeString(cp.ClientID)...)

	if cp.WillFlag {
		body = append(body, encodeString(cp.WillTopic)...)
		body = append(body, encodeBytes(cp.WillMessage)...)
	}
	if cp.UsernameFlag {
		body = append(body, encodeString(cp.Username)...)
	}
	if cp.PasswordFlag {
		body = append(body, encodeBytes(cp.Password)...)
	}

	header := append([]byte{byte(CONNECT)}, EncodeRemainingLength(len(body))...)
	return append(header, body...)
}
