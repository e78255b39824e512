package broker

import (
	"time"

	"github.com/snode/goqtt/internal/packet"
)

// DefaultMaxRetries and DefaultRetryDelay bound how long an unacknowledged
// QoS 1/2 publish is redelivered before the broker gives up on it.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 30 * time.Second
	QoS2Timeout       = 5 * time.Minute
)

// PendingMessage is a QoS 1/2 publish awaiting acknowledgment from a client.
type PendingMessage struct {
	PacketID   uint16
	ClientID   string
	Topic      string
	Payload    []byte
	QoS        packet.QoSLevel
	Retain     bool
	Timestamp  time.Time
	RetryCount int
}

// ReceivedQoS2 is an inbound QoS 2 publish mid-handshake (PUBREC sent,
// awaiting PUBREL).
type ReceivedQoS2 struct {
	PacketID  uint16
	Topic     string
	Payload   []byte
	Retain    bool
	Timestamp time.Time
}

// QoSManager tracks in-flight QoS 1/2 exchanges per client. Like the rest of
// internal/broker it is accessed only from the broker's event-loop
// goroutine — no internal locking, no background goroutine of its own; the
// broker's own ticker drives retries by calling Tick.
type QoSManager struct {
	pendingQoS1  map[string]map[uint16]*PendingMessage
	pendingQoS2  map[string]map[uint16]*PendingMessage
	qos2Received map[string]map[uint16]*ReceivedQoS2
}

// NewQoSManager returns an empty QoS manager.
func NewQoSManager() *QoSManager {
	return &QoSManager{
		pendingQoS1:  make(map[string]map[uint16]*PendingMessage),
		pendingQoS2:  make(map[string]map[uint16]*PendingMessage),
		qos2Received: make(map[string]map[uint16]*ReceivedQoS2),
	}
}

// AddPendingQoS1 records a QoS 1 publish awaiting PUBACK.
func (qm *QoSManager) AddPendingQoS1(msg *PendingMessage) {
	if qm.pendingQoS1[msg.ClientID] == nil {
		qm.pendingQoS1[msg.ClientID] = make(map[uint16]*PendingMessage)
	}
	msg.Timestamp = time.Now()
	qm.pendingQoS1[msg.ClientID][msg.PacketID] = msg
}

// AddPendingQoS2 records a QoS 2 publish awaiting PUBREC.
func (qm *QoSManager) AddPendingQoS2(msg *PendingMessage) {
	if qm.pendingQoS2[msg.ClientID] == nil {
		qm.pendingQoS2[msg.ClientID] = make(map[uint16]*PendingMessage)
	}
	msg.Timestamp = time.Now()
	qm.pendingQoS2[msg.ClientID][msg.PacketID] = msg
}

// HandlePubAck completes a QoS 1 exchange. Reports whether a pending message
// matched.
func (qm *QoSManager) HandlePubAck(clientID string, packetID uint16) bool {
	if msgs, ok := qm.pendingQoS1[clientID]; ok {
		if _, ok := msgs[packetID]; ok {
			delete(msgs, packetID)
			if len(msgs) == 0 {
				delete(qm.pendingQoS1, clientID)
			}
			return true
		}
	}
	return false
}

// HandlePubRec advances a QoS 2 exchange from PUBLISH to PUBREL, returning
// the PUBREL to send.
func (qm *QoSManager) HandlePubRec(clientID string, packetID uint16) (*packet.PubRelPacket, bool) {
	msgs, ok := qm.pendingQoS2[clientID]
	if !ok {
		return nil, false
	}
	msg, ok := msgs[packetID]
	if !ok {
		return nil, false
	}
	delete(msgs, packetID)
	if len(msgs) == 0 {
		delete(qm.pendingQoS2, clientID)
	}

	if qm.qos2Received[clientID] == nil {
		qm.qos2Received[clientID] = make(map[uint16]*ReceivedQoS2)
	}
	qm.qos2Received[clientID][packetID] = &ReceivedQoS2{
		PacketID:  packetID,
		Topic:     msg.Topic,
		Payload:   msg.Payload,
		Retain:    msg.Retain,
		Timestamp: time.Now(),
	}
	return &packet.PubRelPacket{PacketID: packetID}, true
}

// HandlePubComp completes a QoS 2 outbound exchange.
func (qm *QoSManager) HandlePubComp(clientID string, packetID uint16) bool {
	if msgs, ok := qm.qos2Received[clientID]; ok {
		if _, ok := msgs[packetID]; ok {
			delete(msgs, packetID)
			if len(msgs) == 0 {
				delete(qm.qos2Received, clientID)
			}
			return true
		}
	}
	return false
}

// HandleIncomingQoS2Publish records an inbound QoS 2 publish and returns the
// PUBREC to send. A retransmitted duplicate gets the same PUBREC again
// without re-delivering the message upstream.
func (qm *QoSManager) HandleIncomingQoS2Publish(clientID string, packetID uint16, topic string, payload []byte, retain bool) (*packet.PubRecPacket, bool) {
	if msgs, ok := qm.qos2Received[clientID]; ok {
		if _, ok := msgs[packetID]; ok {
			return &packet.PubRecPacket{PacketID: packetID}, false
		}
	}

	if qm.qos2Received[clientID] == nil {
		qm.qos2Received[clientID] = make(map[uint16]*ReceivedQoS2)
	}
	qm.qos2Received[clientID][packetID] = &ReceivedQoS2{
		PacketID:  packetID,
		Topic:     topic,
		Payload:   payload,
		Retain:    retain,
		Timestamp: time.Now(),
	}
	return &packet.PubRecPacket{PacketID: packetID}, true
}

// HandleIncomingPubRel completes an inbound QoS 2 exchange, returning the
// message to deliver upstream (nil if already delivered) and the PUBCOMP to
// send.
func (qm *QoSManager) HandleIncomingPubRel(clientID string, packetID uint16) (*ReceivedQoS2, *packet.PubCompPacket) {
	if msgs, ok := qm.qos2Received[clientID]; ok {
		if msg, ok := msgs[packetID]; ok {
			delete(msgs, packetID)
			if len(msgs) == 0 {
				delete(qm.qos2Received, clientID)
			}
			return msg, &packet.PubCompPacket{PacketID: packetID}
		}
	}
	return nil, &packet.PubCompPacket{PacketID: packetID}
}

// CleanupClient discards every in-flight exchange for a disconnecting
// client.
func (qm *QoSManager) CleanupClient(clientID string) {
	delete(qm.pendingQoS1, clientID)
	delete(qm.pendingQoS2, clientID)
	delete(qm.qos2Received, clientID)
}

// Tick retries timed-out QoS 1/2 sends and drops QoS 2 receive state that
// has sat unresolved past QoS2Timeout. Called periodically by the broker's
// own ticker, never concurrently with the rest of the event loop.
func (qm *QoSManager) Tick(send func(clientID string, pp *packet.PublishPacket)) {
	now := time.Now()

	retry := func(pending map[string]map[uint16]*PendingMessage) {
		for clientID, msgs := range pending {
			for packetID, msg := range msgs {
				if now.Sub(msg.Timestamp) < DefaultRetryDelay {
					continue
				}
				if msg.RetryCount >= DefaultMaxRetries {
					delete(msgs, packetID)
					if len(msgs) == 0 {
						delete(pending, clientID)
					}
					continue
				}
				msg.RetryCount++
				msg.Timestamp = now
				send(clientID, &packet.PublishPacket{
					Topic:    msg.Topic,
					Payload:  msg.Payload,
					QoS:      msg.QoS,
					Retain:   msg.Retain,
					PacketID: msg.PacketID,
					Dup:      true,
				})
			}
		}
	}

	retry(qm.pendingQoS1)
	retry(qm.pendingQoS2)

	for clientID, msgs := range qm.qos2Received {
		for packetID, msg := range msgs {
			if now.Sub(msg.Timestamp) >= QoS2Timeout {
				delete(msgs, packetID)
				if len(msgs) == 0 {
					delete(qm.qos2Received, clientID)
				}
			}
		}
	}
}
