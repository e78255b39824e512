// Package broker implements the MQTT broker core: subscription and retain
// tries, session store, QoS manager, and the facade that ties them
// together. Every data structure here is owned by a single goroutine (see
// Run) — the facade methods hand work to that goroutine over a channel
// instead of guarding state with locks.
package broker

import (
	"context"
	"io"
	"time"

	"github.com/snode/goqtt/internal/logger"
	"github.com/snode/goqtt/internal/packet"
)

// Broker is the MQTT broker core. All exported methods are safe to call
// from any goroutine; each blocks until the single owning goroutine (Run)
// has applied the operation.
type Broker struct {
	cmds chan func()

	subs     *SubscriptionTree
	retained *RetainTrie
	sessions *SessionStore
	qos      *QoSManager

	packetIDSeq uint16
	log         *logger.Logger
	store       Persister
}

// New returns a Broker. Call Run in its own goroutine to start serving.
func New(log *logger.Logger) *Broker {
	return &Broker{
		cmds:     make(chan func()),
		subs:     NewSubscriptionTree(),
		retained: NewRetainTrie(),
		sessions: NewSessionStore(),
		qos:      NewQoSManager(),
		log:      log,
	}
}

// Run is the broker's event loop: the only goroutine that ever touches the
// trie, retain trie, session store or QoS manager. It exits when ctx is
// canceled.
func (b *Broker) Run(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-b.cmds:
			fn()
		case <-ticker.C:
			b.qos.Tick(b.sendPublish)
		}
	}
}

// exec runs fn on the event-loop goroutine and waits for it to finish.
func (b *Broker) exec(fn func()) {
	done := make(chan struct{})
	b.cmds <- func() {
		fn()
		close(done)
	}
	<-done
}

// SetStore wires p as the broker's durable persistence backend. Must be
// called after Run has started, like every other Broker method; a broker
// with no store set keeps every session in memory only.
func (b *Broker) SetStore(p Persister) {
	b.exec(func() { b.store = p })
}

// LoadPersisted reloads every persisted client's subscriptions, will, and
// offline queue from the configured store and seeds them as offline
// sessions, so a persistent client's state survives a broker restart even
// before it reconnects. Must be called after Run has started, since it
// runs on the event-loop goroutine like every other Broker method. A no-op
// if no store is set.
func (b *Broker) LoadPersisted() error {
	if b.store == nil {
		return nil
	}
	var loadErr error
	b.exec(func() {
		sessions, err := b.store.LoadSessions()
		if err != nil {
			loadErr = err
			return
		}
		for clientID, ps := range sessions {
			sess := &Session{
				ClientID:    clientID,
				HasWill:     ps.HasWill,
				WillTopic:   ps.WillTopic,
				WillMessage: ps.WillMessage,
				WillQoS:     ps.WillQoS,
				WillRetain:  ps.WillRetain,
				Offline:     ps.Offline,
			}
			b.sessions.Seed(sess)
			for _, sub := range ps.Subscriptions {
				if err := b.subs.Subscribe(clientID, sub.Filter, sub.QoS); err != nil && b.log != nil {
					b.log.LogError(err, "restore subscription rejected", logger.ClientID(clientID), logger.String("filter", sub.Filter))
				}
			}
			if b.log != nil {
				b.log.LogSubscription(clientID, "", len(ps.Subscriptions), "restored")
			}
		}
	})
	return loadErr
}

// persistOffline mirrors SessionStore.Deliver's own queuing decision so a
// message that lands in a persistent client's in-memory offline queue also
// survives a broker restart.
func (b *Broker) persistOffline(clientID, topic string, payload []byte, qos packet.QoSLevel, retain bool) {
	if b.store == nil || qos == packet.QoSAtMostOnce {
		return
	}
	sess, ok := b.sessions.Get(clientID)
	if !ok || sess.Online || sess.CleanSession {
		return
	}
	if err := b.store.QueueOffline(clientID, QueuedMessage{Topic: topic, Payload: payload, QoS: qos, Retain: retain}); err != nil && b.log != nil {
		b.log.LogError(err, "persist offline message failed", logger.ClientID(clientID), logger.String("topic", topic))
	}
}

// Connect opens or resumes clientID's session against conn and reports
// whether a persisted session was resumed.
func (b *Broker) Connect(clientID string, cleanSession bool, conn io.Writer) bool {
	var sessionPresent bool
	b.exec(func() {
		sess, present := b.sessions.Open(clientID, cleanSession, conn)
		sessionPresent = present
		for _, msg := range b.sessions.DrainOffline(clientID) {
			pp := &packet.PublishPacket{Topic: msg.Topic, Payload: msg.Payload, QoS: msg.QoS, Retain: msg.Retain}
			if msg.QoS > packet.QoSAtMostOnce {
				pp.PacketID = b.nextPacketID()
			}
			_, _ = sess.Conn.Write(pp.Encode())
		}
		if b.store != nil {
			if err := b.store.ClearOfflineQueue(clientID); err != nil && b.log != nil {
				b.log.LogError(err, "clear persisted offline queue failed", logger.ClientID(clientID))
			}
		}
	})
	return sessionPresent
}

// SetWill records the will message carried by a CONNECT, if any.
func (b *Broker) SetWill(clientID string, topic string, message []byte, qos packet.QoSLevel, retain bool) {
	b.exec(func() {
		sess, ok := b.sessions.Get(clientID)
		if !ok {
			return
		}
		sess.HasWill = true
		sess.WillTopic = topic
		sess.WillMessage = message
		sess.WillQoS = qos
		sess.WillRetain = retain

		if b.store != nil && !sess.CleanSession {
			if err := b.store.SaveWill(clientID, topic, message, qos, retain); err != nil && b.log != nil {
				b.log.LogError(err, "persist will failed", logger.ClientID(clientID))
			}
		}
	})
}

// HandleSubscribe processes a SUBSCRIBE and returns the SUBACK to send.
func (b *Broker) HandleSubscribe(clientID string, sp *packet.SubscribePacket) *packet.SubackPacket {
	var suback *packet.SubackPacket
	b.exec(func() {
		codes := make([]byte, len(sp.Subscriptions))
		for i, s := range sp.Subscriptions {
			if err := b.subs.Subscribe(clientID, s.Filter, s.QoS); err != nil {
				if b.log != nil {
					b.log.LogError(err, "subscribe rejected", logger.ClientID(clientID), logger.String("filter", s.Filter))
				}
				codes[i] = packet.SubackFailure
				continue
			}

			codes[i] = grantedCode(s.QoS)
			if b.log != nil {
				b.log.LogSubscription(clientID, s.Filter, int(s.QoS), "subscribe")
			}

			if b.store != nil {
				if sess, ok := b.sessions.Get(clientID); ok && !sess.CleanSession {
					if err := b.store.SaveSubscription(clientID, s.Filter, s.QoS); err != nil && b.log != nil {
						b.log.LogError(err, "persist subscription failed", logger.ClientID(clientID), logger.String("filter", s.Filter))
					}
				}
			}

			for _, rm := range b.retained.Match(s.Filter) {
				deliveryQoS := packet.MinQoS(rm.QoS, s.QoS)
				_ = b.sessions.Deliver(clientID, rm.Topic, rm.Payload, deliveryQoS, true)
			}
		}
		suback = &packet.SubackPacket{PacketID: sp.PacketID, ReturnCodes: codes}
	})
	return suback
}

func grantedCode(qos packet.QoSLevel) byte {
	switch qos {
	case packet.QoSAtMostOnce:
		return packet.SubackMaxQoS0
	case packet.QoSAtLeastOnce:
		return packet.SubackMaxQoS1
	case packet.QoSExactlyOnce:
		return packet.SubackMaxQoS2
	default:
		return packet.SubackFailure
	}
}

// HandleUnsubscribe processes an UNSUBSCRIBE and returns the UNSUBACK to send.
func (b *Broker) HandleUnsubscribe(clientID string, up *packet.UnsubscribePacket) *packet.UnsubackPacket {
	var unsuback *packet.UnsubackPacket
	b.exec(func() {
		for _, filter := range up.TopicFilters {
			b.subs.Unsubscribe(clientID, filter)
			if b.log != nil {
				b.log.LogSubscription(clientID, filter, 0, "unsubscribe")
			}
			if b.store != nil {
				if err := b.store.RemoveSubscription(clientID, filter); err != nil && b.log != nil {
					b.log.LogError(err, "remove persisted subscription failed", logger.ClientID(clientID), logger.String("filter", filter))
				}
			}
		}
		unsuback = &packet.UnsubackPacket{PacketID: up.PacketID}
	})
	return unsuback
}

// HandlePublish routes a PUBLISH to every matching subscriber and, if
// retained, updates the retain trie.
func (b *Broker) HandlePublish(fromClientID string, pp *packet.PublishPacket) {
	b.exec(func() {
		if pp.Retain {
			b.retained.Store(pp.Topic, pp.Payload, pp.QoS)
			if b.log != nil {
				action := "stored"
				if len(pp.Payload) == 0 {
					action = "cleared"
				}
				b.log.LogRetainedMessage(pp.Topic, action, len(pp.Payload))
			}
		}

		matches := b.subs.Match(pp.Topic)
		for clientID, subQoS := range matches {
			deliveryQoS := packet.MinQoS(pp.QoS, subQoS)
			if err := b.sessions.Deliver(clientID, pp.Topic, pp.Payload, deliveryQoS, pp.Retain); err != nil && b.log != nil {
				b.log.LogError(err, "deliver failed", logger.ClientID(clientID), logger.String("topic", pp.Topic))
			}
			b.persistOffline(clientID, pp.Topic, pp.Payload, deliveryQoS, pp.Retain)
		}

		if b.log != nil {
			b.log.LogPublish(fromClientID, pp.Topic, int(pp.QoS), pp.Retain, len(pp.Payload), logger.Int("subscribers", len(matches)))
		}
	})
}

// sendPublish is the QoSManager's retry hook, run on the event-loop
// goroutine already (called only from within Run's select).
func (b *Broker) sendPublish(clientID string, pp *packet.PublishPacket) {
	sess, ok := b.sessions.Get(clientID)
	if !ok || !sess.Online {
		return
	}
	_, _ = sess.Conn.Write(pp.Encode())
}

// HandlePubAck completes a QoS 1 exchange initiated by this broker.
func (b *Broker) HandlePubAck(clientID string, packetID uint16) {
	b.exec(func() { b.qos.HandlePubAck(clientID, packetID) })
}

// HandlePubRec advances a QoS 2 exchange initiated by this broker, writing
// the resulting PUBREL directly to the client.
func (b *Broker) HandlePubRec(clientID string, packetID uint16) {
	b.exec(func() {
		pubrel, ok := b.qos.HandlePubRec(clientID, packetID)
		if !ok {
			return
		}
		if sess, ok := b.sessions.Get(clientID); ok && sess.Online {
			_, _ = sess.Conn.Write(pubrel.Encode())
		}
	})
}

// HandlePubComp completes a QoS 2 exchange initiated by this broker.
func (b *Broker) HandlePubComp(clientID string, packetID uint16) {
	b.exec(func() { b.qos.HandlePubComp(clientID, packetID) })
}

// HandleIncomingPublish processes an inbound PUBLISH, returning the ack
// packet to send (nil for QoS 0). QoS 2 delivery to subscribers is deferred
// until the matching PUBREL arrives.
func (b *Broker) HandleIncomingPublish(clientID string, pp *packet.PublishPacket) packet.Packet {
	var ack packet.Packet
	b.exec(func() {
		switch pp.QoS {
		case packet.QoSAtMostOnce:
			b.deliverLocked(clientID, pp)
		case packet.QoSAtLeastOnce:
			b.deliverLocked(clientID, pp)
			ack = packet.Packet{Type: packet.PUBACK, Puback: &packet.PubAckPacket{PacketID: pp.PacketID}}
		case packet.QoSExactlyOnce:
			pubrec, isNew := b.qos.HandleIncomingQoS2Publish(clientID, pp.PacketID, pp.Topic, pp.Payload, pp.Retain)
			if isNew && pp.Retain {
				b.retained.Store(pp.Topic, pp.Payload, pp.QoS)
			}
			ack = packet.Packet{Type: packet.PUBREC, Pubrec: pubrec}
		}
	})
	return ack
}

// HandlePubRel completes an inbound QoS 2 exchange, delivering the held
// message to subscribers and returning the PUBCOMP to send.
func (b *Broker) HandlePubRel(clientID string, packetID uint16) *packet.PubCompPacket {
	var pubcomp *packet.PubCompPacket
	b.exec(func() {
		msg, comp := b.qos.HandleIncomingPubRel(clientID, packetID)
		pubcomp = comp
		if msg != nil {
			pp := &packet.PublishPacket{Topic: msg.Topic, Payload: msg.Payload, QoS: packet.QoSExactlyOnce, Retain: msg.Retain}
			b.deliverLocked(clientID, pp)
		}
	})
	return pubcomp
}

func (b *Broker) deliverLocked(fromClientID string, pp *packet.PublishPacket) {
	matches := b.subs.Match(pp.Topic)
	for clientID, subQoS := range matches {
		deliveryQoS := packet.MinQoS(pp.QoS, subQoS)
		_ = b.sessions.Deliver(clientID, pp.Topic, pp.Payload, deliveryQoS, pp.Retain)
		b.persistOffline(clientID, pp.Topic, pp.Payload, deliveryQoS, pp.Retain)
	}
	if b.log != nil {
		b.log.LogPublish(fromClientID, pp.Topic, int(pp.QoS), pp.Retain, len(pp.Payload), logger.Int("subscribers", len(matches)))
	}
}

// Disconnect detaches clientID's session without firing its will (MQTT
// 3.1.1 §3.14: a clean DISCONNECT suppresses the will).
func (b *Broker) Disconnect(clientID string) {
	b.exec(func() {
		b.sessions.Detach(clientID)
		if sess, ok := b.sessions.Get(clientID); !ok || sess.CleanSession {
			b.subs.UnsubscribeAll(clientID)
			if b.store != nil {
				if err := b.store.ClearClient(clientID); err != nil && b.log != nil {
					b.log.LogError(err, "clear persisted client failed", logger.ClientID(clientID))
				}
			}
		}
		b.qos.CleanupClient(clientID)
	})
}

// ClientGone detaches clientID's session after an ungraceful disconnect,
// publishing its will message (if any) first.
func (b *Broker) ClientGone(clientID string) {
	b.exec(func() {
		if sess, ok := b.sessions.Get(clientID); ok && sess.HasWill {
			willPP := &packet.PublishPacket{
				Topic:   sess.WillTopic,
				Payload: sess.WillMessage,
				QoS:     sess.WillQoS,
				Retain:  sess.WillRetain,
			}
			if willPP.Retain {
				b.retained.Store(willPP.Topic, willPP.Payload, willPP.QoS)
			}
			b.deliverLocked(clientID, willPP)
		}
		b.sessions.Detach(clientID)
		if sess, ok := b.sessions.Get(clientID); !ok || sess.CleanSession {
			b.subs.UnsubscribeAll(clientID)
			if b.store != nil {
				if err := b.store.ClearClient(clientID); err != nil && b.log != nil {
					b.log.LogError(err, "clear persisted client failed", logger.ClientID(clientID))
				}
			}
		}
		b.qos.CleanupClient(clientID)
	})
}

// nextPacketID returns a non-zero packet id, wrapping past zero.
func (b *Broker) nextPacketID() uint16 {
	b.packetIDSeq++
	if b.packetIDSeq == 0 {
		b.packetIDSeq++
	}
	return b.packetIDSeq
}

// NextPacketID returns a fresh, non-zero packet id for an outbound QoS 1/2
// publish, plus registers it as pending with the QoS manager.
func (b *Broker) NextPacketID(clientID, topic string, payload []byte, qos packet.QoSLevel, retain bool) uint16 {
	var id uint16
	b.exec(func() {
		id = b.nextPacketID()
		msg := &PendingMessage{PacketID: id, ClientID: clientID, Topic: topic, Payload: payload, QoS: qos, Retain: retain}
		if qos == packet.QoSAtLeastOnce {
			b.qos.AddPendingQoS1(msg)
		} else if qos == packet.QoSExactlyOnce {
			b.qos.AddPendingQoS2(msg)
		}
	})
	return id
}
