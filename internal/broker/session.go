package broker

import (
	"io"

	"github.com/snode/goqtt/internal/packet"
)

// MaxOfflineQueueLen bounds the number of QoS>0 messages queued for a
// persistent session while its client is disconnected. Once full, the
// oldest queued message is dropped to make room for the newest (a session
// that never reconnects must not grow without bound).
const MaxOfflineQueueLen = 100

// QueuedMessage is a PUBLISH held for a disconnected persistent session.
type QueuedMessage struct {
	Topic   string
	Payload []byte
	QoS     packet.QoSLevel
	Retain  bool
}

// Session is one client's connection-independent MQTT state: its identity,
// will, and (while connected) its write endpoint. Owned entirely by the
// broker's event-loop goroutine — never shared, never locked.
type Session struct {
	ClientID     string
	CleanSession bool
	KeepAlive    uint16

	WillTopic   string
	WillMessage []byte
	WillQoS     packet.QoSLevel
	WillRetain  bool
	HasWill     bool

	Conn    io.Writer
	Online  bool
	Offline []QueuedMessage
}

// SessionStore holds every known session, connected or detached-but-persistent.
type SessionStore struct {
	sessions map[string]*Session
}

// NewSessionStore returns an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Open attaches conn to clientID's session. If cleanSession is set, or no
// persisted session exists, a fresh Session is created and sessionPresent is
// false; otherwise the persisted session (and its offline queue) is resumed
// and sessionPresent is true.
func (s *SessionStore) Open(clientID string, cleanSession bool, conn io.Writer) (sess *Session, sessionPresent bool) {
	existing, ok := s.sessions[clientID]
	if cleanSession || !ok {
		sess = &Session{ClientID: clientID, CleanSession: cleanSession, Conn: conn, Online: true}
		s.sessions[clientID] = sess
		return sess, false
	}
	existing.Conn = conn
	existing.Online = true
	return existing, true
}

// Get looks up a session by client id.
func (s *SessionStore) Get(clientID string) (*Session, bool) {
	sess, ok := s.sessions[clientID]
	return sess, ok
}

// Seed installs a session restored from durable storage, offline, ahead of
// its client's first reconnect after a broker restart. A no-op if the
// client already has an in-memory session.
func (s *SessionStore) Seed(sess *Session) {
	if _, ok := s.sessions[sess.ClientID]; ok {
		return
	}
	s.sessions[sess.ClientID] = sess
}

// Detach marks clientID's session disconnected. A clean session is dropped
// entirely along with its subscriptions (the caller is responsible for
// clearing those from the subscription trie); a persistent session is kept,
// offline, for later resumption.
func (s *SessionStore) Detach(clientID string) {
	sess, ok := s.sessions[clientID]
	if !ok {
		return
	}
	if sess.CleanSession {
		delete(s.sessions, clientID)
		return
	}
	sess.Conn = nil
	sess.Online = false
}

// Deliver writes a PUBLISH to clientID if connected, or queues it (bounded)
// for later delivery if the session is persistent and offline. A clean,
// offline session silently drops the message — it has nothing to resume
// into.
func (s *SessionStore) Deliver(clientID string, topic string, payload []byte, qos packet.QoSLevel, retain bool) error {
	sess, ok := s.sessions[clientID]
	if !ok {
		return nil
	}

	if sess.Online {
		pp := &packet.PublishPacket{Topic: topic, Payload: payload, QoS: qos, Retain: retain}
		_, err := sess.Conn.Write(pp.Encode())
		return err
	}

	if sess.CleanSession || qos == packet.QoSAtMostOnce {
		return nil
	}

	if len(sess.Offline) >= MaxOfflineQueueLen {
		sess.Offline = sess.Offline[1:]
	}
	sess.Offline = append(sess.Offline, QueuedMessage{Topic: topic, Payload: payload, QoS: qos, Retain: retain})
	return nil
}

// DrainOffline returns and clears every message queued while clientID was
// disconnected, called once a session resumes.
func (s *SessionStore) DrainOffline(clientID string) []QueuedMessage {
	sess, ok := s.sessions[clientID]
	if !ok {
		return nil
	}
	queued := sess.Offline
	sess.Offline = nil
	return queued
}
