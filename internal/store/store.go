// Package store persists persistent-session state — subscriptions, wills,
// and the offline queue — to sqlite3, so a clean_session=false client's
// session survives a broker restart, not just a live process's reconnects.
// Grounded on internal/auth's database/sql-over-go-sqlite3 pattern; reuses
// the same handle cmd/goqtt already opens for auth, giving it a second
// real consumer.
package store

import (
	"database/sql"

	"github.com/snode/goqtt/internal/broker"
	"github.com/snode/goqtt/internal/packet"
	"github.com/snode/goqtt/pkg/er"
)

// Store is a Persister backed by sqlite3.
type Store struct {
	db *sql.DB
}

// New wraps an already-open *sql.DB. The caller owns the connection's
// lifetime.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS session_subscriptions (
	client_id TEXT NOT NULL,
	filter TEXT NOT NULL,
	qos INTEGER NOT NULL,
	PRIMARY KEY (client_id, filter)
);
CREATE TABLE IF NOT EXISTS session_wills (
	client_id TEXT PRIMARY KEY,
	topic TEXT NOT NULL,
	message BLOB,
	qos INTEGER NOT NULL,
	retain INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS session_offline_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id TEXT NOT NULL,
	topic TEXT NOT NULL,
	payload BLOB,
	qos INTEGER NOT NULL,
	retain INTEGER NOT NULL
);
`

// EnsureSchema creates the store's tables if they don't already exist.
func (s *Store) EnsureSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return wrap("EnsureSchema", err)
	}
	return nil
}

// SaveSubscription upserts clientID's (filter, qos) pair.
func (s *Store) SaveSubscription(clientID, filter string, qos packet.QoSLevel) error {
	_, err := s.db.Exec(`
		INSERT INTO session_subscriptions (client_id, filter, qos) VALUES (?, ?, ?)
		ON CONFLICT(client_id, filter) DO UPDATE SET qos = excluded.qos`,
		clientID, filter, int(qos))
	return wrap("SaveSubscription", err)
}

// RemoveSubscription deletes one persisted (clientID, filter) pair.
func (s *Store) RemoveSubscription(clientID, filter string) error {
	_, err := s.db.Exec(`DELETE FROM session_subscriptions WHERE client_id = ? AND filter = ?`, clientID, filter)
	return wrap("RemoveSubscription", err)
}

// SaveWill upserts clientID's will.
func (s *Store) SaveWill(clientID, topic string, message []byte, qos packet.QoSLevel, retain bool) error {
	_, err := s.db.Exec(`
		INSERT INTO session_wills (client_id, topic, message, qos, retain) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			topic = excluded.topic, message = excluded.message, qos = excluded.qos, retain = excluded.retain`,
		clientID, topic, message, int(qos), retain)
	return wrap("SaveWill", err)
}

// QueueOffline appends one message to clientID's durable offline queue.
func (s *Store) QueueOffline(clientID string, msg broker.QueuedMessage) error {
	_, err := s.db.Exec(`
		INSERT INTO session_offline_queue (client_id, topic, payload, qos, retain) VALUES (?, ?, ?, ?, ?)`,
		clientID, msg.Topic, msg.Payload, int(msg.QoS), msg.Retain)
	return wrap("QueueOffline", err)
}

// ClearOfflineQueue drops every durable offline message for clientID, once
// they've been drained into a resumed session.
func (s *Store) ClearOfflineQueue(clientID string) error {
	_, err := s.db.Exec(`DELETE FROM session_offline_queue WHERE client_id = ?`, clientID)
	return wrap("ClearOfflineQueue", err)
}

// ClearClient drops every table's rows for clientID, called once its
// session is no longer persistent (a clean disconnect, or a clean-session
// reconnect superseding an old persisted session).
func (s *Store) ClearClient(clientID string) error {
	for _, stmt := range []string{
		`DELETE FROM session_subscriptions WHERE client_id = ?`,
		`DELETE FROM session_wills WHERE client_id = ?`,
		`DELETE FROM session_offline_queue WHERE client_id = ?`,
	} {
		if _, err := s.db.Exec(stmt, clientID); err != nil {
			return wrap("ClearClient", err)
		}
	}
	return nil
}

// LoadSessions reconstructs every persisted client's subscriptions, will,
// and offline queue, grouped by client id, for the broker to seed at
// startup.
func (s *Store) LoadSessions() (map[string]*broker.PersistedSession, error) {
	out := make(map[string]*broker.PersistedSession)

	sessionFor := func(clientID string) *broker.PersistedSession {
		ps, ok := out[clientID]
		if !ok {
			ps = &broker.PersistedSession{}
			out[clientID] = ps
		}
		return ps
	}

	subRows, err := s.db.Query(`SELECT client_id, filter, qos FROM session_subscriptions`)
	if err != nil {
		return nil, wrap("LoadSessions", err)
	}
	defer subRows.Close()
	for subRows.Next() {
		var clientID, filter string
		var qos int
		if err := subRows.Scan(&clientID, &filter, &qos); err != nil {
			return nil, wrap("LoadSessions", err)
		}
		ps := sessionFor(clientID)
		ps.Subscriptions = append(ps.Subscriptions, broker.PersistedSubscription{Filter: filter, QoS: packet.QoSLevel(qos)})
	}
	if err := subRows.Err(); err != nil {
		return nil, wrap("LoadSessions", err)
	}

	willRows, err := s.db.Query(`SELECT client_id, topic, message, qos, retain FROM session_wills`)
	if err != nil {
		return nil, wrap("LoadSessions", err)
	}
	defer willRows.Close()
	for willRows.Next() {
		var clientID, topic string
		var message []byte
		var qos int
		var retain bool
		if err := willRows.Scan(&clientID, &topic, &message, &qos, &retain); err != nil {
			return nil, wrap("LoadSessions", err)
		}
		ps := sessionFor(clientID)
		ps.HasWill = true
		ps.WillTopic = topic
		ps.WillMessage = message
		ps.WillQoS = packet.QoSLevel(qos)
		ps.WillRetain = retain
	}
	if err := willRows.Err(); err != nil {
		return nil, wrap("LoadSessions", err)
	}

	queueRows, err := s.db.Query(`SELECT client_id, topic, payload, qos, retain FROM session_offline_queue ORDER BY id`)
	if err != nil {
		return nil, wrap("LoadSessions", err)
	}
	defer queueRows.Close()
	for queueRows.Next() {
		var clientID, topic string
		var payload []byte
		var qos int
		var retain bool
		if err := queueRows.Scan(&clientID, &topic, &payload, &qos, &retain); err != nil {
			return nil, wrap("LoadSessions", err)
		}
		ps := sessionFor(clientID)
		ps.Offline = append(ps.Offline, broker.QueuedMessage{Topic: topic, Payload: payload, QoS: packet.QoSLevel(qos), Retain: retain})
	}
	if err := queueRows.Err(); err != nil {
		return nil, wrap("LoadSessions", err)
	}

	return out, nil
}

func wrap(context string, err error) error {
	if err == nil {
		return nil
	}
	return &er.Err{Context: "store." + context, Message: err}
}
