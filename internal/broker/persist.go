package broker

import "github.com/snode/goqtt/internal/packet"

// Persister durably records a persistent (clean_session=false) client's
// subscriptions, will, and offline queue, so that state survives a broker
// restart rather than only the reconnects of one process's uptime. A
// Broker with no Persister set (the default) keeps every session in
// memory only, exactly as before.
type Persister interface {
	SaveSubscription(clientID, filter string, qos packet.QoSLevel) error
	RemoveSubscription(clientID, filter string) error
	SaveWill(clientID, topic string, message []byte, qos packet.QoSLevel, retain bool) error
	QueueOffline(clientID string, msg QueuedMessage) error
	ClearOfflineQueue(clientID string) error
	ClearClient(clientID string) error
	LoadSessions() (map[string]*PersistedSession, error)
}

// PersistedSubscription is one (filter, qos) pair reloaded from a Persister.
type PersistedSubscription struct {
	Filter string
	QoS    packet.QoSLevel
}

// PersistedSession is one client id's full durable state, as handed back by
// Persister.LoadSessions for the broker to seed at startup.
type PersistedSession struct {
	Subscriptions []PersistedSubscription
	Offline       []QueuedMessage

	HasWill     bool
	WillTopic   string
	WillMessage []byte
	WillQoS     packet.QoSLevel
	WillRetain  bool
}
