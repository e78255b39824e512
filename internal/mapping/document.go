// Package mapping parses a declarative topic/payload translation document
// and applies it to incoming publishes. The document is a recursive tree of
// topic-level nodes; each node may carry a subscription definition (one of
// three mapping kinds) and a nested subtree for the next topic level.
//
// Grounded on the topic-rewrite-table pattern in the canonical-snapd
// telemagent translator (a flat map[string]string keyed by exact topic,
// consulted from AuthPublish/AuthSubscribe), generalized here from a flat
// map into the spec's recursive per-level tree.
package mapping

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/snode/goqtt/internal/logger"
	"github.com/snode/goqtt/pkg/er"
)

// Kind is one of the three mapping dispatch strategies a subscription node
// can carry.
type Kind string

const (
	KindStatic Kind = "static"
	KindValue  Kind = "value"
	KindJSON   Kind = "json"
)

// MessageMapping is one exact-payload lookup entry for a static-kind
// subscription.
type MessageMapping struct {
	Message       string `json:"message"`
	MappedMessage string `json:"mapped_message"`
}

// Entry is one mapping kind object. A subscription may carry several
// entries (the document's array form), each producing its own derived
// publication.
type Entry struct {
	MappedTopic     string           `json:"mapped_topic"`
	RetainMessage   bool             `json:"retain_message"`
	QoSOverride     *byte            `json:"qos_override,omitempty"`
	MessageMapping  []MessageMapping `json:"message_mapping,omitempty"`
	MappingTemplate string           `json:"mapping_template,omitempty"`
}

// Subscription is the translation rule attached to a topic-level node.
type Subscription struct {
	QoS     byte
	Kind    Kind
	Entries []Entry
}

// UnmarshalJSON accepts `{"qos": N, "static": {...}|[...]}` (or "value" /
// "json" in place of "static") and normalizes the single-object and
// array forms into Entries.
func (s *Subscription) UnmarshalJSON(data []byte) error {
	var raw struct {
		QoS    byte            `json:"qos"`
		Static json.RawMessage `json:"static"`
		Value  json.RawMessage `json:"value"`
		JSON   json.RawMessage `json:"json"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	kindData := map[Kind]json.RawMessage{
		KindStatic: raw.Static,
		KindValue:  raw.Value,
		KindJSON:   raw.JSON,
	}

	var found Kind
	var payload json.RawMessage
	for k, v := range kindData {
		if len(v) == 0 {
			continue
		}
		if payload != nil {
			return &er.Err{Context: "mapping.Subscription", Message: er.ErrMultipleMappingKinds}
		}
		found, payload = k, v
	}
	if payload == nil {
		return &er.Err{Context: "mapping.Subscription", Message: er.ErrNoMappingKind}
	}

	entries, err := decodeEntries(payload)
	if err != nil {
		return err
	}
	s.QoS = raw.QoS
	s.Kind = found
	s.Entries = entries
	return nil
}

// decodeEntries accepts either a single mapping-kind object or an ordered
// array of them.
func decodeEntries(data json.RawMessage) ([]Entry, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var entries []Entry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return []Entry{entry}, nil
}

// Node is one level of the mapping tree.
type Node struct {
	Name         string
	Subscription *Subscription
	Children     []*Node
}

// UnmarshalJSON accepts `topic_level` as either a single nested node or an
// ordered list of nodes.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name         string          `json:"name"`
		Subscription *Subscription   `json:"subscription"`
		TopicLevel   json.RawMessage `json:"topic_level"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	n.Name = raw.Name
	n.Subscription = raw.Subscription
	if len(raw.TopicLevel) == 0 {
		return nil
	}
	children, err := decodeNodes(raw.TopicLevel)
	if err != nil {
		return err
	}
	n.Children = children
	return nil
}

func decodeNodes(data json.RawMessage) ([]*Node, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var nodes []*Node
		if err := json.Unmarshal(data, &nodes); err != nil {
			return nil, err
		}
		return nodes, nil
	}
	node := &Node{}
	if err := json.Unmarshal(data, node); err != nil {
		return nil, err
	}
	return []*Node{node}, nil
}

// Connection carries the integrator client's CONNECT parameters.
type Connection struct {
	KeepAlive    uint16 `json:"keep_alive"`
	ClientID     string `json:"client_id"`
	CleanSession bool   `json:"clean_session"`
	WillTopic    string `json:"will_topic"`
	WillMessage  string `json:"will_message"`
	WillQoS      byte   `json:"will_qos"`
	WillRetain   bool   `json:"will_retain"`
	Username     string `json:"username"`
	Password     string `json:"password"`
}

// Document is a fully parsed, schema-validated mapping document: a
// read-only tree after load, safe to share by reference across
// dispatchers.
type Document struct {
	Connection *Connection
	Mappings   []*Node
	Raw        json.RawMessage

	// Log receives an entry for every inbound message Translate cannot
	// derive a publication from: an error for a malformed json payload or a
	// template render failure, a Warn for a json payload that is not an
	// object. Left nil, Translate drops those messages silently, same
	// as before.
	Log *logger.Logger
}

// ScopeToPrefix looks for a top-level JSON object keyed by prefix in raw —
// the integrator's --mqtt-discover-prefix flag — and, if present, returns
// that key's value instead: a mapping file may bundle several deployments'
// documents under distinct top-level prefixes, each a full
// connection/mappings document in its own right. A file with no such
// wrapping key (a single-deployment document) is returned unchanged, so
// the flag scopes multi-deployment files without requiring one from every
// caller.
func ScopeToPrefix(raw []byte, prefix string) []byte {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return raw
	}
	if scoped, ok := wrapper[prefix]; ok {
		return scoped
	}
	return raw
}

// Parse validates raw against the fixed mapping-document schema and builds
// the tagged-union tree. A failed validation rejects the document whole.
func Parse(raw []byte) (*Document, error) {
	if err := Validate(raw); err != nil {
		return nil, &er.Err{Context: "mapping.Parse", Message: fmt.Errorf("%w: %v", er.ErrMappingValidation, err)}
	}

	var doc struct {
		Connection *Connection     `json:"connection"`
		Mappings   json.RawMessage `json:"mappings"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &er.Err{Context: "mapping.Parse", Message: fmt.Errorf("%w: %v", er.ErrMappingDocumentDecode, err)}
	}

	var mappings []*Node
	if len(doc.Mappings) > 0 {
		nodes, err := decodeNodes(doc.Mappings)
		if err != nil {
			return nil, &er.Err{Context: "mapping.Parse", Message: fmt.Errorf("%w: %v", er.ErrMappingDocumentDecode, err)}
		}
		mappings = nodes
	}

	return &Document{Connection: doc.Connection, Mappings: mappings, Raw: raw}, nil
}

// FilterSubscription is one (filter, qos) pair extracted from the mapping
// tree for the integrator to subscribe with.
type FilterSubscription struct {
	Filter string
	QoS    byte
}

// ExtractSubscriptions walks the mapping tree depth-first and returns one
// entry per node carrying a subscription, with filter the `/`-joined path
// of node names from the root.
func (d *Document) ExtractSubscriptions() []FilterSubscription {
	var out []FilterSubscription
	var walk func(nodes []*Node, prefix []string)
	walk = func(nodes []*Node, prefix []string) {
		for _, n := range nodes {
			path := append(append([]string{}, prefix...), n.Name)
			if n.Subscription != nil {
				out = append(out, FilterSubscription{Filter: strings.Join(path, "/"), QoS: n.Subscription.QoS})
			}
			walk(n.Children, path)
		}
	}
	walk(d.Mappings, nil)
	return out
}
