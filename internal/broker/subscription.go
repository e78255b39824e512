package broker

import "github.com/snode/goqtt/internal/packet"

// SubscriptionTree is a trie over '/'-delimited topic levels, one node per
// level, used to match a published topic against every subscribed filter in
// O(levels) rather than a linear scan. It is accessed only from the
// broker's single event-loop goroutine — no internal locking.
type SubscriptionTree struct {
	root *trieNode
}

type trieNode struct {
	children    map[string]*trieNode
	subscribers map[string]packet.QoSLevel // clientID -> granted QoS
}

func newTrieNode() *trieNode {
	return &trieNode{
		children:    make(map[string]*trieNode),
		subscribers: make(map[string]packet.QoSLevel),
	}
}

// NewSubscriptionTree returns an empty subscription trie.
func NewSubscriptionTree() *SubscriptionTree {
	return &SubscriptionTree{root: newTrieNode()}
}

// Subscribe records clientID as a subscriber of filter at qos, replacing any
// existing subscription for the same (clientID, filter) pair.
func (t *SubscriptionTree) Subscribe(clientID, filter string, qos packet.QoSLevel) error {
	if err := packet.ValidateTopicFilter(filter); err != nil {
		return err
	}

	levels := packet.SplitLevels(filter)
	node := t.root
	for _, level := range levels {
		child, ok := node.children[level]
		if !ok {
			child = newTrieNode()
			node.children[level] = child
		}
		node = child
	}
	node.subscribers[clientID] = qos
	return nil
}

// Unsubscribe removes clientID's subscription to filter, if any, pruning any
// trie node left with no subscribers and no children along the way.
func (t *SubscriptionTree) Unsubscribe(clientID, filter string) {
	levels := packet.SplitLevels(filter)
	path := make([]*trieNode, 0, len(levels)+1)
	path = append(path, t.root)

	node := t.root
	for _, level := range levels {
		child, ok := node.children[level]
		if !ok {
			return
		}
		node = child
		path = append(path, node)
	}
	delete(node.subscribers, clientID)

	for i := len(path) - 1; i > 0; i-- {
		n := path[i]
		if len(n.subscribers) > 0 || len(n.children) > 0 {
			break
		}
		delete(path[i-1].children, levels[i-1])
	}
}

// UnsubscribeAll removes every subscription belonging to clientID, pruning
// any trie node left with no subscribers and no children.
func (t *SubscriptionTree) UnsubscribeAll(clientID string) {
	var walk func(n *trieNode) bool
	walk = func(n *trieNode) bool {
		delete(n.subscribers, clientID)
		for level, child := range n.children {
			if walk(child) {
				delete(n.children, level)
			}
		}
		return len(n.subscribers) == 0 && len(n.children) == 0
	}
	walk(t.root)
}

// Match returns the granted QoS for every client subscribed to a filter that
// matches topic, deduped by client at the maximum granted QoS across all
// matching filters (MQTT 3.1.1 §3.3.5 overlapping-subscriptions rule).
func (t *SubscriptionTree) Match(topic string) map[string]packet.QoSLevel {
	levels := packet.SplitLevels(topic)
	result := make(map[string]packet.QoSLevel)

	// Topics beginning with '$' are excluded from wildcard-rooted matches
	// (MQTT 3.1.1 §4.7.2); only an explicit, non-wildcard first level or a
	// matching literal subscription can reach them.
	restrictWildcardRoot := len(levels) > 0 && len(levels[0]) > 0 && levels[0][0] == '$'

	var walk func(n *trieNode, i int, atRoot bool)
	walk = func(n *trieNode, i int, atRoot bool) {
		if i == len(levels) {
			for clientID, qos := range n.subscribers {
				if existing, ok := result[clientID]; !ok || qos > existing {
					result[clientID] = qos
				}
			}
			if !atRoot || !restrictWildcardRoot {
				if child, ok := n.children["#"]; ok {
					for clientID, qos := range child.subscribers {
						if existing, ok := result[clientID]; !ok || qos > existing {
							result[clientID] = qos
						}
					}
				}
			}
			return
		}

		if child, ok := n.children[levels[i]]; ok {
			walk(child, i+1, false)
		}

		if !atRoot || !restrictWildcardRoot {
			if child, ok := n.children["+"]; ok {
				walk(child, i+1, false)
			}
		}

		if !atRoot || !restrictWildcardRoot {
			if child, ok := n.children["#"]; ok {
				for clientID, qos := range child.subscribers {
					if existing, ok := result[clientID]; !ok || qos > existing {
						result[clientID] = qos
					}
				}
			}
		}
	}

	walk(t.root, 0, true)
	return result
}
