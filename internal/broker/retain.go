package broker

import "github.com/snode/goqtt/internal/packet"

// RetainedMessage is the single retained message stored for a topic.
type RetainedMessage struct {
	Topic   string
	Payload []byte
	QoS     packet.QoSLevel
}

// RetainTrie stores at most one retained message per topic, replayed to new
// subscribers whose filter matches. Same trie topology as SubscriptionTree,
// specialized to hold a single message per node instead of a subscriber set.
type RetainTrie struct {
	root *retainNode
}

type retainNode struct {
	children map[string]*retainNode
	message  *RetainedMessage
}

func newRetainNode() *retainNode {
	return &retainNode{children: make(map[string]*retainNode)}
}

// NewRetainTrie returns an empty retain trie.
func NewRetainTrie() *RetainTrie {
	return &RetainTrie{root: newRetainNode()}
}

// Store sets or clears the retained message for topic. A zero-length
// payload clears it (MQTT 3.1.1 §3.3.1.3), pruning any trie node left with
// no message and no children along the way.
func (t *RetainTrie) Store(topic string, payload []byte, qos packet.QoSLevel) {
	levels := packet.SplitLevels(topic)
	path := make([]*retainNode, 0, len(levels)+1)
	path = append(path, t.root)

	node := t.root
	for _, level := range levels {
		child, ok := node.children[level]
		if !ok {
			if len(payload) == 0 {
				return
			}
			child = newRetainNode()
			node.children[level] = child
		}
		node = child
		path = append(path, node)
	}

	if len(payload) == 0 {
		node.message = nil
		for i := len(path) - 1; i > 0; i-- {
			n := path[i]
			if n.message != nil || len(n.children) > 0 {
				break
			}
			delete(path[i-1].children, levels[i-1])
		}
		return
	}
	node.message = &RetainedMessage{Topic: topic, Payload: payload, QoS: qos}
}

// Match returns every retained message whose topic matches filter.
func (t *RetainTrie) Match(filter string) []*RetainedMessage {
	levels := packet.SplitLevels(filter)
	var matches []*RetainedMessage

	var walk func(n *retainNode, i int)
	walk = func(n *retainNode, i int) {
		if i == len(levels) {
			if n.message != nil {
				matches = append(matches, n.message)
			}
			return
		}

		level := levels[i]
		switch level {
		case "#":
			collectAll(n, &matches)
		case "+":
			for _, child := range n.children {
				walk(child, i+1)
			}
		default:
			if child, ok := n.children[level]; ok {
				walk(child, i+1)
			}
		}
	}

	walk(t.root, 0)
	return matches
}

func collectAll(n *retainNode, out *[]*RetainedMessage) {
	if n.message != nil {
		*out = append(*out, n.message)
	}
	for _, child := range n.children {
		collectAll(child, out)
	}
}
