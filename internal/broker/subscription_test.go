package broker

import (
	"testing"

	"github.com/snode/goqtt/internal/packet"
)

func TestSubscriptionTreeExactMatch(t *testing.T) {
	tree := NewSubscriptionTree()
	if err := tree.Subscribe("c1", "a/b/c", packet.QoSAtLeastOnce); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	got := tree.Match("a/b/c")
	if got["c1"] != packet.QoSAtLeastOnce {
		t.Fatalf("expected c1 to match at QoS1, got %v", got)
	}

	if got := tree.Match("a/b/d"); len(got) != 0 {
		t.Fatalf("expected no match, got %v", got)
	}
}

func TestSubscriptionTreePlusWildcard(t *testing.T) {
	tree := NewSubscriptionTree()
	tree.Subscribe("c1", "sensors/+/temp", packet.QoSAtMostOnce)

	if got := tree.Match("sensors/kitchen/temp"); got["c1"] != packet.QoSAtMostOnce {
		t.Fatalf("expected + to match a single level, got %v", got)
	}
	if got := tree.Match("sensors/kitchen/hall/temp"); len(got) != 0 {
		t.Fatalf("+ must not match multiple levels, got %v", got)
	}
}

func TestSubscriptionTreeHashWildcardMatchesParentLevel(t *testing.T) {
	tree := NewSubscriptionTree()
	tree.Subscribe("c1", "a/#", packet.QoSExactlyOnce)

	if got := tree.Match("a"); got["c1"] != packet.QoSExactlyOnce {
		t.Fatalf("a/# must match bare topic 'a' (# matches zero additional levels), got %v", got)
	}
	if got := tree.Match("a/b"); got["c1"] != packet.QoSExactlyOnce {
		t.Fatalf("a/# must match 'a/b', got %v", got)
	}
	if got := tree.Match("a/b/c"); got["c1"] != packet.QoSExactlyOnce {
		t.Fatalf("a/# must match 'a/b/c', got %v", got)
	}
}

func TestSubscriptionTreeHashWildcardAtRoot(t *testing.T) {
	tree := NewSubscriptionTree()
	tree.Subscribe("c1", "#", packet.QoSAtMostOnce)

	if got := tree.Match("sensors/kitchen/temp"); got["c1"] != packet.QoSAtMostOnce {
		t.Fatalf("expected '#' to match any non-$ topic, got %v", got)
	}
	if got := tree.Match("$SYS/broker/uptime"); len(got) != 0 {
		t.Fatalf("'#' must not match topics rooted in '$', got %v", got)
	}
}

func TestSubscriptionTreeDollarTopicRequiresExplicitMatch(t *testing.T) {
	tree := NewSubscriptionTree()
	tree.Subscribe("c1", "+/broker/uptime", packet.QoSAtMostOnce)
	tree.Subscribe("c2", "$SYS/broker/uptime", packet.QoSAtMostOnce)

	got := tree.Match("$SYS/broker/uptime")
	if _, ok := got["c1"]; ok {
		t.Fatalf("+ at root must not match a $-rooted topic, got %v", got)
	}
	if got["c2"] != packet.QoSAtMostOnce {
		t.Fatalf("explicit literal match for $-rooted topic failed, got %v", got)
	}
}

func TestSubscriptionTreeDedupesByMaxGrantedQoS(t *testing.T) {
	tree := NewSubscriptionTree()
	tree.Subscribe("c1", "a/b", packet.QoSAtMostOnce)
	tree.Subscribe("c1", "a/+", packet.QoSExactlyOnce)

	got := tree.Match("a/b")
	if got["c1"] != packet.QoSExactlyOnce {
		t.Fatalf("expected max granted QoS across overlapping filters, got %v", got)
	}
}

func TestSubscriptionTreeUnsubscribe(t *testing.T) {
	tree := NewSubscriptionTree()
	tree.Subscribe("c1", "a/b", packet.QoSAtMostOnce)
	tree.Unsubscribe("c1", "a/b")

	if got := tree.Match("a/b"); len(got) != 0 {
		t.Fatalf("expected no subscribers after unsubscribe, got %v", got)
	}
}

func TestSubscriptionTreeUnsubscribeAll(t *testing.T) {
	tree := NewSubscriptionTree()
	tree.Subscribe("c1", "a/b", packet.QoSAtMostOnce)
	tree.Subscribe("c1", "c/d", packet.QoSAtLeastOnce)
	tree.Subscribe("c2", "a/b", packet.QoSAtMostOnce)

	tree.UnsubscribeAll("c1")

	if got := tree.Match("a/b"); got["c2"] != packet.QoSAtMostOnce || len(got) != 1 {
		t.Fatalf("expected only c2 left on a/b, got %v", got)
	}
	if got := tree.Match("c/d"); len(got) != 0 {
		t.Fatalf("expected c1's c/d subscription gone, got %v", got)
	}
}

func TestSubscriptionTreeRejectsInvalidFilter(t *testing.T) {
	tree := NewSubscriptionTree()
	if err := tree.Subscribe("c1", "a/b#", packet.QoSAtMostOnce); err == nil {
		t.Fatal("expected error for malformed filter")
	}
}

func TestSubscriptionTreeUnsubscribePrunesEmptyNodes(t *testing.T) {
	tree := NewSubscriptionTree()
	tree.Subscribe("c1", "a/b/c", packet.QoSAtMostOnce)
	tree.Unsubscribe("c1", "a/b/c")

	if _, ok := tree.root.children["a"]; ok {
		t.Fatal("expected the now-empty 'a' branch pruned from the root")
	}
}

func TestSubscriptionTreeUnsubscribeStopsPruningAtSharedAncestor(t *testing.T) {
	tree := NewSubscriptionTree()
	tree.Subscribe("c1", "a/b/c", packet.QoSAtMostOnce)
	tree.Subscribe("c1", "a/d", packet.QoSAtMostOnce)
	tree.Unsubscribe("c1", "a/b/c")

	aNode, ok := tree.root.children["a"]
	if !ok {
		t.Fatal("expected 'a' to survive since 'a/d' still has a subscriber")
	}
	if _, ok := aNode.children["b"]; ok {
		t.Fatal("expected the now-empty 'a/b' branch pruned")
	}
	if _, ok := aNode.children["d"]; !ok {
		t.Fatal("expected 'a/d' to remain")
	}
}

func TestSubscriptionTreeUnsubscribeAllPrunesEmptyNodes(t *testing.T) {
	tree := NewSubscriptionTree()
	tree.Subscribe("c1", "a/b", packet.QoSAtMostOnce)
	tree.UnsubscribeAll("c1")

	if len(tree.root.children) != 0 {
		t.Fatalf("expected every empty branch pruned from the root, got %v", tree.root.children)
	}
}
