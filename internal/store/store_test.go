package store

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/snode/goqtt/internal/broker"
	"github.com/snode/goqtt/internal/packet"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite3: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := New(db)
	if err := s.EnsureSchema(); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return s
}

func TestSaveAndLoadSubscriptions(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveSubscription("client-1", "a/b", packet.QoSAtLeastOnce); err != nil {
		t.Fatalf("SaveSubscription: %v", err)
	}
	if err := s.SaveSubscription("client-1", "c/d", packet.QoSExactlyOnce); err != nil {
		t.Fatalf("SaveSubscription: %v", err)
	}

	sessions, err := s.LoadSessions()
	if err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}
	ps, ok := sessions["client-1"]
	if !ok || len(ps.Subscriptions) != 2 {
		t.Fatalf("expected two restored subscriptions, got %+v", ps)
	}
}

func TestSaveSubscriptionUpsertsQoS(t *testing.T) {
	s := newTestStore(t)

	s.SaveSubscription("client-1", "a/b", packet.QoSAtMostOnce)
	s.SaveSubscription("client-1", "a/b", packet.QoSExactlyOnce)

	sessions, err := s.LoadSessions()
	if err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}
	ps := sessions["client-1"]
	if len(ps.Subscriptions) != 1 || ps.Subscriptions[0].QoS != packet.QoSExactlyOnce {
		t.Fatalf("expected the upserted qos to win, got %+v", ps.Subscriptions)
	}
}

func TestRemoveSubscription(t *testing.T) {
	s := newTestStore(t)
	s.SaveSubscription("client-1", "a/b", packet.QoSAtLeastOnce)

	if err := s.RemoveSubscription("client-1", "a/b"); err != nil {
		t.Fatalf("RemoveSubscription: %v", err)
	}

	sessions, err := s.LoadSessions()
	if err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}
	if _, ok := sessions["client-1"]; ok {
		t.Fatalf("expected no persisted state left for client-1, got %+v", sessions["client-1"])
	}
}

func TestSaveAndLoadWill(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveWill("client-1", "a/status", []byte("offline"), packet.QoSAtLeastOnce, true); err != nil {
		t.Fatalf("SaveWill: %v", err)
	}

	sessions, err := s.LoadSessions()
	if err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}
	ps := sessions["client-1"]
	if ps == nil || !ps.HasWill || ps.WillTopic != "a/status" || string(ps.WillMessage) != "offline" || !ps.WillRetain {
		t.Fatalf("unexpected restored will: %+v", ps)
	}
}

func TestQueueAndClearOfflineMessages(t *testing.T) {
	s := newTestStore(t)

	s.QueueOffline("client-1", broker.QueuedMessage{Topic: "a/b", Payload: []byte("1"), QoS: packet.QoSAtLeastOnce})
	s.QueueOffline("client-1", broker.QueuedMessage{Topic: "a/b", Payload: []byte("2"), QoS: packet.QoSAtLeastOnce})

	sessions, err := s.LoadSessions()
	if err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}
	ps := sessions["client-1"]
	if ps == nil || len(ps.Offline) != 2 || string(ps.Offline[0].Payload) != "1" || string(ps.Offline[1].Payload) != "2" {
		t.Fatalf("expected two offline messages in order, got %+v", ps)
	}

	if err := s.ClearOfflineQueue("client-1"); err != nil {
		t.Fatalf("ClearOfflineQueue: %v", err)
	}
	sessions, err = s.LoadSessions()
	if err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}
	if _, ok := sessions["client-1"]; ok {
		t.Fatalf("expected offline queue cleared, got %+v", sessions["client-1"])
	}
}

func TestClearClientRemovesEverything(t *testing.T) {
	s := newTestStore(t)

	s.SaveSubscription("client-1", "a/b", packet.QoSAtLeastOnce)
	s.SaveWill("client-1", "a/status", []byte("offline"), packet.QoSAtLeastOnce, false)
	s.QueueOffline("client-1", broker.QueuedMessage{Topic: "a/b", Payload: []byte("1"), QoS: packet.QoSAtLeastOnce})

	if err := s.ClearClient("client-1"); err != nil {
		t.Fatalf("ClearClient: %v", err)
	}

	sessions, err := s.LoadSessions()
	if err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}
	if _, ok := sessions["client-1"]; ok {
		t.Fatalf("expected no persisted state left for client-1, got %+v", sessions["client-1"])
	}
}
