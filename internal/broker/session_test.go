package broker

import (
	"bytes"
	"testing"

	"github.com/snode/goqtt/internal/packet"
)

func TestSessionStoreOpenCleanSessionNeverResumes(t *testing.T) {
	store := NewSessionStore()

	var buf1 bytes.Buffer
	sess, present := store.Open("c1", true, &buf1)
	if present {
		t.Fatal("first open must not report a present session")
	}
	sess.HasWill = true

	store.Detach("c1")
	if _, ok := store.Get("c1"); ok {
		t.Fatal("clean session must be discarded on detach")
	}

	var buf2 bytes.Buffer
	_, present = store.Open("c1", true, &buf2)
	if present {
		t.Fatal("clean session reopen must never report session present")
	}
}

func TestSessionStoreResumesPersistentSession(t *testing.T) {
	store := NewSessionStore()

	var buf1 bytes.Buffer
	sess, _ := store.Open("c1", false, &buf1)
	sess.Offline = append(sess.Offline, QueuedMessage{Topic: "a/b", QoS: packet.QoSAtLeastOnce})

	store.Detach("c1")
	if sess, ok := store.Get("c1"); !ok || sess.Online {
		t.Fatalf("persistent session must survive detach offline, got %+v", sess)
	}

	var buf2 bytes.Buffer
	resumed, present := store.Open("c1", false, &buf2)
	if !present {
		t.Fatal("expected sessionPresent true on resume")
	}
	if len(resumed.Offline) != 1 {
		t.Fatalf("expected offline queue to survive resume, got %v", resumed.Offline)
	}
}

func TestSessionStoreDeliverOnlineWritesImmediately(t *testing.T) {
	store := NewSessionStore()
	var buf bytes.Buffer
	store.Open("c1", true, &buf)

	if err := store.Deliver("c1", "a/b", []byte("hi"), packet.QoSAtMostOnce, false); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected bytes written to the online connection")
	}
}

func TestSessionStoreDeliverQueuesOfflinePersistent(t *testing.T) {
	store := NewSessionStore()
	var buf bytes.Buffer
	store.Open("c1", false, &buf)
	store.Detach("c1")

	if err := store.Deliver("c1", "a/b", []byte("hi"), packet.QoSAtLeastOnce, false); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	queued := store.DrainOffline("c1")
	if len(queued) != 1 || queued[0].Topic != "a/b" {
		t.Fatalf("expected one queued message, got %v", queued)
	}
	if got := store.DrainOffline("c1"); len(got) != 0 {
		t.Fatalf("expected drain to clear the queue, got %v", got)
	}
}

func TestSessionStoreDeliverDropsQoS0Offline(t *testing.T) {
	store := NewSessionStore()
	var buf bytes.Buffer
	store.Open("c1", false, &buf)
	store.Detach("c1")

	store.Deliver("c1", "a/b", []byte("hi"), packet.QoSAtMostOnce, false)
	if got := store.DrainOffline("c1"); len(got) != 0 {
		t.Fatalf("QoS 0 must not be queued for an offline session, got %v", got)
	}
}

func TestSessionStoreOfflineQueueIsBounded(t *testing.T) {
	store := NewSessionStore()
	var buf bytes.Buffer
	store.Open("c1", false, &buf)
	store.Detach("c1")

	for i := 0; i < MaxOfflineQueueLen+10; i++ {
		store.Deliver("c1", "a/b", []byte{byte(i)}, packet.QoSAtLeastOnce, false)
	}

	queued := store.DrainOffline("c1")
	if len(queued) != MaxOfflineQueueLen {
		t.Fatalf("expected offline queue capped at %d, got %d", MaxOfflineQueueLen, len(queued))
	}
	if queued[0].Payload[0] != 10 {
		t.Fatalf("expected oldest entries dropped, got first payload %v", queued[0].Payload)
	}
}
