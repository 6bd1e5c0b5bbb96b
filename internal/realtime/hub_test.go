package realtime

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

type fakeSession struct {
	lastEvent   string
	lastPayload any
	fail        bool
}

func (f *fakeSession) Send(event string, payload any) error {
	if f.fail {
		return errors.New("send fail")
	}
	f.lastEvent = event
	f.lastPayload = payload
	return nil
}

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHub_RegisterAndNotify(t *testing.T) {
	hub := newTestHub()

	sessionA := &fakeSession{}
	sessionB := &fakeSession{}

	idA := hub.Register(7, sessionA)
	_ = hub.Register(7, sessionB) // second connection for the same user

	hub.NotifyUser(7, "message:new", "m1")

	if sessionA.lastPayload != "m1" || sessionB.lastPayload != "m1" {
		t.Fatalf("both sessions should receive the event")
	}
	if sessionA.lastEvent != "message:new" {
		t.Fatalf("unexpected event name: %q", sessionA.lastEvent)
	}

	// Unregister session A and ensure it no longer receives events.
	hub.Unregister(7, idA)

	hub.NotifyUser(7, "message:new", "m2")
	if sessionA.lastPayload == "m2" {
		t.Fatalf("session A should not receive events after unregister")
	}
	if sessionB.lastPayload != "m2" {
		t.Fatalf("session B should still receive events")
	}
}

func TestHub_NotifyOfflineIsNoop(t *testing.T) {
	hub := newTestHub()

	// Must not panic or block; delivery to absent users is best-effort.
	hub.NotifyUser(42, "conversation:deleted", nil)

	if hub.Connected(42) {
		t.Fatalf("user 42 should not be connected")
	}
}

func TestHub_FailedSessionIsDropped(t *testing.T) {
	hub := newTestHub()

	ok := &fakeSession{}
	bad := &fakeSession{fail: true}

	_ = hub.Register(9, ok)
	_ = hub.Register(9, bad)

	hub.NotifyUser(9, "message:new", "x")

	// The failing session should have been unregistered; a subsequent event
	// reaches only the healthy one.
	hub.NotifyUser(9, "message:new", "y")

	if ok.lastPayload != "y" {
		t.Fatalf("healthy session did not receive event after cleanup")
	}

	bad.fail = false
	hub.NotifyUser(9, "message:new", "z")
	if bad.lastPayload == "z" {
		t.Fatalf("failed session should have been dropped from the hub")
	}
}

func TestHub_ConnectedLifecycle(t *testing.T) {
	hub := newTestHub()

	id := hub.Register(3, &fakeSession{})
	if !hub.Connected(3) {
		t.Fatalf("expected user 3 to be connected")
	}

	hub.Unregister(3, id)
	if hub.Connected(3) {
		t.Fatalf("expected user 3 to be disconnected after unregister")
	}
}
