package ws

import (
	"errors"
	"testing"
)

func TestHubRegisterAndUnregister(t *testing.T) {
	hub := NewHub()

	hub.Register("a", nil, ConnInfo{ConnID: "c1", PartyID: "a"})
	if !hub.IsConnected("a") {
		t.Fatalf("expected party to be connected")
	}
	if hub.ActiveCount() != 1 {
		t.Fatalf("expected one active connection")
	}

	if !hub.Unregister("a", "c1") {
		t.Fatalf("expected owning connection to unregister")
	}
	if hub.IsConnected("a") {
		t.Fatalf("expected party to be disconnected")
	}
}

func TestHubReconnectReplacesChannel(t *testing.T) {
	hub := NewHub()

	hub.Register("a", nil, ConnInfo{ConnID: "c1", PartyID: "a"})
	hub.Register("a", nil, ConnInfo{ConnID: "c2", PartyID: "a"})

	if id, ok := hub.ConnID("a"); !ok || id != "c2" {
		t.Fatalf("expected c2 to own the channel, got %q", id)
	}

	// The replaced session's teardown must not remove the fresh channel.
	if hub.Unregister("a", "c1") {
		t.Fatalf("expected stale connection to lose ownership")
	}
	if !hub.IsConnected("a") {
		t.Fatalf("expected party to stay connected")
	}

	if !hub.Unregister("a", "c2") {
		t.Fatalf("expected current connection to unregister")
	}
}

func TestHubSendNotConnected(t *testing.T) {
	hub := NewHub()

	err := hub.Send("nobody", &Joined{PartyID: "nobody"})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
