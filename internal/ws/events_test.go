package ws

import (
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw, err := Encode(&MomentAvailable{
		MomentID:   "m1",
		URL:        "/moments/latest",
		SenderName: "alice",
		Timestamp:  1700000000000,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(raw), `"moment_available"`) {
		t.Fatalf("expected wire tag in frame, got %s", raw)
	}

	event, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	available, ok := event.(*MomentAvailable)
	if !ok {
		t.Fatalf("expected *MomentAvailable, got %T", event)
	}
	if available.MomentID != "m1" || available.SenderName != "alice" {
		t.Fatalf("round trip lost fields: %+v", available)
	}
}

func TestDecodeJoin(t *testing.T) {
	event, err := Decode([]byte(`{"type":"join","data":{"party_id":"a"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	join, ok := event.(*Join)
	if !ok {
		t.Fatalf("expected *Join, got %T", event)
	}
	if join.PartyID != "a" {
		t.Fatalf("expected party a, got %q", join.PartyID)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"launch_missiles"}`)); err == nil {
		t.Fatalf("expected error for unknown event type")
	}
}

func TestDecodeMalformedFrame(t *testing.T) {
	if _, err := Decode([]byte(`{"type":`)); err == nil {
		t.Fatalf("expected error for malformed frame")
	}
}

func TestKindString(t *testing.T) {
	if KindHeartbeat.String() != "heartbeat" {
		t.Fatalf("unexpected tag %q", KindHeartbeat.String())
	}
	if Kind(99).String() != "kind(99)" {
		t.Fatalf("unexpected tag %q", Kind(99).String())
	}
}
