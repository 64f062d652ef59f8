package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moment-service/internal/ws"
)

func TestBackoffSequenceIsDoublingAndCapped(t *testing.T) {
	c := New("ws://localhost/ws", "token", "alice", Options{}, Handlers{})
	bo := c.newBackoff()

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	var got []time.Duration
	for range want {
		got = append(got, bo.NextBackOff())
	}
	assert.Equal(t, want, got)

	// A successful connect resets the schedule.
	bo.Reset()
	assert.Equal(t, 1*time.Second, bo.NextBackOff())
}

func TestOptionsDefaults(t *testing.T) {
	var opts Options
	opts.applyDefaults()

	assert.Equal(t, 15*time.Second, opts.HeartbeatInterval)
	assert.Equal(t, 3*time.Second, opts.JoinAckTimeout)
	assert.Equal(t, 3, opts.JoinRetries)
	assert.Equal(t, 5*time.Second, opts.AckTimeout)
	assert.Equal(t, time.Second, opts.BackoffBase)
	assert.Equal(t, 30*time.Second, opts.BackoffCap)
	assert.Equal(t, 10, opts.MaxAttempts)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "channel_joined", StateChannelJoined.String())
}

func TestEmitWithoutConnection(t *testing.T) {
	c := New("ws://localhost/ws", "token", "alice", Options{}, Handlers{})
	require.ErrorIs(t, c.Emit(&ws.Heartbeat{PartyID: "alice"}), ErrNotConnected)
}

func TestMomentDedupAcrossChannels(t *testing.T) {
	var seen int
	c := New("ws://localhost/ws", "token", "alice", Options{}, Handlers{})
	c.handlers.OnMomentAvailable = func(ws.MomentAvailable) { seen++ }

	c.dispatch(&ws.MomentAvailable{MomentID: "m1"})
	// The push channel can surface the same moment a second time.
	c.dispatch(&ws.MomentAvailable{MomentID: "m1"})
	c.dispatch(&ws.MomentAvailable{MomentID: "m2"})

	assert.Equal(t, 2, seen)
}
