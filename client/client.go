// Package client implements the device-side session controller: it
// dials the live channel, joins with acknowledgment, heartbeats, and
// reconnects with capped exponential backoff when the transport drops.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"moment-service/internal/ws"
)

// State is the controller's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StateChannelJoined
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateChannelJoined:
		return "channel_joined"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrAuth means the server rejected the session token.
	ErrAuth = errors.New("authentication rejected")
	// ErrAckTimeout means an acknowledged emit got no ack in time,
	// including its one reconnect-and-retry cycle.
	ErrAckTimeout = errors.New("acknowledgment timed out")
	// ErrNotConnected means an emit was attempted without a live
	// connection.
	ErrNotConnected = errors.New("not connected")
	// ErrRetriesExhausted means the reconnect loop hit its attempt
	// ceiling and is waiting for an external wake-up.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
)

// Handlers receive server-pushed events. Nil handlers are skipped.
type Handlers struct {
	OnMomentAvailable     func(ws.MomentAvailable)
	OnMomentDelivered     func(ws.MomentDelivered)
	OnPresence            func(ws.Presence)
	OnPartnerHeartbeat    func(ws.PartnerHeartbeat)
	OnPartnerTyping       func()
	OnPartnerDisconnected func(ws.PartnerDisconnected)
	OnStateChange         func(State)
}

// Options tune the controller. Zero values take the defaults below.
type Options struct {
	HeartbeatInterval time.Duration
	JoinAckTimeout    time.Duration
	JoinRetries       int
	AckTimeout        time.Duration
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	MaxAttempts       int
}

func (o *Options) applyDefaults() {
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = 15 * time.Second
	}
	if o.JoinAckTimeout == 0 {
		o.JoinAckTimeout = 3 * time.Second
	}
	if o.JoinRetries == 0 {
		o.JoinRetries = 3
	}
	if o.AckTimeout == 0 {
		o.AckTimeout = 5 * time.Second
	}
	if o.BackoffBase == 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffCap == 0 {
		o.BackoffCap = 30 * time.Second
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 10
	}
}

// Controller drives one party's live session. All exported methods are
// safe for concurrent use.
type Controller struct {
	url      string
	token    string
	partyID  string
	opts     Options
	handlers Handlers

	mu          sync.Mutex
	conn        *websocket.Conn
	writeMu     sync.Mutex
	state       State
	ready       bool
	attempts    int
	serverClose bool

	joined      chan struct{}
	wake        chan struct{}
	done        chan struct{}
	seenMoments map[string]struct{}
}

// New constructs a Controller for the given websocket URL and session
// token.
func New(url, token, partyID string, opts Options, handlers Handlers) *Controller {
	opts.applyDefaults()
	return &Controller{
		url:         url,
		token:       token,
		partyID:     partyID,
		opts:        opts,
		handlers:    handlers,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		seenMoments: make(map[string]struct{}),
	}
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready reports whether the channel join was acknowledged. A session
// that never got its join ack stays usable in degraded mode but is
// flagged not ready.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateChannelJoined && c.ready
}

// Run connects and keeps the session alive until ctx is cancelled,
// reconnecting with exponential backoff on transport errors. After the
// attempt ceiling it parks until WakeUp is called.
func (c *Controller) Run(ctx context.Context) error {
	bo := c.newBackoff()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.connectOnce(ctx)
		if errors.Is(err, ErrAuth) {
			return err
		}
		if err == nil {
			// Session was established and later dropped. Attempt
			// counting starts over.
			bo.Reset()
			c.mu.Lock()
			c.attempts = 0
			serverClose := c.lastCloseWasServerInitiated()
			c.mu.Unlock()
			if serverClose {
				continue
			}
		}

		c.mu.Lock()
		c.attempts++
		exhausted := c.attempts >= c.opts.MaxAttempts
		c.mu.Unlock()

		if exhausted {
			c.setState(StateDisconnected, false)
			select {
			case <-c.wake:
				bo.Reset()
				c.mu.Lock()
				c.attempts = 0
				c.mu.Unlock()
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		select {
		case <-time.After(bo.NextBackOff()):
		case <-c.wake:
			bo.Reset()
			c.mu.Lock()
			c.attempts = 0
			c.mu.Unlock()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WakeUp asks a parked or backing-off controller to retry now. Call it
// on app foreground or network-state-changed.
func (c *Controller) WakeUp() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Close tears down the current connection.
func (c *Controller) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	c.setState(StateDisconnected, false)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Emit sends a fire-and-forget event.
func (c *Controller) Emit(event ws.Event) error {
	return c.write(event)
}

// EmitWithAck sends an event and waits for its acknowledgment. On
// timeout one reconnect-and-retry cycle runs before the failure
// surfaces.
func (c *Controller) EmitWithAck(ctx context.Context, event ws.Event) error {
	if err := c.emitAndWait(ctx, event); err == nil {
		return nil
	} else if errors.Is(err, ErrAuth) {
		return err
	}

	if err := c.connectOnceAsync(ctx); err != nil {
		return ErrAckTimeout
	}
	if err := c.emitAndWait(ctx, event); err != nil {
		return ErrAckTimeout
	}
	return nil
}

// connectOnce dials, authenticates, joins and then blocks in the read
// loop until the connection drops. A nil return means a session was
// established and has now ended.
func (c *Controller) connectOnce(ctx context.Context) error {
	c.setState(StateConnecting, false)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{"Authorization": []string{"Bearer " + c.token}}
	conn, resp, err := dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			c.setState(StateDisconnected, false)
			return ErrAuth
		}
		c.setState(StateDisconnected, false)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.joined = make(chan struct{})
	c.serverClose = false
	c.mu.Unlock()
	c.setState(StateAuthenticated, false)

	readDone := make(chan error, 1)
	go func() { readDone <- c.readLoop(conn) }()

	if c.joinWithRetry(ctx) {
		c.setState(StateChannelJoined, true)
	} else {
		// Degraded: keep the transport and heartbeats, but the
		// channel is flagged not ready.
		c.setState(StateChannelJoined, false)
	}

	c.heartbeatLoop(ctx, readDone)

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
	c.setState(StateDisconnected, false)
	return nil
}

// connectOnceAsync re-establishes the session without blocking on the
// read loop lifetime; used by EmitWithAck's retry cycle.
func (c *Controller) connectOnceAsync(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- c.connectOnce(ctx) }()

	deadline := time.NewTimer(c.opts.JoinAckTimeout * time.Duration(c.opts.JoinRetries+1))
	defer deadline.Stop()
	for {
		select {
		case err := <-errCh:
			return err
		case <-deadline.C:
			if c.State() == StateChannelJoined {
				return nil
			}
			return ErrNotConnected
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// joinWithRetry emits join and waits for the ack, retrying with a
// linearly growing wait between attempts.
func (c *Controller) joinWithRetry(ctx context.Context) bool {
	c.mu.Lock()
	joined := c.joined
	c.mu.Unlock()

	for attempt := 1; attempt <= c.opts.JoinRetries; attempt++ {
		if err := c.write(&ws.Join{PartyID: c.partyID}); err != nil {
			return false
		}
		select {
		case <-joined:
			return true
		case <-time.After(c.opts.JoinAckTimeout):
		case <-ctx.Done():
			return false
		}
		select {
		case <-time.After(500 * time.Millisecond * time.Duration(attempt)):
		case <-ctx.Done():
			return false
		}
	}
	return false
}

func (c *Controller) heartbeatLoop(ctx context.Context, readDone <-chan error) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.write(&ws.Heartbeat{PartyID: c.partyID}); err != nil {
				return
			}
		case <-readDone:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.serverClose = websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
			c.mu.Unlock()
			return err
		}
		event, err := ws.Decode(raw)
		if err != nil {
			continue
		}
		c.dispatch(event)
	}
}

func (c *Controller) dispatch(event ws.Event) {
	switch e := event.(type) {
	case *ws.Joined:
		c.mu.Lock()
		if c.joined != nil {
			select {
			case <-c.joined:
			default:
				close(c.joined)
			}
		}
		c.mu.Unlock()
	case *ws.MomentAvailable:
		// Both live and push can carry the same moment; display it
		// once.
		c.mu.Lock()
		if _, seen := c.seenMoments[e.MomentID]; seen {
			c.mu.Unlock()
			return
		}
		c.seenMoments[e.MomentID] = struct{}{}
		c.mu.Unlock()
		if c.handlers.OnMomentAvailable != nil {
			c.handlers.OnMomentAvailable(*e)
		}
		_ = c.Emit(&ws.MomentReceived{MomentID: e.MomentID})
	case *ws.MomentDelivered:
		if c.handlers.OnMomentDelivered != nil {
			c.handlers.OnMomentDelivered(*e)
		}
	case *ws.Presence:
		if c.handlers.OnPresence != nil {
			c.handlers.OnPresence(*e)
		}
	case *ws.PartnerHeartbeat:
		if c.handlers.OnPartnerHeartbeat != nil {
			c.handlers.OnPartnerHeartbeat(*e)
		}
	case *ws.PartnerTyping:
		if c.handlers.OnPartnerTyping != nil {
			c.handlers.OnPartnerTyping()
		}
	case *ws.PartnerDisconnected:
		if c.handlers.OnPartnerDisconnected != nil {
			c.handlers.OnPartnerDisconnected(*e)
		}
	}
}

func (c *Controller) emitAndWait(ctx context.Context, event ws.Event) error {
	switch event.Kind() {
	case ws.KindJoin:
		c.mu.Lock()
		c.joined = make(chan struct{})
		joined := c.joined
		c.mu.Unlock()
		if err := c.write(event); err != nil {
			return err
		}
		select {
		case <-joined:
			return nil
		case <-time.After(c.opts.AckTimeout):
			return ErrAckTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		// Only join carries a server ack today.
		return c.write(event)
	}
}

func (c *Controller) write(event ws.Event) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	raw, err := ws.Encode(event)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func (c *Controller) setState(state State, ready bool) {
	c.mu.Lock()
	changed := c.state != state || c.ready != ready
	c.state = state
	c.ready = ready
	c.mu.Unlock()
	if changed && c.handlers.OnStateChange != nil {
		c.handlers.OnStateChange(state)
	}
}

func (c *Controller) lastCloseWasServerInitiated() bool {
	return c.serverClose
}

// newBackoff builds the reconnect delay source: base doubling per
// attempt, capped, no jitter so delays are reproducible.
func (c *Controller) newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.BackoffBase
	bo.Multiplier = 2
	bo.MaxInterval = c.opts.BackoffCap
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}
