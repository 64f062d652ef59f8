package presence

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"moment-service/internal/repositories"
	"moment-service/internal/ws"
)

// LiveSender is the live-channel surface the broadcaster needs.
type LiveSender interface {
	Send(partyID string, event ws.Event) error
	IsConnected(partyID string) bool
}

// Broadcaster forwards presence transitions and heartbeats to the
// paired partner. Presence is latest-state-wins: events are never
// queued or retried, a missed one self-corrects on the next heartbeat
// or reconnect.
type Broadcaster struct {
	pairingRepo repositories.PairingRepository
	live        LiveSender

	mu       sync.Mutex
	lastSent map[string]bool
}

// NewBroadcaster constructs a Broadcaster.
func NewBroadcaster(pairingRepo repositories.PairingRepository, live LiveSender) *Broadcaster {
	return &Broadcaster{
		pairingRepo: pairingRepo,
		live:        live,
		lastSent:    make(map[string]bool),
	}
}

// OnTransition emits at most one presence event to the partner per
// state change. Repeated transitions to the same state are dropped.
func (b *Broadcaster) OnTransition(ctx context.Context, partyID string, isOnline bool) {
	b.mu.Lock()
	if last, ok := b.lastSent[partyID]; ok && last == isOnline {
		b.mu.Unlock()
		return
	}
	b.lastSent[partyID] = isOnline
	b.mu.Unlock()

	partnerID, ok := b.partner(ctx, partyID)
	if !ok {
		return
	}

	if err := b.live.Send(partnerID, &ws.Presence{
		PartyID:   partyID,
		IsOnline:  isOnline,
		Timestamp: time.Now().UnixMilli(),
	}); err != nil && !errors.Is(err, ws.ErrNotConnected) {
		log.Printf("presence send failed partner=%s: %v", partnerID, err)
	}
}

// OnHeartbeat forwards the derived heartbeat to the partner. Unlike
// transitions it is not deduplicated; each one bounds the partner's
// staleness to a single heartbeat interval.
func (b *Broadcaster) OnHeartbeat(ctx context.Context, partyID string) {
	partnerID, ok := b.partner(ctx, partyID)
	if !ok {
		return
	}

	if err := b.live.Send(partnerID, &ws.PartnerHeartbeat{
		PartyID:   partyID,
		Timestamp: time.Now().UnixMilli(),
	}); err != nil && !errors.Is(err, ws.ErrNotConnected) {
		log.Printf("heartbeat forward failed partner=%s: %v", partnerID, err)
	}
}

// Forget drops the party's transition state, e.g. on unpair.
func (b *Broadcaster) Forget(partyID string) {
	b.mu.Lock()
	delete(b.lastSent, partyID)
	b.mu.Unlock()
}

func (b *Broadcaster) partner(ctx context.Context, partyID string) (string, bool) {
	pairing, err := b.pairingRepo.ByParty(ctx, partyID)
	if err != nil {
		if !errors.Is(err, repositories.ErrPairingNotFound) {
			log.Printf("presence pairing lookup failed party=%s: %v", partyID, err)
		}
		return "", false
	}

	partnerID := pairing.PartnerOf(partyID)
	if partnerID == "" || !b.live.IsConnected(partnerID) {
		return "", false
	}
	return partnerID, true
}
