package moments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"moment-service/internal/models"
	"moment-service/internal/observability"
	"moment-service/internal/push"
	"moment-service/internal/repositories"
	"moment-service/internal/ws"
)

// LiveSender is the live-channel surface the pipeline fans out on.
type LiveSender interface {
	Send(partyID string, event ws.Event) error
	IsConnected(partyID string) bool
}

// LatestMomentPath is the reference sent over the live and push
// channels; the binary payload is only ever fetched from here.
const LatestMomentPath = "/moments/latest"

const rateWindow = 24 * time.Hour

// Pipeline accepts inbound moments, enforces the ephemerality
// invariant, and fans out through every available channel.
type Pipeline struct {
	partyRepo   repositories.PartyRepository
	pairingRepo repositories.PairingRepository
	momentRepo  repositories.MomentRepository
	queue       *Queue
	live        LiveSender
	pushSender  push.Sender
	normalizer  Normalizer
	dailyLimit  int
}

// NewPipeline constructs a Pipeline.
func NewPipeline(
	partyRepo repositories.PartyRepository,
	pairingRepo repositories.PairingRepository,
	momentRepo repositories.MomentRepository,
	queue *Queue,
	live LiveSender,
	pushSender push.Sender,
	normalizer Normalizer,
	dailyLimit int,
) *Pipeline {
	return &Pipeline{
		partyRepo:   partyRepo,
		pairingRepo: pairingRepo,
		momentRepo:  momentRepo,
		queue:       queue,
		live:        live,
		pushSender:  pushSender,
		normalizer:  normalizer,
		dailyLimit:  dailyLimit,
	}
}

// Submit processes one inbound moment. Validation and rate errors are
// returned synchronously; channel failures are absorbed into queue and
// retry behavior, never into a submit failure.
func (p *Pipeline) Submit(ctx context.Context, senderID string, payload []byte, clientMomentID string) (models.DeliveryReceipt, error) {
	if clientMomentID == "" {
		return models.DeliveryReceipt{}, &InvalidPayloadError{Reason: "client moment id required"}
	}

	// Idempotent short-circuit: a retried submit returns the prior
	// receipt without re-processing or a second fan-out.
	if existing, err := p.momentRepo.GetByClientID(ctx, clientMomentID); err == nil {
		return p.receiptFor(existing), nil
	} else if !errors.Is(err, repositories.ErrMomentNotFound) {
		return models.DeliveryReceipt{}, err
	}

	pairing, err := p.pairingRepo.ByParty(ctx, senderID)
	if err != nil {
		if errors.Is(err, repositories.ErrPairingNotFound) {
			return models.DeliveryReceipt{}, ErrNotPaired
		}
		return models.DeliveryReceipt{}, err
	}

	sender, err := p.partyRepo.Get(ctx, senderID)
	if err != nil {
		return models.DeliveryReceipt{}, err
	}

	remaining := p.dailyLimit
	if !sender.RateExempt {
		count, err := p.momentRepo.CountSendsSince(ctx, senderID, time.Now().Add(-rateWindow))
		if err != nil {
			return models.DeliveryReceipt{}, err
		}
		remaining = p.dailyLimit - count
		if remaining <= 0 {
			return models.DeliveryReceipt{}, &RateLimitError{Limit: p.dailyLimit, Remaining: 0}
		}
	}

	normalized, err := p.normalizer.Normalize(payload)
	if err != nil {
		return models.DeliveryReceipt{}, err
	}

	// Supersede-then-store runs in one transaction holding the pairing
	// row lock; the delete is unconditional per the ephemerality
	// invariant.
	moment, err := p.momentRepo.Replace(ctx, models.Moment{
		ID:             uuid.NewString(),
		PairingID:      pairing.ID,
		SenderID:       senderID,
		ClientMomentID: clientMomentID,
		Payload:        normalized,
	})
	if err != nil {
		return models.DeliveryReceipt{}, err
	}

	if err := p.momentRepo.RecordSend(ctx, senderID); err != nil {
		log.Printf("rate ledger append failed sender=%s: %v", senderID, err)
	}
	remaining--

	partnerID := pairing.PartnerOf(senderID)
	partner, err := p.partyRepo.Get(ctx, partnerID)
	if err != nil {
		return models.DeliveryReceipt{}, fmt.Errorf("resolve partner capabilities: %w", err)
	}

	p.notifySender(senderID, &ws.MomentSent{MomentID: moment.ID, ClientMomentID: clientMomentID})

	available := ws.MomentAvailable{
		MomentID:   moment.ID,
		URL:        LatestMomentPath,
		SenderName: sender.DisplayName,
		Timestamp:  moment.CreatedAt.UnixMilli(),
	}

	receipt := models.DeliveryReceipt{
		MomentID:       moment.ID,
		ClientMomentID: clientMomentID,
		Status:         models.ReceiptStatusSent,
		RateRemaining:  remaining,
		CreatedAt:      moment.CreatedAt,
	}

	receipt.LiveSent = p.fanOutLive(partnerID, available, senderID, moment.ID)
	receipt.PushSent = p.fanOutPush(ctx, partner, available, senderID, moment.ID)

	if !receipt.LiveSent && !receipt.PushSent {
		if err := p.queue.Enqueue(ctx, partnerID, available); err != nil {
			return models.DeliveryReceipt{}, err
		}
		receipt.Status = models.ReceiptStatusQueued
		observability.IncDelivery(ws.ChannelQueued, "ok")
		p.notifySender(senderID, &ws.MomentDelivered{
			MomentID:    moment.ID,
			Channel:     ws.ChannelQueued,
			DeliveredAt: time.Now().UnixMilli(),
		})
	}

	// Persist the outcome so a retried submit gets this exact receipt
	// back. Best-effort like the ledger append.
	if err := p.momentRepo.RecordOutcome(ctx, moment.ID, receipt.LiveSent, receipt.PushSent, remaining); err != nil {
		log.Printf("record delivery outcome failed moment=%s: %v", moment.ID, err)
	}

	return receipt, nil
}

// fanOutLive emits the reference on the partner's live channel, if
// present, and confirms the channel to the sender on success.
func (p *Pipeline) fanOutLive(partnerID string, available ws.MomentAvailable, senderID, momentID string) bool {
	if !p.live.IsConnected(partnerID) {
		return false
	}

	if err := p.live.Send(partnerID, &available); err != nil {
		channelErr := &DeliveryChannelError{Channel: ws.ChannelLive, Err: err}
		log.Printf("moment fan-out: %v", channelErr)
		observability.IncDelivery(ws.ChannelLive, "error")
		return false
	}

	observability.IncDelivery(ws.ChannelLive, "ok")
	p.notifySender(senderID, &ws.MomentDelivered{
		MomentID:    momentID,
		Channel:     ws.ChannelLive,
		DeliveredAt: time.Now().UnixMilli(),
	})
	return true
}

// fanOutPush always fires when a push address is registered,
// independent of live-channel presence: push is the only channel that
// reaches a fully backgrounded client. The receiving side dedups on
// the moment id when both channels deliver.
func (p *Pipeline) fanOutPush(ctx context.Context, partner models.Party, available ws.MomentAvailable, senderID, momentID string) bool {
	if partner.PushToken == nil || *partner.PushToken == "" || !partner.NotificationsEnabled {
		return false
	}

	notification := push.Notification{
		Type:       "new_moment",
		MomentID:   momentID,
		PhotoURL:   available.URL,
		SenderName: available.SenderName,
		Title:      fmt.Sprintf("New moment from %s", available.SenderName),
		Body:       "Tap to view your moment",
		Timestamp:  available.Timestamp,
	}

	if err := p.pushSender.SendPush(ctx, *partner.PushToken, notification); err != nil {
		channelErr := &DeliveryChannelError{Channel: ws.ChannelPush, Err: err}
		log.Printf("moment fan-out: %v", channelErr)
		observability.IncDelivery(ws.ChannelPush, "error")
		return false
	}

	observability.IncDelivery(ws.ChannelPush, "ok")
	p.notifySender(senderID, &ws.MomentDelivered{
		MomentID:    momentID,
		Channel:     ws.ChannelPush,
		DeliveredAt: time.Now().UnixMilli(),
	})
	return true
}

// receiptFor rebuilds the receipt for an already-stored moment from
// its persisted delivery outcome, so a duplicate submit returns the
// original receipt unchanged.
func (p *Pipeline) receiptFor(moment models.Moment) models.DeliveryReceipt {
	status := models.ReceiptStatusSent
	if !moment.LiveSent && !moment.PushSent {
		status = models.ReceiptStatusQueued
	}

	return models.DeliveryReceipt{
		MomentID:       moment.ID,
		ClientMomentID: moment.ClientMomentID,
		Status:         status,
		LiveSent:       moment.LiveSent,
		PushSent:       moment.PushSent,
		RateRemaining:  moment.RateRemaining,
		CreatedAt:      moment.CreatedAt,
	}
}

// notifySender is best-effort; an offline sender just misses the
// progressive status events.
func (p *Pipeline) notifySender(senderID string, event ws.Event) {
	if err := p.live.Send(senderID, event); err != nil && !errors.Is(err, ws.ErrNotConnected) {
		log.Printf("sender notify failed party=%s: %v", senderID, err)
	}
}
