package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"moment-service/internal/models"
)

var ErrMomentNotFound = errors.New("moment not found")

// MomentRepository abstracts the ephemeral moment artifact and the
// send-rate ledger.
type MomentRepository interface {
	Replace(ctx context.Context, moment models.Moment) (models.Moment, error)
	RecordOutcome(ctx context.Context, momentID string, liveSent, pushSent bool, rateRemaining int) error
	GetByClientID(ctx context.Context, clientMomentID string) (models.Moment, error)
	LatestForPairing(ctx context.Context, pairingID int) (models.Moment, error)
	RecordSend(ctx context.Context, senderID string) error
	CountSendsSince(ctx context.Context, senderID string, since time.Time) (int, error)
}

// MomentRepo is a sqlx implementation of MomentRepository.
type MomentRepo struct {
	db *sqlx.DB
}

// NewMomentRepo constructs a MomentRepo.
func NewMomentRepo(db *sqlx.DB) *MomentRepo {
	return &MomentRepo{db: db}
}

// Replace supersedes the pairing's prior moment and stores the new
// one. The transaction takes the pairing row lock first, so concurrent
// submits for the same pairing serialize here and last write wins
// deterministically.
func (r *MomentRepo) Replace(ctx context.Context, moment models.Moment) (models.Moment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Moment{}, err
	}
	defer tx.Rollback()

	var pairingID int
	if err := tx.GetContext(ctx, &pairingID, `SELECT id FROM pairings WHERE id=$1 FOR UPDATE`, moment.PairingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Moment{}, ErrPairingNotFound
		}
		return models.Moment{}, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM moments WHERE pairing_id=$1`, moment.PairingID); err != nil {
		return models.Moment{}, err
	}

	var stored models.Moment
	if err := tx.QueryRowxContext(ctx, `INSERT INTO moments (id, pairing_id, sender_id, client_moment_id, payload) VALUES ($1, $2, $3, $4, $5)
        RETURNING id, pairing_id, sender_id, client_moment_id, payload, created_at`,
		moment.ID, moment.PairingID, moment.SenderID, moment.ClientMomentID, moment.Payload).
		Scan(&stored.ID, &stored.PairingID, &stored.SenderID, &stored.ClientMomentID, &stored.Payload, &stored.CreatedAt); err != nil {
		return models.Moment{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Moment{}, err
	}
	return stored, nil
}

// RecordOutcome persists the delivery outcome after fan-out so a
// retried submit can return the original receipt unchanged.
func (r *MomentRepo) RecordOutcome(ctx context.Context, momentID string, liveSent, pushSent bool, rateRemaining int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE moments SET live_sent=$2, push_sent=$3, rate_remaining=$4 WHERE id=$1`,
		momentID, liveSent, pushSent, rateRemaining)
	return err
}

// GetByClientID fetches a moment by its client-generated id. Used for
// idempotent duplicate suppression on submit retries.
func (r *MomentRepo) GetByClientID(ctx context.Context, clientMomentID string) (models.Moment, error) {
	var moment models.Moment
	err := r.db.GetContext(ctx, &moment, `SELECT id, pairing_id, sender_id, client_moment_id, payload, live_sent, push_sent, rate_remaining, created_at
        FROM moments WHERE client_moment_id=$1`, clientMomentID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Moment{}, ErrMomentNotFound
	}
	return moment, err
}

// LatestForPairing returns the pairing's live moment.
func (r *MomentRepo) LatestForPairing(ctx context.Context, pairingID int) (models.Moment, error) {
	var moment models.Moment
	err := r.db.GetContext(ctx, &moment, `SELECT id, pairing_id, sender_id, client_moment_id, payload, live_sent, push_sent, rate_remaining, created_at
        FROM moments WHERE pairing_id=$1 ORDER BY created_at DESC LIMIT 1`, pairingID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Moment{}, ErrMomentNotFound
	}
	return moment, err
}

// RecordSend appends to the rate ledger. The ledger outlives the
// moment row so supersession does not reset the rolling-day count.
func (r *MomentRepo) RecordSend(ctx context.Context, senderID string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO moment_sends (sender_id) VALUES ($1)`, senderID)
	return err
}

// CountSendsSince counts the sender's sends within the rolling window.
func (r *MomentRepo) CountSendsSince(ctx context.Context, senderID string, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM moment_sends WHERE sender_id=$1 AND sent_at >= $2`, senderID, since)
	return count, err
}
