package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"moment-service/internal/models"
)

var ErrPartyNotFound = errors.New("party not found")

// PartyRepository abstracts party persistence, including the delivery
// capability fields (push token, live channel id).
type PartyRepository interface {
	Upsert(ctx context.Context, partyID, displayName string) (models.Party, error)
	Get(ctx context.Context, partyID string) (models.Party, error)
	SetPushToken(ctx context.Context, partyID, token string) error
	SetLiveChannel(ctx context.Context, partyID, connID string) error
	ClearLiveChannel(ctx context.Context, partyID, connID string) error
	TouchLastSeen(ctx context.Context, partyID string) error
	UpdateSettings(ctx context.Context, partyID string, notificationsEnabled bool) error
	Count(ctx context.Context) (int, error)
}

// PartyRepo is a sqlx implementation of PartyRepository.
type PartyRepo struct {
	db *sqlx.DB
}

// NewPartyRepo constructs a PartyRepo.
func NewPartyRepo(db *sqlx.DB) *PartyRepo {
	return &PartyRepo{db: db}
}

// Upsert creates the party on first touch and refreshes its display
// name on subsequent authentications.
func (r *PartyRepo) Upsert(ctx context.Context, partyID, displayName string) (models.Party, error) {
	var party models.Party
	err := r.db.GetContext(ctx, &party, `INSERT INTO parties (id, display_name)
        VALUES ($1, $2)
        ON CONFLICT (id) DO UPDATE SET display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE parties.display_name END, updated_at = NOW()
        RETURNING id, display_name, push_token, live_channel_id, rate_exempt, notifications_enabled, last_seen_at, created_at, updated_at`,
		partyID, displayName)
	return party, err
}

// Get fetches a party by id.
func (r *PartyRepo) Get(ctx context.Context, partyID string) (models.Party, error) {
	var party models.Party
	err := r.db.GetContext(ctx, &party, `SELECT id, display_name, push_token, live_channel_id, rate_exempt, notifications_enabled, last_seen_at, created_at, updated_at FROM parties WHERE id=$1`, partyID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Party{}, ErrPartyNotFound
	}
	return party, err
}

// SetPushToken registers the party's push delivery address.
func (r *PartyRepo) SetPushToken(ctx context.Context, partyID, token string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE parties SET push_token=$1, updated_at=NOW() WHERE id=$2`, token, partyID)
	if err != nil {
		return err
	}
	return requireRow(res, ErrPartyNotFound)
}

// SetLiveChannel binds the party's live channel id.
func (r *PartyRepo) SetLiveChannel(ctx context.Context, partyID, connID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE parties SET live_channel_id=$1, last_seen_at=NOW(), updated_at=NOW() WHERE id=$2`, connID, partyID)
	if err != nil {
		return err
	}
	return requireRow(res, ErrPartyNotFound)
}

// ClearLiveChannel removes the live channel id, but only when the
// given connection still owns it. A reconnect that already rebound the
// channel must not be cleared by the old session's teardown.
func (r *PartyRepo) ClearLiveChannel(ctx context.Context, partyID, connID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE parties SET live_channel_id=NULL, last_seen_at=NOW(), updated_at=NOW() WHERE id=$1 AND live_channel_id=$2`, partyID, connID)
	return err
}

// TouchLastSeen refreshes the liveness timestamp on heartbeat.
func (r *PartyRepo) TouchLastSeen(ctx context.Context, partyID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE parties SET last_seen_at=NOW() WHERE id=$1`, partyID)
	return err
}

// UpdateSettings stores per-party notification preferences.
func (r *PartyRepo) UpdateSettings(ctx context.Context, partyID string, notificationsEnabled bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE parties SET notifications_enabled=$1, updated_at=NOW() WHERE id=$2`, notificationsEnabled, partyID)
	if err != nil {
		return err
	}
	return requireRow(res, ErrPartyNotFound)
}

// Count returns the total number of known parties.
func (r *PartyRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM parties`)
	return count, err
}

func requireRow(res sql.Result, notFound error) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return nil
}
