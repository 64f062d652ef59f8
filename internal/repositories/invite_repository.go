package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"moment-service/internal/models"
)

var (
	ErrInviteInvalid = errors.New("invite code invalid or already used")
	ErrInviteExpired = errors.New("invite code expired")
)

// InviteRepository abstracts single-use pairing invite codes.
type InviteRepository interface {
	Create(ctx context.Context, code, issuerPartyID string, expiresAt time.Time) (models.InviteCode, error)
	Claim(ctx context.Context, code string) (string, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// InviteRepo is a sqlx implementation of InviteRepository.
type InviteRepo struct {
	db *sqlx.DB
}

// NewInviteRepo constructs an InviteRepo.
func NewInviteRepo(db *sqlx.DB) *InviteRepo {
	return &InviteRepo{db: db}
}

// Create stores a fresh invite code. Issuing a new code first drops
// the issuer's outstanding codes so only the latest one can be joined.
func (r *InviteRepo) Create(ctx context.Context, code, issuerPartyID string, expiresAt time.Time) (models.InviteCode, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.InviteCode{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM invite_codes WHERE issuer_party_id=$1`, issuerPartyID); err != nil {
		return models.InviteCode{}, err
	}

	var invite models.InviteCode
	if err := tx.QueryRowxContext(ctx, `INSERT INTO invite_codes (code, issuer_party_id, expires_at) VALUES ($1, $2, $3) RETURNING code, issuer_party_id, created_at, expires_at`, code, issuerPartyID, expiresAt).
		Scan(&invite.Code, &invite.IssuerPartyID, &invite.CreatedAt, &invite.ExpiresAt); err != nil {
		return models.InviteCode{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.InviteCode{}, err
	}
	return invite, nil
}

// Claim consumes the code and returns its issuer. The delete is
// atomic, so when two joins race exactly one of them gets the row and
// the other sees ErrInviteInvalid.
func (r *InviteRepo) Claim(ctx context.Context, code string) (string, error) {
	var row struct {
		IssuerPartyID string    `db:"issuer_party_id"`
		ExpiresAt     time.Time `db:"expires_at"`
	}
	err := r.db.QueryRowxContext(ctx, `DELETE FROM invite_codes WHERE code=$1 RETURNING issuer_party_id, expires_at`, code).
		Scan(&row.IssuerPartyID, &row.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInviteInvalid
	}
	if err != nil {
		return "", err
	}
	if row.ExpiresAt.Before(time.Now()) {
		return "", ErrInviteExpired
	}
	return row.IssuerPartyID, nil
}

// DeleteExpired purges stale codes.
func (r *InviteRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM invite_codes WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	count, err := res.RowsAffected()
	return int(count), err
}
