package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"

	"moment-service/internal/models"
)

var (
	ErrPairingNotFound = errors.New("pairing not found")
	ErrAlreadyPaired   = errors.New("party already paired")
)

// PairingRepository abstracts the symmetric 1:1 pairing relation.
type PairingRepository interface {
	Create(ctx context.Context, partyID, partnerID string) (models.Pairing, error)
	ByParty(ctx context.Context, partyID string) (models.Pairing, error)
	Get(ctx context.Context, pairingID int) (models.Pairing, error)
	Delete(ctx context.Context, pairingID int) error
}

// PairingRepo is a sqlx implementation of PairingRepository.
type PairingRepo struct {
	db *sqlx.DB
}

// NewPairingRepo constructs a PairingRepo.
func NewPairingRepo(db *sqlx.DB) *PairingRepo {
	return &PairingRepo{db: db}
}

// Create establishes a pairing between two parties. Each party may be
// in at most one active pairing, so the existence check and insert run
// in one transaction.
func (r *PairingRepo) Create(ctx context.Context, partyID, partnerID string) (models.Pairing, error) {
	if partyID == partnerID {
		return models.Pairing{}, errors.New("cannot pair with self")
	}
	participants := []string{partyID, partnerID}
	sort.Strings(participants)
	partyA, partyB := participants[0], participants[1]

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Pairing{}, err
	}
	defer tx.Rollback()

	var taken bool
	if err := tx.GetContext(ctx, &taken, `SELECT EXISTS(SELECT 1 FROM pairings WHERE party_a IN ($1, $2) OR party_b IN ($1, $2))`, partyA, partyB); err != nil {
		return models.Pairing{}, err
	}
	if taken {
		return models.Pairing{}, ErrAlreadyPaired
	}

	var pairing models.Pairing
	if err := tx.QueryRowxContext(ctx, `INSERT INTO pairings (party_a, party_b) VALUES ($1, $2) RETURNING id, party_a, party_b, created_at`, partyA, partyB).
		Scan(&pairing.ID, &pairing.PartyA, &pairing.PartyB, &pairing.CreatedAt); err != nil {
		return models.Pairing{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Pairing{}, err
	}
	return pairing, nil
}

// ByParty finds the active pairing containing the party.
func (r *PairingRepo) ByParty(ctx context.Context, partyID string) (models.Pairing, error) {
	var pairing models.Pairing
	err := r.db.GetContext(ctx, &pairing, `SELECT id, party_a, party_b, created_at FROM pairings WHERE party_a=$1 OR party_b=$1`, partyID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Pairing{}, ErrPairingNotFound
	}
	return pairing, err
}

// Get fetches a pairing by id.
func (r *PairingRepo) Get(ctx context.Context, pairingID int) (models.Pairing, error) {
	var pairing models.Pairing
	err := r.db.GetContext(ctx, &pairing, `SELECT id, party_a, party_b, created_at FROM pairings WHERE id=$1`, pairingID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Pairing{}, ErrPairingNotFound
	}
	return pairing, err
}

// Delete tears the pairing down; moments cascade with it.
func (r *PairingRepo) Delete(ctx context.Context, pairingID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pairings WHERE id=$1`, pairingID)
	if err != nil {
		return err
	}
	return requireRow(res, ErrPairingNotFound)
}
