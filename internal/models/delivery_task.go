package models

import "time"

// DeliveryTask is a queued, not-yet-delivered moment reference waiting
// for the target's live channel. Payload is the marshaled wire payload
// of the moment_available event, never the photo itself.
type DeliveryTask struct {
	ID            int       `db:"id" json:"id"`
	TargetPartyID string    `db:"target_party_id" json:"target_party_id"`
	MomentID      string    `db:"moment_id" json:"moment_id"`
	Payload       []byte    `db:"payload" json:"-"`
	Attempts      int       `db:"attempts" json:"attempts"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	ExpiresAt     time.Time `db:"expires_at" json:"expires_at"`
}
