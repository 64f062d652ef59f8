package models

import "time"

// Moment is the single ephemeral photo artifact live for a pairing.
// Creating a new moment for the same pairing supersedes the prior one.
type Moment struct {
	ID             string    `db:"id" json:"id"`
	PairingID      int       `db:"pairing_id" json:"pairing_id"`
	SenderID       string    `db:"sender_id" json:"sender_id"`
	ClientMomentID string    `db:"client_moment_id" json:"client_moment_id"`
	Payload        []byte    `db:"payload" json:"-"`
	LiveSent       bool      `db:"live_sent" json:"-"`
	PushSent       bool      `db:"push_sent" json:"-"`
	RateRemaining  int       `db:"rate_remaining" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Delivery receipt statuses. A submit never fails on channel errors;
// the receipt tells the sender which paths fired.
const (
	ReceiptStatusSent   = "sent"
	ReceiptStatusQueued = "queued"
)

// DeliveryReceipt is returned to the sender after a submit. Duplicate
// submits with the same client moment id return the stored receipt.
type DeliveryReceipt struct {
	MomentID       string    `json:"moment_id"`
	ClientMomentID string    `json:"client_moment_id"`
	Status         string    `json:"status"`
	LiveSent       bool      `json:"live_sent"`
	PushSent       bool      `json:"push_sent"`
	RateRemaining  int       `json:"rate_remaining"`
	CreatedAt      time.Time `json:"created_at"`
}
