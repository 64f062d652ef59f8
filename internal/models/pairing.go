package models

import "time"

// Pairing is the symmetric 1:1 relation between two parties. Parties
// are stored in sorted order so the relation has a single row.
type Pairing struct {
	ID        int       `db:"id" json:"id"`
	PartyA    string    `db:"party_a" json:"party_a"`
	PartyB    string    `db:"party_b" json:"party_b"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PartnerOf returns the other party of the pairing, or "" when the
// given party is not a member.
func (p Pairing) PartnerOf(partyID string) string {
	switch partyID {
	case p.PartyA:
		return p.PartyB
	case p.PartyB:
		return p.PartyA
	}
	return ""
}

// HasParty reports whether the party belongs to the pairing.
func (p Pairing) HasParty(partyID string) bool {
	return p.PartyA == partyID || p.PartyB == partyID
}

// InviteCode is a single-use pairing invitation.
type InviteCode struct {
	Code          string    `db:"code" json:"code"`
	IssuerPartyID string    `db:"issuer_party_id" json:"issuer_party_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	ExpiresAt     time.Time `db:"expires_at" json:"expires_at"`
}
