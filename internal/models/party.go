package models

import "time"

// Party is one authenticated end of a pairing. Push token and live
// channel id are delivery capabilities; the live channel id is only
// meaningful while a websocket session holds it.
type Party struct {
	ID                   string     `db:"id" json:"id"`
	DisplayName          string     `db:"display_name" json:"display_name"`
	PushToken            *string    `db:"push_token" json:"-"`
	LiveChannelID        *string    `db:"live_channel_id" json:"-"`
	RateExempt           bool       `db:"rate_exempt" json:"-"`
	NotificationsEnabled bool       `db:"notifications_enabled" json:"notifications_enabled"`
	LastSeenAt           *time.Time `db:"last_seen_at" json:"last_seen_at,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// Online reports whether the party currently owns a live channel.
func (p Party) Online() bool {
	return p.LiveChannelID != nil && *p.LiveChannelID != ""
}
