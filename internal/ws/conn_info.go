package ws

import "time"

type ConnInfo struct {
	ConnID      string
	PartyID     string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
