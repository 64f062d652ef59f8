package moments

import (
	"errors"
	"fmt"
)

// ErrNotPaired is returned when the sender has no active pairing.
var ErrNotPaired = errors.New("party is not paired")

// RateLimitError reports an exhausted rolling-day send allowance. It
// carries the remaining count so the sender can render it.
type RateLimitError struct {
	Limit     int
	Remaining int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("send limit of %d per day reached", e.Limit)
}

// InvalidPayloadError reports a payload that could not be normalized
// within bounds.
type InvalidPayloadError struct {
	Reason string
}

func (e *InvalidPayloadError) Error() string {
	return "invalid payload: " + e.Reason
}

// DeliveryChannelError is a per-channel fan-out failure. It is logged
// and absorbed, never surfaced as a submit failure.
type DeliveryChannelError struct {
	Channel string
	Err     error
}

func (e *DeliveryChannelError) Error() string {
	return fmt.Sprintf("%s channel delivery failed: %v", e.Channel, e.Err)
}

func (e *DeliveryChannelError) Unwrap() error {
	return e.Err
}
