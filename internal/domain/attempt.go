package domain

import "time"

// AttemptStatus is the outcome of a single provider call.
type AttemptStatus string

const (
	AttemptSuccess AttemptStatus = "success"
	AttemptFailure AttemptStatus = "failure"
)

func (s AttemptStatus) String() string { return string(s) }

// DeliveryAttempt records a single delivery attempt for a notification.
// Rows are append-only, one per provider call, with a monotonic AttemptNo.
type DeliveryAttempt struct {
	ID               string
	NotificationID   string
	AttemptNo        int
	Provider         string
	ProviderResponse string
	Status           AttemptStatus
	CreatedAt        time.Time
}
