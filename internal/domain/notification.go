package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a notification.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusSent, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

// CanTransition reports whether the status state machine permits from -> to.
// Progression is monotonic: queued -> processing -> sent|failed. The
// processing -> queued edge is reserved for retry scheduling.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusSent || to == StatusFailed || to == StatusQueued
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Type distinguishes template-rendered notifications from raw payloads.
type Type string

const (
	TypeRaw      Type = "raw"
	TypeTemplate Type = "template"
)

func (t Type) String() string { return string(t) }

// TypeFor derives the notification type from the presence of a template
// reference.
func TypeFor(templateID *string) Type {
	if templateID != nil && strings.TrimSpace(*templateID) != "" {
		return TypeTemplate
	}
	return TypeRaw
}

// Payload is the structured message body or template render context.
type Payload map[string]any

// Notification is the core domain entity: one logical request to deliver one
// message to one recipient. Channel and Recipient are opaque to the core.
type Notification struct {
	ID             string
	ProjectID      string
	Type           Type
	Channel        string
	Recipient      string
	Payload        Payload
	TemplateID     *string
	Status         Status
	IdempotencyKey *string
	AttemptCount   int
	MaxAttempts    int
	NextAttemptAt  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (n *Notification) Validate() error {
	if strings.TrimSpace(n.ProjectID) == "" {
		return fmt.Errorf("%w: project id is required", ErrValidation)
	}
	if strings.TrimSpace(n.Channel) == "" {
		return fmt.Errorf("%w: channel is required", ErrValidation)
	}
	if strings.TrimSpace(n.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if !n.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, n.Status)
	}
	return nil
}
