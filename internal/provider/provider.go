package provider

import "context"

// Provider is the outbound delivery port: one method, two outcomes. Any
// transport can back it, so tests substitute a fake.
type Provider interface {
	Name() string
	Send(ctx context.Context, channel, recipient, message string) (*Response, error)
}

// Response stores provider call metadata for audit and persistence.
type Response struct {
	StatusCode int    `json:"statusCode,omitempty"`
	Body       string `json:"body,omitempty"`
	ProviderID string `json:"providerId,omitempty"`
}
