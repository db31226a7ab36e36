package domain

import "time"

// Template is a reusable message body with named placeholders resolved from
// payload data. Read-only from the delivery pipeline's perspective.
type Template struct {
	ID        string
	Name      string
	Body      string
	CreatedAt time.Time
}
