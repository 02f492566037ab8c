package checker

import (
	"time"

	"github.com/hazz-dev/portwatch/internal/config"
)

// Status is the reachability of an endpoint at one instant.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Result is the outcome of a single probe. A failed connection is a
// StatusDown result, never an error.
type Result struct {
	Endpoint     config.Endpoint
	Status       Status
	ResponseTime time.Duration
	Error        string
	// DNSFailure is set when the host could not be resolved.
	DNSFailure bool
	CheckedAt  time.Time
}
