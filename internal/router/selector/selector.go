// Package selector picks the next agent to offer a call to.
package selector

import (
	"context"
	"time"
)

// Strategy selects an agent for a queue at a given instant.
// Implementations return "" when no agent is eligible.
type Strategy interface {
	// Name returns the strategy identifier as stored on queue records.
	Name() string

	// Next returns the id of the selected agent, or "" when none is
	// eligible right now.
	Next(ctx context.Context, callCenterID, queueID string, now time.Time) (string, error)
}
