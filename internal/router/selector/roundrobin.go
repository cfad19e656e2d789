package selector

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/sebas/acd/internal/router/repository"
	"github.com/sebas/acd/internal/router/timing"
)

// RoundRobin rotates selections through a queue's eligible agents.
//
// Eligibility: the agent is in the queue's logged-in set, AVAILABLE, and
// on shift. The eligible list is sorted by agent id so the rotation order
// is deterministic regardless of set iteration order. The per-queue
// pointer holds the last selected agent; a pointer naming an agent that
// is no longer eligible is ignored, not cleared.
type RoundRobin struct {
	repo *repository.Repository
}

// NewRoundRobin creates a round-robin strategy over the repository.
func NewRoundRobin(repo *repository.Repository) *RoundRobin {
	return &RoundRobin{repo: repo}
}

// Name implements Strategy.
func (rr *RoundRobin) Name() string {
	return repository.StrategyRoundRobin
}

// Next implements Strategy. The pointer is advanced on every selection,
// even if the selected agent later fails to answer, so a failing agent
// cannot starve the rest of the rotation.
func (rr *RoundRobin) Next(ctx context.Context, cc, queueID string, now time.Time) (string, error) {
	members, err := rr.repo.LoggedInAgents(ctx, cc, queueID)
	if err != nil {
		return "", err
	}

	eligible := make([]string, 0, len(members))
	for _, id := range members {
		agent, err := rr.repo.GetAgent(ctx, cc, id)
		if err != nil {
			// A member the agent hash no longer knows about is skipped;
			// Reconcile cleans these up at startup.
			slog.Warn("Skipping unreadable logged-in agent",
				"call_center", cc, "queue", queueID, "agent", id, "error", err)
			continue
		}
		if agent.Status != repository.StatusAvailable {
			continue
		}
		if !timing.Active(agent.ShiftTimings, now) {
			continue
		}
		eligible = append(eligible, id)
	}
	if len(eligible) == 0 {
		return "", nil
	}
	sort.Strings(eligible)

	last, err := rr.repo.LastSelectedAgent(ctx, cc, queueID)
	if err != nil {
		return "", err
	}

	selected := eligible[0]
	if last != "" {
		for i, id := range eligible {
			if id == last {
				selected = eligible[(i+1)%len(eligible)]
				break
			}
		}
	}

	if err := rr.repo.SetLastSelectedAgent(ctx, cc, queueID, selected); err != nil {
		return "", err
	}
	slog.Debug("Round-robin selection",
		"call_center", cc, "queue", queueID, "agent", selected, "eligible", len(eligible))
	return selected, nil
}
