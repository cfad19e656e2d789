package selector

import (
	"context"
	"testing"
	"time"

	"github.com/sebas/acd/internal/router/repository"
	"github.com/sebas/acd/internal/router/store"
)

const cc = "cc1"

func setup(t *testing.T, agents ...string) (*repository.Repository, *RoundRobin) {
	t.Helper()
	ctx := context.Background()
	repo := repository.New(store.NewMemory())

	err := repo.CreateQueue(ctx, cc, repository.Queue{
		ID: "q1", Name: "Q1", Strategy: repository.StrategyRoundRobin, Timings: "24/7",
	})
	if err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	for _, id := range agents {
		err := repo.AddAgent(ctx, cc, repository.Agent{
			ID: id, Name: id, Endpoint: "PJSIP/" + id, ShiftTimings: "24/7",
		})
		if err != nil {
			t.Fatalf("AddAgent(%s): %v", id, err)
		}
		if err := repo.AgentLogin(ctx, cc, id, []string{"q1"}, true); err != nil {
			t.Fatalf("AgentLogin(%s): %v", id, err)
		}
	}
	return repo, NewRoundRobin(repo)
}

func selectN(t *testing.T, rr *RoundRobin, n int) []string {
	t.Helper()
	now := time.Now()
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := rr.Next(context.Background(), cc, "q1", now)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, id)
	}
	return out
}

func TestRoundRobinRotation(t *testing.T) {
	_, rr := setup(t, "a", "b", "c")

	got := selectN(t, rr, 3)
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("selection %d = %q, want %q (all: %v)", i, got[i], want[i], got)
		}
	}
}

func TestRoundRobinSkipsNonEligible(t *testing.T) {
	repo, rr := setup(t, "a", "b", "c")
	if err := repo.SetAgentStatus(context.Background(), cc, "b", repository.StatusOnCall); err != nil {
		t.Fatalf("SetAgentStatus: %v", err)
	}

	got := selectN(t, rr, 4)
	want := []string{"a", "c", "a", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("selection %d = %q, want %q (all: %v)", i, got[i], want[i], got)
		}
	}
}

func TestRoundRobinNoneEligible(t *testing.T) {
	repo, rr := setup(t, "a")
	if err := repo.SetAgentStatus(context.Background(), cc, "a", repository.StatusOnCall); err != nil {
		t.Fatalf("SetAgentStatus: %v", err)
	}

	id, err := rr.Next(context.Background(), cc, "q1", time.Now())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if id != "" {
		t.Errorf("Next = %q, want none", id)
	}
}

func TestRoundRobinOffShiftAgentsExcluded(t *testing.T) {
	ctx := context.Background()
	repo, rr := setup(t, "a", "b")

	// Shrink b's shift to a window that never matches.
	err := repo.AddAgent(ctx, cc, repository.Agent{
		ID: "b", Name: "b", Endpoint: "PJSIP/b", ShiftTimings: "00:00-00:01;Mon",
	})
	if err != nil {
		t.Fatalf("AddAgent: %v", err)
	}
	// AddAgent resets status; restore the serving state.
	if err := repo.AgentLogin(ctx, cc, "b", []string{"q1"}, true); err != nil {
		t.Fatalf("AgentLogin: %v", err)
	}

	tuesday := time.Date(2024, 1, 9, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		id, err := rr.Next(ctx, cc, "q1", tuesday)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if id != "a" {
			t.Errorf("selection %d = %q, want a", i, id)
		}
	}
}

func TestRoundRobinFairness(t *testing.T) {
	_, rr := setup(t, "a", "b", "c")

	const n = 20
	counts := map[string]int{}
	var prev string
	for i, id := range selectN(t, rr, n) {
		counts[id]++
		if i > 0 && id == prev {
			t.Fatalf("agent %q selected twice in a row at %d", id, i)
		}
		prev = id
	}
	// Over n selections of k agents, each gets floor(n/k) or ceil(n/k).
	for id, c := range counts {
		if c < n/3 || c > (n+2)/3 {
			t.Errorf("agent %q selected %d times, want %d or %d", id, c, n/3, (n+2)/3)
		}
	}
}

func TestRoundRobinToleratesStalePointer(t *testing.T) {
	repo, rr := setup(t, "a", "b")

	// Point at an agent that is not in the eligible list.
	if err := repo.SetLastSelectedAgent(context.Background(), cc, "q1", "ghost"); err != nil {
		t.Fatalf("SetLastSelectedAgent: %v", err)
	}

	id, err := rr.Next(context.Background(), cc, "q1", time.Now())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if id != "a" {
		t.Errorf("Next with stale pointer = %q, want first eligible (a)", id)
	}
}
