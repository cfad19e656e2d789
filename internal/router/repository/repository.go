// Package repository owns the queue, agent, and waiting-call records in the
// shared store and enforces their data invariants:
//
//  1. A logged-out agent has no logged-in queues and appears in no queue's
//     logged-in set.
//  2. A serving agent appears in the logged-in set of exactly the queues
//     listed on its record.
//  3. A caller channel appears in at most one queue's waiting sequence.
//
// Structured fields (timings, shift timings, logged-in queues, waiting
// records) are JSON text inside the store; this package is their sole
// encoder and decoder.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sebas/acd/internal/router/store"
	"github.com/sebas/acd/internal/router/timing"
)

// Repository provides CRUD and status transitions for queues, agents, and
// queue membership within one call-center scope per call.
type Repository struct {
	store store.Store
}

// New creates a Repository over the given store.
func New(s store.Store) *Repository {
	return &Repository{store: s}
}

// --- Queues ---

// CreateQueue inserts a queue and records it in the queue master set.
// Status defaults to CLOSED.
func (r *Repository) CreateQueue(ctx context.Context, cc string, q Queue) error {
	if cc == "" || q.ID == "" || q.Name == "" || q.Strategy == "" {
		return fmt.Errorf("%w: call center, queue id, name and strategy are required", ErrInvalidInput)
	}
	if q.Status == "" {
		q.Status = QueueClosed
	}
	fields := map[string]string{
		"name":     q.Name,
		"strategy": q.Strategy,
		"timings":  encodeJSON(q.Timings),
		"status":   q.Status,
	}
	if err := r.store.HSet(ctx, keyQueue(cc, q.ID), fields); err != nil {
		return fmt.Errorf("write queue %s: %w", q.ID, err)
	}
	if err := r.store.SAdd(ctx, keyQueuesMaster(cc), q.ID); err != nil {
		return fmt.Errorf("register queue %s: %w", q.ID, err)
	}
	if err := r.store.SAdd(ctx, keyCallCenters(), cc); err != nil {
		return fmt.Errorf("register call center %s: %w", cc, err)
	}
	return nil
}

// GetQueue returns the queue record, or ErrNotFound when absent.
func (r *Repository) GetQueue(ctx context.Context, cc, queueID string) (*Queue, error) {
	if cc == "" || queueID == "" {
		return nil, fmt.Errorf("%w: call center and queue id are required", ErrInvalidInput)
	}
	fields, err := r.store.HGetAll(ctx, keyQueue(cc, queueID))
	if err != nil {
		return nil, fmt.Errorf("read queue %s: %w", queueID, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("queue %s: %w", queueID, ErrNotFound)
	}
	return &Queue{
		ID:       queueID,
		Name:     fields["name"],
		Strategy: fields["strategy"],
		Timings:  decodeJSONString(fields["timings"]),
		Status:   fields["status"],
	}, nil
}

// ListQueues returns the ids in the queue master set, sorted.
func (r *Repository) ListQueues(ctx context.Context, cc string) ([]string, error) {
	ids, err := r.store.SMembers(ctx, keyQueuesMaster(cc))
	if err != nil {
		return nil, fmt.Errorf("read queue master set: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// IsQueueActive evaluates the queue's operating-hours rules at the given
// instant.
func (r *Repository) IsQueueActive(ctx context.Context, cc, queueID string, now time.Time) (bool, error) {
	q, err := r.GetQueue(ctx, cc, queueID)
	if err != nil {
		return false, err
	}
	return timing.Active(q.Timings, now), nil
}

// --- Agents ---

// AddAgent inserts an agent and records it in the agent master set.
// Initial status is LOGGED_OUT with no logged-in queues.
func (r *Repository) AddAgent(ctx context.Context, cc string, a Agent) error {
	if cc == "" || a.ID == "" || a.Name == "" || a.Endpoint == "" {
		return fmt.Errorf("%w: call center, agent id, name and endpoint are required", ErrInvalidInput)
	}
	fields := map[string]string{
		"name":           a.Name,
		"endpoint":       a.Endpoint,
		"shiftTimings":   encodeJSON(a.ShiftTimings),
		"status":         string(StatusLoggedOut),
		"loggedInQueues": encodeJSON([]string{}),
	}
	if err := r.store.HSet(ctx, keyAgent(cc, a.ID), fields); err != nil {
		return fmt.Errorf("write agent %s: %w", a.ID, err)
	}
	if err := r.store.SAdd(ctx, keyAgentsMaster(cc), a.ID); err != nil {
		return fmt.Errorf("register agent %s: %w", a.ID, err)
	}
	if err := r.store.SAdd(ctx, keyCallCenters(), cc); err != nil {
		return fmt.Errorf("register call center %s: %w", cc, err)
	}
	return nil
}

// GetAgent returns the agent record with shift timings and logged-in
// queues decoded, or ErrNotFound when absent.
func (r *Repository) GetAgent(ctx context.Context, cc, agentID string) (*Agent, error) {
	if cc == "" || agentID == "" {
		return nil, fmt.Errorf("%w: call center and agent id are required", ErrInvalidInput)
	}
	fields, err := r.store.HGetAll(ctx, keyAgent(cc, agentID))
	if err != nil {
		return nil, fmt.Errorf("read agent %s: %w", agentID, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	var queues []string
	if raw := fields["loggedInQueues"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &queues); err != nil {
			slog.Warn("Corrupt loggedInQueues field, treating as empty",
				"agent", agentID, "error", err)
			queues = nil
		}
	}
	return &Agent{
		ID:             agentID,
		Name:           fields["name"],
		Endpoint:       fields["endpoint"],
		ShiftTimings:   decodeJSONString(fields["shiftTimings"]),
		Status:         AgentStatus(fields["status"]),
		LoggedInQueues: queues,
	}, nil
}

// ListAgents returns the ids in the agent master set, sorted.
func (r *Repository) ListAgents(ctx context.Context, cc string) ([]string, error) {
	ids, err := r.store.SMembers(ctx, keyAgentsMaster(cc))
	if err != nil {
		return nil, fmt.Errorf("read agent master set: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// IsAgentOnShift evaluates the agent's shift rules at the given instant.
func (r *Repository) IsAgentOnShift(ctx context.Context, cc, agentID string, now time.Time) (bool, error) {
	a, err := r.GetAgent(ctx, cc, agentID)
	if err != nil {
		return false, err
	}
	return timing.Active(a.ShiftTimings, now), nil
}

// AgentLogin moves a logged-out agent to AVAILABLE and joins it to the
// given queues. Unless force is set, the agent must be on shift.
func (r *Repository) AgentLogin(ctx context.Context, cc, agentID string, queueIDs []string, force bool) error {
	if len(queueIDs) == 0 {
		return fmt.Errorf("%w: at least one queue id is required", ErrInvalidInput)
	}
	a, err := r.GetAgent(ctx, cc, agentID)
	if err != nil {
		return err
	}
	if a.Status != StatusLoggedOut {
		return fmt.Errorf("agent %s is %s: %w", agentID, a.Status, ErrIllegalState)
	}
	if !force && !timing.Active(a.ShiftTimings, time.Now()) {
		return fmt.Errorf("agent %s: %w", agentID, ErrOffShift)
	}

	// The agent hash is written last so a crash mid-sequence leaves the
	// record authoritative for Reconcile.
	for _, q := range queueIDs {
		if err := r.store.SAdd(ctx, keyLoggedIn(cc, q), agentID); err != nil {
			return fmt.Errorf("join queue %s: %w", q, err)
		}
	}
	fields := map[string]string{
		"status":         string(StatusAvailable),
		"loggedInQueues": encodeJSON(queueIDs),
	}
	if err := r.store.HSet(ctx, keyAgent(cc, agentID), fields); err != nil {
		return fmt.Errorf("write agent %s: %w", agentID, err)
	}
	slog.Info("Agent logged in", "call_center", cc, "agent", agentID, "queues", queueIDs, "forced", force)
	return nil
}

// AgentLogout removes the agent from every logged-in queue set and moves
// it to LOGGED_OUT.
func (r *Repository) AgentLogout(ctx context.Context, cc, agentID string) error {
	a, err := r.GetAgent(ctx, cc, agentID)
	if err != nil {
		return err
	}
	if a.Status == StatusLoggedOut {
		return fmt.Errorf("agent %s already logged out: %w", agentID, ErrIllegalState)
	}
	for _, q := range a.LoggedInQueues {
		if err := r.store.SRem(ctx, keyLoggedIn(cc, q), agentID); err != nil {
			return fmt.Errorf("leave queue %s: %w", q, err)
		}
	}
	fields := map[string]string{
		"status":         string(StatusLoggedOut),
		"loggedInQueues": encodeJSON([]string{}),
	}
	if err := r.store.HSet(ctx, keyAgent(cc, agentID), fields); err != nil {
		return fmt.Errorf("write agent %s: %w", agentID, err)
	}
	slog.Info("Agent logged out", "call_center", cc, "agent", agentID)
	return nil
}

// SetAgentStatus transitions an agent between serving states. Logging in
// and out go through AgentLogin/AgentLogout; this operation refuses to
// cross the LOGGED_OUT boundary.
func (r *Repository) SetAgentStatus(ctx context.Context, cc, agentID string, status AgentStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	a, err := r.GetAgent(ctx, cc, agentID)
	if err != nil {
		return err
	}
	if a.Status == StatusLoggedOut || status == StatusLoggedOut {
		return fmt.Errorf("agent %s: status change %s -> %s must use login/logout: %w",
			agentID, a.Status, status, ErrIllegalState)
	}
	if err := r.store.HSet(ctx, keyAgent(cc, agentID), map[string]string{"status": string(status)}); err != nil {
		return fmt.Errorf("write agent %s: %w", agentID, err)
	}
	slog.Debug("Agent status changed", "call_center", cc, "agent", agentID,
		"from", a.Status, "to", status)
	return nil
}

// --- Waiting calls ---

// AddCallToQueue appends a waiting record to the tail of the queue.
// Any prior record for the same channel is removed first so a channel
// waits in at most one place.
func (r *Repository) AddCallToQueue(ctx context.Context, cc, queueID string, call WaitingCall) error {
	if call.ChannelID == "" {
		return fmt.Errorf("%w: channel id is required", ErrInvalidInput)
	}
	if _, err := r.RemoveCallFromQueue(ctx, cc, queueID, call.ChannelID); err != nil {
		return err
	}
	raw, err := json.Marshal(call)
	if err != nil {
		return fmt.Errorf("encode waiting call: %w", err)
	}
	if err := r.store.RPush(ctx, keyCalls(cc, queueID), string(raw)); err != nil {
		return fmt.Errorf("enqueue call %s: %w", call.ChannelID, err)
	}
	return nil
}

// RemoveCallFromQueue removes every waiting record whose channel id
// matches and returns the number removed. Idempotent: a second call for
// the same channel returns 0.
func (r *Repository) RemoveCallFromQueue(ctx context.Context, cc, queueID, channelID string) (int64, error) {
	members, err := r.waitingCalls(ctx, cc, queueID)
	if err != nil {
		return 0, err
	}
	var removed int64
	for _, m := range members {
		if m.call.ChannelID != channelID {
			continue
		}
		n, err := r.store.LRem(ctx, keyCalls(cc, queueID), m.raw)
		if err != nil {
			return removed, fmt.Errorf("dequeue call %s: %w", channelID, err)
		}
		removed += n
	}
	return removed, nil
}

// NextCallFromQueue pops the head waiting record. Returns ErrNotFound
// when the queue is empty.
func (r *Repository) NextCallFromQueue(ctx context.Context, cc, queueID string) (*WaitingCall, error) {
	raw, err := r.store.LPop(ctx, keyCalls(cc, queueID))
	if err != nil {
		if errors.Is(err, store.ErrNil) {
			return nil, fmt.Errorf("queue %s has no waiting calls: %w", queueID, ErrNotFound)
		}
		return nil, fmt.Errorf("pop queue %s: %w", queueID, err)
	}
	var call WaitingCall
	if err := json.Unmarshal([]byte(raw), &call); err != nil {
		return nil, fmt.Errorf("decode waiting call: %w", err)
	}
	return &call, nil
}

// WaitingCount returns the number of records currently waiting.
func (r *Repository) WaitingCount(ctx context.Context, cc, queueID string) (int, error) {
	members, err := r.waitingCalls(ctx, cc, queueID)
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

// --- Round-robin pointer ---

// LastSelectedAgent returns the round-robin pointer for a queue, or ""
// when it has never been set.
func (r *Repository) LastSelectedAgent(ctx context.Context, cc, queueID string) (string, error) {
	val, err := r.store.Get(ctx, keyRRPointer(cc, queueID))
	if err != nil {
		if errors.Is(err, store.ErrNil) {
			return "", nil
		}
		return "", fmt.Errorf("read rr pointer for %s: %w", queueID, err)
	}
	return val, nil
}

// SetLastSelectedAgent writes the round-robin pointer for a queue.
func (r *Repository) SetLastSelectedAgent(ctx context.Context, cc, queueID, agentID string) error {
	if err := r.store.Set(ctx, keyRRPointer(cc, queueID), agentID); err != nil {
		return fmt.Errorf("write rr pointer for %s: %w", queueID, err)
	}
	return nil
}

// LoggedInAgents returns the members of a queue's logged-in set.
func (r *Repository) LoggedInAgents(ctx context.Context, cc, queueID string) ([]string, error) {
	members, err := r.store.SMembers(ctx, keyLoggedIn(cc, queueID))
	if err != nil {
		return nil, fmt.Errorf("read logged-in set for %s: %w", queueID, err)
	}
	return members, nil
}

// ListCallCenters returns every call center that has ever registered a
// queue or agent, sorted.
func (r *Repository) ListCallCenters(ctx context.Context) ([]string, error) {
	ids, err := r.store.SMembers(ctx, keyCallCenters())
	if err != nil {
		return nil, fmt.Errorf("read call-center master set: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// --- Startup reconciliation ---

// Reconcile rebuilds every queue's logged-in set from the agent records.
// The agent hash is authoritative: login and logout write it last, so
// after a crash the sets may disagree with it but never the reverse.
func (r *Repository) Reconcile(ctx context.Context, cc string) error {
	queueIDs, err := r.ListQueues(ctx, cc)
	if err != nil {
		return err
	}
	agentIDs, err := r.ListAgents(ctx, cc)
	if err != nil {
		return err
	}

	serving := make(map[string]map[string]bool, len(queueIDs)) // queue -> agent -> member
	for _, q := range queueIDs {
		serving[q] = make(map[string]bool)
	}
	for _, id := range agentIDs {
		a, err := r.GetAgent(ctx, cc, id)
		if err != nil {
			return err
		}
		if !a.Status.Serving() {
			continue
		}
		for _, q := range a.LoggedInQueues {
			if serving[q] == nil {
				serving[q] = make(map[string]bool)
			}
			serving[q][id] = true
		}
	}

	var fixed int
	for q, want := range serving {
		have, err := r.LoggedInAgents(ctx, cc, q)
		if err != nil {
			return err
		}
		haveSet := make(map[string]bool, len(have))
		for _, id := range have {
			haveSet[id] = true
			if !want[id] {
				if err := r.store.SRem(ctx, keyLoggedIn(cc, q), id); err != nil {
					return fmt.Errorf("reconcile queue %s: %w", q, err)
				}
				fixed++
			}
		}
		for id := range want {
			if !haveSet[id] {
				if err := r.store.SAdd(ctx, keyLoggedIn(cc, q), id); err != nil {
					return fmt.Errorf("reconcile queue %s: %w", q, err)
				}
				fixed++
			}
		}
	}
	if fixed > 0 {
		slog.Warn("Reconciled queue membership from agent records",
			"call_center", cc, "corrections", fixed)
	}
	return nil
}

// ReconcileAll runs Reconcile for every known call center.
func (r *Repository) ReconcileAll(ctx context.Context) error {
	ccs, err := r.ListCallCenters(ctx)
	if err != nil {
		return err
	}
	for _, cc := range ccs {
		if err := r.Reconcile(ctx, cc); err != nil {
			return fmt.Errorf("reconcile call center %s: %w", cc, err)
		}
	}
	return nil
}

// --- helpers ---

type rawCall struct {
	raw  string
	call WaitingCall
}

// waitingCalls reads the full waiting list without consuming it, keeping
// the raw encoding alongside each record so LRem can match exactly.
func (r *Repository) waitingCalls(ctx context.Context, cc, queueID string) ([]rawCall, error) {
	raws, err := r.store.LRange(ctx, keyCalls(cc, queueID))
	if err != nil {
		return nil, fmt.Errorf("scan queue %s: %w", queueID, err)
	}
	out := make([]rawCall, 0, len(raws))
	for _, raw := range raws {
		var call WaitingCall
		if err := json.Unmarshal([]byte(raw), &call); err != nil {
			slog.Warn("Corrupt waiting-call record", "queue", queueID, "error", err)
			continue
		}
		out = append(out, rawCall{raw: raw, call: call})
	}
	return out, nil
}

// encodeJSON marshals a value for storage inside a hash field.
func encodeJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

// decodeJSONString unwraps a JSON string field, tolerating legacy plain
// text values.
func decodeJSONString(raw string) string {
	if raw == "" {
		return ""
	}
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return raw
	}
	return s
}
