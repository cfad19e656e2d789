// Package engine drives the per-call routing state machine.
//
// Events from the media server are dispatched to work items keyed by the
// caller channel id: items for one call are serialized, items for
// distinct calls run concurrently. No channel-local state is locked
// across a store or media-server operation.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sebas/acd/internal/router/ari"
	"github.com/sebas/acd/internal/router/metrics"
	"github.com/sebas/acd/internal/router/repository"
	"github.com/sebas/acd/internal/router/selector"
	"github.com/sebas/acd/internal/router/timing"
)

// NoServiceMedia is played to callers of a queue outside operating hours.
const NoServiceMedia = "sound:ss-noservice"

// Channel variables the dialplan must set before handing a call over.
const (
	varCallCenterID = "CALL_CENTER_ID"
	varQueueID      = "QUEUE_ID"
)

// agentLegMarker is the first app argument on originated agent legs.
const agentLegMarker = "agent_leg"

// Config holds engine tuning.
type Config struct {
	// AppName is the Stasis application agent legs are originated into.
	AppName string
	// AnswerTimeout bounds how long an agent endpoint may ring.
	AnswerTimeout time.Duration
	// WrapUp is the post-call pause before an agent becomes selectable
	// again. Zero releases the agent immediately.
	WrapUp time.Duration
	// RetryDelay is the pause before re-offering an agent whose
	// origination failed outright. Ring timeouts are paced by the ring
	// itself; a synchronous failure needs a backoff or the selection
	// loop spins.
	RetryDelay time.Duration
}

// Engine is the call router. It consumes channel events, coordinates
// queue/agent state through the repository, and issues control actions
// back to the media server.
type Engine struct {
	repo       *repository.Repository
	client     ari.Client
	strategies map[string]selector.Strategy
	metrics    *metrics.Metrics
	cfg        Config

	mu    sync.RWMutex
	calls map[string]*Call

	dispatch *dispatcher

	// now is replaceable for tests.
	now func() time.Time
}

// New creates an Engine. The strategies map is keyed by the strategy
// string stored on queue records.
func New(repo *repository.Repository, client ari.Client, strategies []selector.Strategy,
	m *metrics.Metrics, cfg Config) *Engine {
	if cfg.AnswerTimeout <= 0 {
		cfg.AnswerTimeout = 15 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	byName := make(map[string]selector.Strategy, len(strategies))
	for _, s := range strategies {
		byName[s.Name()] = s
	}
	return &Engine{
		repo:       repo,
		client:     client,
		strategies: byName,
		metrics:    m,
		cfg:        cfg,
		calls:      make(map[string]*Call),
		dispatch:   newDispatcher(),
		now:        time.Now,
	}
}

// --- ari.EventHandler ---

// HandleStasisStart implements ari.EventHandler.
func (e *Engine) HandleStasisStart(ev *ari.Event) {
	if len(ev.Args) >= 2 && ev.Args[0] == agentLegMarker {
		callerID := ev.Args[1]
		e.dispatch.Submit(callerID, func() { e.handleAgentEntered(ev) })
		return
	}
	e.dispatch.Submit(ev.Channel.ID, func() { e.handleCallerEntered(ev) })
}

// HandleStasisEnd implements ari.EventHandler.
func (e *Engine) HandleStasisEnd(ev *ari.Event) {
	e.dispatch.Submit(e.ownerKey(ev.Channel.ID), func() { e.handleChannelGone(ev.Channel.ID) })
}

// HandleChannelDestroyed implements ari.EventHandler.
func (e *Engine) HandleChannelDestroyed(ev *ari.Event) {
	e.dispatch.Submit(e.ownerKey(ev.Channel.ID), func() { e.handleChannelGone(ev.Channel.ID) })
}

// ownerKey maps a channel id to the caller channel whose worker owns its
// events. Agent-leg events serialize with their caller's.
func (e *Engine) ownerKey(channelID string) string {
	if call := e.getCall(channelID); call != nil && call.Role == RoleAgentLeg && call.PeerChannelID != "" {
		return call.PeerChannelID
	}
	return channelID
}

// --- caller entry ---

// handleCallerEntered runs the entry path for an inbound caller channel.
func (e *Engine) handleCallerEntered(ev *ari.Event) {
	ctx := context.Background()
	ch := ev.Channel
	if e.getCall(ch.ID) != nil {
		slog.Warn("Duplicate entry event for tracked channel", "channel", ch.ID)
		return
	}

	call := &Call{
		ChannelID:    ch.ID,
		Role:         RoleCaller,
		State:        StateEntered,
		CallerNumber: ch.Caller.Number,
	}
	e.track(call)
	e.metrics.CallsEntered.Inc()
	e.metrics.ActiveCalls.Inc()

	if ch.State != "Up" {
		if err := e.client.Answer(ctx, ch.ID); err != nil {
			slog.Error("Failed to answer caller", "channel", ch.ID, "error", err)
			e.hangup(ctx, ch.ID)
			e.finalizeCaller(call)
			return
		}
	}
	call.State = StateAnswered

	ccID, err := e.client.GetVar(ctx, ch.ID, varCallCenterID)
	if err != nil {
		slog.Error("Failed to read channel variable", "channel", ch.ID, "variable", varCallCenterID, "error", err)
	}
	queueID, err := e.client.GetVar(ctx, ch.ID, varQueueID)
	if err != nil {
		slog.Error("Failed to read channel variable", "channel", ch.ID, "variable", varQueueID, "error", err)
	}
	if ccID == "" || queueID == "" {
		slog.Warn("Caller missing routing variables, disconnecting",
			"channel", ch.ID, "call_center", ccID, "queue", queueID)
		e.hangup(ctx, ch.ID)
		e.finalizeCaller(call)
		return
	}
	call.CallCenterID = ccID
	call.QueueID = queueID

	queue, err := e.repo.GetQueue(ctx, ccID, queueID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			slog.Warn("Caller addressed unknown queue, disconnecting",
				"channel", ch.ID, "call_center", ccID, "queue", queueID)
		} else {
			slog.Error("Failed to load queue, disconnecting",
				"channel", ch.ID, "queue", queueID, "error", err)
		}
		e.hangup(ctx, ch.ID)
		e.finalizeCaller(call)
		return
	}

	if !timing.Active(queue.Timings, e.now()) {
		slog.Info("Queue outside operating hours, deflecting",
			"channel", ch.ID, "queue", queueID)
		e.metrics.CallsDeflected.Inc()
		// The channel may be torn down mid-playback; both failures fall
		// through to hangup.
		if err := e.client.Play(ctx, ch.ID, NoServiceMedia); err != nil {
			slog.Debug("No-service playback failed", "channel", ch.ID, "error", err)
		}
		e.hangup(ctx, ch.ID)
		e.finalizeCaller(call)
		return
	}

	strategy, ok := e.strategies[queue.Strategy]
	if !ok {
		slog.Error("Queue has unsupported strategy, disconnecting",
			"channel", ch.ID, "queue", queueID, "strategy", queue.Strategy)
		e.hangup(ctx, ch.ID)
		e.finalizeCaller(call)
		return
	}

	e.routeCall(ctx, call, strategy)
}

// --- routing loop ---

// routeCall runs one selection attempt for a live caller. No agent, or
// any failure before the origination is in flight, parks the caller.
func (e *Engine) routeCall(ctx context.Context, call *Call, strategy selector.Strategy) {
	call.State = StateSelecting

	agentID, err := strategy.Next(ctx, call.CallCenterID, call.QueueID, e.now())
	if err != nil {
		// Store trouble reads as "no agent right now".
		slog.Warn("Agent selection failed, queueing caller",
			"channel", call.ChannelID, "queue", call.QueueID, "error", err)
		agentID = ""
	}
	if agentID == "" {
		e.parkCaller(ctx, call)
		return
	}

	agent, err := e.repo.GetAgent(ctx, call.CallCenterID, agentID)
	if err != nil || agent.Endpoint == "" {
		// Failed attempt: the rotation pointer has advanced, the agent's
		// status is left untouched.
		slog.Warn("Selected agent unusable, queueing caller",
			"channel", call.ChannelID, "queue", call.QueueID, "agent", agentID, "error", err)
		e.parkCaller(ctx, call)
		return
	}

	if err := e.repo.SetAgentStatus(ctx, call.CallCenterID, agentID, repository.StatusRinging); err != nil {
		slog.Warn("Failed to mark agent ringing, queueing caller",
			"channel", call.ChannelID, "agent", agentID, "error", err)
		e.parkCaller(ctx, call)
		return
	}
	call.AgentID = agentID
	call.State = StateOriginating

	agentChannelID := "agent-" + uuid.NewString()
	aleg := &Call{
		ChannelID:     agentChannelID,
		CallCenterID:  call.CallCenterID,
		QueueID:       call.QueueID,
		Role:          RoleAgentLeg,
		State:         StateAgentOriginated,
		PeerChannelID: call.ChannelID,
		AgentID:       agentID,
	}
	call.PeerChannelID = agentChannelID
	e.track(aleg)

	slog.Info("Originating agent leg",
		"channel", call.ChannelID, "queue", call.QueueID,
		"agent", agentID, "endpoint", agent.Endpoint, "agent_channel", agentChannelID)

	_, err = e.client.Originate(ctx, ari.OriginateRequest{
		Endpoint:       agent.Endpoint,
		CallerID:       call.CallerNumber,
		App:            e.cfg.AppName,
		AppArgs:        agentLegMarker + "," + call.ChannelID,
		TimeoutSeconds: int(e.cfg.AnswerTimeout.Seconds()),
		ChannelID:      agentChannelID,
	})
	if err != nil {
		slog.Warn("Origination failed, queueing caller",
			"channel", call.ChannelID, "agent", agentID, "error", err)
		e.metrics.OriginationFailures.Inc()
		e.untrack(agentChannelID)
		call.PeerChannelID = ""
		cc := call.CallCenterID
		restored := e.restoreAgent(ctx, cc, call)
		e.parkCaller(ctx, call)
		if restored != "" {
			// Re-offering immediately would select the same agent and
			// fail again in a tight loop.
			time.AfterFunc(e.cfg.RetryDelay, func() { e.AgentAvailable(cc, restored) })
		}
	}
}

// parkCaller appends the caller to its queue's waiting sequence and
// starts on-hold media. The original enqueue time survives re-queues.
func (e *Engine) parkCaller(ctx context.Context, call *Call) {
	if call.EnqueueTime == 0 {
		call.EnqueueTime = e.now().UnixMilli()
	}
	record := repository.WaitingCall{
		ChannelID:    call.ChannelID,
		CallerNumber: call.CallerNumber,
		EnqueueTime:  call.EnqueueTime,
	}
	if err := e.repo.AddCallToQueue(ctx, call.CallCenterID, call.QueueID, record); err != nil {
		slog.Error("Failed to enqueue caller, disconnecting",
			"channel", call.ChannelID, "queue", call.QueueID, "error", err)
		e.hangup(ctx, call.ChannelID)
		e.finalizeCaller(call)
		return
	}
	if !call.OnHold {
		if err := e.client.StartMOH(ctx, call.ChannelID); err != nil {
			slog.Warn("Failed to start on-hold media", "channel", call.ChannelID, "error", err)
		} else {
			call.OnHold = true
		}
	}
	call.State = StateQueued
	e.metrics.CallsQueued.Inc()
	slog.Info("Caller queued", "channel", call.ChannelID, "queue", call.QueueID)
}

// --- agent leg answered ---

// handleAgentEntered runs when an originated agent leg answers and
// enters the app. It bridges the two legs.
func (e *Engine) handleAgentEntered(ev *ari.Event) {
	ctx := context.Background()
	aleg := e.getCall(ev.Channel.ID)
	if aleg == nil {
		// Leftover leg from a previous router instance.
		slog.Warn("Unknown agent leg entered app, hanging up", "channel", ev.Channel.ID)
		e.hangup(ctx, ev.Channel.ID)
		return
	}
	aleg.State = StateAgentAnswered

	caller := e.getCall(aleg.PeerChannelID)
	if caller == nil || caller.State == StateTerminated {
		slog.Info("Agent answered for a vanished caller, hanging up agent leg",
			"agent_channel", aleg.ChannelID, "agent", aleg.AgentID)
		e.hangup(ctx, aleg.ChannelID)
		return
	}

	caller.State = StateBridging

	bridgeID, err := e.client.CreateBridge(ctx, "mixing")
	if err != nil {
		slog.Error("Failed to create bridge", "channel", caller.ChannelID, "error", err)
		e.failBridge(ctx, caller, aleg, "")
		return
	}

	if caller.OnHold {
		if err := e.client.StopMOH(ctx, caller.ChannelID); err != nil {
			slog.Debug("Failed to stop on-hold media", "channel", caller.ChannelID, "error", err)
		}
		caller.OnHold = false
	}

	if err := e.client.AddChannel(ctx, bridgeID, caller.ChannelID); err != nil {
		slog.Error("Failed to add caller to bridge", "channel", caller.ChannelID, "error", err)
		e.failBridge(ctx, caller, aleg, bridgeID)
		return
	}
	if err := e.client.AddChannel(ctx, bridgeID, aleg.ChannelID); err != nil {
		slog.Error("Failed to add agent leg to bridge", "channel", aleg.ChannelID, "error", err)
		e.failBridge(ctx, caller, aleg, bridgeID)
		return
	}

	caller.BridgeID = bridgeID
	caller.State = StateBridged
	aleg.State = StateAgentBridged
	if err := e.repo.SetAgentStatus(ctx, caller.CallCenterID, aleg.AgentID, repository.StatusOnCall); err != nil {
		slog.Warn("Failed to mark agent on call", "agent", aleg.AgentID, "error", err)
	}
	e.metrics.CallsBridged.Inc()
	slog.Info("Call bridged",
		"channel", caller.ChannelID, "agent", aleg.AgentID,
		"agent_channel", aleg.ChannelID, "bridge", bridgeID)
}

// failBridge tears down a half-built bridge: destroy the bridge, hang up
// both legs, restore the agent.
func (e *Engine) failBridge(ctx context.Context, caller, aleg *Call, bridgeID string) {
	if bridgeID != "" {
		if err := e.client.DestroyBridge(ctx, bridgeID); err != nil {
			slog.Warn("Failed to destroy bridge", "bridge", bridgeID, "error", err)
		}
	}
	e.hangup(ctx, aleg.ChannelID)
	e.hangup(ctx, caller.ChannelID)
	restored := e.restoreAgent(ctx, caller.CallCenterID, aleg)
	caller.AgentID = ""
	// The agent leg is done; the caller's destroy event finalizes it.
	aleg.State = StateAgentGone
	e.untrack(aleg.ChannelID)
	if restored != "" {
		e.AgentAvailable(caller.CallCenterID, restored)
	}
}

// --- teardown ---

// handleChannelGone handles a channel leaving the app or being destroyed.
// The first terminal event wins; later ones find the channel untracked.
func (e *Engine) handleChannelGone(channelID string) {
	call := e.getCall(channelID)
	if call == nil {
		// StasisEnd and ChannelDestroyed both fire; the second one finds
		// nothing and retires any worker the dispatch recreated for it.
		e.dispatch.Remove(channelID)
		return
	}
	if call.Role == RoleAgentLeg {
		e.agentLegGone(context.Background(), call)
		return
	}
	e.callerGone(context.Background(), call)
}

// callerGone tears down a caller leg.
func (e *Engine) callerGone(ctx context.Context, call *Call) {
	if call.State == StateTerminated {
		return
	}
	slog.Info("Caller left", "channel", call.ChannelID, "state", call.State.String())

	if call.CallCenterID != "" && call.QueueID != "" {
		// No-op for bridged calls; idempotent for everyone else.
		n, err := e.repo.RemoveCallFromQueue(ctx, call.CallCenterID, call.QueueID, call.ChannelID)
		if err != nil {
			slog.Error("Failed to dequeue departing caller",
				"channel", call.ChannelID, "queue", call.QueueID, "error", err)
		} else if n > 0 {
			slog.Debug("Removed waiting record", "channel", call.ChannelID, "queue", call.QueueID)
		}
	}

	if aleg := e.getCall(call.PeerChannelID); aleg != nil {
		wasBridged := call.State == StateBridged
		e.hangup(ctx, aleg.ChannelID)
		if wasBridged && aleg.AgentID != "" {
			e.releaseAgent(call.CallCenterID, aleg.AgentID)
			aleg.AgentID = ""
		}
	}
	if call.BridgeID != "" {
		if err := e.client.DestroyBridge(ctx, call.BridgeID); err != nil {
			slog.Debug("Bridge teardown", "bridge", call.BridgeID, "error", err)
		}
		call.BridgeID = ""
	}

	e.finalizeCaller(call)
}

// agentLegGone tears down an agent leg. Before the bridge is up this is
// a failed attempt: the agent is restored and the caller re-queued.
func (e *Engine) agentLegGone(ctx context.Context, aleg *Call) {
	if aleg.State == StateAgentGone {
		return
	}
	slog.Info("Agent leg gone",
		"agent_channel", aleg.ChannelID, "agent", aleg.AgentID, "state", aleg.State.String())
	preBridge := aleg.State == StateAgentOriginated || aleg.State == StateAgentAnswered
	aleg.State = StateAgentGone

	caller := e.getCall(aleg.PeerChannelID)
	e.untrack(aleg.ChannelID)

	switch {
	case caller != nil && caller.State != StateTerminated && preBridge:
		// Refused, timed out, or failed before bridging. The caller is
		// parked before the agent is restored so the availability pass
		// sees its waiting record.
		e.metrics.OriginationFailures.Inc()
		caller.PeerChannelID = ""
		caller.AgentID = ""
		e.parkCaller(ctx, caller)
		if restored := e.restoreAgent(ctx, aleg.CallCenterID, aleg); restored != "" {
			e.AgentAvailable(aleg.CallCenterID, restored)
		}

	case caller != nil && caller.State == StateBridged:
		// Agent hung up an active call; the caller is released back to
		// the media server.
		e.hangup(ctx, caller.ChannelID)
		if caller.BridgeID != "" {
			if err := e.client.DestroyBridge(ctx, caller.BridgeID); err != nil {
				slog.Debug("Bridge teardown", "bridge", caller.BridgeID, "error", err)
			}
			caller.BridgeID = ""
		}
		if aleg.AgentID != "" {
			e.releaseAgent(aleg.CallCenterID, aleg.AgentID)
		}
		caller.AgentID = ""
		caller.PeerChannelID = ""

	default:
		// Caller already gone; free the agent for other waiting calls.
		if restored := e.restoreAgent(ctx, aleg.CallCenterID, aleg); restored != "" {
			e.AgentAvailable(aleg.CallCenterID, restored)
		}
	}
}

// finalizeCaller removes a caller from tracking and retires its worker.
func (e *Engine) finalizeCaller(call *Call) {
	call.State = StateTerminated
	e.untrack(call.ChannelID)
	e.metrics.ActiveCalls.Dec()
	e.dispatch.Remove(call.ChannelID)
}

// --- agent release & dispatch ---

// restoreAgent puts a ringing agent back to AVAILABLE after a failed
// attempt, at most once per leg. It returns the restored agent id, or
// "" when there was nothing to restore; callers decide whether waiting
// work should be dispatched to it.
func (e *Engine) restoreAgent(ctx context.Context, cc string, leg *Call) string {
	if leg.AgentID == "" {
		return ""
	}
	agentID := leg.AgentID
	leg.AgentID = ""
	if err := e.repo.SetAgentStatus(ctx, cc, agentID, repository.StatusAvailable); err != nil {
		slog.Warn("Failed to restore agent", "agent", agentID, "error", err)
		return ""
	}
	return agentID
}

// releaseAgent moves an agent out of ON_CALL: either straight back to
// AVAILABLE or through a WRAPPING_UP pause, then dispatches waiting work.
func (e *Engine) releaseAgent(cc, agentID string) {
	ctx := context.Background()
	if e.cfg.WrapUp <= 0 {
		if err := e.repo.SetAgentStatus(ctx, cc, agentID, repository.StatusAvailable); err != nil {
			slog.Warn("Failed to release agent", "agent", agentID, "error", err)
			return
		}
		e.AgentAvailable(cc, agentID)
		return
	}

	if err := e.repo.SetAgentStatus(ctx, cc, agentID, repository.StatusWrappingUp); err != nil {
		slog.Warn("Failed to start wrap-up", "agent", agentID, "error", err)
		return
	}
	slog.Debug("Agent wrapping up", "agent", agentID, "duration", e.cfg.WrapUp)
	time.AfterFunc(e.cfg.WrapUp, func() {
		// The agent may have logged out during wrap-up.
		if err := e.repo.SetAgentStatus(context.Background(), cc, agentID, repository.StatusAvailable); err != nil {
			slog.Debug("Wrap-up release skipped", "agent", agentID, "error", err)
			return
		}
		e.AgentAvailable(cc, agentID)
	})
}

// AgentAvailable dispatches waiting work to a newly available agent: its
// queues are walked in lexicographic order and the first live head
// record re-enters the routing loop. Login flows and wrap-up expiry both
// funnel through here.
func (e *Engine) AgentAvailable(cc, agentID string) {
	ctx := context.Background()
	agent, err := e.repo.GetAgent(ctx, cc, agentID)
	if err != nil {
		slog.Warn("Cannot dispatch to agent", "agent", agentID, "error", err)
		return
	}
	if agent.Status != repository.StatusAvailable {
		return
	}

	queues := make([]string, len(agent.LoggedInQueues))
	copy(queues, agent.LoggedInQueues)
	sort.Strings(queues)

	for _, queueID := range queues {
		for {
			record, err := e.repo.NextCallFromQueue(ctx, cc, queueID)
			if err != nil {
				if !errors.Is(err, repository.ErrNotFound) {
					slog.Warn("Failed to pop waiting call", "queue", queueID, "error", err)
				}
				break
			}
			caller := e.getCall(record.ChannelID)
			if caller == nil {
				// The channel died while queued and its record outlived it.
				slog.Warn("Dropping stale waiting record",
					"queue", queueID, "channel", record.ChannelID)
				continue
			}
			queue, err := e.repo.GetQueue(ctx, cc, queueID)
			if err != nil {
				slog.Warn("Failed to load queue for dispatch", "queue", queueID, "error", err)
				e.requeue(ctx, cc, queueID, record)
				return
			}
			strategy, ok := e.strategies[queue.Strategy]
			if !ok {
				slog.Error("Queue has unsupported strategy, leaving call waiting",
					"queue", queueID, "strategy", queue.Strategy)
				e.requeue(ctx, cc, queueID, record)
				return
			}
			channelID := caller.ChannelID
			e.dispatch.Submit(channelID, func() {
				// The caller may have been routed or torn down since the
				// pop; re-check under the worker. A finalized channel must
				// not leave the recreated worker behind.
				cur := e.getCall(channelID)
				if cur == nil {
					e.dispatch.Remove(channelID)
					return
				}
				if cur.State != StateQueued {
					return
				}
				e.routeCall(context.Background(), cur, strategy)
			})
			return
		}
	}
}

// requeue puts a popped record back at the tail after a dispatch failure.
func (e *Engine) requeue(ctx context.Context, cc, queueID string, record *repository.WaitingCall) {
	if err := e.repo.AddCallToQueue(ctx, cc, queueID, *record); err != nil {
		slog.Error("Failed to restore waiting record",
			"queue", queueID, "channel", record.ChannelID, "error", err)
	}
}

// --- helpers ---

// hangup tears down a channel, tolerating channels already gone.
func (e *Engine) hangup(ctx context.Context, channelID string) {
	if err := e.client.Hangup(ctx, channelID); err != nil {
		if errors.Is(err, ari.ErrChannelGone) {
			return
		}
		// The channel is being torn down anyway; log and move on.
		slog.Warn("Hangup failed", "channel", channelID, "error", err)
	}
}

func (e *Engine) track(call *Call) {
	e.mu.Lock()
	e.calls[call.ChannelID] = call
	e.mu.Unlock()
}

func (e *Engine) getCall(channelID string) *Call {
	if channelID == "" {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.calls[channelID]
}

func (e *Engine) untrack(channelID string) {
	e.mu.Lock()
	delete(e.calls, channelID)
	e.mu.Unlock()
}

// ActiveCallCount reports how many channels the router is tracking.
func (e *Engine) ActiveCallCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.calls)
}
