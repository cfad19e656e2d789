package repository

import "fmt"

// AgentStatus is the serving state of an agent. Stored as its string form
// in the agent hash.
type AgentStatus string

const (
	// StatusLoggedOut is the initial state; the agent serves no queues.
	StatusLoggedOut AgentStatus = "LOGGED_OUT"
	// StatusAvailable means the agent can be selected for a call.
	StatusAvailable AgentStatus = "AVAILABLE"
	// StatusRinging means an origination to the agent is in progress.
	StatusRinging AgentStatus = "RINGING"
	// StatusOnCall means the agent is bridged with a caller.
	StatusOnCall AgentStatus = "ON_CALL"
	// StatusWrappingUp means the agent is in post-call work and not selectable.
	StatusWrappingUp AgentStatus = "WRAPPING_UP"
)

// Valid reports whether s is a known agent status.
func (s AgentStatus) Valid() bool {
	switch s {
	case StatusLoggedOut, StatusAvailable, StatusRinging, StatusOnCall, StatusWrappingUp:
		return true
	}
	return false
}

// Serving reports whether the agent is in any logged-in serving state.
func (s AgentStatus) Serving() bool {
	return s.Valid() && s != StatusLoggedOut
}

// Queue distribution strategies.
const (
	StrategyRoundRobin = "ROUND_ROBIN"
	// StrategyRingAll is reserved; the router does not implement it.
	StrategyRingAll = "RINGALL"
)

// Queue operating status. Advisory only: the authoritative open/closed
// decision is the timing evaluation on each call.
const (
	QueueOpen   = "OPEN"
	QueueClosed = "CLOSED"
)

// Queue is a named call entry point.
type Queue struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Strategy string `json:"strategy"`
	Timings  string `json:"timings"`
	Status   string `json:"status"`
}

// Agent is a staffed endpoint that may serve one or more queues.
type Agent struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Endpoint       string      `json:"endpoint"`
	ShiftTimings   string      `json:"shift_timings"`
	Status         AgentStatus `json:"status"`
	LoggedInQueues []string    `json:"logged_in_queues"`
}

// WaitingCall is one record in a queue's FIFO waiting sequence.
type WaitingCall struct {
	ChannelID    string `json:"channelId"`
	CallerNumber string `json:"callerNumber"`
	EnqueueTime  int64  `json:"enqueueTime"` // epoch milliseconds
}

// Store key layout, scoped per call center. The call-center master set
// is the only global key; it lets startup reconciliation find tenants.
func keyCallCenters() string { return "callcenters_master" }

func keyQueuesMaster(cc string) string { return fmt.Sprintf("callcenter:%s:queues_master", cc) }
func keyAgentsMaster(cc string) string { return fmt.Sprintf("callcenter:%s:agents_master", cc) }
func keyQueue(cc, q string) string     { return fmt.Sprintf("callcenter:%s:queue:%s", cc, q) }
func keyAgent(cc, a string) string     { return fmt.Sprintf("callcenter:%s:agent:%s", cc, a) }

func keyLoggedIn(cc, q string) string {
	return fmt.Sprintf("callcenter:%s:queue:%s:agents_loggedIn", cc, q)
}

func keyCalls(cc, q string) string { return fmt.Sprintf("callcenter:%s:queue:%s:calls", cc, q) }

func keyRRPointer(cc, q string) string {
	return fmt.Sprintf("callcenter:%s:queue:%s:lastAgentRR", cc, q)
}
