package engine

import "fmt"

// CallState is the routing state of a tracked channel. Caller legs and
// agent legs move through disjoint subsets.
type CallState int

const (
	// StateEntered indicates the caller channel entered the routing app.
	StateEntered CallState = iota
	// StateAnswered indicates the caller channel has been answered.
	StateAnswered
	// StateSelecting indicates agent selection is in progress.
	StateSelecting
	// StateOriginating indicates an agent leg is being originated.
	StateOriginating
	// StateBridging indicates both legs are being joined to a bridge.
	StateBridging
	// StateBridged indicates caller and agent are talking.
	StateBridged
	// StateQueued indicates the caller is waiting with on-hold media.
	StateQueued
	// StateTerminated indicates the caller channel is gone.
	StateTerminated

	// StateAgentOriginated indicates the agent leg has been requested.
	StateAgentOriginated
	// StateAgentAnswered indicates the agent leg answered and entered the app.
	StateAgentAnswered
	// StateAgentBridged indicates the agent leg is bridged to its caller.
	StateAgentBridged
	// StateAgentGone indicates the agent leg has been destroyed.
	StateAgentGone
)

// String returns the string representation of CallState.
func (s CallState) String() string {
	switch s {
	case StateEntered:
		return "Entered"
	case StateAnswered:
		return "Answered"
	case StateSelecting:
		return "Selecting"
	case StateOriginating:
		return "Originating"
	case StateBridging:
		return "Bridging"
	case StateBridged:
		return "Bridged"
	case StateQueued:
		return "Queued"
	case StateTerminated:
		return "Terminated"
	case StateAgentOriginated:
		return "AgentOriginated"
	case StateAgentAnswered:
		return "AgentAnswered"
	case StateAgentBridged:
		return "AgentBridged"
	case StateAgentGone:
		return "AgentGone"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Role distinguishes the two leg kinds the router tracks.
type Role int

const (
	// RoleCaller is an inbound caller channel.
	RoleCaller Role = iota
	// RoleAgentLeg is an originated channel toward an agent endpoint.
	RoleAgentLeg
)

// String returns the string representation of Role.
func (r Role) String() string {
	switch r {
	case RoleCaller:
		return "Caller"
	case RoleAgentLeg:
		return "AgentLeg"
	default:
		return fmt.Sprintf("Unknown(%d)", r)
	}
}

// Call is the in-memory context of one tracked channel. It never leaves
// the router process; all cross-call state lives in the store.
type Call struct {
	ChannelID    string
	CallCenterID string
	QueueID      string
	Role         Role
	State        CallState

	// CallerNumber is the remote party number on a caller leg.
	CallerNumber string

	// EnqueueTime is the original enqueue instant (epoch ms), preserved
	// across re-queues. Zero until first enqueued.
	EnqueueTime int64

	// OnHold is true while on-hold media is running on a caller leg.
	OnHold bool

	// PeerChannelID links the two legs of an attempt or bridge.
	PeerChannelID string

	// AgentID is the agent bound to the current attempt.
	AgentID string

	// BridgeID is set once a bridge has been created for this call.
	BridgeID string
}
