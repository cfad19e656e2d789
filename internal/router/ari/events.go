package ari

import (
	"encoding/json"
	"fmt"
)

// Event types delivered on the ARI websocket that the router consumes.
const (
	EventStasisStart      = "StasisStart"
	EventStasisEnd        = "StasisEnd"
	EventChannelDestroyed = "ChannelDestroyed"
)

// Caller identifies the remote party on a channel.
type Caller struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

// Channel is the ARI channel snapshot carried on events.
type Channel struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	State  string `json:"state"`
	Caller Caller `json:"caller"`
}

// Event is a decoded ARI event. Fields not relevant to the decoded type
// are zero.
type Event struct {
	Type    string   `json:"type"`
	Channel Channel  `json:"channel"`
	Args    []string `json:"args"`
	// Cause is the hangup cause code on ChannelDestroyed.
	Cause int `json:"cause"`
}

// DecodeEvent parses a raw websocket message into an Event.
// Unknown event types decode successfully; callers filter on Type.
func DecodeEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode ari event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("decode ari event: missing type")
	}
	return &ev, nil
}

// EventHandler receives decoded events from the socket read loop.
// Handlers must not block; long work belongs on the router's per-channel
// dispatcher.
type EventHandler interface {
	HandleStasisStart(ev *Event)
	HandleStasisEnd(ev *Event)
	HandleChannelDestroyed(ev *Event)
}
