// Package ari speaks the Asterisk REST Interface: REST requests for
// channel and bridge control, and a websocket stream for Stasis events.
//
// The router consumes the Client interface so tests can substitute a
// fake; HTTP is the production implementation.
package ari

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is.
var (
	// ErrChannelGone indicates the channel no longer exists on the
	// media server (404 from a channel operation).
	ErrChannelGone = errors.New("channel gone")

	// ErrTimeout indicates an originated channel was not answered
	// within the answer timeout.
	ErrTimeout = errors.New("origination timeout")
)

// OriginateRequest describes an outbound channel to create.
type OriginateRequest struct {
	// Endpoint is the address handed to the media server, e.g. "PJSIP/alice".
	Endpoint string
	// CallerID is presented to the called party.
	CallerID string
	// App is the Stasis application the new channel enters on answer.
	App string
	// AppArgs are passed to the application verbatim.
	AppArgs string
	// TimeoutSeconds bounds how long the endpoint may ring.
	TimeoutSeconds int
	// ChannelID pins the new channel's id so events can be correlated.
	ChannelID string
}

// Client is the channel-control surface the router depends on.
// All operations are context-first and safe for concurrent use.
type Client interface {
	// Answer answers a ringing channel.
	Answer(ctx context.Context, channelID string) error

	// Hangup tears down a channel. Returns ErrChannelGone if the
	// channel is already gone.
	Hangup(ctx context.Context, channelID string) error

	// Play starts playback of a media id (e.g. "sound:ss-noservice")
	// on a channel and returns once playback has been accepted.
	Play(ctx context.Context, channelID, mediaURI string) error

	// StartMOH starts the default music-on-hold class on a channel.
	StartMOH(ctx context.Context, channelID string) error

	// StopMOH stops music on hold on a channel.
	StopMOH(ctx context.Context, channelID string) error

	// GetVar reads a channel variable. Returns "" without error when
	// the variable is unset.
	GetVar(ctx context.Context, channelID, name string) (string, error)

	// Originate creates a new outbound channel and returns its id.
	Originate(ctx context.Context, req OriginateRequest) (string, error)

	// CreateBridge creates a bridge of the given type ("mixing") and
	// returns its id.
	CreateBridge(ctx context.Context, bridgeType string) (string, error)

	// AddChannel places a channel into a bridge.
	AddChannel(ctx context.Context, bridgeID, channelID string) error

	// DestroyBridge destroys a bridge, releasing its channels.
	DestroyBridge(ctx context.Context, bridgeID string) error
}

// Config holds the ARI connection parameters.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	AppName  string
}

// BaseURL returns the HTTP base of the ARI endpoint.
func (c Config) BaseURL() string {
	return fmt.Sprintf("http://%s:%d/ari", c.Host, c.Port)
}

// EventsURL returns the websocket URL of the ARI event stream.
func (c Config) EventsURL() string {
	return fmt.Sprintf("ws://%s:%d/ari/events?app=%s&api_key=%s:%s",
		c.Host, c.Port, c.AppName, c.Username, c.Password)
}
