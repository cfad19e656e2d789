package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/sebas/acd/internal/router/ari"
)

// fakeClient records every control action and lets tests script failures.
type fakeClient struct {
	mu sync.Mutex

	answered   []string
	hungup     []string
	played     map[string][]string // channel -> media ids
	mohStarted []string
	mohStopped []string

	vars map[string]map[string]string // channel -> variable -> value

	originations []ari.OriginateRequest
	originateErr error

	bridges          []string
	bridgeChannels   map[string][]string
	destroyedBridges []string
	addChannelErr    map[string]error // channel id -> error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		played:         make(map[string][]string),
		vars:           make(map[string]map[string]string),
		bridgeChannels: make(map[string][]string),
		addChannelErr:  make(map[string]error),
	}
}

func (f *fakeClient) setVars(channelID, cc, queue string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vars[channelID] = map[string]string{
		"CALL_CENTER_ID": cc,
		"QUEUE_ID":       queue,
	}
}

func (f *fakeClient) Answer(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, channelID)
	return nil
}

func (f *fakeClient) Hangup(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hungup = append(f.hungup, channelID)
	return nil
}

func (f *fakeClient) Play(_ context.Context, channelID, mediaURI string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played[channelID] = append(f.played[channelID], mediaURI)
	return nil
}

func (f *fakeClient) StartMOH(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mohStarted = append(f.mohStarted, channelID)
	return nil
}

func (f *fakeClient) StopMOH(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mohStopped = append(f.mohStopped, channelID)
	return nil
}

func (f *fakeClient) GetVar(_ context.Context, channelID, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vars[channelID][name], nil
}

func (f *fakeClient) Originate(_ context.Context, req ari.OriginateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.originateErr != nil {
		return "", f.originateErr
	}
	f.originations = append(f.originations, req)
	return req.ChannelID, nil
}

func (f *fakeClient) CreateBridge(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("bridge-%d", len(f.bridges)+1)
	f.bridges = append(f.bridges, id)
	return id, nil
}

func (f *fakeClient) AddChannel(_ context.Context, bridgeID, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.addChannelErr[channelID]; err != nil {
		return err
	}
	f.bridgeChannels[bridgeID] = append(f.bridgeChannels[bridgeID], channelID)
	return nil
}

func (f *fakeClient) DestroyBridge(_ context.Context, bridgeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyedBridges = append(f.destroyedBridges, bridgeID)
	return nil
}

func (f *fakeClient) originationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.originations)
}

func (f *fakeClient) origination(i int) ari.OriginateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.originations[i]
}

func (f *fakeClient) wasHungUp(channelID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.hungup {
		if id == channelID {
			return true
		}
	}
	return false
}

func (f *fakeClient) playedOn(channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.played[channelID]
}

func (f *fakeClient) mohStartedOn(channelID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.mohStarted {
		if id == channelID {
			return true
		}
	}
	return false
}
