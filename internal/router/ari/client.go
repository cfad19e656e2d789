package ari

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTP implements Client against the ARI REST endpoint.
type HTTP struct {
	cfg    Config
	client *http.Client
}

// NewHTTP creates an ARI REST client.
func NewHTTP(cfg Config) *HTTP {
	return &HTTP{
		cfg: cfg,
		client: &http.Client{
			// Originate blocks until answer or timeout (15s); leave headroom.
			Timeout: 30 * time.Second,
		},
	}
}

// Answer implements Client.
func (h *HTTP) Answer(ctx context.Context, channelID string) error {
	return h.do(ctx, http.MethodPost,
		fmt.Sprintf("/channels/%s/answer", url.PathEscape(channelID)), nil, nil)
}

// Hangup implements Client.
func (h *HTTP) Hangup(ctx context.Context, channelID string) error {
	return h.do(ctx, http.MethodDelete,
		fmt.Sprintf("/channels/%s", url.PathEscape(channelID)), nil, nil)
}

// Play implements Client.
func (h *HTTP) Play(ctx context.Context, channelID, mediaURI string) error {
	q := url.Values{"media": {mediaURI}}
	return h.do(ctx, http.MethodPost,
		fmt.Sprintf("/channels/%s/play?%s", url.PathEscape(channelID), q.Encode()), nil, nil)
}

// StartMOH implements Client. The server's default music class is used.
func (h *HTTP) StartMOH(ctx context.Context, channelID string) error {
	return h.do(ctx, http.MethodPost,
		fmt.Sprintf("/channels/%s/moh", url.PathEscape(channelID)), nil, nil)
}

// StopMOH implements Client.
func (h *HTTP) StopMOH(ctx context.Context, channelID string) error {
	return h.do(ctx, http.MethodDelete,
		fmt.Sprintf("/channels/%s/moh", url.PathEscape(channelID)), nil, nil)
}

// GetVar implements Client.
func (h *HTTP) GetVar(ctx context.Context, channelID, name string) (string, error) {
	q := url.Values{"variable": {name}}
	var out struct {
		Value string `json:"value"`
	}
	err := h.do(ctx, http.MethodGet,
		fmt.Sprintf("/channels/%s/variable?%s", url.PathEscape(channelID), q.Encode()), nil, &out)
	if err != nil {
		// Asterisk answers 404 for unset variables as well as unknown
		// channels; treat both as "no value".
		if apiErr, ok := err.(*apiError); ok && apiErr.status == http.StatusNotFound {
			return "", nil
		}
		return "", err
	}
	return out.Value, nil
}

// Originate implements Client.
func (h *HTTP) Originate(ctx context.Context, req OriginateRequest) (string, error) {
	q := url.Values{
		"endpoint": {req.Endpoint},
		"app":      {h.cfg.AppName},
		"appArgs":  {req.AppArgs},
		"callerId": {req.CallerID},
		"timeout":  {strconv.Itoa(req.TimeoutSeconds)},
	}
	if req.App != "" {
		q.Set("app", req.App)
	}
	if req.ChannelID != "" {
		q.Set("channelId", req.ChannelID)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := h.do(ctx, http.MethodPost, "/channels?"+q.Encode(), nil, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CreateBridge implements Client.
func (h *HTTP) CreateBridge(ctx context.Context, bridgeType string) (string, error) {
	q := url.Values{"type": {bridgeType}}
	var out struct {
		ID string `json:"id"`
	}
	if err := h.do(ctx, http.MethodPost, "/bridges?"+q.Encode(), nil, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// AddChannel implements Client.
func (h *HTTP) AddChannel(ctx context.Context, bridgeID, channelID string) error {
	q := url.Values{"channel": {channelID}}
	return h.do(ctx, http.MethodPost,
		fmt.Sprintf("/bridges/%s/addChannel?%s", url.PathEscape(bridgeID), q.Encode()), nil, nil)
}

// DestroyBridge implements Client.
func (h *HTTP) DestroyBridge(ctx context.Context, bridgeID string) error {
	return h.do(ctx, http.MethodDelete,
		fmt.Sprintf("/bridges/%s", url.PathEscape(bridgeID)), nil, nil)
}

// apiError carries the HTTP status of a failed ARI request.
type apiError struct {
	status int
	method string
	path   string
	body   string
}

// Error returns the error message.
func (e *apiError) Error() string {
	return fmt.Sprintf("ari: %s %s: %d %s", e.method, e.path, e.status, e.body)
}

// Is maps 404 channel responses onto ErrChannelGone.
func (e *apiError) Is(target error) bool {
	return target == ErrChannelGone && e.status == http.StatusNotFound
}

// do issues one ARI request and decodes the JSON response into out when
// non-nil.
func (h *HTTP) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, h.cfg.BaseURL()+path, body)
	if err != nil {
		return fmt.Errorf("ari: build %s %s: %w", method, path, err)
	}
	req.SetBasicAuth(h.cfg.Username, h.cfg.Password)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("ari: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &apiError{status: resp.StatusCode, method: method, path: path, body: string(msg)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("ari: decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}
