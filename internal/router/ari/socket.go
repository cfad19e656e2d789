package ari

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventSocket maintains the ARI websocket and feeds decoded events to a
// handler. A read failure is fatal: the socket closes and the error is
// delivered on Err. The process owner decides whether to exit (the
// router treats a dropped control channel as unrecoverable).
type EventSocket struct {
	cfg     Config
	handler EventHandler

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	errCh  chan error
}

// NewEventSocket creates an event socket; call Connect to establish it.
func NewEventSocket(cfg Config, handler EventHandler) *EventSocket {
	return &EventSocket{
		cfg:     cfg,
		handler: handler,
		errCh:   make(chan error, 1),
	}
}

// Connect dials the ARI event endpoint and starts the read loop.
// Connecting registers the Stasis application with the media server.
func (s *EventSocket) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.cfg.EventsURL(), nil)
	if err != nil {
		return fmt.Errorf("ari: dial event socket: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	slog.Info("ARI event socket connected",
		"host", s.cfg.Host, "port", s.cfg.Port, "app", s.cfg.AppName)

	go s.readLoop(conn)
	return nil
}

// Err returns a channel that receives the fatal socket error, if any.
func (s *EventSocket) Err() <-chan error {
	return s.errCh
}

// Close shuts the socket down. The read loop exits without reporting an
// error.
func (s *EventSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// readLoop pumps events until the socket fails or is closed.
func (s *EventSocket) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				select {
				case s.errCh <- fmt.Errorf("ari: event socket read: %w", err):
				default:
				}
			}
			return
		}

		ev, err := DecodeEvent(raw)
		if err != nil {
			slog.Warn("Dropping undecodable ARI event", "error", err)
			continue
		}

		switch ev.Type {
		case EventStasisStart:
			s.handler.HandleStasisStart(ev)
		case EventStasisEnd:
			s.handler.HandleStasisEnd(ev)
		case EventChannelDestroyed:
			s.handler.HandleChannelDestroyed(ev)
		default:
			// Other Stasis events are not the router's concern.
		}
	}
}
