package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"esphome-humidifier-bridge/internal/domain/model"
	"esphome-humidifier-bridge/internal/ports"
)

const subscriptionID = 1

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wsEvent struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

type wsMessage struct {
	ID          int      `json:"id,omitempty"`
	Type        string   `json:"type"`
	AccessToken string   `json:"access_token,omitempty"`
	EventType   string   `json:"event_type,omitempty"`
	HAVersion   string   `json:"ha_version,omitempty"`
	Success     *bool    `json:"success,omitempty"`
	Error       *wsError `json:"error,omitempty"`
	Event       *wsEvent `json:"event,omitempty"`
}

var errAuthInvalid = errors.New("Home Assistant rejected the access token")

// EventStream follows state_changed events over the Home Assistant
// WebSocket API, reconnecting with capped exponential backoff.
type EventStream struct {
	client *Client
	logger *slog.Logger

	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	PingInterval time.Duration
}

var _ ports.EventSource = (*EventStream)(nil)

func NewEventStream(client *Client, logger *slog.Logger) *EventStream {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventStream{
		client:       client,
		logger:       logger,
		MinBackoff:   time.Second,
		MaxBackoff:   time.Minute,
		PingInterval: 30 * time.Second,
	}
}

// Run blocks until ctx is cancelled.
func (s *EventStream) Run(ctx context.Context, onEvent func(context.Context, model.StateChangedEvent), onConnect func(context.Context)) error {
	backoff := s.MinBackoff
	for {
		connected, err := s.session(ctx, onEvent, onConnect)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = s.MinBackoff
		}
		s.logger.Warn("Home Assistant event stream disconnected", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.MaxBackoff {
			backoff = s.MaxBackoff
		}
	}
}

func (s *EventStream) session(ctx context.Context, onEvent func(context.Context, model.StateChangedEvent), onConnect func(context.Context)) (bool, error) {
	base, token := s.client.Endpoint()
	if base == "" || token == "" {
		return false, model.ErrNotConfigured
	}

	conn, _, err := websocket.Dial(ctx, WebSocketURL(base), nil)
	if err != nil {
		return false, fmt.Errorf("dial websocket: %w", err)
	}
	defer conn.CloseNow()
	// Full state objects of busy installations exceed the default 32KiB.
	conn.SetReadLimit(8 << 20)

	if err := s.authenticate(ctx, conn, token); err != nil {
		return false, err
	}
	if err := wsjson.Write(ctx, conn, wsMessage{ID: subscriptionID, Type: "subscribe_events", EventType: "state_changed"}); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	var result wsMessage
	if err := wsjson.Read(ctx, conn, &result); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	if result.Type != "result" || result.Success == nil || !*result.Success {
		return false, fmt.Errorf("subscribe rejected: %+v", result.Error)
	}

	s.logger.Info("subscribed to Home Assistant state changes")
	if onConnect != nil {
		onConnect(ctx)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.keepAlive(sessionCtx, conn)

	for {
		var msg wsMessage
		if err := wsjson.Read(sessionCtx, conn, &msg); err != nil {
			return true, err
		}
		if msg.Type != "event" || msg.ID != subscriptionID || msg.Event == nil {
			continue
		}
		var ev model.StateChangedEvent
		if err := json.Unmarshal(msg.Event.Data, &ev); err != nil {
			s.logger.Warn("could not decode state_changed event", "error", err)
			continue
		}
		onEvent(sessionCtx, ev)
	}
}

func (s *EventStream) authenticate(ctx context.Context, conn *websocket.Conn, token string) error {
	var hello wsMessage
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		return fmt.Errorf("read auth_required: %w", err)
	}
	if hello.Type != "auth_required" {
		return fmt.Errorf("unexpected greeting %q", hello.Type)
	}
	if err := wsjson.Write(ctx, conn, wsMessage{Type: "auth", AccessToken: token}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}
	var reply wsMessage
	if err := wsjson.Read(ctx, conn, &reply); err != nil {
		return fmt.Errorf("read auth reply: %w", err)
	}
	switch reply.Type {
	case "auth_ok":
		s.logger.Debug("authenticated", "ha_version", reply.HAVersion)
		return nil
	case "auth_invalid":
		return errAuthInvalid
	default:
		return fmt.Errorf("unexpected auth reply %q", reply.Type)
	}
}

func (s *EventStream) keepAlive(ctx context.Context, conn *websocket.Conn) {
	if s.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, s.PingInterval/2)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				s.logger.Warn("websocket ping failed", "error", err)
				conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

// WebSocketURL derives the API socket address from the REST base URL.
func WebSocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return strings.TrimSuffix(base, "/") + "/api/websocket"
}
