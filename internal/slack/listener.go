package slack

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// Event is a normalized inbound Slack event delivered to the handler.
type Event struct {
	Type     string // "app_mention" or "message"
	User     string
	Text     string
	Channel  string
	TS       string
	ThreadTS string
}

// Handler receives inbound events from the socket-mode listener.
// Handlers must not block for long; the listener delivers events
// sequentially per connection.
type Handler interface {
	HandleAppMention(ctx context.Context, ev Event)
	HandleMessage(ctx context.Context, ev Event)
}

// Listener maintains a socket-mode connection and dispatches
// events_api envelopes to the handler, acking each envelope.
type Listener struct {
	client  *Client
	handler Handler
	log     *slog.Logger
}

// NewListener creates a socket-mode listener.
func NewListener(client *Client, handler Handler, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	return &Listener{client: client, handler: handler, log: log}
}

type envelope struct {
	EnvelopeID string          `json:"envelope_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type eventsAPIPayload struct {
	Event struct {
		Type     string `json:"type"`
		Subtype  string `json:"subtype,omitempty"`
		User     string `json:"user,omitempty"`
		BotID    string `json:"bot_id,omitempty"`
		Text     string `json:"text,omitempty"`
		Channel  string `json:"channel,omitempty"`
		TS       string `json:"ts,omitempty"`
		ThreadTS string `json:"thread_ts,omitempty"`
	} `json:"event"`
}

type envelopeAck struct {
	EnvelopeID string `json:"envelope_id"`
}

// Run connects and processes envelopes until the context is cancelled,
// reconnecting after disconnects.
func (l *Listener) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := l.client.ConnectSocket(ctx)
		if err != nil {
			l.log.Error("socket mode connect", "error", err)
			if err := sleepWithContext(ctx, 5*time.Second); err != nil {
				return err
			}
			continue
		}
		l.log.Info("socket mode connected")

		err = l.readLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.log.Warn("socket mode disconnected, reconnecting", "error", err)
	}
}

func (l *Listener) readLoop(ctx context.Context, conn *websocket.Conn) error {
	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			l.log.Warn("malformed socket envelope", "error", err)
			continue
		}

		switch env.Type {
		case "hello":
			continue
		case "disconnect":
			// Slack asks clients to reconnect; Run dials a fresh socket.
			return nil
		case "events_api":
			if env.EnvelopeID != "" {
				if err := conn.WriteJSON(envelopeAck{EnvelopeID: env.EnvelopeID}); err != nil {
					return err
				}
			}
			l.dispatch(ctx, env.Payload)
		default:
			l.log.Debug("ignoring socket envelope", "type", env.Type)
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, payload json.RawMessage) {
	var p eventsAPIPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		l.log.Warn("malformed events_api payload", "error", err)
		return
	}
	ev := Event{
		Type:     p.Event.Type,
		User:     p.Event.User,
		Text:     p.Event.Text,
		Channel:  p.Event.Channel,
		TS:       p.Event.TS,
		ThreadTS: p.Event.ThreadTS,
	}

	switch p.Event.Type {
	case "app_mention":
		l.handler.HandleAppMention(ctx, ev)
	case "message":
		// Skip bot echoes and edits/deletions; only fresh user messages
		// become events.
		if p.Event.BotID != "" {
			return
		}
		switch p.Event.Subtype {
		case "", "file_share":
		default:
			return
		}
		l.handler.HandleMessage(ctx, ev)
	}
}
