package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/coder/websocket"
)

var _ EventStream = (*wsStream)(nil)

// wsStream adapts a WebSocket connection to [EventStream]. Malformed JSON
// frames are logged and skipped rather than killing the stream; providers
// occasionally send frames we do not model.
type wsStream struct {
	conn *websocket.Conn
	log  *slog.Logger
}

// NewStream wraps an accepted WebSocket connection.
func NewStream(conn *websocket.Conn, log *slog.Logger) EventStream {
	if log == nil {
		log = slog.Default()
	}
	return &wsStream{conn: conn, log: log}
}

// ReadEvent implements [EventStream].
func (s *wsStream) ReadEvent(ctx context.Context) (InboundEvent, error) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return InboundEvent{}, fmt.Errorf("relay: read: %w", err)
		}

		var ev InboundEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.log.Warn("skipping malformed relay frame", "error", err)
			continue
		}
		return ev, nil
	}
}

// WriteEvent implements [EventStream].
func (s *wsStream) WriteEvent(ctx context.Context, ev OutboundEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("relay: marshal: %w", err)
	}
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("relay: write: %w", err)
	}
	return nil
}
