package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/preplab/proctord/internal/model"
	ws "github.com/preplab/proctord/internal/websocket"
)

// Stream is the live proctoring channel to the server. It implements
// session.Reporter and session.AutosaveSink; both paths are best-effort
// from the controller's point of view.
type Stream struct {
	mu   sync.Mutex
	conn *gorilla.Conn
	log  zerolog.Logger
}

// DialStream opens the test's WebSocket stream. url is the full ws://
// endpoint; the student token is passed as a query parameter because
// browser WebSocket clients cannot set headers.
func DialStream(ctx context.Context, url, token string, log zerolog.Logger) (*Stream, error) {
	conn, _, err := gorilla.DefaultDialer.DialContext(ctx, url+"?token="+token, nil)
	if err != nil {
		return nil, fmt.Errorf("dial stream: %w", err)
	}
	return &Stream{
		conn: conn,
		log:  log.With().Str("component", "proctor_stream").Logger(),
	}, nil
}

// ReportViolation pushes one security event to the server.
func (s *Stream) ReportViolation(ev model.SecurityEvent) error {
	return s.write(ws.RequestPayload{
		Action: ws.ActionViolation,
		Type:   string(ev.Type),
		Seq:    ev.Seq,
		At:     ev.At.Unix(),
	})
}

// Autosave pushes one answer snapshot to the server.
func (s *Stream) Autosave(questionID string, value model.AnswerValue) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}
	return s.write(ws.RequestPayload{
		Action: ws.ActionAutosave,
		QID:    questionID,
		Answer: raw,
	})
}

// Close closes the underlying connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

func (s *Stream) write(payload ws.RequestPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteJSON(payload)
}
