package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nadira/kirin/internal/tracing"
	"github.com/nadira/kirin/pkg/chat"
	"github.com/nadira/kirin/pkg/relay"
)

// wsSink writes relay frames as WebSocket text messages. Gorilla
// connections allow one concurrent writer, so writes are serialized.
type wsSink struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	chunkID string
	model   string
	closed  bool
}

func (s *wsSink) send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return relay.ErrSinkClosed
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		s.closed = true
		return relay.ErrSinkClosed
	}
	return nil
}

func (s *wsSink) SendContent(text string) error {
	return s.send(relay.EncodeContentFrame(s.chunkID, s.model, text))
}

func (s *wsSink) SendError(message string) error {
	return s.send(relay.EncodeErrorFrame(message))
}

func (s *wsSink) SendDone() error {
	return s.send([]byte(relay.DoneSentinel))
}

func (s *wsSink) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.draining() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	headerSession := r.Header.Get(SessionHeader)

	// One turn per inbound message; frames for the turn stream back
	// over the same connection.
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Msg("WebSocket closed")
			}
			return
		}

		req, err := parseWSRequest(message, headerSession)
		if err != nil {
			_ = conn.WriteMessage(websocket.TextMessage, relay.EncodeErrorFrame(err.Error()))
			continue
		}

		requestID := uuid.NewString()
		ctx := tracing.WithRequestID(r.Context(), requestID)

		model := req.Model
		if model == "" {
			model = "kirin"
		}
		sink := &wsSink{conn: conn, chunkID: relay.NewChunkID(), model: model}

		disconnect := make(chan struct{})
		go func() {
			select {
			case <-r.Context().Done():
				sink.markClosed()
			case <-disconnect:
			}
		}()

		s.inFlightReqs.Add(1)
		s.relay.Handle(ctx, req, sink)
		s.inFlightReqs.Done()
		close(disconnect)
	}
}

func parseWSRequest(message []byte, headerSession string) (relay.Request, error) {
	var req chatRequest
	if err := json.Unmarshal(message, &req); err != nil {
		return relay.Request{}, err
	}

	sessionID := req.SessionID
	if headerSession != "" {
		sessionID = headerSession
	}

	messages := make([]chat.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role, ok := chat.ParseRole(m.Role)
		if !ok {
			return relay.Request{}, fmt.Errorf("unknown role %q", m.Role)
		}
		messages = append(messages, chat.Message{Role: role, Content: m.Content})
	}

	return relay.Request{
		SessionID:   sessionID,
		Model:       req.Model,
		Progressive: req.Progressive,
		Messages:    messages,
	}, nil
}
