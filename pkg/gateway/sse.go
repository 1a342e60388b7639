package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/nadira/kirin/internal/tracing"
	"github.com/nadira/kirin/pkg/relay"
)

// sseSink writes relay frames as server-sent events. A failed write or
// a cancelled request context reads as a client disconnect.
type sseSink struct {
	ctx     context.Context
	w       http.ResponseWriter
	flusher http.Flusher
	chunkID string
	model   string
}

func (s *sseSink) send(payload []byte) error {
	if s.ctx.Err() != nil {
		return relay.ErrSinkClosed
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return relay.ErrSinkClosed
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) SendContent(text string) error {
	return s.send(relay.EncodeContentFrame(s.chunkID, s.model, text))
}

func (s *sseSink) SendError(message string) error {
	return s.send(relay.EncodeErrorFrame(message))
}

func (s *sseSink) SendDone() error {
	return s.send([]byte(relay.DoneSentinel))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.draining() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	req, err := parseChatRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	requestID := uuid.NewString()
	ctx := tracing.WithRequestID(r.Context(), requestID)
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().
		Str("session_id", req.SessionID).
		Int("messages", len(req.Messages)).
		Msg("Stream request accepted")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	model := req.Model
	if model == "" {
		model = "kirin"
	}
	sink := &sseSink{
		ctx:     ctx,
		w:       w,
		flusher: flusher,
		chunkID: relay.NewChunkID(),
		model:   model,
	}

	s.inFlightReqs.Add(1)
	defer s.inFlightReqs.Done()
	s.relay.Handle(ctx, req, sink)
}
