package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nadira/kirin/pkg/chat"
	"github.com/nadira/kirin/pkg/relay"
)

// SessionHeader carries the session identifier; it wins over the body
// field when both are present.
const SessionHeader = "X-Session-ID"

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	SessionID   string        `json:"session_id,omitempty"`
	Model       string        `json:"model,omitempty"`
	Progressive *bool         `json:"progressive,omitempty"`
	Messages    []wireMessage `json:"messages"`
}

func parseChatRequest(r *http.Request) (relay.Request, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return relay.Request{}, fmt.Errorf("read request body: %w", err)
	}

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return relay.Request{}, fmt.Errorf("parse request body: %w", err)
	}
	if len(req.Messages) == 0 {
		return relay.Request{}, fmt.Errorf("messages are required")
	}

	sessionID := req.SessionID
	if header := r.Header.Get(SessionHeader); header != "" {
		sessionID = header
	}

	messages := make([]chat.Message, 0, len(req.Messages))
	for i, m := range req.Messages {
		role, ok := chat.ParseRole(m.Role)
		if !ok {
			return relay.Request{}, fmt.Errorf("message %d: unknown role %q", i, m.Role)
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
