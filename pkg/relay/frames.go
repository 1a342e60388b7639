package relay

import (
	"encoding/json"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// DoneSentinel is the literal terminal frame payload.
const DoneSentinel = "[DONE]"

// NewChunkID returns the wire-visible ID shared by all delta frames of a turn.
func NewChunkID() string {
	return "chatcmpl-" + gonanoid.Must(24)
}

type contentFrame struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []frameChoice `json:"choices"`
}

type frameChoice struct {
	Index        int        `json:"index"`
	Delta        frameDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type frameDelta struct {
	Content string `json:"content,omitempty"`
}

type errorFrame struct {
	Error string `json:"error"`
}

// EncodeContentFrame builds one chunk-shaped delta frame.
func EncodeContentFrame(requestID, model, content string) []byte {
	frame := contentFrame{
		ID:      requestID,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []frameChoice{{Delta: frameDelta{Content: content}}},
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return nil
	}
	return payload
}

// EncodeErrorFrame builds the terminal error frame.
func EncodeErrorFrame(message string) []byte {
	payload, err := json.Marshal(errorFrame{Error: message})
	if err != nil {
		return []byte(`{"error":"internal error"}`)
	}
	return payload
}
