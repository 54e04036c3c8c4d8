package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a chat completion request.
type Request struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int
	// JSONObject forces the model to answer with a single JSON object.
	JSONObject bool
}

// Client is the language-model boundary: text in, text (or JSON text) out.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}
