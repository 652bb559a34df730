// Package llm is Emonk's model client. The assistant treats the model as a
// remote text-in/text-out service behind the Client interface; everything
// provider-specific lives here.
package llm

import "context"

// Message is one turn of a conversation sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion request.
type Request struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Client produces a completion for a conversation.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}
