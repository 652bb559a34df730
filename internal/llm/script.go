package llm

import (
	"context"
	"sync"
)

// ScriptClient replays canned replies in order, then repeats the last one.
// It backs development without an API key, and tests.
type ScriptClient struct {
	mu       sync.Mutex
	replies  []string
	next     int
	Requests []Request
}

// NewScriptClient creates a ScriptClient. With no replies it always answers
// a fixed placeholder.
func NewScriptClient(replies ...string) *ScriptClient {
	if len(replies) == 0 {
		replies = []string{"(no model configured)"}
	}
	return &ScriptClient{replies: replies}
}

func (c *ScriptClient) Complete(ctx context.Context, req Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Requests = append(c.Requests, req)
	reply := c.replies[c.next]
	if c.next < len(c.replies)-1 {
		c.next++
	}
	return reply, nil
}
