// Package memory persists Emonk's conversation history and fact memory so
// stateless server instances share what the assistant knows.
package memory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a fact key has no entry.
var ErrNotFound = errors.New("fact not found")

// Roles for conversation messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one redacted chat message in a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Fact is one remembered key/value pair.
type Fact struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is the conversation + fact memory contract. The in-memory
// implementation backs development and tests; PostgreSQL backs production.
type Store interface {
	AppendMessage(ctx context.Context, msg *Message) error

	// RecentMessages returns the newest messages of a conversation in
	// chronological order, up to limit.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)

	// MessagesBefore returns messages created before cutoff, oldest first.
	MessagesBefore(ctx context.Context, cutoff time.Time, limit int) ([]Message, error)

	// DeleteMessagesBefore removes messages created before cutoff and returns
	// how many were deleted.
	DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	UpsertFact(ctx context.Context, key, value string) error
	GetFact(ctx context.Context, key string) (*Fact, error)
	ListFacts(ctx context.Context) ([]Fact, error)
	DeleteFact(ctx context.Context, key string) error

	Ping(ctx context.Context) error
}
