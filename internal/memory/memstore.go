package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-process Store for development and tests.
type MemStore struct {
	mu       sync.Mutex
	messages []Message
	facts    map[string]Fact
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{facts: map[string]Fact{}}
}

func (s *MemStore) AppendMessage(ctx context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := *msg
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.messages = append(s.messages, m)
	msg.ID = m.ID
	msg.CreatedAt = m.CreatedAt
	return nil
}

func (s *MemStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Message
	for i := range s.messages {
		if s.messages[i].ConversationID == conversationID {
			out = append(out, s.messages[i])
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MemStore) MessagesBefore(ctx context.Context, cutoff time.Time, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Message
	for i := range s.messages {
		if s.messages[i].CreatedAt.Before(cutoff) {
			out = append(out, s.messages[i])
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.messages[:0]
	var deleted int64
	for i := range s.messages {
		if s.messages[i].CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, s.messages[i])
	}
	s.messages = kept
	return deleted, nil
}

func (s *MemStore) UpsertFact(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	f, ok := s.facts[key]
	if !ok {
		f = Fact{Key: key, CreatedAt: now}
	}
	f.Value = value
	f.UpdatedAt = now
	s.facts[key] = f
	return nil
}

func (s *MemStore) GetFact(ctx context.Context, key string) (*Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.facts[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := f
	return &out, nil
}

func (s *MemStore) ListFacts(ctx context.Context) ([]Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Fact, 0, len(s.facts))
	for _, f := range s.facts {
		out = append(out, f)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Key < out[b].Key })
	return out, nil
}

func (s *MemStore) DeleteFact(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.facts[key]; !ok {
		return ErrNotFound
	}
	delete(s.facts, key)
	return nil
}

func (s *MemStore) Ping(ctx context.Context) error {
	return nil
}
