package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the production Store backed by the emonk_messages and
// emonk_facts tables.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a PGStore on the given pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) AppendMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO emonk_messages (id, conversation_id, role, text, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Text, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *PGStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, text, created_at
		 FROM (
			SELECT id, conversation_id, role, text, created_at
			FROM emonk_messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		 ) recent
		 ORDER BY created_at ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *PGStore) MessagesBefore(ctx context.Context, cutoff time.Time, limit int) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, text, created_at
		 FROM emonk_messages
		 WHERE created_at < $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("messages before %s: %w", cutoff, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *PGStore) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM emonk_messages WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete messages before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) UpsertFact(ctx context.Context, key, value string) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO emonk_facts (key, value, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value, now,
	)
	if err != nil {
		return fmt.Errorf("upsert fact %q: %w", key, err)
	}
	return nil
}

func (s *PGStore) GetFact(ctx context.Context, key string) (*Fact, error) {
	var f Fact
	err := s.pool.QueryRow(ctx,
		`SELECT key, value, created_at, updated_at FROM emonk_facts WHERE key = $1`,
		key,
	).Scan(&f.Key, &f.Value, &f.CreatedAt, &f.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get fact %q: %w", key, err)
	}
	return &f, nil
}

func (s *PGStore) ListFacts(ctx context.Context) ([]Fact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, value, created_at, updated_at FROM emonk_facts ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()

	facts := []Fact{}
	for rows.Next() {
		var f Fact
		if err := rows.Scan(&f.Key, &f.Value, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func (s *PGStore) DeleteFact(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM emonk_facts WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete fact %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanMessages(rows pgx.Rows) ([]Message, error) {
	msgs := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
