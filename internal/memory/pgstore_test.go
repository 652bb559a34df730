//go:build integration

package memory_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/emonklabs/emonk/internal/memory"
	"github.com/emonklabs/emonk/internal/migrations"
	"github.com/emonklabs/emonk/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

func newPGStore(t *testing.T) *memory.PGStore {
	t.Helper()
	url := os.Getenv("EMONK_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("EMONK_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	testutil.NoError(t, err)
	t.Cleanup(pool.Close)

	runner := migrations.NewRunner(pool, testutil.DiscardLogger())
	testutil.NoError(t, runner.Bootstrap(ctx))
	_, err = runner.Run(ctx)
	testutil.NoError(t, err)

	_, err = pool.Exec(ctx, "TRUNCATE emonk_messages, emonk_facts")
	testutil.NoError(t, err)

	return memory.NewPGStore(pool)
}

func TestPGStoreMessages(t *testing.T) {
	ctx := context.Background()
	store := newPGStore(t)
	base := time.Now().UTC().Truncate(time.Microsecond).Add(-time.Hour)

	for i := 0; i < 5; i++ {
		err := store.AppendMessage(ctx, &memory.Message{
			ConversationID: "conv-1",
			Role:           memory.RoleUser,
			Text:           fmt.Sprintf("message %d", i),
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		})
		testutil.NoError(t, err)
	}

	// Last N, chronological.
	msgs, err := store.RecentMessages(ctx, "conv-1", 3)
	testutil.NoError(t, err)
	testutil.SliceLen(t, msgs, 3)
	testutil.Equal(t, "message 2", msgs[0].Text)
	testutil.Equal(t, "message 4", msgs[2].Text)

	// Oldest first up to the cutoff.
	old, err := store.MessagesBefore(ctx, base.Add(2*time.Minute), 10)
	testutil.NoError(t, err)
	testutil.SliceLen(t, old, 2)
	testutil.Equal(t, "message 0", old[0].Text)

	deleted, err := store.DeleteMessagesBefore(ctx, base.Add(2*time.Minute))
	testutil.NoError(t, err)
	testutil.Equal(t, int64(2), deleted)

	remaining, err := store.RecentMessages(ctx, "conv-1", 10)
	testutil.NoError(t, err)
	testutil.SliceLen(t, remaining, 3)
}

func TestPGStoreFacts(t *testing.T) {
	ctx := context.Background()
	store := newPGStore(t)

	testutil.NoError(t, store.UpsertFact(ctx, "timezone", "Europe/Berlin"))
	testutil.NoError(t, store.UpsertFact(ctx, "name", "Ada"))
	testutil.NoError(t, store.UpsertFact(ctx, "timezone", "America/Chicago"))

	fact, err := store.GetFact(ctx, "timezone")
	testutil.NoError(t, err)
	testutil.Equal(t, "America/Chicago", fact.Value)

	facts, err := store.ListFacts(ctx)
	testutil.NoError(t, err)
	testutil.SliceLen(t, facts, 2)
	testutil.Equal(t, "name", facts[0].Key)

	testutil.NoError(t, store.DeleteFact(ctx, "name"))
	_, err = store.GetFact(ctx, "name")
	testutil.True(t, errors.Is(err, memory.ErrNotFound))

	testutil.NoError(t, store.Ping(ctx))
}
