package assistant

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/emonklabs/emonk/internal/llm"
	"github.com/emonklabs/emonk/internal/memory"
	"github.com/emonklabs/emonk/internal/scheduler"
	"github.com/emonklabs/emonk/internal/testutil"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type testService struct {
	svc   *Service
	mem   *memory.MemStore
	model *llm.ScriptClient
	store *scheduler.FileStore
	clock *fixedClock
}

func newTestService(t *testing.T, replies ...string) *testService {
	t.Helper()
	store, err := scheduler.NewFileStore(t.TempDir())
	testutil.NoError(t, err)

	registry := scheduler.NewRegistry()
	registry.Register(scheduler.KindReminderSend,
		func(ctx context.Context, payload json.RawMessage) error { return nil })

	clock := &fixedClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	logger := testutil.DiscardLogger()
	jobs := scheduler.NewService(store, registry, clock, logger, 0)
	mem := memory.NewMemStore()
	model := llm.NewScriptClient(replies...)

	svc := New(model, mem, jobs, clock, logger, Config{
		Region:   "US",
		Timezone: "America/New_York",
	})
	return &testService{svc: svc, mem: mem, model: model, store: store, clock: clock}
}

func TestParseDirective(t *testing.T) {
	d, ok := parseDirective(`{"skill":"remember","key":"a","value":"b"}`)
	testutil.True(t, ok)
	testutil.Equal(t, "remember", d.Skill)

	// Code fences are unwrapped.
	d, ok = parseDirective("```json\n{\"skill\":\"recall\"}\n```")
	testutil.True(t, ok)
	testutil.Equal(t, "recall", d.Skill)

	_, ok = parseDirective("Sure, I can help with that!")
	testutil.False(t, ok)

	_, ok = parseDirective(`{"key":"no-skill"}`)
	testutil.False(t, ok)

	_, ok = parseDirective(`{broken json`)
	testutil.False(t, ok)
}

func TestHandleMessagePlainReply(t *testing.T) {
	ctx := context.Background()
	ts := newTestService(t, "The capital of France is Paris.")

	reply, err := ts.svc.HandleMessage(ctx, Incoming{
		ConversationID: "conv-1",
		Sender:         "max",
		Text:           "what is the capital of France?",
	})
	testutil.NoError(t, err)
	testutil.Equal(t, "The capital of France is Paris.", reply)

	msgs, err := ts.mem.RecentMessages(ctx, "conv-1", 10)
	testutil.NoError(t, err)
	testutil.SliceLen(t, msgs, 2)
	testutil.Equal(t, memory.RoleUser, msgs[0].Role)
	testutil.Equal(t, memory.RoleAssistant, msgs[1].Role)
}

func TestHandleMessageValidation(t *testing.T) {
	ctx := context.Background()
	ts := newTestService(t)

	_, err := ts.svc.HandleMessage(ctx, Incoming{Text: "hi"})
	testutil.ErrorContains(t, err, "conversation_id")

	_, err = ts.svc.HandleMessage(ctx, Incoming{ConversationID: "conv-1"})
	testutil.ErrorContains(t, err, "text")
}

func TestHandleMessageRedactsBeforePersisting(t *testing.T) {
	ctx := context.Background()
	ts := newTestService(t, "Noted.")

	_, err := ts.svc.HandleMessage(ctx, Incoming{
		ConversationID: "conv-1",
		Text:           "my email is max@example.com",
	})
	testutil.NoError(t, err)

	msgs, err := ts.mem.RecentMessages(ctx, "conv-1", 10)
	testutil.NoError(t, err)
	testutil.Equal(t, "my email is [email]", msgs[0].Text)

	// The model saw the redacted text too.
	testutil.SliceLen(t, ts.model.Requests, 1)
	last := ts.model.Requests[0].Messages
	testutil.Equal(t, "my email is [email]", last[len(last)-1].Content)
}

func TestRemindSkillSchedulesJob(t *testing.T) {
	ctx := context.Background()
	ts := newTestService(t, `{"skill":"remind","message":"stand up","in":"45m"}`)

	reply, err := ts.svc.HandleMessage(ctx, Incoming{
		ConversationID: "conv-1",
		Text:           "remind me to stand up in 45 minutes",
	})
	testutil.NoError(t, err)
	testutil.Contains(t, reply, "Reminder set for")

	jobs, err := ts.store.List(ctx, scheduler.ListFilter{Kind: scheduler.KindReminderSend})
	testutil.NoError(t, err)
	testutil.SliceLen(t, jobs, 1)
	testutil.True(t, jobs[0].NextRunAt.Equal(ts.clock.Now().Add(45*time.Minute)))

	var payload scheduler.ReminderPayload
	testutil.NoError(t, json.Unmarshal(jobs[0].Payload, &payload))
	testutil.Equal(t, "conv-1", payload.ConversationID)
	testutil.Equal(t, "stand up", payload.Message)
}

func TestRemindSkillCronUsesServiceTimezone(t *testing.T) {
	ctx := context.Background()
	ts := newTestService(t, `{"skill":"remind","message":"standup","cron":"0 9 * * 1-5"}`)

	reply, err := ts.svc.HandleMessage(ctx, Incoming{
		ConversationID: "conv-1",
		Text:           "remind me about standup every weekday at 9",
	})
	testutil.NoError(t, err)
	testutil.Contains(t, reply, "Recurring reminder set")

	jobs, err := ts.store.List(ctx, scheduler.ListFilter{})
	testutil.NoError(t, err)
	testutil.SliceLen(t, jobs, 1)
	testutil.Equal(t, scheduler.ScheduleCron, jobs[0].Schedule.Kind)
	testutil.Equal(t, "America/New_York", jobs[0].Schedule.Timezone)
}

func TestRemindSkillAtAndEvery(t *testing.T) {
	ctx := context.Background()
	ts := newTestService(t,
		`{"skill":"remind","message":"renew","at":"2026-09-01T09:00:00Z"}`,
		`{"skill":"remind","message":"drink water","every":"2h"}`,
	)

	_, err := ts.svc.HandleMessage(ctx, Incoming{ConversationID: "conv-1", Text: "one"})
	testutil.NoError(t, err)
	_, err = ts.svc.HandleMessage(ctx, Incoming{ConversationID: "conv-1", Text: "two"})
	testutil.NoError(t, err)

	jobs, err := ts.store.List(ctx, scheduler.ListFilter{})
	testutil.NoError(t, err)
	testutil.SliceLen(t, jobs, 2)
}

func TestRemindSkillRejectsAmbiguousTiming(t *testing.T) {
	ctx := context.Background()
	ts := newTestService(t, `{"skill":"remind","message":"x","in":"5m","every":"1h"}`)

	reply, err := ts.svc.HandleMessage(ctx, Incoming{ConversationID: "conv-1", Text: "remind me"})
	testutil.NoError(t, err)
	testutil.Contains(t, reply, "Sorry, I couldn't do that")
	testutil.Contains(t, reply, "exactly one of")

	jobs, err := ts.store.List(ctx, scheduler.ListFilter{})
	testutil.NoError(t, err)
	testutil.SliceLen(t, jobs, 0)
}

func TestRemindSkillRejectsBadTiming(t *testing.T) {
	ctx := context.Background()
	ts := newTestService(t,
		`{"skill":"remind","message":"x","in":"soon"}`,
		`{"skill":"remind","message":"x","at":"tomorrow"}`,
		`{"skill":"remind","in":"5m"}`,
	)

	for _, want := range []string{"invalid delay", "invalid time", "no message"} {
		reply, err := ts.svc.HandleMessage(ctx, Incoming{ConversationID: "conv-1", Text: "remind me"})
		testutil.NoError(t, err)
		testutil.Contains(t, reply, want)
	}
}

func TestRememberAndRecallSkills(t *testing.T) {
	ctx := context.Background()
	ts := newTestService(t,
		`{"skill":"remember","key":"favorite tea","value":"sencha"}`,
		`{"skill":"recall"}`,
	)

	reply, err := ts.svc.HandleMessage(ctx, Incoming{ConversationID: "conv-1", Text: "remember my tea"})
	testutil.NoError(t, err)
	testutil.Contains(t, reply, "favorite tea")

	fact, err := ts.mem.GetFact(ctx, "favorite tea")
	testutil.NoError(t, err)
	testutil.Equal(t, "sencha", fact.Value)

	reply, err = ts.svc.HandleMessage(ctx, Incoming{ConversationID: "conv-1", Text: "what do you remember?"})
	testutil.NoError(t, err)
	testutil.Contains(t, reply, "favorite tea: sencha")
}

func TestRecallSkillEmpty(t *testing.T) {
	ctx := context.Background()
	ts := newTestService(t, `{"skill":"recall"}`)

	reply, err := ts.svc.HandleMessage(ctx, Incoming{ConversationID: "conv-1", Text: "recall"})
	testutil.NoError(t, err)
	testutil.Contains(t, reply, "anything remembered")
}

func TestUnknownSkill(t *testing.T) {
	ctx := context.Background()
	ts := newTestService(t, `{"skill":"teleport"}`)

	reply, err := ts.svc.HandleMessage(ctx, Incoming{ConversationID: "conv-1", Text: "beam me up"})
	testutil.NoError(t, err)
	testutil.Contains(t, reply, "unknown skill")
}

func TestFactsReachSystemPrompt(t *testing.T) {
	ctx := context.Background()
	ts := newTestService(t, "ok")
	testutil.NoError(t, ts.mem.UpsertFact(ctx, "name", "Ada"))

	_, err := ts.svc.HandleMessage(ctx, Incoming{ConversationID: "conv-1", Text: "hi"})
	testutil.NoError(t, err)

	testutil.SliceLen(t, ts.model.Requests, 1)
	testutil.Contains(t, ts.model.Requests[0].System, "name: Ada")
}
