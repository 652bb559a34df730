package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/emonklabs/emonk/internal/memory"
	"github.com/emonklabs/emonk/internal/scheduler"
)

// Directive is the JSON action the model emits when a message should invoke
// a skill instead of a plain reply. Exactly one skill per message.
type Directive struct {
	Skill string `json:"skill"`

	// remind
	Message  string `json:"message,omitempty"`
	In       string `json:"in,omitempty"`    // Go duration, one-shot
	At       string `json:"at,omitempty"`    // RFC 3339, one-shot
	Every    string `json:"every,omitempty"` // Go duration, recurring
	Cron     string `json:"cron,omitempty"`  // five-field expression, recurring
	Timezone string `json:"timezone,omitempty"`
	Channel  string `json:"channel,omitempty"`
	To       string `json:"to,omitempty"`

	// remember
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
}

// skillCatalog is injected into the system prompt so the model knows the
// directive format.
const skillCatalog = `You can invoke exactly one skill by replying with ONLY a JSON object, no other text:
- Schedule a reminder: {"skill":"remind","message":"...","in":"45m"} or {"skill":"remind","message":"...","at":"2026-01-02T15:04:05Z"} or recurring {"skill":"remind","message":"...","cron":"0 9 * * *","timezone":"America/New_York"} or {"skill":"remind","message":"...","every":"24h"}. Optional "channel" ("chat", "email", "sms") and "to" for email/sms.
- Store a fact: {"skill":"remember","key":"...","value":"..."}
- List stored facts: {"skill":"recall"}
For anything else, reply with plain text.`

// parseDirective extracts a Directive from a model reply. Replies wrapped in
// code fences are unwrapped first.
func parseDirective(reply string) (*Directive, bool) {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var d Directive
	if err := json.Unmarshal([]byte(s), &d); err != nil || d.Skill == "" {
		return nil, false
	}
	return &d, true
}

// runSkill executes a directive and returns the user-facing confirmation.
func (s *Service) runSkill(ctx context.Context, conversationID string, d *Directive) (string, error) {
	switch d.Skill {
	case "remind":
		return s.skillRemind(ctx, conversationID, d)
	case "remember":
		return s.skillRemember(ctx, d)
	case "recall":
		return s.skillRecall(ctx)
	default:
		return "", fmt.Errorf("unknown skill %q", d.Skill)
	}
}

func (s *Service) skillRemind(ctx context.Context, conversationID string, d *Directive) (string, error) {
	if d.Message == "" {
		return "", fmt.Errorf("reminder has no message")
	}
	sched, err := s.directiveSchedule(d)
	if err != nil {
		return "", err
	}

	payload := scheduler.ReminderPayload{
		Channel:        d.Channel,
		ConversationID: conversationID,
		To:             d.To,
		Message:        d.Message,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding reminder payload: %w", err)
	}
	job, err := s.jobs.Schedule(ctx, scheduler.KindReminderSend, raw, sched, scheduler.ScheduleOpts{})
	if err != nil {
		return "", fmt.Errorf("scheduling reminder: %w", err)
	}
	if sched.Recurring() {
		return fmt.Sprintf("Recurring reminder set. Next: %s (job %s).",
			job.NextRunAt.Format(time.RFC1123), job.ID), nil
	}
	return fmt.Sprintf("Reminder set for %s (job %s).",
		job.NextRunAt.Format(time.RFC1123), job.ID), nil
}

// directiveSchedule maps the directive's timing fields to a Schedule. Exactly
// one of in/at/every/cron must be set.
func (s *Service) directiveSchedule(d *Directive) (scheduler.Schedule, error) {
	set := 0
	for _, v := range []string{d.In, d.At, d.Every, d.Cron} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return scheduler.Schedule{}, fmt.Errorf("reminder needs exactly one of in/at/every/cron")
	}

	switch {
	case d.In != "":
		dur, err := time.ParseDuration(d.In)
		if err != nil || dur <= 0 {
			return scheduler.Schedule{}, fmt.Errorf("invalid delay %q", d.In)
		}
		return scheduler.At(s.clock.Now().Add(dur)), nil
	case d.At != "":
		at, err := time.Parse(time.RFC3339, d.At)
		if err != nil {
			return scheduler.Schedule{}, fmt.Errorf("invalid time %q", d.At)
		}
		return scheduler.At(at), nil
	case d.Every != "":
		dur, err := time.ParseDuration(d.Every)
		if err != nil || dur <= 0 {
			return scheduler.Schedule{}, fmt.Errorf("invalid interval %q", d.Every)
		}
		return scheduler.Every(dur), nil
	default:
		tz := d.Timezone
		if tz == "" {
			tz = s.timezone
		}
		return scheduler.Cron(d.Cron, tz), nil
	}
}

func (s *Service) skillRemember(ctx context.Context, d *Directive) (string, error) {
	if d.Key == "" || d.Value == "" {
		return "", fmt.Errorf("remember needs key and value")
	}
	if err := s.memory.UpsertFact(ctx, d.Key, d.Value); err != nil {
		return "", fmt.Errorf("storing fact: %w", err)
	}
	return fmt.Sprintf("Got it, I'll remember that %s is %s.", d.Key, d.Value), nil
}

func (s *Service) skillRecall(ctx context.Context) (string, error) {
	facts, err := s.memory.ListFacts(ctx)
	if err != nil {
		return "", fmt.Errorf("listing facts: %w", err)
	}
	if len(facts) == 0 {
		return "I don't have anything remembered yet.", nil
	}
	var b strings.Builder
	b.WriteString("Here's what I remember:\n")
	for _, f := range facts {
		fmt.Fprintf(&b, "- %s: %s\n", f.Key, f.Value)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// factContext renders stored facts for the system prompt.
func factContext(facts []memory.Fact) string {
	if len(facts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nKnown facts about the user:\n")
	for _, f := range facts {
		fmt.Fprintf(&b, "- %s: %s\n", f.Key, f.Value)
	}
	return b.String()
}
