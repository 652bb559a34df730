package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/emonklabs/emonk/internal/memory"
)

// Narrow delivery seams for the built-in handlers. The server wires real
// implementations; tests wire recorders.
type (
	// ChatPoster delivers an assistant message into a chat conversation.
	ChatPoster interface {
		Post(ctx context.Context, conversationID, text string) error
	}
	// MailSender delivers a reminder by email.
	MailSender interface {
		Send(ctx context.Context, to, subject, body string) error
	}
	// SMSSender delivers a reminder by SMS.
	SMSSender interface {
		SendSMS(ctx context.Context, to, body string) (string, error)
	}
	// Archiver stores a pruned-history snapshot in object storage.
	Archiver interface {
		Upload(ctx context.Context, key string, body []byte, contentType string) error
	}
)

// BuiltinDeps carries the collaborators of the built-in handlers. Nil fields
// disable the corresponding delivery channel; a job that needs a disabled
// channel fails with a normal handler error.
type BuiltinDeps struct {
	Memory   memory.Store
	Chat     ChatPoster
	Mail     MailSender
	SMS      SMSSender
	Archiver Archiver
	Clock    Clock
	Logger   *slog.Logger

	// Timeout overrides the default execution timeout for the quick built-in
	// kinds. The archive kind keeps its own longer budget.
	Timeout time.Duration
}

// Built-in kind names.
const (
	KindNoop          = "noop"
	KindReminderSend  = "reminder.send"
	KindMemoryPrune   = "memory.prune"
	KindMemoryArchive = "memory.archive"
)

const (
	defaultRetentionHours = 720 // 30 days
	archiveBatchLimit     = 1000
)

// RegisterBuiltinHandlers registers Emonk's standard job kinds. Called once
// at process start, before the first tick can arrive.
func RegisterBuiltinHandlers(reg *Registry, deps BuiltinDeps) {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = DefaultHandlerTimeout
	}

	reg.RegisterWithTimeout(KindNoop, timeout, func(ctx context.Context, payload json.RawMessage) error {
		return nil
	})
	reg.RegisterWithTimeout(KindReminderSend, timeout, reminderSendHandler(deps))
	reg.RegisterWithTimeout(KindMemoryPrune, timeout, memoryPruneHandler(deps))
	reg.RegisterWithTimeout(KindMemoryArchive, 5*time.Minute, memoryArchiveHandler(deps))
}

// ReminderPayload is the payload of a reminder.send job.
type ReminderPayload struct {
	Channel        string `json:"channel"` // "chat", "email", or "sms"
	ConversationID string `json:"conversationId,omitempty"`
	To             string `json:"to,omitempty"`
	Subject        string `json:"subject,omitempty"`
	Message        string `json:"message"`
}

func reminderSendHandler(deps BuiltinDeps) Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var p ReminderPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("invalid reminder payload: %w", err)
		}
		if p.Message == "" {
			return fmt.Errorf("reminder has no message")
		}

		switch p.Channel {
		case "", "chat":
			if deps.Chat == nil {
				return fmt.Errorf("chat delivery is not configured")
			}
			if p.ConversationID == "" {
				return fmt.Errorf("chat reminder has no conversationId")
			}
			return deps.Chat.Post(ctx, p.ConversationID, "Reminder: "+p.Message)
		case "email":
			if deps.Mail == nil {
				return fmt.Errorf("email delivery is not configured")
			}
			if p.To == "" {
				return fmt.Errorf("email reminder has no recipient")
			}
			subject := p.Subject
			if subject == "" {
				subject = "Reminder"
			}
			return deps.Mail.Send(ctx, p.To, subject, p.Message)
		case "sms":
			if deps.SMS == nil {
				return fmt.Errorf("sms delivery is not configured")
			}
			if p.To == "" {
				return fmt.Errorf("sms reminder has no recipient")
			}
			_, err := deps.SMS.SendSMS(ctx, p.To, p.Message)
			return err
		default:
			return fmt.Errorf("unknown reminder channel %q", p.Channel)
		}
	}
}

// RetentionPayload is the payload of memory.prune and memory.archive jobs.
type RetentionPayload struct {
	RetentionHours int    `json:"retentionHours,omitempty"`
	Prefix         string `json:"prefix,omitempty"` // archive only
}

func (p RetentionPayload) cutoff(now time.Time) time.Time {
	hours := p.RetentionHours
	if hours <= 0 {
		hours = defaultRetentionHours
	}
	return now.Add(-time.Duration(hours) * time.Hour)
}

func memoryPruneHandler(deps BuiltinDeps) Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		if deps.Memory == nil {
			return fmt.Errorf("memory store is not configured")
		}
		var p RetentionPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("invalid prune payload: %w", err)
		}
		cutoff := p.cutoff(deps.Clock.Now())
		deleted, err := deps.Memory.DeleteMessagesBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("pruning messages: %w", err)
		}
		deps.Logger.Info("memory pruned", "cutoff", cutoff, "deleted", deleted)
		return nil
	}
}

// memoryArchiveHandler uploads expired messages as a JSON snapshot, then
// deletes them. If the upload fails nothing is deleted and the job retries.
func memoryArchiveHandler(deps BuiltinDeps) Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		if deps.Memory == nil {
			return fmt.Errorf("memory store is not configured")
		}
		if deps.Archiver == nil {
			return fmt.Errorf("archive storage is not configured")
		}
		var p RetentionPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("invalid archive payload: %w", err)
		}
		now := deps.Clock.Now()
		cutoff := p.cutoff(now)

		msgs, err := deps.Memory.MessagesBefore(ctx, cutoff, archiveBatchLimit)
		if err != nil {
			return fmt.Errorf("loading expired messages: %w", err)
		}
		if len(msgs) == 0 {
			return nil
		}

		body, err := json.MarshalIndent(msgs, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding archive: %w", err)
		}
		prefix := p.Prefix
		if prefix == "" {
			prefix = "conversations"
		}
		key := fmt.Sprintf("%s/%s.json", prefix, now.UTC().Format("2006-01-02T15-04-05Z"))
		if err := deps.Archiver.Upload(ctx, key, body, "application/json"); err != nil {
			return fmt.Errorf("uploading archive: %w", err)
		}

		deleted, err := deps.Memory.DeleteMessagesBefore(ctx, msgs[len(msgs)-1].CreatedAt.Add(time.Millisecond))
		if err != nil {
			return fmt.Errorf("deleting archived messages: %w", err)
		}
		deps.Logger.Info("memory archived", "key", key, "messages", len(msgs), "deleted", deleted)
		return nil
	}
}
