// Package assistant glues the chat webhook to memory, skills, and the model.
// It stays thin: redact, remember, ask, reply. The scheduler does the real
// work later.
package assistant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emonklabs/emonk/internal/llm"
	"github.com/emonklabs/emonk/internal/memory"
	"github.com/emonklabs/emonk/internal/scheduler"
)

const defaultHistoryLimit = 20

const basePrompt = `You are Emonk, a concise personal assistant reachable over chat.
Answer helpfully and briefly.`

// Incoming is one chat message from the webhook.
type Incoming struct {
	ConversationID string `json:"conversation_id"`
	Sender         string `json:"sender"`
	Text           string `json:"text"`
}

// Service handles incoming chat messages.
type Service struct {
	llm          llm.Client
	memory       memory.Store
	jobs         *scheduler.Service
	clock        scheduler.Clock
	logger       *slog.Logger
	historyLimit int
	region       string // phone parsing region for redaction
	timezone     string // default reminder timezone
}

// Config carries the optional knobs of New.
type Config struct {
	HistoryLimit int
	Region       string
	Timezone     string
}

// New creates the assistant service.
func New(model llm.Client, mem memory.Store, jobs *scheduler.Service, clock scheduler.Clock, logger *slog.Logger, cfg Config) *Service {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.Region == "" {
		cfg.Region = "US"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	return &Service{
		llm:          model,
		memory:       mem,
		jobs:         jobs,
		clock:        clock,
		logger:       logger,
		historyLimit: cfg.HistoryLimit,
		region:       cfg.Region,
		timezone:     cfg.Timezone,
	}
}

// HandleMessage processes one chat message and returns the reply text.
// The incoming text is redacted before it is persisted or sent to the model.
func (s *Service) HandleMessage(ctx context.Context, msg Incoming) (string, error) {
	if msg.ConversationID == "" {
		return "", fmt.Errorf("conversation_id is required")
	}
	if msg.Text == "" {
		return "", fmt.Errorf("text is required")
	}

	text := Redact(msg.Text, s.region)
	if err := s.memory.AppendMessage(ctx, &memory.Message{
		ConversationID: msg.ConversationID,
		Role:           memory.RoleUser,
		Text:           text,
	}); err != nil {
		return "", fmt.Errorf("recording message: %w", err)
	}

	history, err := s.memory.RecentMessages(ctx, msg.ConversationID, s.historyLimit)
	if err != nil {
		return "", fmt.Errorf("loading history: %w", err)
	}
	facts, err := s.memory.ListFacts(ctx)
	if err != nil {
		return "", fmt.Errorf("loading facts: %w", err)
	}

	req := llm.Request{
		System:   basePrompt + "\n\n" + skillCatalog + factContext(facts),
		Messages: historyMessages(history),
	}
	modelReply, err := s.llm.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("model completion: %w", err)
	}

	reply := modelReply
	if d, ok := parseDirective(modelReply); ok {
		reply, err = s.runSkill(ctx, msg.ConversationID, d)
		if err != nil {
			s.logger.Warn("skill failed", "skill", d.Skill, "error", err)
			reply = "Sorry, I couldn't do that: " + err.Error()
		}
	}

	if err := s.memory.AppendMessage(ctx, &memory.Message{
		ConversationID: msg.ConversationID,
		Role:           memory.RoleAssistant,
		Text:           reply,
	}); err != nil {
		return "", fmt.Errorf("recording reply: %w", err)
	}
	return reply, nil
}

func historyMessages(history []memory.Message) []llm.Message {
	out := make([]llm.Message, len(history))
	for i, m := range history {
		role := m.Role
		if role != memory.RoleAssistant {
			role = memory.RoleUser
		}
		out[i] = llm.Message{Role: role, Content: m.Text}
	}
	return out
}
