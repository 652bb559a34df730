package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/emonklabs/emonk/internal/llm"
	"github.com/emonklabs/emonk/internal/testutil"
)

func TestNewOpenAIClientRequiresModel(t *testing.T) {
	_, err := llm.NewOpenAIClient("", "sk-test", "")
	testutil.ErrorContains(t, err, "model is required")
}

func TestOpenAIClientComplete(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "Hello!"}},
			},
		})
	}))
	defer srv.Close()

	c, err := llm.NewOpenAIClient("gpt-4o-mini", "sk-test", srv.URL)
	testutil.NoError(t, err)
	testutil.Equal(t, "gpt-4o-mini", c.Model())

	got, err := c.Complete(context.Background(), llm.Request{
		System:    "be brief",
		Messages:  []llm.Message{{Role: "user", Content: "hi"}},
		MaxTokens: 100,
	})
	testutil.NoError(t, err)
	testutil.Equal(t, "Hello!", got)

	testutil.Equal(t, "/chat/completions", gotPath)
	testutil.Equal(t, "Bearer sk-test", gotAuth)
	testutil.Equal(t, "gpt-4o-mini", gotBody["model"].(string))
	testutil.Equal(t, float64(100), gotBody["max_tokens"].(float64))

	// The system prompt rides as the first message.
	messages := gotBody["messages"].([]any)
	testutil.SliceLen(t, messages, 2)
	first := messages[0].(map[string]any)
	testutil.Equal(t, "system", first["role"].(string))
	testutil.Equal(t, "be brief", first["content"].(string))
}

func TestOpenAIClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := llm.NewOpenAIClient("gpt-4o-mini", "bad-key", srv.URL)
	testutil.NoError(t, err)

	_, err = c.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	testutil.ErrorContains(t, err, "401")
}

func TestOpenAIClientNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c, err := llm.NewOpenAIClient("gpt-4o-mini", "sk-test", srv.URL)
	testutil.NoError(t, err)

	_, err = c.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	testutil.ErrorContains(t, err, "no choices")
}
