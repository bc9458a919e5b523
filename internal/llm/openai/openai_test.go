package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentbot/internal/domain"
)

const keyEnv = "RENTBOT_TEST_OPENAI_KEY"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv(keyEnv, "test-key")
	c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: keyEnv, Model: "test-model", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

var prompt = domain.Prompt{
	Instruction: "Answer using only the given context.",
	Context:     "The monthly rent is 7500 dollars.",
	Question:    "What is the rent?",
}

func TestNewClient_MissingKey(t *testing.T) {
	t.Setenv(keyEnv, "")
	_, err := NewClient(Config{APIKeyEnv: keyEnv})
	assert.ErrorContains(t, err, keyEnv)
}

func TestComplete(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"The rent is 7500 dollars."},"finish_reason":"stop"}]}`))
	})

	answer, err := c.Complete(context.Background(), prompt, 256)
	require.NoError(t, err)
	assert.Equal(t, "The rent is 7500 dollars.", answer)

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 256, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, prompt.Instruction, got.Messages[0].Content)
	assert.Contains(t, got.Messages[1].Content, prompt.Context)
	assert.Contains(t, got.Messages[1].Content, "Question: What is the rent?")
}

func TestComplete_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`))
	})

	_, err := c.Complete(context.Background(), prompt, 64)
	require.ErrorIs(t, err, domain.ErrGeneration)
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestComplete_NoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[]}`))
	})

	_, err := c.Complete(context.Background(), prompt, 64)
	assert.ErrorIs(t, err, domain.ErrGeneration)
}

func TestComplete_Cancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	answer, err := c.Complete(ctx, prompt, 64)
	assert.Empty(t, answer)
	assert.ErrorIs(t, err, domain.ErrGeneration)
}
