package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpt-queue/internal/domain/ports/adapter"
	ai "gpt-queue/internal/infra/adapters/ai"
)

func TestOpenAIProvider_Generate(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Mix flour and cocoa."}}]
}`)
	}))
	defer srv.Close()

	p, err := ai.NewOpenAIProvider("sk-test", srv.URL, "gpt-4o-mini", 0.4, 5*time.Second)
	require.NoError(t, err)

	out, err := p.Generate(context.Background(), "cake recipe", 321)
	require.NoError(t, err)
	assert.Equal(t, "Mix flour and cocoa.", out)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.EqualValues(t, 321, got["max_tokens"])
	assert.EqualValues(t, 0.4, got["temperature"])
	msgs, _ := got["messages"].([]any)
	require.Len(t, msgs, 1)
	first, _ := msgs[0].(map[string]any)
	assert.Equal(t, "user", first["role"])
	assert.Equal(t, "cake recipe", first["content"])
}

func TestOpenAIProvider_APIErrorIsProviderError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error": {"message": "maximum context length exceeded", "type": "invalid_request_error", "param": null, "code": null}}`)
	}))
	defer srv.Close()

	p, err := ai.NewOpenAIProvider("sk-test", srv.URL, "", 0.4, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", p.Model())

	_, err = p.Generate(context.Background(), "x", 10)
	var pe *adapter.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "maximum context length exceeded", pe.Message)
	assert.Equal(t, "GPT Error: maximum context length exceeded", adapter.Completion{Err: err}.Output())
}

func TestOpenAIProvider_TransportErrorIsRestError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p, err := ai.NewOpenAIProvider("sk-test", url, "gpt-4o-mini", 0.4, time.Second)
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), "x", 10)
	require.Error(t, err)
	var pe *adapter.ProviderError
	assert.False(t, errors.As(err, &pe))
}

func TestOpenAIProvider_RequiresKey(t *testing.T) {
	t.Parallel()
	_, err := ai.NewOpenAIProvider("", "", "", 0.4, time.Second)
	assert.Error(t, err)
}
