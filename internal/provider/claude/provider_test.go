package claude

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ollama-proxy/internal/config"
	"ollama-proxy/internal/errmap"
	"ollama-proxy/internal/models"
)

const testKey = "sk-ant-test-key"

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

type noticeRecorder struct {
	mu      sync.Mutex
	notices []errmap.Notice
}

func (r *noticeRecorder) Report(_ context.Context, n errmap.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *noticeRecorder) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Title)
	}
	return out
}

func newTestProvider(t *testing.T, baseURL, key string, client *http.Client) (*Provider, *noticeRecorder) {
	t.Helper()
	if client == nil {
		client = http.DefaultClient
	}
	rec := &noticeRecorder{}
	p, err := New("claude", config.UpstreamConfig{
		APIKey:     key,
		BaseURL:    baseURL,
		APIVersion: "2023-06-01",
		Headers:    config.Headers{"Anthropic-Beta": "test-beta"},
	}, client, WithReporter(rec), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return p, rec
}

func defaultOptions() models.ChatOptions {
	return models.ChatOptions{Model: "claude-3-5-sonnet-20241022", Temperature: 0.7, TopP: 0.9, MaxTokens: 4096}
}

func TestNewRejectsBadArguments(t *testing.T) {
	_, err := New("claude", config.UpstreamConfig{BaseURL: "https://api.anthropic.com"}, nil)
	assert.Error(t, err)

	_, err = New("claude", config.UpstreamConfig{BaseURL: "  "}, http.DefaultClient)
	assert.Error(t, err)
}

func TestChatSuccess(t *testing.T) {
	var captured messagePayload
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"model":"claude-3-5-sonnet-20241022","content":[{"type":"text","text":"Hi there"}],"usage":{"input_tokens":10,"output_tokens":3},"stop_reason":"end_turn"}`)
	}))
	defer srv.Close()

	p, _ := newTestProvider(t, srv.URL, testKey, srv.Client())
	resp, err := p.Chat(context.Background(), []models.Message{
		{Role: models.RoleSystem, Content: "Be brief"},
		{Role: models.RoleUser, Content: "Hello"},
	}, defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "Hi there", resp.Content)
	assert.Equal(t, "claude-3-5-sonnet-20241022", resp.Model)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.True(t, resp.Done)
	require.NotNil(t, resp.PromptTokens)
	require.NotNil(t, resp.CompletionTokens)
	assert.Equal(t, 10, *resp.PromptTokens)
	assert.Equal(t, 3, *resp.CompletionTokens)
	assert.Equal(t, fixedNow, resp.CreatedAt)

	assert.Equal(t, testKey, headers.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", headers.Get("anthropic-version"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, "test-beta", headers.Get("Anthropic-Beta"))

	assert.Equal(t, "Be brief", captured.System)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, message{Role: "user", Content: "Hello"}, captured.Messages[0])
	assert.Equal(t, 4096, captured.MaxTokens)
	assert.False(t, captured.Stream)
}

func TestChatNullTokensPassThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"ok"}]}`)
	}))
	defer srv.Close()

	p, _ := newTestProvider(t, srv.URL, testKey, srv.Client())
	resp, err := p.Chat(context.Background(), []models.Message{{Role: models.RoleUser, Content: "x"}}, defaultOptions())
	require.NoError(t, err)

	assert.Nil(t, resp.PromptTokens)
	assert.Nil(t, resp.CompletionTokens)
	assert.Equal(t, "unknown", resp.Model)
}

func TestChatStatusErrors(t *testing.T) {
	tests := []struct {
		status  int
		body    string
		message string
		title   string
	}{
		{http.StatusUnauthorized, `{"error":"bad key"}`, "Authentication failed: Invalid API key", "Authentication failed"},
		{http.StatusTooManyRequests, "slow down", "Rate limit exceeded: slow down", "Rate limit exceeded"},
		{http.StatusServiceUnavailable, "overloaded", "Service unavailable: overloaded", "Claude service unavailable"},
		{http.StatusTeapot, "what", "Unexpected status 418: what", "Unexpected response from Claude API"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			p, rec := newTestProvider(t, srv.URL, testKey, srv.Client())
			_, err := p.Chat(context.Background(), []models.Message{{Role: models.RoleUser, Content: "x"}}, defaultOptions())
			require.Error(t, err)

			llmErr, ok := models.AsLLMError(err)
			require.True(t, ok)
			assert.Equal(t, models.KindAPI, llmErr.Kind)
			assert.Equal(t, tt.message, llmErr.Message)
			assert.Equal(t, tt.status, llmErr.Status)
			assert.Equal(t, int32(1), hits.Load(), "failed requests are not retried")
			assert.Equal(t, []string{tt.title}, rec.titles())
		})
	}
}

func TestChatMissingContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"model":"m","content":[]}`)
	}))
	defer srv.Close()

	p, rec := newTestProvider(t, srv.URL, testKey, srv.Client())
	_, err := p.Chat(context.Background(), []models.Message{{Role: models.RoleUser, Content: "x"}}, defaultOptions())

	require.ErrorIs(t, err, models.ErrParse)
	assert.Contains(t, err.Error(), "Missing content in response")
	assert.Equal(t, []string{"Invalid response format"}, rec.titles())
}

func TestChatInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	}))
	defer srv.Close()

	p, _ := newTestProvider(t, srv.URL, testKey, srv.Client())
	_, err := p.Chat(context.Background(), []models.Message{{Role: models.RoleUser, Content: "x"}}, defaultOptions())

	require.ErrorIs(t, err, models.ErrParse)
	assert.Contains(t, err.Error(), "Failed to parse response")
}

func TestChatCredentialValidation(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		message string
	}{
		{"missing", "", "API key is required"},
		{"blank", "   ", "API key is required"},
		{"wrong prefix", "sk-openai-123", "Invalid API key format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				hits.Add(1)
			}))
			defer srv.Close()

			p, rec := newTestProvider(t, srv.URL, tt.key, srv.Client())
			_, err := p.Chat(context.Background(), []models.Message{{Role: models.RoleUser, Content: "x"}}, defaultOptions())

			require.ErrorIs(t, err, models.ErrAPI)
			assert.Contains(t, err.Error(), tt.message)
			assert.Zero(t, hits.Load())
			assert.Len(t, rec.titles(), 1)

			for _, streamErr := range collectErrors(p.ChatStream(context.Background(), nil, defaultOptions())) {
				assert.Contains(t, streamErr.Error(), tt.message)
			}
			assert.Zero(t, hits.Load())
		})
	}
}

func TestChatConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p, rec := newTestProvider(t, url, testKey, nil)
	_, err := p.Chat(context.Background(), []models.Message{{Role: models.RoleUser, Content: "x"}}, defaultOptions())

	require.ErrorIs(t, err, models.ErrAPI)
	assert.True(t, strings.HasPrefix(err.Error(), "Connection failed"), err.Error())
	assert.Equal(t, []string{"Connection failed"}, rec.titles())
}

func TestListModelsIsStable(t *testing.T) {
	p, _ := newTestProvider(t, "https://api.anthropic.com", testKey, nil)

	first := p.ListModels()
	second := p.ListModels()
	require.Len(t, first, 6)
	assert.Equal(t, first, second)

	names := make([]string, 0, len(first))
	for _, m := range first {
		names = append(names, m.Name)
		assert.Equal(t, "claude", m.Details.Family)
		assert.Equal(t, m.Name, m.Model)
	}
	assert.Contains(t, names, "claude-3-5-sonnet-20241022")
	assert.Contains(t, names, "claude-3-5-haiku-20241022")
}

func TestListModelsFromConfig(t *testing.T) {
	p, err := New("claude", config.UpstreamConfig{
		BaseURL: "https://api.anthropic.com",
		Models:  []config.ModelConfig{{Name: "claude-custom", Description: "Custom"}},
	}, http.DefaultClient)
	require.NoError(t, err)

	list := p.ListModels()
	require.Len(t, list, 1)
	assert.Equal(t, "claude-custom", list[0].Name)
	assert.Equal(t, "200B", list[0].Details.ParameterSize)
}

func TestModelDetails(t *testing.T) {
	p, rec := newTestProvider(t, "https://api.anthropic.com", testKey, nil)

	doc, err := p.ModelDetails("claude-3-5-haiku-20241022")
	require.NoError(t, err)
	assert.Equal(t, "Our fastest model", doc.System)
	assert.Equal(t, "100B", doc.Details.ParameterSize)
	assert.Equal(t, defaultContextLength, doc.ModelInfo["general.context_length"])

	_, err = p.ModelDetails("nonexistent")
	require.ErrorIs(t, err, models.ErrParse)
	assert.Contains(t, err.Error(), "Model not found: nonexistent")
	assert.Equal(t, []string{"Model not found"}, rec.titles())
}
