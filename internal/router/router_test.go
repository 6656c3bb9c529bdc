package router_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ollama-proxy/internal/models"
	"ollama-proxy/internal/provider"
	"ollama-proxy/internal/provider/mocks"
	"ollama-proxy/internal/router"
)

const sonnet = "claude-3-5-sonnet-20241022"

func setupRouter(t *testing.T) (*router.Router, *mocks.MockProvider) {
	t.Helper()
	p := mocks.NewMockProvider(t)
	p.On("Name").Return("claude").Maybe()
	p.On("ListModels").Return([]models.Model{{Name: sonnet, Model: sonnet}}).Once()

	registry := provider.NewRegistry()
	require.NoError(t, registry.RegisterProvider(p, map[string]string{"sonnet": sonnet}))
	return router.New(registry), p
}

func chatRequest(model string) models.ChatRequest {
	return models.ChatRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "Hello"}},
		Options:  models.ChatOptions{Model: model, Temperature: 0.7, TopP: 0.9, MaxTokens: 4096},
	}
}

func TestRouter_Chat(t *testing.T) {
	t.Run("alias resolves to upstream id", func(t *testing.T) {
		r, p := setupRouter(t)
		want := &models.ChatResponse{Content: "Hi there", Done: true}
		p.On("Chat", mock.Anything, mock.Anything, mock.MatchedBy(func(o models.ChatOptions) bool {
			return o.Model == sonnet && o.MaxTokens == 4096
		})).Return(want, nil).Once()

		got, err := r.Chat(context.Background(), chatRequest("sonnet"))
		require.NoError(t, err)
		assert.Same(t, want, got)
	})

	t.Run("unknown model goes to default provider unchanged", func(t *testing.T) {
		r, p := setupRouter(t)
		p.On("Chat", mock.Anything, mock.Anything, mock.MatchedBy(func(o models.ChatOptions) bool {
			return o.Model == "claude-future"
		})).Return(&models.ChatResponse{}, nil).Once()

		_, err := r.Chat(context.Background(), chatRequest("claude-future"))
		require.NoError(t, err)
	})

	t.Run("provider error keeps its kind", func(t *testing.T) {
		r, p := setupRouter(t)
		p.On("Chat", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, models.NewAPIError("Authentication failed: Invalid API key")).Once()

		_, err := r.Chat(context.Background(), chatRequest(sonnet))
		require.ErrorIs(t, err, models.ErrAPI)
		assert.Contains(t, err.Error(), "provider claude chat request")
	})
}

func TestRouter_ChatStream(t *testing.T) {
	r, p := setupRouter(t)
	streamErr := errors.New("boom")
	p.On("ChatStream", mock.Anything, mock.Anything, mock.Anything).
		Return(mocks.Sequence(streamErr, &models.ChatResponse{Delta: "a"})).Once()

	seq, err := r.ChatStream(context.Background(), chatRequest("sonnet"))
	require.NoError(t, err)

	var deltas []string
	var errs []error
	for resp, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		deltas = append(deltas, resp.Delta)
	}
	assert.Equal(t, []string{"a"}, deltas)
	assert.Equal(t, []error{streamErr}, errs)
}

func TestRouter_NoProvider(t *testing.T) {
	r := router.New(provider.NewRegistry())

	_, err := r.Chat(context.Background(), chatRequest(sonnet))
	assert.ErrorIs(t, err, provider.ErrNoProvider)

	_, err = r.ChatStream(context.Background(), chatRequest(sonnet))
	assert.ErrorIs(t, err, provider.ErrNoProvider)

	_, err = r.ShowModel(sonnet)
	assert.ErrorIs(t, err, provider.ErrNoProvider)
	assert.Empty(t, r.Models())
}

func TestRouter_ShowModelFollowsAlias(t *testing.T) {
	r, p := setupRouter(t)
	doc := &models.ModelDocument{System: "Balanced"}
	p.On("ModelDetails", sonnet).Return(doc, nil).Once()
	p.On("ModelDetails", "missing").Return(nil, models.NewParseError("Model not found: missing")).Once()

	got, err := r.ShowModel("sonnet")
	require.NoError(t, err)
	assert.Same(t, doc, got)

	_, err = r.ShowModel("missing")
	assert.ErrorIs(t, err, models.ErrParse)
}

func TestRouter_Models(t *testing.T) {
	r, _ := setupRouter(t)

	list := r.Models()
	require.Len(t, list, 2)
	assert.Equal(t, sonnet, list[0].Name)
	assert.Equal(t, "sonnet", list[1].Name)
	assert.Equal(t, sonnet, list[1].Model)
}
