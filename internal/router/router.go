package router

import (
	"context"
	"fmt"
	"iter"

	"ollama-proxy/internal/models"
	"ollama-proxy/internal/provider"
)

// Router dispatches unified requests to the appropriate provider.
type Router struct {
	registry *provider.Registry
}

// New constructs a router backed by the provided registry.
func New(registry *provider.Registry) *Router {
	return &Router{
		registry: registry,
	}
}

// Chat routes a non-streaming chat request to the provider serving its model.
func (r *Router) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	providerImpl, options, err := r.resolve(req.Options)
	if err != nil {
		return nil, err
	}

	resp, err := providerImpl.Chat(ctx, cloneMessages(req.Messages), options)
	if err != nil {
		return nil, fmt.Errorf("provider %s chat request: %w", providerImpl.Name(), err)
	}
	return resp, nil
}

// ChatStream routes a streaming chat request. Only model resolution fails
// here; upstream failures arrive as elements of the returned sequence.
func (r *Router) ChatStream(ctx context.Context, req models.ChatRequest) (iter.Seq2[*models.ChatResponse, error], error) {
	providerImpl, options, err := r.resolve(req.Options)
	if err != nil {
		return nil, err
	}
	return providerImpl.ChatStream(ctx, cloneMessages(req.Messages), options), nil
}

// Models lists every model the registry exposes, aliases included.
func (r *Router) Models() []models.Model {
	return r.registry.Models()
}

// ShowModel describes a model, following aliases to their target.
func (r *Router) ShowModel(name string) (*models.ModelDocument, error) {
	upstreamID, providerImpl, err := r.registry.LookupModel(name)
	if err != nil {
		return nil, err
	}
	return providerImpl.ModelDetails(upstreamID)
}

func (r *Router) resolve(options models.ChatOptions) (provider.Provider, models.ChatOptions, error) {
	upstreamID, providerImpl, err := r.registry.LookupModel(options.Model)
	if err != nil {
		return nil, models.ChatOptions{}, err
	}
	options.Model = upstreamID
	return providerImpl, options, nil
}

func cloneMessages(messages []models.Message) []models.Message {
	if len(messages) == 0 {
		return nil
	}
	out := make([]models.Message, len(messages))
	copy(out, messages)
	return out
}
