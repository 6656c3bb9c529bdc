package provider

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"ollama-proxy/internal/models"
)

// ErrNoProvider indicates no provider has been registered.
var ErrNoProvider = errors.New("no provider registered")

// ErrDuplicateModel indicates an attempt to register the same model twice.
var ErrDuplicateModel = errors.New("model already registered")

// Provider defines the behaviour required to serve Ollama-style chat requests
// from an upstream API.
type Provider interface {
	Name() string
	// ListModels returns the static catalog. It performs no I/O and never fails.
	ListModels() []models.Model
	// ModelDetails describes a catalog entry; unknown names yield a ParseError.
	ModelDetails(name string) (*models.ModelDocument, error)
	// Chat issues one upstream request and returns the complete response.
	Chat(ctx context.Context, messages []models.Message, options models.ChatOptions) (*models.ChatResponse, error)
	// ChatStream issues one upstream streaming request per iteration. Stopping
	// the iteration or cancelling ctx releases the upstream connection.
	ChatStream(ctx context.Context, messages []models.Message, options models.ChatOptions) iter.Seq2[*models.ChatResponse, error]
}

type modelEntry struct {
	model    models.Model
	provider Provider
}

// Registry maintains a mapping of model names to providers.
type Registry struct {
	mu       sync.RWMutex
	models   map[string]modelEntry
	order    []string
	byName   map[string]Provider
	fallback Provider
}

// NewRegistry constructs an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]modelEntry),
		byName: make(map[string]Provider),
	}
}

// RegisterProvider adds the provider and its catalog to the registry, wiring
// optional aliases. The first registered provider becomes the default for
// model names outside every catalog.
func (r *Registry) RegisterProvider(p Provider, aliases map[string]string) error {
	if p == nil {
		return errors.New("provider must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[p.Name()]; exists {
		return fmt.Errorf("provider %q already registered", p.Name())
	}

	for _, model := range p.ListModels() {
		if _, exists := r.models[model.Name]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateModel, model.Name)
		}
		r.models[model.Name] = modelEntry{model: model, provider: p}
		r.order = append(r.order, model.Name)
	}

	for alias, target := range aliases {
		if _, exists := r.models[alias]; exists {
			return fmt.Errorf("alias %q conflicts with existing model", alias)
		}

		targetEntry, ok := r.models[target]
		if !ok {
			return fmt.Errorf("alias %q references unknown model %q", alias, target)
		}

		aliased := targetEntry.model
		aliased.Name = alias
		r.models[alias] = modelEntry{model: aliased, provider: targetEntry.provider}
		r.order = append(r.order, alias)
	}

	r.byName[p.Name()] = p
	if r.fallback == nil {
		r.fallback = p
	}
	return nil
}

// LookupModel resolves a model name to the upstream model identifier and the
// provider serving it. Names outside every catalog go to the default provider
// unchanged so the upstream can decide whether they exist.
func (r *Registry) LookupModel(name string) (string, Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.models[name]; ok {
		return entry.model.Model, entry.provider, nil
	}
	if r.fallback == nil {
		return "", nil, ErrNoProvider
	}
	return name, r.fallback, nil
}

// Models returns every catalog entry and alias in registration order.
func (r *Registry) Models() []models.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Model, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.models[name].model)
	}
	return out
}
