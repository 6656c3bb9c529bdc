package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ollama-proxy/internal/config"
	"ollama-proxy/internal/errmap"
	"ollama-proxy/internal/logging"
	"ollama-proxy/internal/models"
)

const (
	contentTypeJSON  = "application/json"
	contentTypeSSE   = "text/event-stream"
	userAgent        = "ollama-proxy/0.1"
	apiKeyPrefix     = "sk-ant-"
	maxResponseBytes = 8 << 20
	maxErrorBytes    = 64 << 10
)

// Provider implements Anthropic Messages API interactions behind the
// Ollama-compatible surface.
type Provider struct {
	name       string
	apiKey     string
	apiVersion string
	headers    map[string]string
	client     *http.Client
	messages   string
	catalog    []catalogEntry
	createdAt  time.Time
	reporter   errmap.Reporter
	now        func() time.Time
}

// Option customises a Provider.
type Option func(*Provider)

// WithReporter routes user-facing failure notices to r.
func WithReporter(r errmap.Reporter) Option {
	return func(p *Provider) {
		p.reporter = r
	}
}

// WithClock overrides the time source used for created_at and catalog stamps.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// New constructs a Claude provider instance.
func New(name string, cfg config.UpstreamConfig, client *http.Client, opts ...Option) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	p := &Provider{
		name:       name,
		apiKey:     cfg.APIKey,
		apiVersion: cfg.APIVersion,
		headers:    cfg.Headers,
		client:     client,
		messages:   baseURL + "/v1/messages",
		catalog:    catalogFromConfig(cfg.Models),
		reporter:   errmap.LogReporter{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.apiVersion == "" {
		p.apiVersion = "2023-06-01"
	}
	p.createdAt = p.now()

	return p, nil
}

func (p *Provider) Name() string {
	return p.name
}

// ListModels returns the static catalog.
func (p *Provider) ListModels() []models.Model {
	result := make([]models.Model, 0, len(p.catalog))
	for _, entry := range p.catalog {
		result = append(result, entry.model(p.createdAt))
	}
	return result
}

// ModelDetails returns the /api/show document for a catalog entry.
func (p *Provider) ModelDetails(name string) (*models.ModelDocument, error) {
	for _, entry := range p.catalog {
		if entry.name == name {
			return entry.document(p.now()), nil
		}
	}

	errmap.Report(context.Background(), p.reporter, errmap.Notice{
		Title:  "Model not found",
		Detail: fmt.Sprintf("The requested model '%s' is not available.", name),
	})
	return nil, models.NewParseError("Model not found: " + name)
}

// Chat sends one non-streaming request upstream.
func (p *Provider) Chat(ctx context.Context, messages []models.Message, options models.ChatOptions) (*models.ChatResponse, error) {
	if err := p.validateAPIKey(ctx); err != nil {
		return nil, err
	}

	logger := logging.FromContext(ctx)
	logger.Info("sending upstream chat request", "provider", p.name, "model", options.Model)

	httpReq, err := p.newRequest(ctx, buildMessagePayload(messages, options, false))
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.transportError(ctx, err)
	}
	defer httpResp.Body.Close()

	if !isSuccess(httpResp.StatusCode) {
		return nil, p.statusError(ctx, httpResp)
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, p.transportError(ctx, err)
	}

	resp, llmErr := parseMessageResponse(body)
	if llmErr != nil {
		errmap.Report(ctx, p.reporter, errmap.Notice{
			Title:  "Invalid response format",
			Detail: "Claude API returned an unexpected response format: " + llmErr.Message,
		})
		return nil, llmErr
	}
	resp.CreatedAt = p.now()
	return resp, nil
}

func (p *Provider) validateAPIKey(ctx context.Context) error {
	key := strings.TrimSpace(p.apiKey)
	if key == "" {
		errmap.Report(ctx, p.reporter, errmap.Notice{
			Title:  "API key missing",
			Detail: "Anthropic API key is not configured. Set " + config.EnvAPIKey + " or upstream.api_key.",
		})
		return models.NewAPIError("API key is required")
	}
	if !strings.HasPrefix(key, apiKeyPrefix) {
		errmap.Report(ctx, p.reporter, errmap.Notice{
			Title:  "Invalid API key format",
			Detail: "Anthropic API key should start with '" + apiKeyPrefix + "'. Please check your API key.",
		})
		return models.NewAPIError("Invalid API key format")
	}
	return nil
}

func (p *Provider) newRequest(ctx context.Context, payload messagePayload) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, models.NewParseError(fmt.Sprintf("marshal payload: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.messages, bytes.NewReader(body))
	if err != nil {
		return nil, &models.LLMError{Kind: models.KindAPI, Message: fmt.Sprintf("construct request: %v", err), Err: err}
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	if payload.Stream {
		req.Header.Set("Accept", contentTypeSSE)
	} else {
		req.Header.Set("Accept", contentTypeJSON)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("x-api-key", strings.TrimSpace(p.apiKey))
	req.Header.Set("anthropic-version", p.apiVersion)

	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

func (p *Provider) statusError(ctx context.Context, resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
	if err != nil {
		logging.FromContext(ctx).Warn("failed to read upstream error body", "status", resp.StatusCode, "err", err)
	}

	notice, llmErr := errmap.FromStatus(resp.StatusCode, string(body))
	errmap.Report(ctx, p.reporter, notice)
	return llmErr
}

func (p *Provider) transportError(ctx context.Context, err error) error {
	notice, llmErr := errmap.Transport(err)
	if errmap.Classify(err) != errmap.CategoryCanceled {
		logging.FromContext(ctx).Error("upstream request failed", "provider", p.name, errmap.Attr(err))
		errmap.Report(ctx, p.reporter, notice)
	}
	return llmErr
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
