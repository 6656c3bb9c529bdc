package translator

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"ollama-proxy/internal/config"
	"ollama-proxy/internal/models"
)

// ErrValidation marks inbound payloads that failed validation.
var ErrValidation = errors.New("invalid request")

var errInvalidContent = errors.New("invalid message content")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report JSON field names rather than Go field names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

func validateStruct(payload any) error {
	err := validatorInstance().Struct(payload)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		messages = append(messages, describeFieldError(fieldErr))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(messages, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "ChatRequest.")
	field = strings.TrimPrefix(field, "ShowRequest.")
	switch fe.Tag() {
	case "required", "min":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "gte", "lte":
		return fmt.Sprintf("%s must be within range, got %v", field, reflect.Indirect(reflect.ValueOf(fe.Value())))
	default:
		return fmt.Sprintf("%s failed on the '%s' rule", field, fe.Tag())
	}
}

// ChatRequest models the Ollama /api/chat payload.
type ChatRequest struct {
	Model    string              `json:"model"`
	Messages []ChatMessage       `json:"messages" validate:"required,min=1,dive"`
	Stream   *bool               `json:"stream"`
	Options  *ChatRequestOptions `json:"options"`
}

// ChatRequestOptions holds the sampling options Ollama clients send.
type ChatRequestOptions struct {
	Temperature *float64 `json:"temperature" validate:"omitempty,gte=0,lte=2"`
	TopP        *float64 `json:"top_p" validate:"omitempty,gte=0,lte=1"`
	NumPredict  *int     `json:"num_predict"`
}

// ChatMessage captures a single message within the chat request.
type ChatMessage struct {
	Role    string `json:"role" validate:"oneof=system user assistant"`
	Content string `json:"content"`
}

// UnmarshalJSON normalises the role and accepts string or array-of-text content.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	content, err := extractMessageContent(raw.Content)
	if err != nil {
		return err
	}

	m.Role = strings.ToLower(strings.TrimSpace(raw.Role))
	if m.Role == "" {
		m.Role = models.RoleUser
	}
	m.Content = content
	return nil
}

func extractMessageContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var segments []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &segments); err == nil {
		var builder strings.Builder
		for _, segment := range segments {
			if segment.Type != "" && segment.Type != "text" {
				return "", fmt.Errorf("%w: %w: segment type %q not supported", ErrValidation, errInvalidContent, segment.Type)
			}
			builder.WriteString(segment.Text)
		}
		return builder.String(), nil
	}

	return "", fmt.Errorf("%w: %w: unsupported content structure", ErrValidation, errInvalidContent)
}

// Validate checks the request against its field rules.
func (r *ChatRequest) Validate() error {
	return validateStruct(r)
}

// IsStream reports whether the client asked for a streamed response.
func (r ChatRequest) IsStream() bool {
	return r.Stream != nil && *r.Stream
}

// ToUnified converts the Ollama request into the canonical format, filling
// every option the client omitted from defaults.
func (r ChatRequest) ToUnified(defaults config.DefaultsConfig) models.ChatRequest {
	msgs := make([]models.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		msgs = append(msgs, models.Message{Role: m.Role, Content: m.Content})
	}

	options := models.ChatOptions{
		Model:       strings.TrimSpace(r.Model),
		Temperature: defaults.Temperature,
		TopP:        defaults.TopP,
		MaxTokens:   defaults.MaxTokens,
	}
	if options.Model == "" {
		options.Model = defaults.Model
	}
	if r.Options != nil {
		if r.Options.Temperature != nil {
			options.Temperature = *r.Options.Temperature
		}
		if r.Options.TopP != nil {
			options.TopP = *r.Options.TopP
		}
		if r.Options.NumPredict != nil && *r.Options.NumPredict > 0 {
			options.MaxTokens = *r.Options.NumPredict
		}
	}

	return models.ChatRequest{
		Messages: msgs,
		Options:  options,
		Stream:   r.IsStream(),
	}
}

// ShowRequest models the /api/show payload. Model is accepted as a synonym
// for Name.
type ShowRequest struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

// ModelName returns the requested model name.
func (r ShowRequest) ModelName() string {
	if name := strings.TrimSpace(r.Name); name != "" {
		return name
	}
	return strings.TrimSpace(r.Model)
}

// Validate requires a model name.
func (r ShowRequest) Validate() error {
	if r.ModelName() == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	return nil
}

// ResponseMessage is the assistant message inside a chat response.
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse models the Ollama /api/chat response body and stream chunk.
// Token counts are serialised as null when unknown.
type ChatResponse struct {
	Model              string          `json:"model"`
	CreatedAt          string          `json:"created_at"`
	Message            ResponseMessage `json:"message"`
	Done               bool            `json:"done"`
	DoneReason         string          `json:"done_reason,omitempty"`
	TotalDuration      int64           `json:"total_duration"`
	LoadDuration       int64           `json:"load_duration"`
	PromptEvalCount    *int            `json:"prompt_eval_count"`
	PromptEvalDuration int64           `json:"prompt_eval_duration"`
	EvalCount          *int            `json:"eval_count"`
	EvalDuration       int64           `json:"eval_duration"`
}

// FromChatResponse builds the non-streaming body from a complete response.
func FromChatResponse(resp *models.ChatResponse) ChatResponse {
	out := newChatResponse(resp, resp.Content)
	out.Done = true
	out.DoneReason = DoneReason(resp.StopReason)
	return out
}

// FromStreamResponse builds one stream chunk. Mid-stream chunks carry only
// the delta; the terminal chunk carries empty content.
func FromStreamResponse(resp *models.ChatResponse) ChatResponse {
	if resp.Done {
		out := newChatResponse(resp, "")
		out.Done = true
		out.DoneReason = DoneReason(resp.StopReason)
		return out
	}
	return newChatResponse(resp, resp.Delta)
}

func newChatResponse(resp *models.ChatResponse, content string) ChatResponse {
	created := resp.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return ChatResponse{
		Model:     resp.Model,
		CreatedAt: created.UTC().Format(time.RFC3339Nano),
		Message: ResponseMessage{
			Role:    models.RoleAssistant,
			Content: content,
		},
		PromptEvalCount: resp.PromptTokens,
		EvalCount:       resp.CompletionTokens,
	}
}

// DoneReason maps an upstream stop reason to Ollama's vocabulary.
func DoneReason(stopReason string) string {
	switch stopReason {
	case "", "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	default:
		return stopReason
	}
}

// TagsResponse is the /api/tags body.
type TagsResponse struct {
	Models []models.Model `json:"models"`
}

// VersionResponse is the /api/version body.
type VersionResponse struct {
	Version string `json:"version"`
}

// ErrorResponse is the body Ollama clients expect for failures.
type ErrorResponse struct {
	Error string `json:"error"`
}
