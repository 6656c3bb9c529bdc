package models

import "time"

// Roles accepted in a chat conversation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single conversational message in the unified schema.
type Message struct {
	Role    string
	Content string
}

// ChatOptions carries the sampling parameters of a chat request.
// Numeric fields are always populated; defaults are applied by the translator.
type ChatOptions struct {
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// ChatRequest is the canonical representation of an inbound chat call.
type ChatRequest struct {
	Messages []Message
	Options  ChatOptions
	Stream   bool
}

// ChatResponse captures a provider response in the unified schema.
//
// For streaming, Content is cumulative and Delta holds only the text added
// since the previous response of the same stream. Done marks the terminal
// response. Token counts are nil when the upstream did not report them.
type ChatResponse struct {
	Content          string
	Delta            string
	PromptTokens     *int
	CompletionTokens *int
	Model            string
	StopReason       string
	CreatedAt        time.Time
	Done             bool
}

// Model is an entry of a provider's static catalog as exposed by /api/tags.
type Model struct {
	Name       string       `json:"name"`
	Model      string       `json:"model"`
	ModifiedAt string       `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details"`
}

// ModelDetails holds the family metadata attached to a catalog entry.
type ModelDetails struct {
	ParentModel       string   `json:"parent_model"`
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          []string `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

// ModelDocument is the /api/show payload describing a single model.
type ModelDocument struct {
	License    string         `json:"license"`
	System     string         `json:"system"`
	Details    ModelDetails   `json:"details"`
	ModelInfo  map[string]any `json:"model_info"`
	ModifiedAt string         `json:"modified_at"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
