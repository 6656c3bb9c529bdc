package claude

import (
	"encoding/json"
	"fmt"
	"strings"

	"ollama-proxy/internal/models"
)

type messagePayload struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// buildMessagePayload separates system messages into the dedicated field and
// keeps the remaining turns in order.
func buildMessagePayload(msgs []models.Message, options models.ChatOptions, stream bool) messagePayload {
	turns := make([]message, 0, len(msgs))
	var systemParts []string

	for _, msg := range msgs {
		if msg.Role == models.RoleSystem {
			if strings.TrimSpace(msg.Content) != "" {
				systemParts = append(systemParts, msg.Content)
			}
			continue
		}
		turns = append(turns, message{Role: msg.Role, Content: msg.Content})
	}

	return messagePayload{
		Model:       options.Model,
		System:      strings.Join(systemParts, "\n\n"),
		Messages:    turns,
		Temperature: options.Temperature,
		TopP:        options.TopP,
		MaxTokens:   options.MaxTokens,
		Stream:      stream,
	}
}

type messageResponse struct {
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	Usage      *usageBlock    `json:"usage"`
	StopReason string         `json:"stop_reason"`
}

type contentBlock struct {
	Type string  `json:"type"`
	Text *string `json:"text"`
}

type usageBlock struct {
	InputTokens  *int `json:"input_tokens"`
	OutputTokens *int `json:"output_tokens"`
}

func parseMessageResponse(body []byte) (*models.ChatResponse, *models.LLMError) {
	var r messageResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, &models.LLMError{
			Kind:    models.KindParse,
			Message: fmt.Sprintf("Failed to parse response: %v", err),
			Err:     err,
		}
	}

	if len(r.Content) == 0 || r.Content[0].Text == nil {
		return nil, models.NewParseError("Missing content in response")
	}

	model := r.Model
	if model == "" {
		model = "unknown"
	}

	resp := &models.ChatResponse{
		Content:    *r.Content[0].Text,
		Model:      model,
		StopReason: r.StopReason,
		Done:       true,
	}
	if r.Usage != nil {
		resp.PromptTokens = r.Usage.InputTokens
		resp.CompletionTokens = r.Usage.OutputTokens
	}
	return resp, nil
}
