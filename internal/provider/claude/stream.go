package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"ollama-proxy/internal/errmap"
	"ollama-proxy/internal/logging"
	"ollama-proxy/internal/models"
	"ollama-proxy/internal/sse"
)

const (
	readChunkSize  = 4 << 10
	maxLoggedBytes = 256
)

// streamEvent is the closed set of upstream events the translator handles.
type streamEvent interface {
	isStreamEvent()
}

type messageStartEvent struct {
	model       string
	inputTokens *int
}

type contentBlockDeltaEvent struct {
	text string
}

type messageDeltaEvent struct {
	outputTokens *int
	stopReason   string
}

type messageStopEvent struct{}

type errorEvent struct {
	errType string
	message string
}

type unknownEvent struct {
	eventType string
}

func (messageStartEvent) isStreamEvent()      {}
func (contentBlockDeltaEvent) isStreamEvent() {}
func (messageDeltaEvent) isStreamEvent()      {}
func (messageStopEvent) isStreamEvent()       {}
func (errorEvent) isStreamEvent()             {}
func (unknownEvent) isStreamEvent()           {}

type rawEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Model string      `json:"model"`
		Usage *usageBlock `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Text       *string `json:"text"`
		StopReason string  `json:"stop_reason"`
	} `json:"delta"`
	Usage *usageBlock `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// decodeEvent parses one data payload. Unknown fields are ignored.
func decodeEvent(payload string) (streamEvent, error) {
	var raw rawEvent
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, err
	}

	switch raw.Type {
	case "message_start":
		ev := messageStartEvent{}
		if raw.Message != nil {
			ev.model = raw.Message.Model
			if raw.Message.Usage != nil {
				ev.inputTokens = raw.Message.Usage.InputTokens
			}
		}
		return ev, nil
	case "content_block_delta":
		ev := contentBlockDeltaEvent{}
		if raw.Delta != nil && raw.Delta.Text != nil {
			ev.text = *raw.Delta.Text
		}
		return ev, nil
	case "message_delta":
		ev := messageDeltaEvent{}
		if raw.Usage != nil {
			ev.outputTokens = raw.Usage.OutputTokens
		}
		if raw.Delta != nil {
			ev.stopReason = raw.Delta.StopReason
		}
		return ev, nil
	case "message_stop":
		return messageStopEvent{}, nil
	case "error":
		ev := errorEvent{errType: "error"}
		if raw.Error != nil {
			ev.errType = raw.Error.Type
			ev.message = raw.Error.Message
		}
		return ev, nil
	default:
		return unknownEvent{eventType: raw.Type}, nil
	}
}

// streamState is owned by a single ChatStream iteration.
type streamState struct {
	accumulated      strings.Builder
	emitted          int
	promptTokens     *int
	completionTokens *int
	model            string
	stopReason       string
	lines            sse.LineBuffer
	terminated       bool
}

func newStreamState(model string) *streamState {
	if model == "" {
		model = "unknown"
	}
	return &streamState{model: model}
}

// apply folds one event into the state and returns the response to emit, if any.
func (s *streamState) apply(ev streamEvent, now time.Time) (*models.ChatResponse, error) {
	switch ev := ev.(type) {
	case messageStartEvent:
		if ev.model != "" {
			s.model = ev.model
		}
		s.promptTokens = ev.inputTokens
	case contentBlockDeltaEvent:
		if ev.text == "" {
			return nil, nil
		}
		s.accumulated.WriteString(ev.text)
		delta := s.takeDelta()
		if delta == "" {
			return nil, nil
		}
		return s.response(delta, false, now), nil
	case messageDeltaEvent:
		if ev.outputTokens != nil {
			s.completionTokens = ev.outputTokens
		}
		if ev.stopReason != "" {
			s.stopReason = ev.stopReason
		}
	case messageStopEvent:
		s.terminated = true
		return s.response("", true, now), nil
	case errorEvent:
		s.terminated = true
		return nil, models.NewAPIError(fmt.Sprintf("Stream error (%s): %s", ev.errType, ev.message))
	case unknownEvent:
	}
	return nil, nil
}

func (s *streamState) takeDelta() string {
	content := s.accumulated.String()
	if s.emitted >= len(content) {
		return ""
	}
	delta := content[s.emitted:]
	s.emitted = len(content)
	return delta
}

func (s *streamState) response(delta string, done bool, now time.Time) *models.ChatResponse {
	return &models.ChatResponse{
		Content:          s.accumulated.String(),
		Delta:            delta,
		PromptTokens:     s.promptTokens,
		CompletionTokens: s.completionTokens,
		Model:            s.model,
		StopReason:       s.stopReason,
		CreatedAt:        now,
		Done:             done,
	}
}

// ChatStream sends one streaming request upstream and yields a response per
// non-empty text delta followed by a terminal response on message_stop.
// Failures end the sequence with a single error element.
func (p *Provider) ChatStream(ctx context.Context, messages []models.Message, options models.ChatOptions) iter.Seq2[*models.ChatResponse, error] {
	return func(yield func(*models.ChatResponse, error) bool) {
		if err := p.validateAPIKey(ctx); err != nil {
			yield(nil, err)
			return
		}

		logging.FromContext(ctx).Info("sending upstream streaming request", "provider", p.name, "model", options.Model)

		httpReq, err := p.newRequest(ctx, buildMessagePayload(messages, options, true))
		if err != nil {
			yield(nil, err)
			return
		}

		httpResp, err := p.client.Do(httpReq)
		if err != nil {
			yield(nil, p.transportError(ctx, err))
			return
		}
		defer httpResp.Body.Close()

		if !isSuccess(httpResp.StatusCode) {
			yield(nil, p.statusError(ctx, httpResp))
			return
		}

		p.consumeStream(ctx, httpResp.Body, newStreamState(options.Model), yield)
	}
}

func (p *Provider) consumeStream(ctx context.Context, body io.Reader, state *streamState, yield func(*models.ChatResponse, error) bool) {
	logger := logging.FromContext(ctx)
	buf := make([]byte, readChunkSize)

	for !state.terminated {
		if ctx.Err() != nil {
			logger.Debug("stream cancelled by caller", "err", ctx.Err())
			return
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if !p.processLines(ctx, state, state.lines.Feed(buf[:n]), yield) {
				return
			}
		}

		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			if rest := state.lines.Flush(); rest != "" && !state.terminated {
				if !p.processLines(ctx, state, []string{rest}, yield) {
					return
				}
			}
			if !state.terminated {
				logger.Warn("upstream stream ended without message_stop", "model", state.model)
			}
			return
		}
		if ctx.Err() != nil || errmap.Classify(readErr) == errmap.CategoryCanceled {
			logger.Debug("stream cancelled by caller", "err", readErr)
			return
		}
		yield(nil, p.transportError(ctx, readErr))
		return
	}
}

// processLines handles complete lines in order. It reports false once the
// consumer stops accepting results.
func (p *Provider) processLines(ctx context.Context, state *streamState, lines []string, yield func(*models.ChatResponse, error) bool) bool {
	logger := logging.FromContext(ctx)

	for _, raw := range lines {
		if state.terminated {
			return true
		}

		line := sse.Parse(raw)
		switch line.Kind {
		case sse.KindSkip:
			continue
		case sse.KindDone:
			state.terminated = true
			return true
		case sse.KindMalformed:
			logger.Debug("skipping malformed stream line", "payload", truncate(line.Payload))
			continue
		}

		ev, err := decodeEvent(line.Payload)
		if err != nil {
			logger.Debug("failed to parse streaming JSON, continuing", "err", err, "payload", truncate(line.Payload))
			continue
		}

		resp, err := state.apply(ev, p.now())
		if err != nil {
			logger.Error("upstream reported a stream error", "err", err)
			return yield(nil, err)
		}
		if resp != nil && !yield(resp, nil) {
			return false
		}
	}
	return true
}

func truncate(s string) string {
	if len(s) <= maxLoggedBytes {
		return s
	}
	return s[:maxLoggedBytes] + "..."
}
