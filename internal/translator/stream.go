package translator

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"ollama-proxy/internal/models"
)

// StreamEncoder writes NDJSON chat chunks and guarantees that exactly one
// terminal chunk ends the stream.
type StreamEncoder struct {
	enc        *json.Encoder
	flush      func()
	last       models.ChatResponse
	terminated bool
}

// NewStreamEncoder returns an encoder writing to w. flush, when non-nil, is
// called after every line. model names the stream until the upstream reports
// its own identifier.
func NewStreamEncoder(w io.Writer, flush func(), model string) *StreamEncoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &StreamEncoder{
		enc:   enc,
		flush: flush,
		last:  models.ChatResponse{Model: model},
	}
}

// Encode writes resp as one line. Non-terminal responses without new text
// are dropped and anything after the terminal chunk is ignored.
func (e *StreamEncoder) Encode(resp *models.ChatResponse) error {
	if e.terminated || resp == nil {
		return nil
	}

	e.remember(resp)
	if !resp.Done && resp.Delta == "" {
		return nil
	}
	if resp.Done {
		e.terminated = true
	}
	return e.write(FromStreamResponse(&e.last))
}

// EncodeError writes an error line. The stream stays open so Close can still
// emit the terminal chunk.
func (e *StreamEncoder) EncodeError(err error) error {
	if e.terminated {
		return nil
	}
	return e.write(ErrorResponse{Error: err.Error()})
}

// Close emits the terminal chunk when the upstream ended without one, using
// the last known model and token counts.
func (e *StreamEncoder) Close() error {
	if e.terminated {
		return nil
	}
	e.terminated = true

	final := e.last
	final.Delta = ""
	final.Done = true
	final.CreatedAt = time.Now()
	return e.write(FromStreamResponse(&final))
}

// Terminated reports whether the terminal chunk has been written.
func (e *StreamEncoder) Terminated() bool {
	return e.terminated
}

func (e *StreamEncoder) remember(resp *models.ChatResponse) {
	model := e.last.Model
	e.last = *resp
	if e.last.Model == "" {
		e.last.Model = model
	}
}

func (e *StreamEncoder) write(v any) error {
	if err := e.enc.Encode(v); err != nil {
		return fmt.Errorf("write stream chunk: %w", err)
	}
	if e.flush != nil {
		e.flush()
	}
	return nil
}
