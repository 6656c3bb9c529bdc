// Package sse splits an upstream event stream into lines and classifies
// each line the way the streaming translator consumes it.
package sse

import (
	"bytes"
	"strings"
)

// DoneSentinel terminates a stream when it appears as a data payload.
const DoneSentinel = "[DONE]"

const (
	dataPrefix  = "data: "
	eventPrefix = "event:"
)

// LineBuffer holds the trailing fragment of the stream between reads.
// The zero value is ready to use.
type LineBuffer struct {
	pending []byte
}

// Feed appends chunk to the pending fragment and returns every complete line.
// The trailing fragment after the last newline stays buffered.
func (b *LineBuffer) Feed(chunk []byte) []string {
	b.pending = append(b.pending, chunk...)

	idx := bytes.LastIndexByte(b.pending, '\n')
	if idx < 0 {
		return nil
	}

	lines := strings.Split(string(b.pending[:idx]), "\n")
	rest := b.pending[idx+1:]
	b.pending = append(b.pending[:0:0], rest...)
	return lines
}

// Flush returns and clears whatever fragment is still buffered.
func (b *LineBuffer) Flush() string {
	rest := string(b.pending)
	b.pending = nil
	return rest
}

// Pending reports the number of buffered bytes.
func (b *LineBuffer) Pending() int {
	return len(b.pending)
}

// Kind classifies a single stream line.
type Kind int

const (
	// KindSkip covers blank lines, event-name lines, comments and empty payloads.
	KindSkip Kind = iota
	// KindDone is the termination sentinel.
	KindDone
	// KindData carries a payload that passed the syntactic pre-check.
	KindData
	// KindMalformed is a data payload that cannot be a JSON object.
	KindMalformed
)

// Line is the result of classifying one stream line.
type Line struct {
	Kind    Kind
	Payload string
}

// Parse classifies a raw line. Payloads that do not start with '{' or are a
// lone brace are reported as malformed so the caller can skip them without
// attempting a decode.
func Parse(raw string) Line {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, eventPrefix) {
		return Line{Kind: KindSkip}
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return Line{Kind: KindSkip}
	}

	payload := strings.TrimSpace(line[len(dataPrefix):])
	switch {
	case payload == DoneSentinel:
		return Line{Kind: KindDone}
	case payload == "":
		return Line{Kind: KindSkip}
	case !looksLikeObject(payload):
		return Line{Kind: KindMalformed, Payload: payload}
	default:
		return Line{Kind: KindData, Payload: payload}
	}
}

func looksLikeObject(payload string) bool {
	return strings.HasPrefix(payload, "{") && len(payload) > 1
}
