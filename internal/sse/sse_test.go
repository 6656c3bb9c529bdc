package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineBufferFeed(t *testing.T) {
	var b LineBuffer

	assert.Empty(t, b.Feed([]byte(`data: {"type":"mess`)))
	assert.Equal(t, 19, b.Pending())

	lines := b.Feed([]byte("age_stop\"}\n\nevent: ping\ndata: {\"ty"))
	assert.Equal(t, []string{`data: {"type":"message_stop"}`, "", "event: ping"}, lines)
	assert.Equal(t, `data: {"ty`, b.Flush())
	assert.Zero(t, b.Pending())
	assert.Empty(t, b.Flush())
}

func TestLineBufferByteAtATime(t *testing.T) {
	var b LineBuffer
	input := "data: {\"a\":1}\r\ndata: {\"b\":2}\n"

	var lines []string
	for i := 0; i < len(input); i++ {
		lines = append(lines, b.Feed([]byte{input[i]})...)
	}

	assert.Equal(t, []string{"data: {\"a\":1}\r", `data: {"b":2}`}, lines)
	assert.Zero(t, b.Pending())
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Line
	}{
		{"blank", "   ", Line{Kind: KindSkip}},
		{"event name", "event: content_block_delta", Line{Kind: KindSkip}},
		{"comment", ": keep-alive", Line{Kind: KindSkip}},
		{"empty payload", "data: ", Line{Kind: KindSkip}},
		{"done", "data: [DONE]\r", Line{Kind: KindDone}},
		{"object", `data: {"type":"ping"}`, Line{Kind: KindData, Payload: `{"type":"ping"}`}},
		{"lone brace", "data: {", Line{Kind: KindMalformed, Payload: "{"}},
		{"not an object", `data: "text"`, Line{Kind: KindMalformed, Payload: `"text"`}},
		{"truncated object passes precheck", `data: {"type":"content_blo`, Line{Kind: KindData, Payload: `{"type":"content_blo`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.raw))
		})
	}
}
