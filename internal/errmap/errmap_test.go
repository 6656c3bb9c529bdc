package errmap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ollama-proxy/internal/models"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status      int
		wantTitle   string
		wantMessage string
	}{
		{http.StatusBadRequest, "Invalid request to Claude API", `Bad request: {"error":"max_tokens"}`},
		{http.StatusUnauthorized, "Authentication failed", "Authentication failed: Invalid API key"},
		{http.StatusForbidden, "Access forbidden", `Forbidden: {"error":"max_tokens"}`},
		{http.StatusNotFound, "Model not found", `Model not found: {"error":"max_tokens"}`},
		{http.StatusTooManyRequests, "Rate limit exceeded", `Rate limit exceeded: {"error":"max_tokens"}`},
		{http.StatusInternalServerError, "Claude server error", `Server error: {"error":"max_tokens"}`},
		{http.StatusBadGateway, "Claude service unavailable", `Service unavailable: {"error":"max_tokens"}`},
		{http.StatusServiceUnavailable, "Claude service unavailable", `Service unavailable: {"error":"max_tokens"}`},
		{http.StatusGatewayTimeout, "Claude service unavailable", `Service unavailable: {"error":"max_tokens"}`},
		{529, "Unexpected response from Claude API", `Unexpected status 529: {"error":"max_tokens"}`},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			notice, err := FromStatus(tt.status, ` {"error":"max_tokens"}`+"\n")
			require.NotNil(t, err)
			assert.Equal(t, tt.wantTitle, notice.Title)
			assert.NotEmpty(t, notice.Detail)
			assert.Equal(t, tt.wantMessage, err.Message)
			assert.Equal(t, tt.status, err.Status)
			assert.ErrorIs(t, err, models.ErrAPI)
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}

	var syntaxErr *json.SyntaxError
	jsonErr := json.Unmarshal([]byte(`{"type":`), &struct{}{})
	require.True(t, errors.As(jsonErr, &syntaxErr) || errors.Is(jsonErr, io.ErrUnexpectedEOF))

	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, CategoryUnknown},
		{"refused", fmt.Errorf("post: %w", refused), CategoryConnection},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.anthropic.com"}, CategoryConnection},
		{"net timeout", fmt.Errorf("read: %w", timeoutErr{}), CategoryTimeout},
		{"deadline", context.DeadlineExceeded, CategoryTimeout},
		{"canceled", fmt.Errorf("do: %w", context.Canceled), CategoryCanceled},
		{"json", jsonErr, CategoryInvalidResponse},
		{"other", errors.New("boom"), CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestTransport(t *testing.T) {
	t.Run("wraps local failures as api errors", func(t *testing.T) {
		cause := fmt.Errorf("post: %w", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED})
		notice, err := Transport(cause)

		assert.Equal(t, "Connection failed", notice.Title)
		assert.ErrorIs(t, err, models.ErrAPI)
		assert.ErrorIs(t, err, syscall.ECONNREFUSED)
		assert.Contains(t, err.Message, "Connection failed")
		assert.Zero(t, err.Status)
	})

	t.Run("keeps existing llm errors", func(t *testing.T) {
		original := models.NewParseError("Missing content in response")
		notice, err := Transport(fmt.Errorf("wrapped: %w", original))

		assert.Equal(t, Notice{}, notice)
		assert.Same(t, original, err)
	})
}

func TestReport(t *testing.T) {
	var got []Notice
	r := ReporterFunc(func(_ context.Context, n Notice) { got = append(got, n) })

	Report(context.Background(), r, Notice{})
	Report(context.Background(), r, Notice{Title: "Rate limit exceeded", Detail: "wait"})

	require.Len(t, got, 1)
	assert.Equal(t, "Rate limit exceeded", got[0].Title)

	assert.NotPanics(t, func() {
		Report(context.Background(), nil, Notice{Title: "x"})
	})
}
