// Package errmap classifies upstream failures into the LLMError taxonomy and
// produces the user-facing notices that accompany them.
package errmap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"

	"ollama-proxy/internal/logging"
	"ollama-proxy/internal/models"
)

// Notice is a human-readable title/detail pair describing a failure.
type Notice struct {
	Title  string
	Detail string
}

// Reporter receives notices for observability. The host application decides
// how to surface them.
type Reporter interface {
	Report(ctx context.Context, notice Notice)
}

// LogReporter writes notices to the request logger.
type LogReporter struct{}

// Report logs the notice at warn level.
func (LogReporter) Report(ctx context.Context, notice Notice) {
	logging.FromContext(ctx).Warn(notice.Title, "detail", notice.Detail)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(ctx context.Context, notice Notice)

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, notice Notice) {
	f(ctx, notice)
}

// FromStatus maps a non-2xx upstream status and its raw body to a notice and
// the ApiError returned to the caller.
func FromStatus(status int, body string) (Notice, *models.LLMError) {
	body = strings.TrimSpace(body)

	var notice Notice
	var message string

	switch status {
	case http.StatusBadRequest:
		notice = Notice{"Invalid request to Claude API", "Check your request parameters. Response: " + body}
		message = "Bad request: " + body
	case http.StatusUnauthorized:
		notice = Notice{"Authentication failed", "Invalid API key. Please check your Anthropic API key."}
		message = "Authentication failed: Invalid API key"
	case http.StatusForbidden:
		notice = Notice{"Access forbidden", "Your API key doesn't have permission to access this resource."}
		message = "Forbidden: " + body
	case http.StatusNotFound:
		notice = Notice{"Model not found", "The requested Claude model is not available."}
		message = "Model not found: " + body
	case http.StatusTooManyRequests:
		notice = Notice{"Rate limit exceeded", "Too many requests. Please wait before trying again."}
		message = "Rate limit exceeded: " + body
	case http.StatusInternalServerError:
		notice = Notice{"Claude server error", "Anthropic's servers are experiencing issues. Please try again later."}
		message = "Server error: " + body
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		notice = Notice{"Claude service unavailable", "Claude service is temporarily unavailable. Please try again later."}
		message = "Service unavailable: " + body
	default:
		notice = Notice{"Unexpected response from Claude API", fmt.Sprintf("Status: %d, Response: %s", status, body)}
		message = fmt.Sprintf("Unexpected status %d: %s", status, body)
	}

	return notice, &models.LLMError{Kind: models.KindAPI, Message: message, Status: status}
}

// Category groups local failures that never produced an upstream status.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryConnection
	CategoryTimeout
	CategoryInvalidResponse
	CategoryCanceled
)

func (c Category) String() string {
	switch c {
	case CategoryConnection:
		return "connection"
	case CategoryTimeout:
		return "timeout"
	case CategoryInvalidResponse:
		return "invalid_response"
	case CategoryCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Notice returns the human-readable description of the category.
func (c Category) Notice() Notice {
	switch c {
	case CategoryConnection:
		return Notice{"Connection failed", "Unable to connect to Claude API. Check your internet connection."}
	case CategoryTimeout:
		return Notice{"Request timeout", "Claude API request timed out. The service might be busy, try again."}
	case CategoryInvalidResponse:
		return Notice{"Invalid response format", "Received invalid JSON from Claude API."}
	case CategoryCanceled:
		return Notice{"Request canceled", "The request was canceled before Claude API responded."}
	default:
		return Notice{"Claude API Error", "The request to Claude API failed."}
	}
}

// Classify inspects a transport or decoding error.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	if errors.Is(err, context.Canceled) {
		return CategoryCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return CategoryConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return CategoryConnection
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CategoryConnection
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return CategoryInvalidResponse
	}

	return CategoryUnknown
}

// Transport re-expresses a local failure as an ApiError. Errors that already
// are LLMErrors pass through unchanged.
func Transport(err error) (Notice, *models.LLMError) {
	if llmErr, ok := models.AsLLMError(err); ok {
		return Notice{}, llmErr
	}

	category := Classify(err)
	notice := category.Notice()
	if category == CategoryUnknown {
		notice.Detail = fmt.Sprintf("Failed to complete chat request: %v", err)
	}

	return notice, &models.LLMError{
		Kind:    models.KindAPI,
		Message: fmt.Sprintf("%s: %v", notice.Title, err),
		Err:     err,
	}
}

// Report sends a non-empty notice to r, falling back to a LogReporter.
func Report(ctx context.Context, r Reporter, notice Notice) {
	if notice == (Notice{}) {
		return
	}
	if r == nil {
		r = LogReporter{}
	}
	r.Report(ctx, notice)
}

// Attr renders an error as a slog attribute including its classification.
func Attr(err error) slog.Attr {
	return slog.Group("error",
		slog.String("message", err.Error()),
		slog.String("category", Classify(err).String()),
	)
}
