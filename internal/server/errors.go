package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"ollama-proxy/internal/errmap"
	"ollama-proxy/internal/logging"
	"ollama-proxy/internal/models"
	"ollama-proxy/internal/provider"
	"ollama-proxy/internal/translator"
)

type requestError struct {
	Status  int
	Message string
}

func (e requestError) Error() string {
	return e.Message
}

func writeError(c echo.Context, status int, message string) error {
	return c.JSON(status, translator.ErrorResponse{Error: message})
}

func ollamaErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		if reqErr.Status >= http.StatusInternalServerError {
			logging.FromContext(c.Request().Context()).Error("request failed", "status", reqErr.Status, errmap.Attr(err))
		}
		_ = writeError(c, reqErr.Status, reqErr.Message)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = writeError(c, he.Code, fmt.Sprint(he.Message))
		return
	}

	logging.FromContext(c.Request().Context()).Error("unhandled error", errmap.Attr(err))
	_ = writeError(c, http.StatusInternalServerError, "internal server error")
}

// toHTTPError maps router and provider failures to the status returned to
// the Ollama client.
func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	if errors.Is(err, translator.ErrValidation) {
		return requestError{Status: http.StatusBadRequest, Message: err.Error()}
	}
	if errors.Is(err, provider.ErrNoProvider) {
		return requestError{Status: http.StatusServiceUnavailable, Message: err.Error()}
	}

	llmErr, ok := models.AsLLMError(err)
	if !ok {
		return requestError{Status: http.StatusInternalServerError, Message: "internal server error"}
	}

	switch {
	case llmErr.Kind == models.KindParse:
		return requestError{Status: http.StatusBadGateway, Message: llmErr.Message}
	case llmErr.Status == http.StatusBadRequest,
		llmErr.Status == http.StatusNotFound,
		llmErr.Status == http.StatusTooManyRequests:
		return requestError{Status: llmErr.Status, Message: llmErr.Message}
	case llmErr.Status != 0:
		return requestError{Status: http.StatusBadGateway, Message: llmErr.Message}
	case llmErr.Err == nil:
		// Rejected locally before any network call, e.g. a missing credential.
		return requestError{Status: http.StatusInternalServerError, Message: llmErr.Message}
	case errmap.Classify(llmErr.Err) == errmap.CategoryTimeout:
		return requestError{Status: http.StatusGatewayTimeout, Message: llmErr.Message}
	default:
		return requestError{Status: http.StatusBadGateway, Message: llmErr.Message}
	}
}
