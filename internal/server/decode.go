package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/labstack/echo/v4"
)

const (
	maxBodyBytes    = 1 << 20 // 1 MiB on the wire
	maxDecodedBytes = 8 << 20
)

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	body := http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)
	reader, release, err := decodeContent(req.Header.Get(echo.HeaderContentEncoding), body)
	if err != nil {
		return err
	}
	defer release()

	decoder := json.NewDecoder(io.LimitReader(reader, maxDecodedBytes))
	if err := decoder.Decode(target); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return requestError{
				Status:  http.StatusRequestEntityTooLarge,
				Message: fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit),
			}
		case errors.Is(err, io.EOF):
			return requestError{
				Status:  http.StatusBadRequest,
				Message: "request body is required",
			}
		default:
			return requestError{
				Status:  http.StatusBadRequest,
				Message: fmt.Sprintf("invalid JSON payload: %v", err),
			}
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body must contain a single JSON object",
		}
	}
	return nil
}

// decodeContent unwraps a compressed request body.
func decodeContent(encoding string, body io.Reader) (io.Reader, func(), error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, func() {}, nil
	case "gzip":
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, nil, requestError{Status: http.StatusBadRequest, Message: "invalid gzip body"}
		}
		return zr, func() { _ = zr.Close() }, nil
	case "zstd":
		zr, err := zstd.NewReader(body)
		if err != nil {
			return nil, nil, requestError{Status: http.StatusBadRequest, Message: "invalid zstd body"}
		}
		return zr, zr.Close, nil
	default:
		return nil, nil, requestError{
			Status:  http.StatusUnsupportedMediaType,
			Message: "unsupported content-encoding: " + encoding,
		}
	}
}
