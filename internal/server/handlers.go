package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"ollama-proxy/internal/errmap"
	"ollama-proxy/internal/logging"
	"ollama-proxy/internal/models"
	"ollama-proxy/internal/translator"
)

// Version reported on /api/version. Ollama clients gate features on it.
const ollamaVersion = "0.5.7"

func (s *Server) registerRoutes() {
	s.app.GET("/", s.handleRoot)
	s.app.HEAD("/", s.handleRoot)
	s.app.GET("/api/version", s.handleVersion)
	s.app.GET("/api/tags", s.handleTags)
	s.app.POST("/api/show", s.handleShow)
	s.app.POST("/api/chat", s.handleChat)
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.String(http.StatusOK, "Ollama is running")
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, translator.VersionResponse{Version: ollamaVersion})
}

func (s *Server) handleTags(c echo.Context) error {
	return c.JSON(http.StatusOK, translator.TagsResponse{Models: s.router.Models()})
}

func (s *Server) handleShow(c echo.Context) error {
	var req translator.ShowRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return toHTTPError(err)
	}

	doc, err := s.router.ShowModel(req.ModelName())
	if err != nil {
		if llmErr, ok := models.AsLLMError(err); ok && llmErr.Kind == models.KindParse {
			return requestError{Status: http.StatusNotFound, Message: llmErr.Message}
		}
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) handleChat(c echo.Context) error {
	var req translator.ChatRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return toHTTPError(err)
	}

	unified := req.ToUnified(s.cfg.Defaults)
	if unified.Stream {
		return s.streamChat(c, unified)
	}

	resp, err := s.router.Chat(c.Request().Context(), unified)
	if err != nil {
		return toHTTPError(err)
	}
	if resp == nil {
		return requestError{
			Status:  http.StatusBadGateway,
			Message: "upstream provider returned an empty response",
		}
	}

	return c.JSON(http.StatusOK, translator.FromChatResponse(resp))
}

// streamChat writes the response as NDJSON. Headers are committed with the
// first chunk so a failure before any output still gets a proper status.
func (s *Server) streamChat(c echo.Context, req models.ChatRequest) error {
	ctx := c.Request().Context()
	logger := logging.FromContext(ctx)

	seq, err := s.router.ChatStream(ctx, req)
	if err != nil {
		return toHTTPError(err)
	}

	res := c.Response()
	var enc *translator.StreamEncoder
	commit := func() {
		header := res.Header()
		header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		header.Set("Cache-Control", "no-cache")
		header.Set("Connection", "keep-alive")
		res.WriteHeader(http.StatusOK)
		enc = translator.NewStreamEncoder(res, res.Flush, req.Options.Model)
	}

	for resp, err := range seq {
		if err != nil {
			if enc == nil {
				return toHTTPError(err)
			}
			logger.Error("stream failed after response started", errmap.Attr(err))
			if werr := enc.EncodeError(err); werr != nil {
				logger.Warn("client went away during stream", "err", werr)
				return nil
			}
			break
		}

		if enc == nil {
			commit()
		}
		if werr := enc.Encode(resp); werr != nil {
			logger.Warn("client went away during stream", "err", werr)
			return nil
		}
	}

	if ctx.Err() != nil {
		logger.Debug("client disconnected before stream completed")
		return nil
	}
	if enc == nil {
		commit()
	}
	if err := enc.Close(); err != nil {
		logger.Warn("failed to write terminal chunk", "err", err)
	}
	return nil
}
