package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/farmwise/internal/news"
	"github.com/iliyamo/farmwise/internal/response"
)

// newsTimeout covers the upstream call including its retries.
const newsTimeout = 12 * time.Second

// NewsSource is the news upstream; *news.Client in production.
type NewsSource interface {
	Everything(ctx context.Context, language string) (json.RawMessage, error)
	Headlines(ctx context.Context, language string) (json.RawMessage, error)
}

type NewsHandler struct {
	News NewsSource
	Log  *zap.Logger
}

func NewNewsHandler(src NewsSource, log *zap.Logger) *NewsHandler {
	return &NewsHandler{News: src, Log: log}
}

// Everything passes the upstream search result through unchanged.
func (h *NewsHandler) Everything(c echo.Context) error {
	return h.serve(c, h.News.Everything)
}

// Headlines passes the upstream top headlines through unchanged.
func (h *NewsHandler) Headlines(c echo.Context) error {
	return h.serve(c, h.News.Headlines)
}

func (h *NewsHandler) serve(c echo.Context, fetch func(context.Context, string) (json.RawMessage, error)) error {
	lang := c.QueryParam("language")
	if lang == "" {
		lang = "en"
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), newsTimeout)
	defer cancel()

	body, err := fetch(ctx, lang)
	if err != nil {
		h.Log.Warn("news fetch failed", zap.String("language", lang), zap.Error(err))
		var up *news.UpstreamError
		switch {
		case errors.Is(err, news.ErrNotConfigured):
			return response.Fail(c, http.StatusServiceUnavailable, "News is not configured")
		case errors.As(err, &up):
			return response.Fail(c, http.StatusBadGateway, "Failed to fetch news")
		default:
			return response.Fail(c, http.StatusInternalServerError, "Failed to fetch news")
		}
	}
	return c.JSONBlob(http.StatusOK, body)
}
