package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/farmwise/internal/middleware"
	"github.com/iliyamo/farmwise/internal/model"
	"github.com/iliyamo/farmwise/internal/repository"
	"github.com/iliyamo/farmwise/internal/response"
	"github.com/iliyamo/farmwise/internal/storage"
)

// opTimeout bounds every persistence call made on behalf of a request.
const opTimeout = 5 * time.Second

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), opTimeout)
}

// ownerOrAdmin allows the owner of a resource or any admin.
func ownerOrAdmin(c echo.Context, ownerID string) error {
	if ownerID != "" && middleware.UserID(c) == ownerID {
		return nil
	}
	if middleware.Role(c) == string(model.UserTypeAdmin) {
		return nil
	}
	return repository.ErrForbidden
}

// formFile uploads the first multipart file found under one of fields into
// folder.  It returns nil, nil when the request carries none of them.
func formFile(c echo.Context, up storage.Uploader, folder string, maxBytes int64, fields ...string) (*string, error) {
	if !isMultipart(c) {
		return nil, nil
	}
	var fh *multipart.FileHeader
	for _, field := range fields {
		f, err := c.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return nil, err
		}
		fh = f
		break
	}
	if fh == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()
	u, err := storage.UploadMultipart(ctx, up, folder, fh, maxBytes)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// uploadFailed answers a failed upload; storage sentinels become client
// errors, anything else is a 500.
func uploadFailed(c echo.Context, err error) error {
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		return response.Fail(c, http.StatusRequestEntityTooLarge, "file too large")
	case errors.Is(err, storage.ErrDisabled):
		return response.Fail(c, http.StatusServiceUnavailable, "uploads are disabled")
	default:
		return response.Fail(c, http.StatusInternalServerError, "upload failed")
	}
}

func isMultipart(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

func isJSON(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
}

// formPtr returns the value of key when the form carries it, even if empty.
func formPtr(v url.Values, key string) *string {
	vals, ok := v[key]
	if !ok || len(vals) == 0 {
		return nil
	}
	s := vals[0]
	return &s
}

// blankToNil maps "" to nil so optional references are stored as NULL.
func blankToNil(p *string) *string {
	if p == nil || strings.TrimSpace(*p) == "" {
		return nil
	}
	return p
}
