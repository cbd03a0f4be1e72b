// Package response writes the JSON envelope shared by every REST endpoint:
// {statusCode, data, message, success}.
package response

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/farmwise/internal/repository"
)

type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// OK writes a success envelope.
func OK(c echo.Context, status int, data any, msg string) error {
	return c.JSON(status, Envelope{StatusCode: status, Data: data, Message: msg, Success: status < 400})
}

// Fail writes an error envelope with no data.
func Fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, Envelope{StatusCode: status, Message: msg, Success: false})
}

// StatusOf maps a repository sentinel onto an HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, repository.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, repository.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as an envelope.  msg is used for known sentinels; an
// unexpected error always reads "internal error" so nothing leaks.
func Error(c echo.Context, err error, msg string) error {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return Fail(c, status, msg)
}
