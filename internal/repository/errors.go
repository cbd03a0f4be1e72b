// Package repository holds the MySQL backed stores and the sentinel errors
// shared by every layer above them.  Handlers map the sentinels onto HTTP
// status codes; the realtime layer maps any store error onto a generic
// submit-error event.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrValidation is returned when input is structurally invalid, such as a
// message without a body.  Handlers translate it into HTTP 400.
var ErrValidation = errors.New("validation failed")

// ErrUnauthenticated signals missing or bad credentials (HTTP 401).
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrNotFound is returned when the addressed row does not exist (HTTP 404).
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with existing state, such
// as a duplicate username or a second expert profile for the same user.
// Handlers should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// isDuplicateKey reports whether err is a MySQL 1062 duplicate entry error.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
