package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/farmwise/internal/model"
	"github.com/iliyamo/farmwise/internal/response"
)

// RequireRole lets the request through only when the role stored by
// JWTAuth is one of roles; otherwise it answers 403.
func RequireRole(roles ...model.UserType) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[string(r)] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !allowed[Role(c)] {
				return response.Fail(c, http.StatusForbidden, "forbidden")
			}
			return next(c)
		}
	}
}
