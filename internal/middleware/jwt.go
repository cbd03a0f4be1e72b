package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/farmwise/internal/response"
	"github.com/iliyamo/farmwise/internal/utils"
)

// AccessCookie is the cookie that carries the access token for browsers.
const AccessCookie = "accessToken"

// JWTAuth validates the access token from the Authorization header
// ("Bearer <jwt>") or, failing that, the accessToken cookie, and stores
// the subject and role in the context under CtxUserID and CtxRole.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := utils.BearerToken(c.Request().Header.Get("Authorization"))
			if raw == "" {
				if ck, err := c.Cookie(AccessCookie); err == nil {
					raw = ck.Value
				}
			}
			if raw == "" {
				return response.Fail(c, http.StatusUnauthorized, "Unauthorized request")
			}
			claims, err := utils.ParseAccessToken(secret, raw)
			if errors.Is(err, utils.ErrTokenExpired) {
				return response.Fail(c, http.StatusUnauthorized, "Access token expired")
			}
			if err != nil {
				return response.Fail(c, http.StatusUnauthorized, "Invalid access token")
			}
			c.Set(CtxUserID, claims.UserID)
			c.Set(CtxRole, claims.Role)
			return next(c)
		}
	}
}
