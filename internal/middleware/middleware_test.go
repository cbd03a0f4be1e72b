package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/farmwise/internal/config"
	"github.com/iliyamo/farmwise/internal/model"
	"github.com/iliyamo/farmwise/internal/utils"
)

const secret = "mw-secret"

func protected(t *testing.T, mws ...echo.MiddlewareFunc) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"id": UserID(c), "role": Role(c)})
	}, mws...)
	return e
}

func accessToken(t *testing.T, role string, ttl int) string {
	t.Helper()
	at, err := utils.NewAccessToken(secret, "u1", role, ttl)
	require.NoError(t, err)
	return at.Token
}

func TestJWTAuth_Bearer(t *testing.T) {
	e := protected(t, JWTAuth(secret))
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken(t, "expert", 5))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"u1","role":"expert"}`, rec.Body.String())
}

func TestJWTAuth_Cookie(t *testing.T) {
	e := protected(t, JWTAuth(secret))
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: accessToken(t, "farmer", 5)})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWTAuth_Rejections(t *testing.T) {
	e := protected(t, JWTAuth(secret))
	cases := map[string]string{
		"":                                      "Unauthorized request",
		"Bearer " + accessToken(t, "farmer", -1): "Access token expired",
		"Bearer nonsense":                       "Invalid access token",
	}
	for header, msg := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"statusCode":401,"data":null,"message":"`+msg+`","success":false}`, rec.Body.String())
	}
}

func TestRequireRole(t *testing.T) {
	e := protected(t, JWTAuth(secret), RequireRole(model.UserTypeAdmin))

	for role, want := range map[string]int{"admin": http.StatusOK, "farmer": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+accessToken(t, role, 5))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, role)
	}
}

func TestCacheKey_QueryStrategy(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "fw:cache", KeyStrategy: "route_query"}
	key := func(target string) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
		c.SetPath("/api/v1/news")
		return cacheKey(cfg, "news", c)
	}
	assert.Equal(t, key("/api/v1/news?language=hi"), key("/api/v1/news?language=hi"))
	assert.NotEqual(t, key("/api/v1/news?language=hi"), key("/api/v1/news?language=mr"))
	assert.True(t, strings.HasPrefix(key("/api/v1/news"), "fw:cache:news:"))
}

func TestPackResponse(t *testing.T) {
	h := http.Header{"Content-Type": {"application/json"}}
	bs, err := packResponse(200, h, []byte(`{"ok":true}`))
	require.NoError(t, err)

	status, gotH, body, ok := unpackResponse(bs)
	require.True(t, ok)
	assert.Equal(t, 200, status)
	assert.Equal(t, "application/json", gotH.Get("Content-Type"))
	assert.Equal(t, `{"ok":true}`, string(body))

	_, _, _, ok = unpackResponse([]byte{0, 1})
	assert.False(t, ok)
}

func TestDisabledMiddlewaresPassThrough(t *testing.T) {
	e := protected(t,
		NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil, nil),
		NewResponseCache(config.CacheConfig{Enabled: true}, nil).For("me"),
	)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResponseCache_InvalidateWithoutRedis(t *testing.T) {
	var nilCache *ResponseCache
	assert.NoError(t, nilCache.Invalidate(context.Background(), "experts"))
	assert.NoError(t, NewResponseCache(config.CacheConfig{Enabled: true}, nil).Invalidate(context.Background(), "experts"))
}
