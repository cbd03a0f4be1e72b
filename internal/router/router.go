// Package router wires handlers and middleware onto an echo instance.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/farmwise/internal/config"
	"github.com/iliyamo/farmwise/internal/handler"
	"github.com/iliyamo/farmwise/internal/middleware"
)

// APIPrefix is the root of every REST route.
const APIPrefix = "/api/v1"

// Handlers are the controllers mounted by New.
type Handlers struct {
	Users    *handler.UserHandler
	Blogs    *handler.BlogHandler
	Messages *handler.MessageHandler
	Experts  *handler.ExpertHandler
	Bookings *handler.BookingHandler
	News     *handler.NewsHandler
	Realtime http.Handler
	DB       handler.Pinger
}

// Options carries the cross-cutting settings.  A nil Redis client turns the
// rate limiter into pass-through middleware; a nil Cache caches nothing.
type Options struct {
	AccessSecret string
	CORSOrigin   string
	RateLimit    config.RateLimitConfig
	Cache        *middleware.ResponseCache
	Redis        *redis.Client
	Gatherer     prometheus.Gatherer
	Log          *zap.Logger
}

// New builds the HTTP server: global middleware, operational endpoints,
// the websocket upgrade and the /api/v1 groups.
func New(h Handlers, o Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(o.Log))
	e.Use(echomw.CORSWithConfig(corsConfig(o.CORSOrigin)))

	RegisterRoutes(e, h, o.Gatherer)

	api := e.Group(APIPrefix, middleware.NewTokenBucket(o.RateLimit, o.Redis, o.Log))
	RegisterUsers(api, h.Users, o.AccessSecret)
	RegisterBlogs(api, h.Blogs, o.AccessSecret)
	RegisterMessages(api, h.Messages, o.AccessSecret)
	RegisterExperts(api, h.Experts, o.AccessSecret, o.Cache.For(handler.ExpertsCacheNamespace))
	RegisterBookings(api, h.Bookings, o.AccessSecret)
	RegisterNews(api, h.News, o.Cache.For("news"))
	return e
}

// RegisterRoutes mounts the unauthenticated operational endpoints and the
// websocket upgrade, which authenticates in its own handshake.
func RegisterRoutes(e *echo.Echo, h Handlers, g prometheus.Gatherer) {
	e.GET("/healthz", handler.Health(h.DB))
	if g != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	}
	if h.Realtime != nil {
		e.GET("/ws", echo.WrapHandler(h.Realtime))
	}
}

func corsConfig(origin string) echomw.CORSConfig {
	cfg := echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, handler.AdminKeyHeader},
	}
	if origin != "" {
		cfg.AllowOrigins = []string{origin}
		cfg.AllowCredentials = true
	}
	return cfg
}
