package middleware

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/farmwise/internal/config"
)

// bodyRecorder tees the response body into buf (up to limit bytes).
type bodyRecorder struct {
	http.ResponseWriter
	status    int
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func (w *bodyRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	if !w.truncated {
		if w.limit > 0 && int64(w.buf.Len()+len(b)) > w.limit {
			w.truncated = true
		} else {
			w.buf.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

func cacheKey(cfg config.CacheConfig, ns string, c echo.Context) string {
	r := c.Request()
	var tail string
	switch strings.ToLower(cfg.KeyStrategy) {
	case "route":
		tail = c.Path()
	case "method_route":
		tail = r.Method + " " + c.Path()
	case "method_route_query":
		tail = r.Method + " " + c.Path() + "?" + r.URL.RawQuery
	default:
		tail = c.Path() + "?" + r.URL.RawQuery
	}
	return namespacePrefix(cfg, ns) + strconv.FormatUint(xxhash.Sum64String(tail), 16)
}

func namespacePrefix(cfg config.CacheConfig, ns string) string {
	return cfg.Prefix + ":" + ns + ":"
}

// cached layout: [4 bytes status][4 bytes header json length][header json][body]
func packResponse(status int, h http.Header, body []byte) ([]byte, error) {
	hj, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8, 8+len(hj)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hj)))
	out = append(out, hj...)
	return append(out, body...), nil
}

func unpackResponse(bs []byte) (int, http.Header, []byte, bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status := int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	h := make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &h); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, h, bs[8+hlen:], true
}

// ResponseCache replays cached 200 responses from Redis.  Keys are grouped
// by namespace so a write can drop every cached variant of a listing.  A nil
// *ResponseCache, a disabled config or a nil client caches nothing.
type ResponseCache struct {
	cfg config.CacheConfig
	rdb *redis.Client
}

func NewResponseCache(cfg config.CacheConfig, rdb *redis.Client) *ResponseCache {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}
	return &ResponseCache{cfg: cfg, rdb: rdb}
}

func (rc *ResponseCache) active() bool {
	return rc != nil && rc.cfg.Enabled && rc.rdb != nil
}

// For returns middleware caching responses under namespace ns.  It is
// attached only to anonymous read endpoints (expert listing, news).
func (rc *ResponseCache) For(ns string) echo.MiddlewareFunc {
	if !rc.active() {
		return passThrough
	}
	cfg, rdb := rc.cfg, rc.rdb
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[c.Request().Method] {
				return next(c)
			}
			key := cacheKey(cfg, ns, c)
			if bs, err := rdb.Get(c.Request().Context(), key).Bytes(); err == nil {
				if status, h, body, ok := unpackResponse(bs); ok {
					for k, vs := range h {
						if strings.EqualFold(k, echo.HeaderContentLength) {
							continue
						}
						for _, v := range vs {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					return c.Blob(status, h.Get(echo.HeaderContentType), body)
				}
			}

			rec := &bodyRecorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(cfg.MaxBodyBytes)}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if rec.status != http.StatusOK || rec.truncated {
				return nil
			}
			h := c.Response().Header().Clone()
			h.Del("X-Cache")
			if payload, err := packResponse(rec.status, h, rec.buf.Bytes()); err == nil {
				_ = rdb.SetEx(context.Background(), key, payload, cfg.TTL).Err()
			}
			return nil
		}
	}
}

// Invalidate deletes every cached response stored under the given
// namespaces.
func (rc *ResponseCache) Invalidate(ctx context.Context, namespaces ...string) error {
	if !rc.active() {
		return nil
	}
	for _, ns := range namespaces {
		var keys []string
		iter := rc.rdb.Scan(ctx, 0, namespacePrefix(rc.cfg, ns)+"*", 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := rc.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}
