// Package news proxies agriculture news from a NewsAPI compatible upstream.
package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("news api key not configured")

// UpstreamError carries a non-retryable upstream status.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("news upstream returned %d", e.Status)
}

// per-language search terms for the "everything" endpoint
var queries = map[string]string{
	"en": "agriculture AND india",
	"hi": "कृषि OR खेती OR किसान",
	"mr": "शेती OR कृषी OR शेतकरी",
}

const pageSize = "30"

type Client struct {
	http       *http.Client
	baseURL    string
	apiKey     string
	maxElapsed time.Duration
}

func NewClient(baseURL, apiKey string) *Client {
	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
	return &Client{
		http:       &http.Client{Transport: tr, Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		maxElapsed: 8 * time.Second,
	}
}

// Everything searches recent articles in language (en, hi or mr; anything
// else falls back to en), newest first.
func (c *Client) Everything(ctx context.Context, language string) (json.RawMessage, error) {
	if _, ok := queries[language]; !ok {
		language = "en"
	}
	q := url.Values{}
	q.Set("q", queries[language])
	q.Set("language", language)
	q.Set("pageSize", pageSize)
	q.Set("sortBy", "publishedAt")
	return c.get(ctx, "/everything", q)
}

// Headlines returns Indian business headlines in English, or Hindi for any
// other language.
func (c *Client) Headlines(ctx context.Context, language string) (json.RawMessage, error) {
	if language != "en" {
		language = "hi"
	}
	q := url.Values{}
	q.Set("country", "in")
	q.Set("category", "business")
	q.Set("language", language)
	q.Set("pageSize", pageSize)
	return c.get(ctx, "/top-headlines", q)
}

// get retries transport errors, 429 and 5xx with exponential backoff; other
// statuses fail immediately.
func (c *Client) get(ctx context.Context, path string, q url.Values) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}
	q.Set("apiKey", c.apiKey)
	target := c.baseURL + path + "?" + q.Encode()

	var out json.RawMessage
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return err
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return &UpstreamError{Status: resp.StatusCode, Body: string(body)}
		case resp.StatusCode >= 300:
			return backoff.Permanent(&UpstreamError{Status: resp.StatusCode, Body: string(body)})
		}
		if !json.Valid(body) {
			return backoff.Permanent(fmt.Errorf("news upstream returned invalid json"))
		}
		out = body
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return out, nil
}
