package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
)

const defaultUserAgent = "Wayfarer/1.0 (+https://github.com/user/wayfarer)"

// Client is the HTTP client shared by all provider-backed tools. It retries
// transient failures and caches decoded responses by key.
type Client struct {
	rest  *resty.Client
	cache *cache.Cache
	retry *RetryPolicy
}

// ClientOptions configures NewClient. Zero values fall back to defaults.
type ClientOptions struct {
	Timeout    time.Duration
	CacheTTL   time.Duration
	MaxRetries int
}

// NewClient creates a Client.
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	retry := DefaultRetryPolicy()
	if opts.MaxRetries > 0 {
		retry.MaxAttempts = opts.MaxRetries + 1
	}

	rest := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", defaultUserAgent).
		SetHeader("Accept", "application/json")

	return &Client{
		rest:  rest,
		cache: cache.New(opts.CacheTTL, 2*opts.CacheTTL),
		retry: retry,
	}
}

// R starts a request bound to ctx.
func (c *Client) R(ctx context.Context) *resty.Request {
	return c.rest.R().SetContext(ctx)
}

// Do sends a request built by build, retrying transient failures, and
// decodes a 2xx JSON body into out. build is called once per attempt.
func (c *Client) Do(ctx context.Context, provider string, build func() (*resty.Response, error), out any) error {
	var body []byte
	err := c.retry.Execute(ctx, func() error {
		resp, err := build()
		if err != nil {
			return fmt.Errorf("%s request: %w", provider, err)
		}
		if resp.IsError() {
			return &StatusError{Provider: provider, Code: resp.StatusCode(), Body: resp.String()}
		}
		body = resp.Body()
		return nil
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse %s response: %w", provider, err)
	}
	return nil
}

// GetJSON issues a GET with query parameters and decodes the response.
func (c *Client) GetJSON(ctx context.Context, provider, url string, query map[string]string, headers map[string]string, out any) error {
	return c.Do(ctx, provider, func() (*resty.Response, error) {
		return c.R(ctx).SetQueryParams(query).SetHeaders(headers).Get(url)
	}, out)
}

// Cached returns the value stored under key, computing and storing it with
// fetch on a miss. Errors are not cached.
func Cached[T any](c *Client, key string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	if v, ok := c.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	v, err := fetch()
	if err != nil {
		return v, err
	}
	if ttl <= 0 {
		ttl = cache.DefaultExpiration
	}
	c.cache.Set(key, v, ttl)
	return v, nil
}
