package client

import (
	"net/url"
	"strings"
	"time"

	"github.com/kelsos/doc2x-cli/internal/backoff"
	"github.com/kelsos/doc2x-cli/internal/config"
)

// APIClient handles all HTTP communication with the Doc2x API
type APIClient struct {
	config    *config.Config
	transport Transport
	backoff   *backoff.Policy
	sleep     backoff.Sleeper
}

// Option customizes an APIClient.
type Option func(*APIClient)

// WithTransport replaces the resty transport.
func WithTransport(t Transport) Option {
	return func(c *APIClient) { c.transport = t }
}

// WithBackoff replaces the retry delay policy.
func WithBackoff(p *backoff.Policy) Option {
	return func(c *APIClient) { c.backoff = p }
}

// WithSleeper replaces the sleep used between retries.
func WithSleeper(s backoff.Sleeper) Option {
	return func(c *APIClient) { c.sleep = s }
}

// NewAPIClient creates a new API client with the given configuration
func NewAPIClient(cfg *config.Config, opts ...Option) *APIClient {
	c := &APIClient{
		config:  cfg,
		backoff: backoff.New(),
		sleep:   backoff.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = NewRestyTransport()
	}
	return c
}

// Config returns the resolved configuration the client was built with.
func (c *APIClient) Config() *config.Config {
	return c.config
}

// Backoff returns the client's retry delay policy.
func (c *APIClient) Backoff() *backoff.Policy {
	return c.backoff
}

// Sleeper returns the client's sleep function.
func (c *APIClient) Sleeper() backoff.Sleeper {
	return c.sleep
}

// Timeout is the per-exchange deadline.
func (c *APIClient) Timeout() time.Duration {
	return c.config.HTTPTimeout
}

// BuildURL constructs a full URL for the given endpoint
func (c *APIClient) BuildURL(endpoint string, params map[string]string) string {
	return BuildURLWithParams(strings.TrimRight(c.config.BaseURL, "/")+endpoint, params)
}

// BuildURLWithParams properly builds a URL with query parameters
func BuildURLWithParams(endpoint string, params map[string]string) string {
	if len(params) == 0 {
		return endpoint
	}

	baseURL, rawQuery, _ := strings.Cut(endpoint, "?")

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		values = url.Values{}
	}
	for key, value := range params {
		values.Set(key, value)
	}

	return baseURL + "?" + values.Encode()
}
