// Package control talks to a running fbrs server: liveness, shutdown and
// remote describe queries.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ngenohkevin/fbrs/internal/descriptor"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = 50 * time.Millisecond
)

// Status is the result of a ping
type Status struct {
	Running bool `json:"running"`
}

// APIError is a non-2xx response from the server
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Client is a control client for one server address
type Client struct {
	resty        *resty.Client
	pollInterval time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithToken sends token as a bearer credential on every request
func WithToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.resty.SetAuthToken(token)
		}
	}
}

// WithTimeout overrides the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.resty.SetTimeout(d)
	}
}

// WithPollInterval sets how often Stop and WaitRunning re-check the server
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = d
	}
}

// New creates a client for the server at baseURL, e.g. http://127.0.0.1:9432
func New(baseURL string, opts ...Option) *Client {
	// every request dials afresh; a ping after /stop must see a refusal
	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetCloseConnection(true).
		SetHeader("User-Agent", "fbrs-control/1.0")

	c := &Client{
		resty:        r,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping reports whether the server is running. A refused connection is
// not an error: it means the server is down.
func (c *Client) Ping(ctx context.Context) (Status, error) {
	resp, err := c.resty.R().SetContext(ctx).Get("/ping")
	if err != nil {
		if isRefused(err) {
			return Status{Running: false}, nil
		}
		return Status{}, fmt.Errorf("ping: %w", err)
	}
	if resp.IsError() {
		return Status{}, apiError(resp)
	}
	return Status{Running: true}, nil
}

// Stop asks the server to shut down and waits until it no longer answers.
// A server that is already down counts as stopped.
func (c *Client) Stop(ctx context.Context) error {
	resp, err := c.resty.R().SetContext(ctx).Get("/stop")
	if err != nil {
		if isRefused(err) {
			return nil
		}
		return fmt.Errorf("stop: %w", err)
	}
	if resp.IsError() {
		return apiError(resp)
	}

	return c.poll(ctx, false)
}

// WaitRunning blocks until the server answers a ping or ctx is done
func (c *Client) WaitRunning(ctx context.Context) error {
	return c.poll(ctx, true)
}

func (c *Client) poll(ctx context.Context, running bool) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		st, err := c.Ping(ctx)
		if err == nil && st.Running == running {
			return nil
		}

		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("%w: %w", ctx.Err(), err)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Query describes a path on the server and returns the raw JSON body
func (c *Client) Query(ctx context.Context, opts descriptor.Options) (json.RawMessage, error) {
	resp, err := c.resty.R().
		SetContext(ctx).
		SetQueryParams(queryParams(opts)).
		SetHeader("Accept", "application/json").
		Get("/")
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return json.RawMessage(resp.Body()), nil
}

func queryParams(opts descriptor.Options) map[string]string {
	params := make(map[string]string)
	if opts.Path != "" {
		params["path"] = opts.Path
	}
	if opts.IgnoreDotFiles {
		params["ignoreDotFiles"] = "true"
	}
	if opts.IgnoreUpDir {
		params["ignoreUpDir"] = "true"
	}
	if opts.IgnoreCurDir {
		params["ignoreCurDir"] = "true"
	}
	if opts.StatEach != nil {
		params["statEach"] = strconv.FormatBool(*opts.StatEach)
	}
	return params
}

func apiError(resp *resty.Response) error {
	return &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
}

func isRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
