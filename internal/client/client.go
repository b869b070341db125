package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"harp/internal/api"
	"harp/internal/config"
	"harp/internal/history"
)

const (
	defaultRequestTimeout  = 15 * time.Second
	defaultPollInterval    = 1500 * time.Millisecond
	defaultBackoffInterval = 3 * time.Second
	maxErrorBody           = 64 << 10
)

// Client issues requests against the daemon API.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	requestTimeout  time.Duration
	pollInterval    time.Duration
	backoffInterval time.Duration
	sleeper         func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithPolling overrides the status polling cadence and the delay applied
// after a transient failure.
func WithPolling(interval, backoff time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
		if backoff > 0 {
			c.backoffInterval = backoff
		}
	}
}

// WithRequestTimeout bounds the small JSON requests. Uploads and downloads
// are bounded only by the caller's context.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.requestTimeout = timeout
		}
	}
}

// WithSleeper overrides how polling waits are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// New constructs a client for the daemon at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:         strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient:      &http.Client{},
		requestTimeout:  defaultRequestTimeout,
		pollInterval:    defaultPollInterval,
		backoffInterval: defaultBackoffInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds a client from the [client] config section.
func NewFromConfig(cfg *config.Config, opts ...Option) *Client {
	if cfg == nil {
		return New("http://127.0.0.1:8000", opts...)
	}
	base := []Option{WithPolling(cfg.PollInterval(), cfg.BackoffInterval())}
	return New(cfg.Client.APIURL, append(base, opts...)...)
}

// BaseURL returns the daemon address requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Status fetches the polling view of a job.
func (c *Client) Status(ctx context.Context, id string) (api.StatusResponse, error) {
	var resp api.StatusResponse
	err := c.getJSON(ctx, "/api/status/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Jobs lists the daemon's in-memory jobs, optionally filtered by status.
func (c *Client) Jobs(ctx context.Context, status string) ([]api.JobSummary, error) {
	query := url.Values{}
	if status = strings.TrimSpace(status); status != "" {
		query.Set("status", status)
	}
	var resp api.JobListResponse
	if err := c.getJSON(ctx, "/api/jobs", query, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// History returns the most recent finished jobs from the daemon's ledger.
func (c *Client) History(ctx context.Context, limit int) ([]history.Entry, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp api.HistoryResponse
	if err := c.getJSON(ctx, "/api/history", query, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Health returns daemon runtime information.
func (c *Client) Health(ctx context.Context) (api.DaemonStatus, error) {
	var resp api.DaemonStatus
	err := c.getJSON(ctx, "/api/health", nil, &resp)
	return resp, err
}

func (c *Client) endpoint(path string, query url.Values) string {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return endpoint
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return fmt.Errorf("harp api: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("harp api: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("harp api: read body: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := decodeJSON(body, out); err != nil {
		return fmt.Errorf("harp api: decode response: %w", err)
	}
	return nil
}

func decodeJSON(body []byte, out any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.New("empty body")
	}
	return json.Unmarshal(body, out)
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
