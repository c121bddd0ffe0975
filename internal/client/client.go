// ABOUTME: HTTP transport for the chat backend REST API
// ABOUTME: Shared request plumbing: JSON encoding, status classification, and error body extraction

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultModel is used when a prompt does not name a model.
const DefaultModel = "llama3-8b-8192"

// maxErrorBody caps how much of an error response is read for its message.
const maxErrorBody = 64 << 10

// Client talks to the chat backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.With("component", "client")
		}
	}
}

// WithClock sets the time source used for defaulted timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a client for the API rooted at baseURL, e.g. "http://localhost:8080/api".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		logger:     slog.Default().With("component", "client"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// endpoint joins path segments onto the base URL, escaping each one.
func (c *Client) endpoint(query url.Values, segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u := c.baseURL + "/" + strings.Join(escaped, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do performs a request and returns the body of a 2xx response.
// Every failure comes back as a *Error.
func (c *Client) do(ctx context.Context, op, method, url string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshaling request: %w", op, err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "op", op, "method", method, "url", url, "error", err)
		return nil, &Error{Kind: ErrNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &Error{
			Kind:       kindForStatus(resp.StatusCode),
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data),
		}
		c.logger.Debug("request rejected",
			"op", op,
			"status", resp.StatusCode,
			"message", apiErr.Message)
		return nil, apiErr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: ErrNetwork, Op: op, Err: fmt.Errorf("reading response: %w", err)}
	}

	c.logger.Debug("request completed",
		"op", op,
		"status", resp.StatusCode,
		"duration", c.now().Sub(start))
	return data, nil
}

// errorMessage pulls a human-readable message out of an error body.
func errorMessage(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if gjson.ValidBytes(data) {
		parsed := gjson.ParseBytes(data)
		for _, key := range []string{"message", "error", "detail"} {
			if v := parsed.Get(key); v.Type == gjson.String && v.Str != "" {
				return v.Str
			}
		}
		return ""
	}
	text := strings.TrimSpace(string(data))
	if len(text) > 200 {
		text = text[:197] + "..."
	}
	return text
}

// decodeArray parses a JSON array body. A null or empty body is an empty array.
func decodeArray(op string, data []byte) ([]gjson.Result, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(trimmed) {
		return nil, &Error{Kind: ErrServer, Op: op, Err: errors.New("invalid JSON response")}
	}
	parsed := gjson.ParseBytes(trimmed)
	switch {
	case parsed.Type == gjson.Null:
		return nil, nil
	case parsed.IsArray():
		return parsed.Array(), nil
	default:
		return nil, &Error{Kind: ErrServer, Op: op, Err: fmt.Errorf("expected JSON array, got %s", parsed.Type)}
	}
}

// decodeObject parses a JSON object body.
func decodeObject(op string, data []byte) (gjson.Result, error) {
	trimmed := bytes.TrimSpace(data)
	if !gjson.ValidBytes(trimmed) {
		return gjson.Result{}, &Error{Kind: ErrServer, Op: op, Err: errors.New("invalid JSON response")}
	}
	parsed := gjson.ParseBytes(trimmed)
	if !parsed.IsObject() {
		return gjson.Result{}, &Error{Kind: ErrServer, Op: op, Err: fmt.Errorf("expected JSON object, got %s", parsed.Type)}
	}
	return parsed, nil
}

// stringField returns the field as a string, accepting numeric ids.
func stringField(r gjson.Result, key string) (string, bool) {
	v := r.Get(key)
	switch v.Type {
	case gjson.String:
		return v.Str, v.Str != ""
	case gjson.Number:
		return v.Raw, true
	default:
		return "", false
	}
}
