// Package gateway sends every backend request. It resolves paths against one
// base address, runs the pre-send hook chain (bearer token, request id) and
// turns non-2xx responses into *APIError.
//
// There is no response interceptor: callers decide what a 401 means.
package gateway

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
	"unicode"

	"github.com/google/uuid"

	"qrguard/internal/observability"
	"qrguard/internal/tokenstore"
)

// RequestIDHeader carries the per-request id.
const RequestIDHeader = "X-Request-ID"

// Hook runs on every outgoing request before it is sent.
type Hook func(req *http.Request) error

// AuthHook sets the bearer token from src when one is stored.
func AuthHook(src tokenstore.Source) Hook {
	return func(req *http.Request) error {
		if tok := src.Token(req.Context()); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		return nil
	}
}

// Client is the request gateway.
type Client struct {
	base  *url.URL
	http  *http.Client
	hooks []Hook
	log   *observability.RequestLogger
}

// New creates a Client for baseURL. When tokens is non-nil the auth hook is
// installed first. A nil httpClient uses a client with a 30s timeout.
func New(baseURL string, httpClient *http.Client, tokens tokenstore.Source, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{base: u, http: httpClient, log: observability.NewRequestLogger(logger)}
	if tokens != nil {
		c.hooks = append(c.hooks, AuthHook(tokens))
	}
	return c, nil
}

// Use appends h to the hook chain.
func (c *Client) Use(h Hook) {
	c.hooks = append(c.hooks, h)
}

// URL resolves path and query against the base address.
func (c *Client) URL(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = query.Encode()
	return u.String()
}

// WebSocketURL is URL with the scheme switched to ws or wss.
func (c *Client) WebSocketURL(path string, query url.Values) string {
	raw := c.URL(path, query)
	if strings.HasPrefix(raw, "https://") {
		return "wss://" + strings.TrimPrefix(raw, "https://")
	}
	return "ws://" + strings.TrimPrefix(raw, "http://")
}

// Token returns the bearer token the auth hook would send, or "".
func (c *Client) Token(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String(), nil)
	if err != nil {
		return ""
	}
	for _, h := range c.hooks {
		if err := h(req); err != nil {
			return ""
		}
	}
	return strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
}

// Get sends a GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.JSON(ctx, http.MethodGet, path, query, nil, out)
}

// Post sends body as JSON.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.JSON(ctx, http.MethodPost, path, nil, body, out)
}

// Put sends body as JSON.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.JSON(ctx, http.MethodPut, path, nil, body, out)
}

// Delete sends a DELETE.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.JSON(ctx, http.MethodDelete, path, nil, nil, out)
}

// JSON sends body (if non-nil) as JSON and decodes a JSON response into out
// (if non-nil).
func (c *Client) JSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var r io.Reader
	contentType := ""
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		r = bytes.NewReader(buf)
		contentType = "application/json"
	}
	return c.Do(ctx, method, path, query, r, contentType, out)
}

// Do sends one request. It is the only place that touches the network.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	route := routeLabel(path)
	start := time.Now()

	requestID := uuid.NewString()
	ctx = observability.WithRequestID(ctx, requestID)
	ctx, span := observability.StartClientSpan(ctx, method, route)

	status, err := c.do(ctx, method, path, query, body, contentType, requestID, out)

	observability.EndSpan(span, status, err)
	observability.ObserveRequest(method, route, status, start)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType, requestID string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path, query), body)
	if err != nil {
		return 0, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	observability.InjectHeaders(ctx, req.Header)

	for _, h := range c.hooks {
		if err := h(req); err != nil {
			return 0, fmt.Errorf("%s %s: pre-send hook: %w", method, path, err)
		}
	}
	authenticated := req.Header.Get("Authorization") != ""
	if !authenticated {
		observability.GatewayUnauthenticatedTotal.Inc()
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.LogTransportError(ctx, method, path, err)
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.log.LogRequest(ctx, method, path, resp.StatusCode, authenticated)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read %s %s response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, NewAPIError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return resp.StatusCode, nil
}

// IsTransport reports an error that never reached the backend or never
// produced a response, as opposed to an *APIError.
func IsTransport(err error) bool {
	var apiErr *APIError
	return err != nil && !errors.As(err, &apiErr)
}

// routeLabel collapses id segments (all digits or a UUID) so metric labels
// stay bounded. Names like v1 are kept.
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if isIDSegment(p) {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

func isIDSegment(p string) bool {
	if p == "" {
		return false
	}
	if strings.IndexFunc(p, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		return true
	}
	if len(p) != 36 {
		return false
	}
	_, err := uuid.Parse(p)
	return err == nil
}
