// Package client talks to the remote storefront services: the cart, order and
// user API and the product catalog API. Every call is a single request and a
// single response; nothing is retried.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	models "storefront/model"
)

// maxErrorBody bounds how much of an error response is read for its text.
const maxErrorBody = 64 << 10

// Client is the shared REST plumbing behind the typed clients.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = &http.Client{Timeout: d} }
}

// New returns a Client rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// request describes one call. fallback is the message used when the server
// answers with an error but no text.
type request struct {
	method   string
	path     string
	query    url.Values
	header   http.Header
	body     any
	out      any
	fallback string
}

func (c *Client) do(ctx context.Context, r request) error {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		buf, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", r.method, r.path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", r.method, r.path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("remote call failed",
			zap.String("method", r.method), zap.String("path", r.path), zap.Error(err))
		return &models.Error{Kind: models.KindUnknown, Message: r.fallback, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("remote call",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(text))
		if resp.StatusCode == http.StatusUnauthorized {
			e := models.RemoteError(resp.StatusCode, msg, r.fallback)
			e.Kind = models.KindAuth
			return e
		}
		return models.RemoteError(resp.StatusCode, msg, r.fallback)
	}

	if r.out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &models.Error{Kind: models.KindUnknown, Message: r.fallback, Err: fmt.Errorf("read %s: %w", r.path, err)}
	}
	// an empty success body leaves out untouched
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, r.out); err != nil {
		return &models.Error{Kind: models.KindUnknown, Message: r.fallback, Err: fmt.Errorf("decode %s: %w", r.path, err)}
	}
	return nil
}

func tokenQuery(token string) url.Values {
	return url.Values{"token": []string{token}}
}
