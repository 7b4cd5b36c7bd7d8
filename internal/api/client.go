// Package api is the authenticated HTTP client for the KnowIt
// backend. It attaches the stored bearer token to outgoing requests,
// recovers from a single 401 by refreshing the token pair, and
// coalesces concurrent refresh attempts into one network call.
package api

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
	"sync"
	"time"

	"github.com/knowit/knowit/internal/credentials"
)

const (
	defaultTimeout       = 15 * time.Second
	defaultUploadTimeout = 60 * time.Second
	defaultRefreshPath   = "/auth/refresh"
)

// Config carries the client's connection settings.
type Config struct {
	BaseURL       string
	RefreshPath   string
	Timeout       time.Duration
	UploadTimeout time.Duration
}

// Client issues requests against the KnowIt API. Safe for concurrent
// use; the in-flight refresh handle is owned by the instance, so
// separate clients (for example in tests) never share refresh state.
type Client struct {
	baseURL       string
	refreshPath   string
	timeout       time.Duration
	uploadTimeout time.Duration
	httpClient    *http.Client
	creds         credentials.Store
	log           *slog.Logger

	mu       sync.Mutex
	inflight *refreshCall
}

// New creates a client backed by the given credential store.
func New(cfg Config, creds credentials.Store, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		refreshPath:   cfg.RefreshPath,
		timeout:       cfg.Timeout,
		uploadTimeout: cfg.UploadTimeout,
		httpClient:    &http.Client{},
		creds:         creds,
		log:           logger,
	}
	if c.refreshPath == "" {
		c.refreshPath = defaultRefreshPath
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.uploadTimeout <= 0 {
		c.uploadTimeout = defaultUploadTimeout
	}
	return c
}

// Option tweaks a single request.
type Option func(*requestOptions)

type requestOptions struct {
	requiresAuth bool
	timeout      time.Duration
}

// WithoutAuth skips the Authorization header, for endpoints such as
// login and register.
func WithoutAuth() Option {
	return func(o *requestOptions) { o.requiresAuth = false }
}

// WithTimeout overrides the request deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *requestOptions) { o.timeout = d }
}

// Do performs a request and returns the raw response body. A 204
// yields a nil body. Struct and map bodies are JSON-encoded; a []byte
// body is sent as-is.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...Option) ([]byte, error) {
	var payload []byte
	contentType := ""
	switch b := body.(type) {
	case nil:
	case []byte:
		payload = b
	default:
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		payload = encoded
		contentType = "application/json"
	}

	o := requestOptions{requiresAuth: true, timeout: c.timeout}
	for _, opt := range opts {
		opt(&o)
	}
	return c.send(ctx, method, path, payload, contentType, o)
}

// DoJSON performs a request and decodes the response into out. A nil
// out or an empty body skips decoding.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out any, opts ...Option) error {
	raw, err := c.Do(ctx, method, path, body, opts...)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Kind: KindUnknown, Message: "decoding response body", cause: err}
	}
	return nil
}

// send runs the original request and, on a 401, the coordinated
// refresh followed by exactly one retry. The retry's outcome is
// returned as-is: a second 401 never triggers a second refresh.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, contentType string, o requestOptions) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	status, raw, err := c.roundTrip(reqCtx, method, path, payload, contentType, o.requiresAuth, "")
	if err != nil {
		return nil, classifyTransport(reqCtx, err)
	}

	if status == http.StatusUnauthorized && o.requiresAuth {
		pair, refreshErr := c.refreshTokens(reqCtx)
		switch {
		case refreshErr == nil:
			status, raw, err = c.roundTrip(reqCtx, method, path, payload, contentType, true, pair.AccessToken)
			if err != nil {
				return nil, classifyTransport(reqCtx, err)
			}
		case errors.Is(refreshErr, context.DeadlineExceeded) || errors.Is(refreshErr, context.Canceled):
			return nil, classifyTransport(reqCtx, refreshErr)
		default:
			var apiErr *Error
			if errors.As(refreshErr, &apiErr) && apiErr.Kind == KindNoRefreshToken {
				return nil, refreshErr
			}
			return nil, &Error{
				Kind:    KindAuthRequired,
				Status:  http.StatusUnauthorized,
				Message: "session expired, sign in again",
				cause:   refreshErr,
			}
		}
	}

	return finishResponse(status, raw)
}

// roundTrip performs one HTTP exchange. An empty tokenOverride means
// the stored access token is used; absence of a token simply omits the
// Authorization header and lets the server decide.
func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, contentType string, withAuth bool, tokenOverride string) (int, []byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if withAuth {
		token := tokenOverride
		if token == "" {
			token, err = c.creds.AccessToken(ctx)
			if err != nil {
				return 0, nil, fmt.Errorf("reading access token: %w", err)
			}
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
}

// classifyTransport maps transport failures onto the error taxonomy:
// deadline expiry is a timeout, any other transport error is a network
// failure, everything else is unknown.
func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return &Error{Kind: KindTimeout, Message: "request timed out", cause: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &Error{Kind: KindNetwork, Message: urlErr.Err.Error(), cause: err}
	}
	return &Error{Kind: KindUnknown, Message: err.Error(), cause: err}
}

// finishResponse turns a settled HTTP response into the caller-facing
// result. 204 is success with an empty body; other non-2xx statuses
// become REQUEST_FAILED, carrying the server's {code, message} when
// the body parses as JSON.
func finishResponse(status int, raw []byte) ([]byte, error) {
	if status == http.StatusNoContent {
		return nil, nil
	}
	if status >= 200 && status < 300 {
		return raw, nil
	}

	apiErr := &Error{
		Kind:    KindRequestFailed,
		Status:  status,
		Message: fmt.Sprintf("request failed with status %d", status),
	}
	var remote struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &remote) == nil {
		if remote.Code != "" {
			apiErr.Code = remote.Code
		}
		if remote.Message != "" {
			apiErr.Message = remote.Message
		}
	}
	return nil, apiErr
}
