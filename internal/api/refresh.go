package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/knowit/knowit/internal/domain"
)

// refreshCall is the shared handle for one in-flight token refresh.
// pair and err are written once, before done is closed.
type refreshCall struct {
	done chan struct{}
	pair *domain.TokenPair
	err  error
}

// refreshTokens coalesces concurrent refresh attempts. The first 401
// handler performs the exchange; every other caller that hits a 401
// while it is running waits on the same call and observes the same
// outcome. The handle is installed under the lock, before any I/O, so
// two near-simultaneous 401s cannot both reach the refresh endpoint.
func (c *Client) refreshTokens(ctx context.Context) (*domain.TokenPair, error) {
	c.mu.Lock()
	if call := c.inflight; call != nil {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.pair, call.err
		case <-ctx.Done():
			// This caller gives up waiting; the refresh itself keeps
			// running for everyone else.
			return nil, ctx.Err()
		}
	}
	call := &refreshCall{done: make(chan struct{})}
	c.inflight = call
	c.mu.Unlock()

	// Detached from the triggering caller's cancellation so one
	// caller's timeout cannot kill a refresh other callers await.
	call.pair, call.err = c.exchangeRefreshToken(context.WithoutCancel(ctx))

	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()
	close(call.done)

	return call.pair, call.err
}

// exchangeRefreshToken swaps the stored refresh token for a new pair.
// Any terminal failure clears the stored tokens so a stale pair can
// never be reused.
func (c *Client) exchangeRefreshToken(ctx context.Context) (*domain.TokenPair, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	refreshToken, err := c.creds.RefreshToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading refresh token: %w", err)
	}
	if refreshToken == "" {
		c.clearTokens(ctx)
		return nil, &Error{
			Kind:    KindNoRefreshToken,
			Status:  http.StatusUnauthorized,
			Message: "no refresh token stored",
		}
	}

	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, fmt.Errorf("encoding refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.refreshPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.clearTokens(ctx)
		return nil, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.clearTokens(ctx)
		return nil, fmt.Errorf("reading refresh response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.clearTokens(ctx)
		return nil, &Error{
			Kind:    KindAuthRequired,
			Status:  resp.StatusCode,
			Message: "refresh token rejected",
		}
	}

	var pair domain.TokenPair
	if err := json.Unmarshal(raw, &pair); err != nil {
		c.clearTokens(ctx)
		return nil, fmt.Errorf("decoding refresh response: %w", err)
	}

	if err := c.creds.SaveTokenPair(ctx, pair); err != nil {
		return nil, fmt.Errorf("persisting token pair: %w", err)
	}
	c.log.Debug("access token refreshed")
	return &pair, nil
}

func (c *Client) clearTokens(ctx context.Context) {
	if err := c.creds.ClearTokens(ctx); err != nil {
		c.log.Warn("clearing stored tokens", "error", err)
	}
}
