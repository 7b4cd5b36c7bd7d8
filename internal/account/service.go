// Package account handles sign-in, registration and sign-out against
// the KnowIt auth endpoints, persisting the session credentials.
package account

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/knowit/knowit/internal/api"
	"github.com/knowit/knowit/internal/credentials"
	"github.com/knowit/knowit/internal/domain"
)

// Service wraps the auth endpoints.
type Service struct {
	client *api.Client
	creds  credentials.Store
	log    *slog.Logger
}

// NewService creates an account service.
func NewService(client *api.Client, creds credentials.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, creds: creds, log: logger}
}

// sessionResponse is the shape of a successful login/register answer:
// a token pair alongside the user's profile.
type sessionResponse struct {
	domain.TokenPair
	User domain.User `json:"user"`
}

// Login exchanges credentials for a session. The token pair is
// persisted atomically and the profile is cached for offline display.
func (s *Service) Login(ctx context.Context, email, password string) (*domain.User, error) {
	return s.establishSession(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Register creates an account and signs the new user in.
func (s *Service) Register(ctx context.Context, email, password, name string) (*domain.User, error) {
	return s.establishSession(ctx, "/auth/register", map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
	})
}

func (s *Service) establishSession(ctx context.Context, path string, body map[string]string) (*domain.User, error) {
	var resp sessionResponse
	if err := s.client.DoJSON(ctx, http.MethodPost, path, body, &resp, api.WithoutAuth()); err != nil {
		return nil, err
	}

	if err := s.creds.SaveTokenPair(ctx, resp.TokenPair); err != nil {
		return nil, fmt.Errorf("persisting session: %w", err)
	}

	encoded, err := json.Marshal(resp.User)
	if err == nil {
		err = s.creds.SaveCachedUser(ctx, string(encoded))
	}
	if err != nil {
		// The session itself is established; a stale profile cache is
		// tolerable.
		s.log.Warn("caching user profile", "error", err)
	}

	return &resp.User, nil
}

// Logout tells the server to revoke the session, then wipes the local
// credentials regardless of whether the server call succeeded.
func (s *Service) Logout(ctx context.Context) error {
	if _, err := s.client.Do(ctx, http.MethodPost, "/auth/logout", nil); err != nil {
		s.log.Warn("server-side logout failed", "error", err)
	}

	if err := s.creds.ClearTokens(ctx); err != nil {
		return fmt.Errorf("clearing tokens: %w", err)
	}
	if err := s.creds.DeleteCachedUser(ctx); err != nil {
		return fmt.Errorf("clearing cached user: %w", err)
	}
	return nil
}

// CurrentUser returns the cached profile, or nil when signed out.
func (s *Service) CurrentUser(ctx context.Context) (*domain.User, error) {
	encoded, err := s.creds.CachedUser(ctx)
	if err != nil {
		return nil, err
	}
	if encoded == "" {
		return nil, nil
	}
	var user domain.User
	if err := json.Unmarshal([]byte(encoded), &user); err != nil {
		return nil, fmt.Errorf("decoding cached user: %w", err)
	}
	return &user, nil
}
