package domain

// TokenPair holds the bearer credentials for an authenticated session.
// The two tokens are only valid together: they are persisted and
// replaced as one unit, never individually.
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresInSeconds int    `json:"expires_in"`
}

// User is the signed-in user's profile as reported by the server.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}
