// Package catalog talks to the music catalog: it maintains a client
// credentials token and searches for artists and tracks.
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fretlog/fretlog/internal/config"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Credential is the bearer token currently handed to catalog requests.
// ExpiresAt is already reduced by the safety margin.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// AuthError reports a failed token exchange: the provider rejected the
// client credentials or could not be reached.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("catalog token exchange failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func (e *AuthError) Status() (int, string) {
	return http.StatusBadGateway, "catalog authentication failed"
}

// TokenManager hands out client credentials tokens, exchanging a new one
// only when the current token is inside the expiry margin. Concurrent callers
// that find the token expired wait on a single exchange.
type TokenManager struct {
	source oauth2.TokenSource
	margin time.Duration
}

var _ oauth2.TokenSource = (*TokenManager)(nil)

// NewTokenManager creates a manager for the configured client. The secret is
// supplied separately as it may have been decrypted at startup. httpClient is
// used for the exchange; nil selects http.DefaultClient.
func NewTokenManager(cfg config.CatalogConfig, secret string, httpClient *http.Client) *TokenManager {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	margin := max(cfg.TokenExpiryMargin(), config.MinimumTokenExpiryMargin)

	exchange := &exchangeSource{
		cfg: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: secret,
			TokenURL:     cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		client: httpClient,
	}

	return &TokenManager{
		source: oauth2.ReuseTokenSourceWithExpiry(nil, exchange, margin),
		margin: margin,
	}
}

// Token implements oauth2.TokenSource.
func (m *TokenManager) Token() (*oauth2.Token, error) {
	tok, err := m.source.Token()
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	return tok, nil
}

// Credential returns the current token with its usable lifetime.
func (m *TokenManager) Credential() (Credential, error) {
	tok, err := m.Token()
	if err != nil {
		return Credential{}, err
	}

	return Credential{
		Token:     tok.AccessToken,
		ExpiresAt: tok.Expiry.Add(-m.margin),
	}, nil
}

// exchangeSource performs one token exchange per call. Reuse is the job of
// the wrapping source.
type exchangeSource struct {
	cfg    *clientcredentials.Config
	client *http.Client
}

func (s *exchangeSource) Token() (*oauth2.Token, error) {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, s.client)

	tok, err := s.cfg.Token(ctx)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Time("expiry", tok.Expiry).
		Msg("catalog token refreshed")

	return tok, nil
}
