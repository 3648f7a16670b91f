// Package tokens manages stored Spotify credentials and refreshes access
// tokens on demand.
package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"duckpond/internal/domain"
	"duckpond/internal/repo"
	"duckpond/internal/spotify"
)

// ErrNotConnected means no credential row exists for the user.
var ErrNotConnected = errors.New("spotify not connected")

// RefreshError marks a failed refresh grant against the account service,
// so callers can tell upstream failures apart from storage errors.
type RefreshError struct {
	Err error
}

func (e RefreshError) Error() string { return fmt.Sprintf("refresh token: %v", e.Err) }

func (e RefreshError) Unwrap() error { return e.Err }

// Provider performs the OAuth grants against the account service.
type Provider interface {
	ExchangeCode(ctx context.Context, code string) (spotify.Token, error)
	Refresh(ctx context.Context, refreshToken string) (spotify.Token, error)
}

type Manager struct {
	DB       *sql.DB
	Repo     repo.Repo
	Provider Provider
	Now      func() time.Time
	Log      zerolog.Logger
}

func (m Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Authorize exchanges an authorization code and stores the credential,
// replacing any existing one for the user.
func (m Manager) Authorize(ctx context.Context, userID, code string) (domain.SpotifyCredential, error) {
	tok, err := m.Provider.ExchangeCode(ctx, code)
	if err != nil {
		return domain.SpotifyCredential{}, fmt.Errorf("exchange code: %w", err)
	}
	now := m.now().UTC()
	cred := domain.SpotifyCredential{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(tok.ExpiresIn) * time.Second).Format(time.RFC3339),
		CreatedAt:    now.Format(time.RFC3339),
		UpdatedAt:    now.Format(time.RFC3339),
	}
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SpotifyCredential{}, err
	}
	defer tx.Rollback()
	if err := m.Repo.UpsertSpotifyCredential(ctx, tx, cred); err != nil {
		return domain.SpotifyCredential{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SpotifyCredential{}, err
	}
	m.Log.Info().Str("user_id", userID).Msg("spotify credential stored")
	return cred, nil
}

// AccessToken returns a usable access token for the user, refreshing it
// first when the stored one has expired. Concurrent callers may both
// refresh; the last write wins and both tokens are valid.
func (m Manager) AccessToken(ctx context.Context, userID string) (string, error) {
	cred, err := m.Repo.GetSpotifyCredential(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrNotConnected
	}
	if err != nil {
		return "", err
	}
	expiresAt, err := time.Parse(time.RFC3339, cred.ExpiresAt)
	if err != nil {
		return "", fmt.Errorf("parse credential expiry: %w", err)
	}
	now := m.now().UTC()
	if now.Before(expiresAt) {
		return cred.AccessToken, nil
	}

	tok, err := m.Provider.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return "", RefreshError{Err: err}
	}
	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		refreshToken = cred.RefreshToken
	}
	newExpiry := now.Add(time.Duration(tok.ExpiresIn) * time.Second).Format(time.RFC3339)

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()
	if err := m.Repo.UpdateSpotifyAccessToken(ctx, tx, userID, tok.AccessToken, refreshToken, newExpiry, now.Format(time.RFC3339)); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	m.Log.Debug().Str("user_id", userID).Msg("spotify access token refreshed")
	return tok.AccessToken, nil
}
