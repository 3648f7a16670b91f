package tokens

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"duckpond/internal/db"
	"duckpond/internal/migrate"
	"duckpond/internal/repo"
	"duckpond/internal/spotify"
)

type fakeProvider struct {
	exchangeCalls int
	refreshCalls  int
	exchangeTok   spotify.Token
	refreshTok    spotify.Token
	refreshErr    error
}

func (f *fakeProvider) ExchangeCode(ctx context.Context, code string) (spotify.Token, error) {
	f.exchangeCalls++
	return f.exchangeTok, nil
}

func (f *fakeProvider) Refresh(ctx context.Context, refreshToken string) (spotify.Token, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return spotify.Token{}, f.refreshErr
	}
	return f.refreshTok, nil
}

func newTestManager(t *testing.T, p Provider) (Manager, *sql.DB) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	m := Manager{
		DB:       conn,
		Repo:     repo.Repo{DB: conn},
		Provider: p,
		Now:      func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
		Log:      zerolog.Nop(),
	}
	return m, conn
}

func TestAccessTokenMissingCredential(t *testing.T) {
	m, _ := newTestManager(t, &fakeProvider{})
	if _, err := m.AccessToken(context.Background(), "default_user"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestAuthorizeStoresCredential(t *testing.T) {
	p := &fakeProvider{exchangeTok: spotify.Token{AccessToken: "at1", RefreshToken: "rt1", ExpiresIn: 3600}}
	m, _ := newTestManager(t, p)

	cred, err := m.Authorize(context.Background(), "default_user", "code-1")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if cred.AccessToken != "at1" || cred.RefreshToken != "rt1" {
		t.Fatalf("cred = %+v", cred)
	}
	if cred.ExpiresAt != "2025-06-01T13:00:00Z" {
		t.Errorf("expires_at = %s", cred.ExpiresAt)
	}

	// Token is still fresh, so no refresh happens.
	tok, err := m.AccessToken(context.Background(), "default_user")
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if tok != "at1" {
		t.Errorf("token = %s", tok)
	}
	if p.refreshCalls != 0 {
		t.Errorf("refresh calls = %d, want 0", p.refreshCalls)
	}
}

func TestAuthorizeTwiceReplacesCredential(t *testing.T) {
	p := &fakeProvider{exchangeTok: spotify.Token{AccessToken: "at1", RefreshToken: "rt1", ExpiresIn: 3600}}
	m, conn := newTestManager(t, p)

	if _, err := m.Authorize(context.Background(), "default_user", "code-1"); err != nil {
		t.Fatal(err)
	}
	p.exchangeTok = spotify.Token{AccessToken: "at2", RefreshToken: "rt2", ExpiresIn: 3600}
	if _, err := m.Authorize(context.Background(), "default_user", "code-2"); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM spotify_credentials`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("credential rows = %d, want 1", count)
	}
	cred, err := m.Repo.GetSpotifyCredential(context.Background(), "default_user")
	if err != nil {
		t.Fatal(err)
	}
	if cred.AccessToken != "at2" || cred.RefreshToken != "rt2" {
		t.Fatalf("cred = %+v", cred)
	}
}

func TestAccessTokenRefreshesExpired(t *testing.T) {
	p := &fakeProvider{
		exchangeTok: spotify.Token{AccessToken: "old-at", RefreshToken: "rt1", ExpiresIn: 3600},
		refreshTok:  spotify.Token{AccessToken: "new-at", ExpiresIn: 3600},
	}
	m, _ := newTestManager(t, p)

	if _, err := m.Authorize(context.Background(), "default_user", "code-1"); err != nil {
		t.Fatal(err)
	}

	// Jump past the expiry.
	m.Now = func() time.Time { return time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC) }

	tok, err := m.AccessToken(context.Background(), "default_user")
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if tok != "new-at" {
		t.Errorf("token = %s", tok)
	}
	if p.refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", p.refreshCalls)
	}

	// Refresh response had no new refresh token, so the old one is kept.
	cred, err := m.Repo.GetSpotifyCredential(context.Background(), "default_user")
	if err != nil {
		t.Fatal(err)
	}
	if cred.RefreshToken != "rt1" {
		t.Errorf("refresh token = %s, want rt1", cred.RefreshToken)
	}
	if cred.AccessToken != "new-at" {
		t.Errorf("access token = %s", cred.AccessToken)
	}
	if cred.ExpiresAt != "2025-06-01T15:00:00Z" {
		t.Errorf("expires_at = %s", cred.ExpiresAt)
	}
}

func TestAccessTokenRefreshFailure(t *testing.T) {
	p := &fakeProvider{
		exchangeTok: spotify.Token{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 3600},
		refreshErr:  errors.New("upstream down"),
	}
	m, _ := newTestManager(t, p)
	if _, err := m.Authorize(context.Background(), "default_user", "code"); err != nil {
		t.Fatal(err)
	}
	m.Now = func() time.Time { return time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC) }
	_, err := m.AccessToken(context.Background(), "default_user")
	if err == nil {
		t.Fatal("expected error when refresh fails")
	}
	var rerr RefreshError
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %T %v, want RefreshError", err, err)
	}
	if rerr.Err == nil || rerr.Err.Error() != "upstream down" {
		t.Fatalf("wrapped err = %v", rerr.Err)
	}
}
