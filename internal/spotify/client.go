// Package spotify implements the OAuth authorization-code flow and the
// small slice of the Web API the server needs.
package spotify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultAccountsURL = "https://accounts.spotify.com"
	defaultAPIURL      = "https://api.spotify.com/v1"
)

var scopes = []string{
	"user-read-playback-state",
	"user-modify-playback-state",
	"user-read-currently-playing",
	"playlist-read-private",
	"playlist-read-collaborative",
}

type Client struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	HTTP         *http.Client
	AccountsURL  string
	APIURL       string
	Log          zerolog.Logger
}

// Token is the result of a code exchange or refresh.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URI         string `json:"uri"`
}

func (c Client) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (c Client) accountsURL() string {
	if c.AccountsURL != "" {
		return c.AccountsURL
	}
	return defaultAccountsURL
}

func (c Client) apiURL() string {
	if c.APIURL != "" {
		return c.APIURL
	}
	return defaultAPIURL
}

// AuthURL builds the user authorization URL for the given state.
func (c Client) AuthURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", c.RedirectURI)
	q.Set("scope", strings.Join(scopes, " "))
	q.Set("state", state)
	return c.accountsURL() + "/authorize?" + q.Encode()
}

// ExchangeCode trades an authorization code for tokens.
func (c Client) ExchangeCode(ctx context.Context, code string) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.RedirectURI)
	return c.tokenRequest(ctx, form)
}

// Refresh trades a refresh token for a new access token. Spotify may omit
// a new refresh token, in which case Token.RefreshToken is empty.
func (c Client) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.tokenRequest(ctx, form)
}

func (c Client) tokenRequest(ctx context.Context, form url.Values) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.accountsURL()+"/api/token", strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.ClientID + ":" + c.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client().Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("spotify token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Token{}, fmt.Errorf("spotify token status %d: %s", resp.StatusCode, slurp)
	}
	var tok Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return Token{}, fmt.Errorf("decode spotify token response: %w", err)
	}
	return tok, nil
}

// Playback issues a playback control request. playlistURI is only used
// for the play action.
func (c Client) Playback(ctx context.Context, accessToken, action, playlistURI string) error {
	var method, path string
	var body io.Reader
	switch action {
	case "play":
		method, path = http.MethodPut, "/me/player/play"
		if playlistURI != "" {
			data, err := json.Marshal(map[string]string{"context_uri": playlistURI})
			if err != nil {
				return err
			}
			body = bytes.NewReader(data)
		}
	case "pause":
		method, path = http.MethodPut, "/me/player/pause"
	case "next":
		method, path = http.MethodPost, "/me/player/next"
	case "previous":
		method, path = http.MethodPost, "/me/player/previous"
	default:
		return fmt.Errorf("unknown playback action %q", action)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL()+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return fmt.Errorf("spotify playback request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("spotify playback status %d: %s", resp.StatusCode, slurp)
	}
	return nil
}

// Playlists fetches the user's playlists.
func (c Client) Playlists(ctx context.Context, accessToken string) ([]Playlist, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL()+"/me/playlists", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := c.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("spotify playlists request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("spotify playlists status %d: %s", resp.StatusCode, slurp)
	}
	var out struct {
		Items []Playlist `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode spotify playlists response: %w", err)
	}
	return out.Items, nil
}
