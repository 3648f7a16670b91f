package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.BasePath != "/api" {
		t.Errorf("base_path = %s", cfg.Server.BasePath)
	}
	if cfg.AI.MaxTokens != 512 || cfg.AI.Temperature != 0.7 {
		t.Errorf("ai defaults = %d / %v", cfg.AI.MaxTokens, cfg.AI.Temperature)
	}
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
server:
  addr: 0.0.0.0:9000
spotify:
  client_id: yaml-id
webhooks:
  - url: https://example.com/hook
    events: [task.created]
`))
	if err != nil {
		t.Fatalf("FromYAML: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Errorf("addr = %s", cfg.Server.Addr)
	}
	// Unset fields keep defaults.
	if cfg.Server.BasePath != "/api" {
		t.Errorf("base_path = %s", cfg.Server.BasePath)
	}
	if cfg.Spotify.ClientID != "yaml-id" {
		t.Errorf("client_id = %s", cfg.Spotify.ClientID)
	}
	if len(cfg.Webhooks) != 1 || !cfg.Webhooks[0].IsEnabled() {
		t.Fatalf("webhooks = %+v", cfg.Webhooks)
	}
}

func TestSecretsComeFromEnv(t *testing.T) {
	t.Setenv("SPOTIFY_CLIENT_SECRET", "env-secret")
	t.Setenv("OPENROUTER_API_KEY", "env-key")
	cfg, err := FromYAML([]byte(`spotify: {client_id: cid}`))
	if err != nil {
		t.Fatalf("FromYAML: %v", err)
	}
	if cfg.Spotify.ClientSecret != "env-secret" {
		t.Errorf("client secret = %s", cfg.Spotify.ClientSecret)
	}
	if cfg.AI.APIKey != "env-key" {
		t.Errorf("api key = %s", cfg.AI.APIKey)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []string{
		`server: {addr: ""}`,
		`server: {base_path: "no-slash"}`,
		`ai: {max_tokens: 0}`,
		`ai: {temperature: 3}`,
		`webhooks: [{url: ""}]`,
	}
	for _, in := range cases {
		if _, err := FromYAML([]byte(in)); err == nil {
			t.Errorf("expected error for %s", in)
		}
	}
}

func TestLoadOptionalMissingFile(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	if err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg == nil || cfg.Server.Addr == "" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestPath(t *testing.T) {
	if got := Path("/tmp/ws"); got != filepath.Join("/tmp/ws", "duckpond.yml") {
		t.Errorf("path = %s", got)
	}
	if got := Path(""); got != filepath.Join(".", "duckpond.yml") {
		t.Errorf("empty workspace path = %s", got)
	}
}
