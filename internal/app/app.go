// Package app wires the workspace, store, and collaborators into a ready
// engine. Shared by the serve, mcp, and CLI commands.
package app

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"duckpond/internal/ai"
	"duckpond/internal/config"
	"duckpond/internal/db"
	"duckpond/internal/engine"
	"duckpond/internal/engine/tokens"
	"duckpond/internal/migrate"
	"duckpond/internal/repo"
	"duckpond/internal/spotify"
)

// Setup opens the workspace database, runs migrations, and builds the
// engine with the Spotify and AI collaborators from config. The caller
// owns the returned DB handle.
func Setup(workspace string, cfg *config.Config, log zerolog.Logger) (engine.Engine, *sql.DB, error) {
	if cfg == nil {
		loaded, err := config.LoadOptional(workspace)
		if err != nil {
			return engine.Engine{}, nil, err
		}
		cfg = loaded
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return engine.Engine{}, nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, fmt.Errorf("migrate: %w", err)
	}

	eng := engine.New(conn, cfg, log)

	player := spotify.Client{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RedirectURI:  cfg.Spotify.RedirectURI,
		Log:          log,
	}
	eng.Player = player
	eng.Tokens = tokens.Manager{
		DB:       conn,
		Repo:     repo.Repo{DB: conn},
		Provider: player,
		Log:      log,
	}
	eng.Advisor = ai.Advisor{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
		Log:         log,
	}
	return eng, conn, nil
}
