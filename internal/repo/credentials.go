package repo

import (
	"context"
	"database/sql"

	"duckpond/internal/domain"
)

func (r Repo) UpsertSpotifyCredential(ctx context.Context, tx *sql.Tx, c domain.SpotifyCredential) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO spotify_credentials(user_id,access_token,refresh_token,expires_at,created_at,updated_at)
VALUES (?,?,?,?,?,?)
ON CONFLICT(user_id) DO UPDATE SET
  access_token=excluded.access_token,
  refresh_token=excluded.refresh_token,
  expires_at=excluded.expires_at,
  updated_at=excluded.updated_at`,
		c.UserID, c.AccessToken, c.RefreshToken, c.ExpiresAt, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetSpotifyCredential(ctx context.Context, userID string) (domain.SpotifyCredential, error) {
	var c domain.SpotifyCredential
	err := r.DB.QueryRowContext(ctx, `SELECT user_id,access_token,refresh_token,expires_at,created_at,updated_at FROM spotify_credentials WHERE user_id=?`, userID).
		Scan(&c.UserID, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) UpdateSpotifyAccessToken(ctx context.Context, tx *sql.Tx, userID, accessToken, refreshToken, expiresAt, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE spotify_credentials SET access_token=?, refresh_token=?, expires_at=?, updated_at=? WHERE user_id=?`,
		accessToken, refreshToken, expiresAt, updatedAt, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
