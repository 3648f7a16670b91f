package repo

import (
	"context"
	"database/sql"

	"duckpond/internal/domain"
)

func (r Repo) InsertDebugSession(ctx context.Context, tx *sql.Tx, s domain.DebugSession) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO debug_sessions(problem,advice,status,created_at,updated_at) VALUES (?,?,?,?,?)`,
		s.Problem, s.Advice, s.Status, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetDebugSession(ctx context.Context, id int64) (domain.DebugSession, error) {
	var s domain.DebugSession
	err := r.DB.QueryRowContext(ctx, `SELECT id,problem,advice,status,created_at,updated_at FROM debug_sessions WHERE id=?`, id).
		Scan(&s.ID, &s.Problem, &s.Advice, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) SetDebugSessionStatus(ctx context.Context, tx *sql.Tx, id int64, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE debug_sessions SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListDebugSessions(ctx context.Context, limit int) ([]domain.DebugSession, error) {
	query := `SELECT id,problem,advice,status,created_at,updated_at FROM debug_sessions ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DebugSession
	for rows.Next() {
		var s domain.DebugSession
		if err := rows.Scan(&s.ID, &s.Problem, &s.Advice, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}
