package repo

import (
	"context"
	"database/sql"

	"duckpond/internal/domain"
)

func (r Repo) InsertFocusSession(ctx context.Context, tx *sql.Tx, s domain.FocusSession) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO focus_sessions(duration_minutes,task_description,completed,started_at,completed_at) VALUES (?,?,?,?,?)`,
		s.DurationMinutes, nullable(s.TaskDescription), boolToInt(s.Completed), s.StartedAt, nullableStringPtr(s.CompletedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetFocusSession(ctx context.Context, id int64) (domain.FocusSession, error) {
	var s domain.FocusSession
	var taskDescription, completedAt sql.NullString
	var completed int
	err := r.DB.QueryRowContext(ctx, `SELECT id,duration_minutes,task_description,completed,started_at,completed_at FROM focus_sessions WHERE id=?`, id).
		Scan(&s.ID, &s.DurationMinutes, &taskDescription, &completed, &s.StartedAt, &completedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Completed = completed != 0
	if taskDescription.Valid {
		s.TaskDescription = taskDescription.String
	}
	if completedAt.Valid {
		s.CompletedAt = &completedAt.String
	}
	return s, nil
}

func (r Repo) CompleteFocusSession(ctx context.Context, tx *sql.Tx, id int64, completedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE focus_sessions SET completed=1, completed_at=? WHERE id=?`, completedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FocusTotals aggregates all completed sessions.
func (r Repo) FocusTotals(ctx context.Context) (sessions, minutes int, err error) {
	err = r.DB.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(duration_minutes),0) FROM focus_sessions WHERE completed=1`).
		Scan(&sessions, &minutes)
	return sessions, minutes, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
