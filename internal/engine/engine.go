package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"duckpond/internal/ai"
	"duckpond/internal/config"
	"duckpond/internal/domain"
	"duckpond/internal/engine/tokens"
	"duckpond/internal/events"
	"duckpond/internal/repo"
	"duckpond/internal/spotify"
)

// Advisor generates debugging advice for a problem statement.
type Advisor interface {
	Advise(ctx context.Context, problem string) (string, error)
}

// Player is the music service surface the engine drives.
type Player interface {
	AuthURL(state string) string
	Playback(ctx context.Context, accessToken, action, playlistURI string) error
	Playlists(ctx context.Context, accessToken string) ([]spotify.Playlist, error)
}

// TokenSource resolves stored credentials into usable access tokens.
type TokenSource interface {
	Authorize(ctx context.Context, userID, code string) (domain.SpotifyCredential, error)
	AccessToken(ctx context.Context, userID string) (string, error)
}

// DefaultUserID is used when callers do not identify themselves.
const DefaultUserID = "default_user"

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Advisor Advisor
	Player  Player
	Tokens  TokenSource
	Config  *config.Config
	Log     zerolog.Logger
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config, log zerolog.Logger) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Log:    log,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title       string
	Description string
	Priority    string
	DueDate     string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, Invalidf("title is required")
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if !domain.ValidPriority(opts.Priority) {
		return domain.Task{}, Invalidf("invalid priority %q", opts.Priority)
	}
	now := e.stamp()
	t := domain.Task{
		Title:       opts.Title,
		Description: opts.Description,
		Status:      domain.TaskPending,
		Priority:    opts.Priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if opts.DueDate != "" {
		t.DueDate = &opts.DueDate
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertTask(ctx, tx, t)
	if err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	t.ID = id
	if err := e.Events.Append(ctx, tx, "task.created", "task", formatID(id), events.EventPayload{"title": t.Title, "priority": t.Priority}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return e.Repo.GetTask(ctx, id)
}

func (e Engine) ListTasks(ctx context.Context, filters repo.TaskFilters) ([]domain.Task, error) {
	if filters.Status != "" && !domain.ValidTaskStatus(filters.Status) {
		return nil, Invalidf("invalid status %q", filters.Status)
	}
	if filters.Priority != "" && !domain.ValidPriority(filters.Priority) {
		return nil, Invalidf("invalid priority %q", filters.Priority)
	}
	if filters.Limit <= 0 {
		filters.Limit = 10
	}
	return e.Repo.ListTasks(ctx, filters)
}

// TaskUpdateOptions carries a partial update. Nil fields are untouched.
type TaskUpdateOptions struct {
	ID          int64
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	DueDate     *string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	if opts.Title != nil && *opts.Title == "" {
		return domain.Task{}, Invalidf("title cannot be empty")
	}
	if opts.Status != nil && !domain.ValidTaskStatus(*opts.Status) {
		return domain.Task{}, Invalidf("invalid status %q", *opts.Status)
	}
	if opts.Priority != nil && !domain.ValidPriority(*opts.Priority) {
		return domain.Task{}, Invalidf("invalid priority %q", *opts.Priority)
	}

	t, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return domain.Task{}, err
	}
	if opts.Title != nil {
		t.Title = *opts.Title
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.Status != nil {
		t.Status = *opts.Status
	}
	if opts.Priority != nil {
		t.Priority = *opts.Priority
	}
	if opts.DueDate != nil {
		if *opts.DueDate == "" {
			t.DueDate = nil
		} else {
			t.DueDate = opts.DueDate
		}
	}
	t.UpdatedAt = e.stamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", "task", formatID(t.ID), events.EventPayload{"status": t.Status}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// DeleteTask removes a task and returns its last state.
func (e Engine) DeleteTask(ctx context.Context, id int64) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", "task", formatID(id), events.EventPayload{"title": t.Title}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// StartDebugSession records the problem and asks the advisor for help.
// Advisor failures degrade to canned advice so the session always starts.
func (e Engine) StartDebugSession(ctx context.Context, problem string) (domain.DebugSession, error) {
	if problem == "" {
		return domain.DebugSession{}, Invalidf("problem is required")
	}
	advice := ""
	if e.Advisor != nil {
		got, err := e.Advisor.Advise(ctx, problem)
		if err != nil {
			e.Log.Warn().Err(err).Msg("advisor unavailable, using fallback advice")
		} else {
			advice = got
		}
	}
	if advice == "" {
		advice = ai.FallbackAdvice
	}

	now := e.stamp()
	s := domain.DebugSession{
		Problem:   problem,
		Advice:    advice,
		Status:    domain.DebugActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DebugSession{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertDebugSession(ctx, tx, s)
	if err != nil {
		return domain.DebugSession{}, fmt.Errorf("insert debug session: %w", err)
	}
	s.ID = id
	if err := e.Events.Append(ctx, tx, "debug.started", "debug_session", formatID(id), events.EventPayload{}); err != nil {
		return domain.DebugSession{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DebugSession{}, err
	}
	return s, nil
}

func (e Engine) GetDebugSession(ctx context.Context, id int64) (domain.DebugSession, error) {
	return e.Repo.GetDebugSession(ctx, id)
}

func (e Engine) ListDebugSessions(ctx context.Context, limit int) ([]domain.DebugSession, error) {
	if limit <= 0 {
		limit = 10
	}
	return e.Repo.ListDebugSessions(ctx, limit)
}

// ResolveDebugSession marks a session resolved. Resolving an already
// resolved session is a no-op that returns the current state.
func (e Engine) ResolveDebugSession(ctx context.Context, id int64) (domain.DebugSession, error) {
	s, err := e.Repo.GetDebugSession(ctx, id)
	if err != nil {
		return domain.DebugSession{}, err
	}
	if s.Status == domain.DebugResolved {
		return s, nil
	}
	s.Status = domain.DebugResolved
	s.UpdatedAt = e.stamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DebugSession{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.SetDebugSessionStatus(ctx, tx, id, s.Status, s.UpdatedAt); err != nil {
		return domain.DebugSession{}, err
	}
	if err := e.Events.Append(ctx, tx, "debug.resolved", "debug_session", formatID(id), events.EventPayload{}); err != nil {
		return domain.DebugSession{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DebugSession{}, err
	}
	return s, nil
}

func (e Engine) StartFocusSession(ctx context.Context, durationMinutes int, taskDescription string) (domain.FocusSession, error) {
	if durationMinutes < 1 || durationMinutes > 180 {
		return domain.FocusSession{}, Invalidf("duration must be between 1 and 180 minutes")
	}
	s := domain.FocusSession{
		DurationMinutes: durationMinutes,
		TaskDescription: taskDescription,
		StartedAt:       e.stamp(),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.FocusSession{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertFocusSession(ctx, tx, s)
	if err != nil {
		return domain.FocusSession{}, fmt.Errorf("insert focus session: %w", err)
	}
	s.ID = id
	if err := e.Events.Append(ctx, tx, "focus.started", "focus_session", formatID(id), events.EventPayload{"duration_minutes": durationMinutes}); err != nil {
		return domain.FocusSession{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.FocusSession{}, err
	}
	return s, nil
}

func (e Engine) CompleteFocusSession(ctx context.Context, id int64) (domain.FocusSession, error) {
	s, err := e.Repo.GetFocusSession(ctx, id)
	if err != nil {
		return domain.FocusSession{}, err
	}
	if s.Completed {
		return s, nil
	}
	completedAt := e.stamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.FocusSession{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.CompleteFocusSession(ctx, tx, id, completedAt); err != nil {
		return domain.FocusSession{}, err
	}
	if err := e.Events.Append(ctx, tx, "focus.completed", "focus_session", formatID(id), events.EventPayload{"duration_minutes": s.DurationMinutes}); err != nil {
		return domain.FocusSession{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.FocusSession{}, err
	}
	s.Completed = true
	s.CompletedAt = &completedAt
	return s, nil
}

// FocusStats aggregates completed sessions. The days argument is echoed
// back as the reporting period but does not filter the aggregate.
func (e Engine) FocusStats(ctx context.Context, days int) (domain.FocusStats, error) {
	if days <= 0 {
		days = 7
	}
	sessions, minutes, err := e.Repo.FocusTotals(ctx)
	if err != nil {
		return domain.FocusStats{}, err
	}
	stats := domain.FocusStats{
		TotalSessions: sessions,
		TotalMinutes:  minutes,
		TotalHours:    math.Round(float64(minutes)/60*10) / 10,
		PeriodDays:    days,
	}
	if sessions > 0 {
		stats.AverageMinutes = int(math.Round(float64(minutes) / float64(sessions)))
	}
	return stats, nil
}

// SpotifyAuthURL builds a user authorization URL with a fresh state value.
func (e Engine) SpotifyAuthURL() (string, error) {
	if e.Player == nil {
		return "", errors.New("spotify not configured")
	}
	return e.Player.AuthURL(uuid.New().String()), nil
}

// ConnectSpotify finishes the OAuth flow for a user.
func (e Engine) ConnectSpotify(ctx context.Context, userID, code string) (domain.SpotifyCredential, error) {
	if code == "" {
		return domain.SpotifyCredential{}, Invalidf("code is required")
	}
	if userID == "" {
		userID = DefaultUserID
	}
	cred, err := e.Tokens.Authorize(ctx, userID, code)
	if err != nil {
		return domain.SpotifyCredential{}, UpstreamError{Op: "spotify authorize", Err: err}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SpotifyCredential{}, err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "spotify.connected", "spotify_credential", userID, events.EventPayload{}); err != nil {
		return domain.SpotifyCredential{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SpotifyCredential{}, err
	}
	return cred, nil
}

// userToken resolves an access token, defaulting the user identity. A
// failed refresh grant is an upstream failure, not an internal one.
func (e Engine) userToken(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		userID = DefaultUserID
	}
	token, err := e.Tokens.AccessToken(ctx, userID)
	var rerr tokens.RefreshError
	if errors.As(err, &rerr) {
		return "", UpstreamError{Op: "spotify token refresh", Err: err}
	}
	return token, err
}

// ControlPlayback validates the action, resolves a token for the user and
// forwards the command.
func (e Engine) ControlPlayback(ctx context.Context, userID, action, playlistURI string) error {
	if !domain.ValidPlaybackAction(action) {
		return Invalidf("invalid action %q", action)
	}
	token, err := e.userToken(ctx, userID)
	if err != nil {
		return err
	}
	if err := e.Player.Playback(ctx, token, action, playlistURI); err != nil {
		return UpstreamError{Op: "spotify playback", Err: err}
	}
	return nil
}

func (e Engine) ListPlaylists(ctx context.Context, userID string) ([]spotify.Playlist, error) {
	token, err := e.userToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	lists, err := e.Player.Playlists(ctx, token)
	if err != nil {
		return nil, UpstreamError{Op: "spotify playlists", Err: err}
	}
	return lists, nil
}

func (e Engine) ActivityLog(ctx context.Context, filters repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, filters)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
