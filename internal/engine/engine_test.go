package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"duckpond/internal/ai"
	"duckpond/internal/config"
	"duckpond/internal/db"
	"duckpond/internal/domain"
	"duckpond/internal/engine/tokens"
	"duckpond/internal/migrate"
	"duckpond/internal/repo"
)

func newTestEnv(t *testing.T) Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := New(conn, config.Default(), zerolog.Nop())
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return eng
}

func TestCreateTaskDefaults(t *testing.T) {
	eng := newTestEnv(t)
	task, err := eng.CreateTask(context.Background(), TaskCreateOptions{Title: "Fix the pond filter"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.ID == 0 {
		t.Error("expected assigned id")
	}
	if task.Status != domain.TaskPending {
		t.Errorf("status = %s, want pending", task.Status)
	}
	if task.Priority != domain.PriorityMedium {
		t.Errorf("priority = %s, want medium", task.Priority)
	}
	if task.CreatedAt != "2025-06-01T12:00:00Z" || task.UpdatedAt != task.CreatedAt {
		t.Errorf("timestamps = %s / %s", task.CreatedAt, task.UpdatedAt)
	}
}

func TestCreateTaskEmptyTitle(t *testing.T) {
	eng := newTestEnv(t)
	_, err := eng.CreateTask(context.Background(), TaskCreateOptions{})
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestCreateTaskInvalidPriority(t *testing.T) {
	eng := newTestEnv(t)
	_, err := eng.CreateTask(context.Background(), TaskCreateOptions{Title: "x", Priority: "urgent"})
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestUpdateTaskPartial(t *testing.T) {
	eng := newTestEnv(t)
	task, err := eng.CreateTask(context.Background(), TaskCreateOptions{Title: "Clean the nest", Description: "spring cleaning", Priority: domain.PriorityHigh})
	if err != nil {
		t.Fatal(err)
	}

	eng.Now = func() time.Time { return time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC) }

	// Empty update only refreshes updated_at.
	got, err := eng.UpdateTask(context.Background(), TaskUpdateOptions{ID: task.ID})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if got.Title != task.Title || got.Description != task.Description || got.Priority != task.Priority || got.Status != task.Status {
		t.Errorf("empty update changed fields: %+v", got)
	}
	if got.UpdatedAt != "2025-06-02T09:00:00Z" {
		t.Errorf("updated_at = %s", got.UpdatedAt)
	}
	if got.CreatedAt != task.CreatedAt {
		t.Errorf("created_at changed to %s", got.CreatedAt)
	}

	status := domain.TaskCompleted
	got, err = eng.UpdateTask(context.Background(), TaskUpdateOptions{ID: task.ID, Status: &status})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.TaskCompleted {
		t.Errorf("status = %s", got.Status)
	}
	if got.Title != "Clean the nest" {
		t.Errorf("title = %s", got.Title)
	}
}

func TestUpdateTaskEmptyTitleRejected(t *testing.T) {
	eng := newTestEnv(t)
	task, err := eng.CreateTask(context.Background(), TaskCreateOptions{Title: "keep me"})
	if err != nil {
		t.Fatal(err)
	}
	empty := ""
	_, err = eng.UpdateTask(context.Background(), TaskUpdateOptions{ID: task.ID, Title: &empty})
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestListTasksFiltersAndOrder(t *testing.T) {
	eng := newTestEnv(t)
	ctx := context.Background()
	day := 0
	mk := func(title, priority string) domain.Task {
		eng.Now = func() time.Time { return time.Date(2025, 6, 1+day, 12, 0, 0, 0, time.UTC) }
		day++
		task, err := eng.CreateTask(ctx, TaskCreateOptions{Title: title, Priority: priority})
		if err != nil {
			t.Fatal(err)
		}
		return task
	}
	a := mk("a", domain.PriorityLow)
	b := mk("b", domain.PriorityHigh)
	c := mk("c", domain.PriorityHigh)

	status := domain.TaskInProgress
	if _, err := eng.UpdateTask(ctx, TaskUpdateOptions{ID: c.ID, Status: &status}); err != nil {
		t.Fatal(err)
	}

	// Newest first.
	all, err := eng.ListTasks(ctx, repo.TaskFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != c.ID || all[2].ID != a.ID {
		t.Fatalf("order = %v", ids(all))
	}

	// Filters are conjunctive.
	got, err := eng.ListTasks(ctx, repo.TaskFilters{Status: domain.TaskPending, Priority: domain.PriorityHigh})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != b.ID {
		t.Fatalf("filtered = %v", ids(got))
	}

	if _, err := eng.ListTasks(ctx, repo.TaskFilters{Status: "archived"}); err == nil {
		t.Fatal("expected error for invalid status filter")
	}
}

func ids(tasks []domain.Task) []int64 {
	out := make([]int64, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestDeleteTaskReturnsSnapshot(t *testing.T) {
	eng := newTestEnv(t)
	ctx := context.Background()
	task, err := eng.CreateTask(ctx, TaskCreateOptions{Title: "short lived"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := eng.DeleteTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if got.Title != "short lived" {
		t.Errorf("snapshot title = %s", got.Title)
	}
	if _, err := eng.GetTask(ctx, task.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
}

func TestDeleteTaskMissing(t *testing.T) {
	eng := newTestEnv(t)
	if _, err := eng.DeleteTask(context.Background(), 999999); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

type stubAdvisor struct {
	advice string
	err    error
}

func (s stubAdvisor) Advise(ctx context.Context, problem string) (string, error) {
	return s.advice, s.err
}

func TestStartDebugSessionWithAdvisor(t *testing.T) {
	eng := newTestEnv(t)
	eng.Advisor = stubAdvisor{advice: "Quack! Check the loop bounds."}
	s, err := eng.StartDebugSession(context.Background(), "off by one somewhere")
	if err != nil {
		t.Fatalf("StartDebugSession: %v", err)
	}
	if s.Advice != "Quack! Check the loop bounds." {
		t.Errorf("advice = %q", s.Advice)
	}
	if s.Status != domain.DebugActive {
		t.Errorf("status = %s", s.Status)
	}
}

func TestStartDebugSessionAdvisorDown(t *testing.T) {
	eng := newTestEnv(t)
	eng.Advisor = stubAdvisor{err: errors.New("timeout")}
	s, err := eng.StartDebugSession(context.Background(), "mystery crash")
	if err != nil {
		t.Fatalf("StartDebugSession: %v", err)
	}
	if s.Advice != ai.FallbackAdvice {
		t.Errorf("advice = %q, want fallback", s.Advice)
	}
	if s.Status != domain.DebugActive {
		t.Errorf("status = %s", s.Status)
	}
}

func TestStartDebugSessionEmptyProblem(t *testing.T) {
	eng := newTestEnv(t)
	var verr ValidationError
	if _, err := eng.StartDebugSession(context.Background(), ""); !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestResolveDebugSessionConverges(t *testing.T) {
	eng := newTestEnv(t)
	ctx := context.Background()
	eng.Advisor = stubAdvisor{advice: "quack"}
	s, err := eng.StartDebugSession(ctx, "flaky test")
	if err != nil {
		t.Fatal(err)
	}
	first, err := eng.ResolveDebugSession(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != domain.DebugResolved {
		t.Fatalf("status = %s", first.Status)
	}
	second, err := eng.ResolveDebugSession(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if second.Status != domain.DebugResolved || second.UpdatedAt != first.UpdatedAt {
		t.Errorf("second resolve = %+v, first = %+v", second, first)
	}
}

func TestStartFocusSessionDurationBounds(t *testing.T) {
	eng := newTestEnv(t)
	ctx := context.Background()
	for _, d := range []int{0, -5, 181} {
		var verr ValidationError
		if _, err := eng.StartFocusSession(ctx, d, ""); !errors.As(err, &verr) {
			t.Errorf("duration %d: err = %v, want ValidationError", d, err)
		}
	}
	for _, d := range []int{1, 180} {
		if _, err := eng.StartFocusSession(ctx, d, "deep work"); err != nil {
			t.Errorf("duration %d: %v", d, err)
		}
	}
}

func TestCompleteFocusSession(t *testing.T) {
	eng := newTestEnv(t)
	ctx := context.Background()
	s, err := eng.StartFocusSession(ctx, 25, "write docs")
	if err != nil {
		t.Fatal(err)
	}
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 25, 0, 0, time.UTC) }
	got, err := eng.CompleteFocusSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("CompleteFocusSession: %v", err)
	}
	if !got.Completed || got.CompletedAt == nil {
		t.Fatalf("session = %+v", got)
	}
	if *got.CompletedAt < got.StartedAt {
		t.Errorf("completed_at %s before started_at %s", *got.CompletedAt, got.StartedAt)
	}

	// Completing again is a no-op.
	again, err := eng.CompleteFocusSession(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if *again.CompletedAt != *got.CompletedAt {
		t.Errorf("completed_at changed on second complete")
	}
}

func TestFocusStatsAggregates(t *testing.T) {
	eng := newTestEnv(t)
	ctx := context.Background()
	for _, d := range []int{10, 20, 30} {
		s, err := eng.StartFocusSession(ctx, d, "")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := eng.CompleteFocusSession(ctx, s.ID); err != nil {
			t.Fatal(err)
		}
	}
	// An incomplete session does not count.
	if _, err := eng.StartFocusSession(ctx, 60, ""); err != nil {
		t.Fatal(err)
	}

	stats, err := eng.FocusStats(ctx, 30)
	if err != nil {
		t.Fatalf("FocusStats: %v", err)
	}
	if stats.TotalSessions != 3 || stats.TotalMinutes != 60 || stats.AverageMinutes != 20 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.TotalHours != 1.0 {
		t.Errorf("total_hours = %v", stats.TotalHours)
	}
	if stats.PeriodDays != 30 {
		t.Errorf("period_days = %d", stats.PeriodDays)
	}
}

func TestFocusStatsAverageRoundsToNearest(t *testing.T) {
	eng := newTestEnv(t)
	ctx := context.Background()
	for _, d := range []int{10, 25} {
		s, err := eng.StartFocusSession(ctx, d, "")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := eng.CompleteFocusSession(ctx, s.ID); err != nil {
			t.Fatal(err)
		}
	}
	stats, err := eng.FocusStats(ctx, 7)
	if err != nil {
		t.Fatalf("FocusStats: %v", err)
	}
	// 35 minutes over 2 sessions rounds up, not down.
	if stats.AverageMinutes != 18 {
		t.Fatalf("average_minutes = %d, want 18", stats.AverageMinutes)
	}
}

func TestFocusStatsEmpty(t *testing.T) {
	eng := newTestEnv(t)
	stats, err := eng.FocusStats(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalSessions != 0 || stats.TotalMinutes != 0 || stats.AverageMinutes != 0 || stats.TotalHours != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.PeriodDays != 7 {
		t.Errorf("period_days = %d, want default 7", stats.PeriodDays)
	}
}

func TestControlPlaybackValidatesActionFirst(t *testing.T) {
	eng := newTestEnv(t)
	// No token source wired; validation must fail before it is consulted.
	var verr ValidationError
	if err := eng.ControlPlayback(context.Background(), "", "rewind", ""); !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

type refreshFailingTokens struct{}

func (refreshFailingTokens) Authorize(ctx context.Context, userID, code string) (domain.SpotifyCredential, error) {
	return domain.SpotifyCredential{}, errors.New("unused")
}

func (refreshFailingTokens) AccessToken(ctx context.Context, userID string) (string, error) {
	return "", tokens.RefreshError{Err: errors.New("accounts service down")}
}

func TestControlPlaybackRefreshFailureIsUpstream(t *testing.T) {
	eng := newTestEnv(t)
	eng.Tokens = refreshFailingTokens{}
	err := eng.ControlPlayback(context.Background(), "", "pause", "")
	var ue UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %T %v, want UpstreamError", err, err)
	}
	if ue.Op != "spotify token refresh" {
		t.Errorf("op = %s", ue.Op)
	}
}

func TestActivityLogRecordsMutations(t *testing.T) {
	eng := newTestEnv(t)
	ctx := context.Background()
	task, err := eng.CreateTask(ctx, TaskCreateOptions{Title: "tracked"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.DeleteTask(ctx, task.ID); err != nil {
		t.Fatal(err)
	}

	log, err := eng.ActivityLog(ctx, repo.EventFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(log) != 2 {
		t.Fatalf("events = %d, want 2", len(log))
	}
	// Newest first.
	if log[0].Type != "task.deleted" || log[1].Type != "task.created" {
		t.Fatalf("event order = %s, %s", log[0].Type, log[1].Type)
	}
	if log[0].EntityKind != "task" {
		t.Errorf("entity_kind = %s", log[0].EntityKind)
	}
}
