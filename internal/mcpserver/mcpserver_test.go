package mcpserver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"duckpond/internal/config"
	"duckpond/internal/db"
	"duckpond/internal/domain"
	"duckpond/internal/engine"
	"duckpond/internal/engine/tokens"
	"duckpond/internal/migrate"
)

type stubAdvisor struct {
	advice string
}

type notConnectedTokens struct{}

func (notConnectedTokens) Authorize(ctx context.Context, userID, code string) (domain.SpotifyCredential, error) {
	return domain.SpotifyCredential{}, tokens.ErrNotConnected
}

func (notConnectedTokens) AccessToken(ctx context.Context, userID string) (string, error) {
	return "", tokens.ErrNotConnected
}

func (s stubAdvisor) Advise(ctx context.Context, problem string) (string, error) {
	return s.advice, nil
}

func newTestTools(t *testing.T) Tools {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default(), zerolog.Nop())
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	eng.Advisor = stubAdvisor{advice: "Quack! Try a binary search over the commits."}
	return Tools{Engine: eng, Log: zerolog.Nop()}
}

func callReq(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type %T", res.Content[0])
	}
	return tc.Text
}

func TestCreateTaskTool(t *testing.T) {
	tools := newTestTools(t)
	res, err := tools.CreateTask(context.Background(), callReq("create_task", map[string]any{
		"title":    "Feed the ducks",
		"priority": "high",
	}))
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", textOf(t, res))
	}
	text := textOf(t, res)
	if !strings.Contains(text, "Feed the ducks") || !strings.Contains(text, "high") {
		t.Fatalf("text = %q", text)
	}
}

func TestCreateTaskToolEmptyTitle(t *testing.T) {
	tools := newTestTools(t)
	res, err := tools.CreateTask(context.Background(), callReq("create_task", map[string]any{"title": ""}))
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error result for empty title")
	}
}

func TestUpdateTaskToolNotFound(t *testing.T) {
	tools := newTestTools(t)
	res, err := tools.UpdateTask(context.Background(), callReq("update_task", map[string]any{
		"id":     float64(424242),
		"status": "completed",
	}))
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error result")
	}
	if text := textOf(t, res); !strings.Contains(text, "Task with ID 424242 not found") {
		t.Fatalf("text = %q", text)
	}
}

func TestListTasksToolEmpty(t *testing.T) {
	tools := newTestTools(t)
	res, err := tools.ListTasks(context.Background(), callReq("list_tasks", map[string]any{}))
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", textOf(t, res))
	}
	if text := textOf(t, res); !strings.Contains(text, "pond is empty") {
		t.Fatalf("text = %q", text)
	}
}

func TestDebugSessionTools(t *testing.T) {
	tools := newTestTools(t)
	ctx := context.Background()
	res, err := tools.StartDebugSession(ctx, callReq("start_debug_session", map[string]any{
		"problem": "nil map write",
	}))
	if err != nil {
		t.Fatalf("StartDebugSession: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", textOf(t, res))
	}
	if text := textOf(t, res); !strings.Contains(text, "binary search over the commits") {
		t.Fatalf("text = %q", text)
	}

	res, err = tools.ResolveDebugSession(ctx, callReq("resolve_debug_session", map[string]any{"id": float64(1)}))
	if err != nil {
		t.Fatalf("ResolveDebugSession: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", textOf(t, res))
	}
}

func TestFocusTools(t *testing.T) {
	tools := newTestTools(t)
	ctx := context.Background()

	res, err := tools.StartFocusSession(ctx, callReq("start_focus_session", map[string]any{
		"duration_minutes": float64(25),
		"task_description": "write tests",
	}))
	if err != nil {
		t.Fatalf("StartFocusSession: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", textOf(t, res))
	}

	res, err = tools.CompleteFocusSession(ctx, callReq("complete_focus_session", map[string]any{"id": float64(1)}))
	if err != nil {
		t.Fatalf("CompleteFocusSession: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", textOf(t, res))
	}

	res, err = tools.FocusStats(ctx, callReq("get_focus_stats", map[string]any{"days": float64(30)}))
	if err != nil {
		t.Fatalf("FocusStats: %v", err)
	}
	text := textOf(t, res)
	if !strings.Contains(text, "Sessions: 1") || !strings.Contains(text, "Total minutes: 25") {
		t.Fatalf("text = %q", text)
	}
}

func TestFocusSessionToolBadDuration(t *testing.T) {
	tools := newTestTools(t)
	res, err := tools.StartFocusSession(context.Background(), callReq("start_focus_session", map[string]any{
		"duration_minutes": float64(500),
	}))
	if err != nil {
		t.Fatalf("StartFocusSession: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error result for out-of-range duration")
	}
}

func TestSpotifyPlaybackToolNotConnected(t *testing.T) {
	tools := newTestTools(t)
	tools.Engine.Tokens = notConnectedTokens{}
	res, err := tools.SpotifyPlayback(context.Background(), callReq("spotify_playback", map[string]any{
		"action": "play",
	}))
	if err != nil {
		t.Fatalf("SpotifyPlayback: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error result")
	}
	if text := textOf(t, res); !strings.Contains(text, "not connected") {
		t.Fatalf("text = %q", text)
	}
}

func TestNewRegistersTools(t *testing.T) {
	tools := newTestTools(t)
	if s := New(tools.Engine, zerolog.Nop()); s == nil {
		t.Fatal("nil server")
	}
}
