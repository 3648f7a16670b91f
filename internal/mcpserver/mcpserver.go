// Package mcpserver exposes the duckpond engine as MCP tools. Handlers
// only translate tool arguments; domain rules stay in the engine.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"duckpond/internal/engine"
	"duckpond/internal/engine/tokens"
	"duckpond/internal/quack"
	"duckpond/internal/repo"
)

const instructions = `🦆 Duckpond is your rubber-duck productivity companion. Use the task tools to track work, the debug tools to talk through problems, the focus tools for timed work sessions, and the spotify tools to control your focus music.`

type Tools struct {
	Engine engine.Engine
	Log    zerolog.Logger
}

// New builds the MCP server with every duckpond tool registered.
func New(e engine.Engine, log zerolog.Logger) *server.MCPServer {
	t := Tools{Engine: e, Log: log}
	s := server.NewMCPServer(
		"duckpond",
		"0.1.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a new task in the pond"),
		mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
		mcp.WithString("description", mcp.Description("Optional details")),
		mcp.WithString("priority", mcp.Description("Task priority"), mcp.Enum("low", "medium", "high"), mcp.DefaultString("medium")),
		mcp.WithString("due_date", mcp.Description("Optional due date, YYYY-MM-DD")),
	), t.CreateTask)

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks, newest first"),
		mcp.WithString("status", mcp.Description("Filter by status"), mcp.Enum("pending", "in_progress", "completed")),
		mcp.WithString("priority", mcp.Description("Filter by priority"), mcp.Enum("low", "medium", "high")),
		mcp.WithNumber("limit", mcp.Description("Maximum results"), mcp.DefaultNumber(10)),
	), t.ListTasks)

	s.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Update fields of an existing task"),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Task id")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("status", mcp.Description("New status"), mcp.Enum("pending", "in_progress", "completed")),
		mcp.WithString("priority", mcp.Description("New priority"), mcp.Enum("low", "medium", "high")),
		mcp.WithString("due_date", mcp.Description("New due date, YYYY-MM-DD")),
	), t.UpdateTask)

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task"),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Task id")),
	), t.DeleteTask)

	s.AddTool(mcp.NewTool("start_debug_session",
		mcp.WithDescription("Start a rubber duck debugging session"),
		mcp.WithString("problem", mcp.Required(), mcp.Description("Describe the problem you are debugging")),
	), t.StartDebugSession)

	s.AddTool(mcp.NewTool("resolve_debug_session",
		mcp.WithDescription("Mark a debug session as resolved"),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Session id")),
	), t.ResolveDebugSession)

	s.AddTool(mcp.NewTool("start_focus_session",
		mcp.WithDescription("Start a timed focus session"),
		mcp.WithNumber("duration_minutes", mcp.Required(), mcp.Description("Length in minutes, 1 to 180")),
		mcp.WithString("task_description", mcp.Description("What you will focus on")),
	), t.StartFocusSession)

	s.AddTool(mcp.NewTool("complete_focus_session",
		mcp.WithDescription("Complete a focus session"),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Session id")),
	), t.CompleteFocusSession)

	s.AddTool(mcp.NewTool("get_focus_stats",
		mcp.WithDescription("Aggregate focus session statistics"),
		mcp.WithNumber("days", mcp.Description("Reporting period in days"), mcp.DefaultNumber(7)),
	), t.FocusStats)

	s.AddTool(mcp.NewTool("spotify_auth_url",
		mcp.WithDescription("Get the Spotify authorization URL"),
	), t.SpotifyAuthURL)

	s.AddTool(mcp.NewTool("spotify_callback",
		mcp.WithDescription("Finish the Spotify OAuth flow with an authorization code"),
		mcp.WithString("code", mcp.Required(), mcp.Description("Authorization code from the redirect")),
		mcp.WithString("user_id", mcp.Description("User identifier")),
	), t.SpotifyCallback)

	s.AddTool(mcp.NewTool("spotify_playback",
		mcp.WithDescription("Control Spotify playback"),
		mcp.WithString("action", mcp.Required(), mcp.Description("Playback action"), mcp.Enum("play", "pause", "next", "previous")),
		mcp.WithString("playlist_uri", mcp.Description("Playlist to play, only used with the play action")),
		mcp.WithString("user_id", mcp.Description("User identifier")),
	), t.SpotifyPlayback)

	s.AddTool(mcp.NewTool("spotify_playlists",
		mcp.WithDescription("List your Spotify playlists"),
		mcp.WithString("user_id", mcp.Description("User identifier")),
	), t.SpotifyPlaylists)

	return s
}

// toolError maps engine errors to MCP error results so callers see the
// same outcomes as the REST surface.
func (t Tools) toolError(err error) *mcp.CallToolResult {
	var verr engine.ValidationError
	switch {
	case errors.As(err, &verr):
		return mcp.NewToolResultError("Quack! " + err.Error())
	case errors.Is(err, repo.ErrNotFound):
		return mcp.NewToolResultError("Quack! " + err.Error())
	case errors.Is(err, tokens.ErrNotConnected):
		return mcp.NewToolResultError("Quack! Spotify is not connected yet. Use spotify_auth_url first!")
	default:
		t.Log.Error().Err(err).Msg("tool call failed")
		return mcp.NewToolResultError("Oops! Even ducks hit rough waters sometimes: " + err.Error())
	}
}

func (t Tools) CreateTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	task, err := t.Engine.CreateTask(ctx, engine.TaskCreateOptions{
		Title:       title,
		Description: req.GetString("description", ""),
		Priority:    req.GetString("priority", ""),
		DueDate:     req.GetString("due_date", ""),
	})
	if err != nil {
		return t.toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s Created task #%d: %s (priority %s). %s",
		quack.Pick(quack.Success), task.ID, task.Title, task.Priority, quack.Pick(quack.Encouragement))), nil
}

func (t Tools) ListTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks, err := t.Engine.ListTasks(ctx, repo.TaskFilters{
		Status:   req.GetString("status", ""),
		Priority: req.GetString("priority", ""),
		Limit:    req.GetInt("limit", 10),
	})
	if err != nil {
		return t.toolError(err), nil
	}
	if len(tasks) == 0 {
		return mcp.NewToolResultText("The pond is empty! No tasks match. " + quack.Pick(quack.Encouragement)), nil
	}
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return t.toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Found %d task(s):\n%s", len(tasks), data)), nil
}

func (t Tools) UpdateTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts := engine.TaskUpdateOptions{ID: int64(id)}
	args := req.GetArguments()
	if v, ok := args["title"].(string); ok {
		opts.Title = &v
	}
	if v, ok := args["description"].(string); ok {
		opts.Description = &v
	}
	if v, ok := args["status"].(string); ok {
		opts.Status = &v
	}
	if v, ok := args["priority"].(string); ok {
		opts.Priority = &v
	}
	if v, ok := args["due_date"].(string); ok {
		opts.DueDate = &v
	}
	task, err := t.Engine.UpdateTask(ctx, opts)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("Quack! Task with ID %d not found.", id)), nil
		}
		return t.toolError(err), nil
	}
	kind := quack.Success
	if task.Status == "completed" {
		kind = quack.Celebration
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s Task #%d is now %s.", quack.Pick(kind), task.ID, task.Status)), nil
}

func (t Tools) DeleteTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	task, err := t.Engine.DeleteTask(ctx, int64(id))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("Quack! Task with ID %d not found.", id)), nil
		}
		return t.toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task %q has flown the pond. %s", task.Title, quack.Pick(quack.Encouragement))), nil
}

func (t Tools) StartDebugSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	problem, err := req.RequireString("problem")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s, err := t.Engine.StartDebugSession(ctx, problem)
	if err != nil {
		return t.toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("🦆 Debug session #%d started. Here's my advice:\n\n%s", s.ID, s.Advice)), nil
}

func (t Tools) ResolveDebugSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s, err := t.Engine.ResolveDebugSession(ctx, int64(id))
	if err != nil {
		return t.toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s Debug session #%d resolved. Another bug bites the dust!", quack.Pick(quack.Celebration), s.ID)), nil
}

func (t Tools) StartFocusSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	minutes, err := req.RequireInt("duration_minutes")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s, err := t.Engine.StartFocusSession(ctx, minutes, req.GetString("task_description", ""))
	if err != nil {
		return t.toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Focus session #%d started for %d minutes. Heads down, tail up! %s",
		s.ID, s.DurationMinutes, quack.Pick(quack.Encouragement))), nil
}

func (t Tools) CompleteFocusSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s, err := t.Engine.CompleteFocusSession(ctx, int64(id))
	if err != nil {
		return t.toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s Focus session #%d complete after %d minutes!",
		quack.Pick(quack.Celebration), s.ID, s.DurationMinutes)), nil
}

func (t Tools) FocusStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := t.Engine.FocusStats(ctx, req.GetInt("days", 7))
	if err != nil {
		return t.toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"🦆 Focus stats (last %d days):\n- Sessions: %d\n- Total minutes: %d\n- Total hours: %.1f\n- Average session: %d minutes\n%s",
		stats.PeriodDays, stats.TotalSessions, stats.TotalMinutes, stats.TotalHours, stats.AverageMinutes,
		quack.Pick(quack.Encouragement))), nil
}

func (t Tools) SpotifyAuthURL(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := t.Engine.SpotifyAuthURL()
	if err != nil {
		return t.toolError(err), nil
	}
	return mcp.NewToolResultText("🦆 Open this URL to connect Spotify, then pass the code to spotify_callback:\n" + url), nil
}

func (t Tools) SpotifyCallback(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := req.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cred, err := t.Engine.ConnectSpotify(ctx, req.GetString("user_id", ""), code)
	if err != nil {
		return t.toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("🦆 Spotify connected for %s! Time for some focus tunes.", cred.UserID)), nil
}

func (t Tools) SpotifyPlayback(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := t.Engine.ControlPlayback(ctx, req.GetString("user_id", ""), action, req.GetString("playlist_uri", "")); err != nil {
		return t.toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s Playback %s sent.", quack.Pick(quack.Success), action)), nil
}

func (t Tools) SpotifyPlaylists(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lists, err := t.Engine.ListPlaylists(ctx, req.GetString("user_id", ""))
	if err != nil {
		return t.toolError(err), nil
	}
	if len(lists) == 0 {
		return mcp.NewToolResultText("No playlists found. Every pond needs some music!"), nil
	}
	data, err := json.MarshalIndent(lists, "", "  ")
	if err != nil {
		return t.toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Found %d playlist(s):\n%s", len(lists), data)), nil
}
