// Package server exposes the duckpond engine over HTTP. Domain rules live
// in the engine; handlers only translate transport shapes and errors.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"duckpond/internal/domain"
	"duckpond/internal/engine"
	"duckpond/internal/engine/tokens"
	"duckpond/internal/quack"
	"duckpond/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	MCP      http.Handler
	Log      zerolog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"title is required"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope shared by every endpoint.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Duckpond API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the shared envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(cfg.Log))
	hcfg := huma.DefaultConfig("Duckpond API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerWelcome(router, basePath)
	registerDocs(router, basePath)
	registerHealth(group)
	registerTasks(group, cfg.Engine)
	registerDebug(group, cfg.Engine)
	registerFocus(group, cfg.Engine)
	registerSpotify(group, cfg.Engine)
	registerActivity(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	if cfg.MCP != nil {
		router.Mount("/mcp", cfg.MCP)
	}
	startWebhookDispatcher(cfg.Engine, cfg.Log)

	return router, nil
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var verr engine.ValidationError
	if errors.As(err, &verr) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, tokens.ErrNotConnected) {
		return newAPIError(http.StatusUnauthorized, "spotify_not_connected",
			"Quack! Spotify is not connected yet. Visit the auth endpoint first!", nil)
	}
	var ue engine.UpstreamError
	if errors.As(err, &ue) {
		return newAPIError(http.StatusInternalServerError, "upstream_error", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "spotify_not_connected"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerWelcome(r chi.Router, basePath string) {
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(WelcomeResponse{
			Message: "🦆 Quack! Welcome to the Duckpond Productivity Server!",
			Docs:    "/docs",
			Quack:   quack.Pick(quack.Encouragement),
			Tools: []string{
				path.Join(basePath, "tasks"),
				path.Join(basePath, "debug"),
				path.Join(basePath, "focus"),
				path.Join(basePath, "spotify"),
			},
		})
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Duckpond API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok", "quack": "loud and clear"}}, nil
	})
}

var commonErrors = []int{
	http.StatusBadRequest,
	http.StatusNotFound,
	http.StatusInternalServerError,
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		opts := engine.TaskCreateOptions{Title: input.Body.Title}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		if input.Body.Priority != nil {
			opts.Priority = *input.Body.Priority
		}
		if input.Body.DueDate != nil {
			opts.DueDate = *input.Body.DueDate
		}
		task, err := e.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: TaskResponse{
			Message:       fmt.Sprintf("%s Task %q is in the pond.", quack.Pick(quack.Success), task.Title),
			Task:          task,
			Encouragement: quack.Pick(quack.Encouragement),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status" enum:"pending,in_progress,completed" required:"false"`
		Priority string `query:"priority" enum:"low,medium,high" required:"false"`
		Limit    int    `query:"limit" required:"false"`
	}) (*struct {
		Body TaskListResponse `json:"body"`
	}, error) {
		tasks, err := e.ListTasks(ctx, repo.TaskFilters{
			Status:   input.Status,
			Priority: input.Priority,
			Limit:    input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskListResponse `json:"body"`
		}{Body: TaskListResponse{
			Message:       fmt.Sprintf("Found %d task(s) paddling around.", len(tasks)),
			Tasks:         tasks,
			Total:         len(tasks),
			Encouragement: quack.Pick(quack.Encouragement),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		task, err := e.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: TaskResponse{
			Message:       quack.Pick(quack.Success),
			Task:          task,
			Encouragement: quack.Pick(quack.Encouragement),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}",
		Summary:     "Update task",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64             `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		task, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{
			ID:          input.ID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Status:      input.Body.Status,
			Priority:    input.Body.Priority,
			DueDate:     input.Body.DueDate,
		})
		if err != nil {
			return nil, handleError(err)
		}
		kind := quack.Success
		if task.Status == domain.TaskCompleted {
			kind = quack.Celebration
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: TaskResponse{
			Message:       quack.Pick(kind),
			Task:          task,
			Encouragement: quack.Pick(quack.Encouragement),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Delete task",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		task, err := e.DeleteTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: TaskResponse{
			Message:       fmt.Sprintf("Task %q has flown the pond.", task.Title),
			Task:          task,
			Encouragement: quack.Pick(quack.Encouragement),
		}}, nil
	})
}

func registerDebug(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-debug-session",
		Method:        http.MethodPost,
		Path:          "/debug",
		Summary:       "Start rubber duck debug session",
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		Body StartDebugRequest `json:"body"`
	}) (*struct {
		Body DebugSessionResponse `json:"body"`
	}, error) {
		s, err := e.StartDebugSession(ctx, input.Body.Problem)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DebugSessionResponse `json:"body"`
		}{Body: DebugSessionResponse{
			Message:       "🦆 The duck is listening. Let's dive in!",
			Session:       s,
			Encouragement: quack.Pick(quack.Encouragement),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-debug-session",
		Method:      http.MethodGet,
		Path:        "/debug/{id}",
		Summary:     "Get debug session",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body DebugSessionResponse `json:"body"`
	}, error) {
		s, err := e.GetDebugSession(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DebugSessionResponse `json:"body"`
		}{Body: DebugSessionResponse{
			Message:       quack.Pick(quack.Success),
			Session:       s,
			Encouragement: quack.Pick(quack.Encouragement),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-debug-session",
		Method:      http.MethodPut,
		Path:        "/debug/{id}/resolve",
		Summary:     "Resolve debug session",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body DebugSessionResponse `json:"body"`
	}, error) {
		s, err := e.ResolveDebugSession(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DebugSessionResponse `json:"body"`
		}{Body: DebugSessionResponse{
			Message:       quack.Pick(quack.Celebration),
			Session:       s,
			Encouragement: quack.Pick(quack.Encouragement),
		}}, nil
	})
}

func registerFocus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-focus-session",
		Method:        http.MethodPost,
		Path:          "/focus",
		Summary:       "Start focus session",
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		Body StartFocusRequest `json:"body"`
	}) (*struct {
		Body FocusSessionResponse `json:"body"`
	}, error) {
		desc := ""
		if input.Body.TaskDescription != nil {
			desc = *input.Body.TaskDescription
		}
		s, err := e.StartFocusSession(ctx, input.Body.DurationMinutes, desc)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body FocusSessionResponse `json:"body"`
		}{Body: FocusSessionResponse{
			Message:       fmt.Sprintf("Focus mode on for %d minutes. Heads down, tail up!", s.DurationMinutes),
			Session:       s,
			Encouragement: quack.Pick(quack.Encouragement),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-focus-session",
		Method:      http.MethodPut,
		Path:        "/focus/{id}/complete",
		Summary:     "Complete focus session",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body FocusSessionResponse `json:"body"`
	}, error) {
		s, err := e.CompleteFocusSession(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body FocusSessionResponse `json:"body"`
		}{Body: FocusSessionResponse{
			Message:       quack.Pick(quack.Celebration),
			Session:       s,
			Encouragement: quack.Pick(quack.Encouragement),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "focus-stats",
		Method:      http.MethodGet,
		Path:        "/focus/stats",
		Summary:     "Focus statistics",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		Days int `query:"days" required:"false"`
	}) (*struct {
		Body FocusStatsResponse `json:"body"`
	}, error) {
		stats, err := e.FocusStats(ctx, input.Days)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body FocusStatsResponse `json:"body"`
		}{Body: FocusStatsResponse{
			Message:       fmt.Sprintf("You logged %d focused minute(s) across %d session(s).", stats.TotalMinutes, stats.TotalSessions),
			Stats:         stats,
			Encouragement: quack.Pick(quack.Encouragement),
		}}, nil
	})
}

func registerSpotify(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "spotify-auth-url",
		Method:      http.MethodGet,
		Path:        "/spotify/auth",
		Summary:     "Spotify authorization URL",
		Errors:      commonErrors,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body AuthURLResponse `json:"body"`
	}, error) {
		url, err := e.SpotifyAuthURL()
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AuthURLResponse `json:"body"`
		}{Body: AuthURLResponse{
			AuthURL:      url,
			Instructions: "Open this URL in a browser, approve access, then post the code to the callback endpoint.",
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "spotify-callback",
		Method:      http.MethodPost,
		Path:        "/spotify/callback",
		Summary:     "Finish Spotify OAuth flow",
		Errors:      append([]int{http.StatusUnauthorized}, commonErrors...),
	}, func(ctx context.Context, input *struct {
		Body CallbackRequest `json:"body"`
	}) (*struct {
		Body CallbackResponse `json:"body"`
	}, error) {
		userID := engine.DefaultUserID
		if input.Body.UserID != nil && *input.Body.UserID != "" {
			userID = *input.Body.UserID
		}
		cred, err := e.ConnectSpotify(ctx, userID, input.Body.Code)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CallbackResponse `json:"body"`
		}{Body: CallbackResponse{
			Message: "🦆 Spotify connected! Time for some focus tunes.",
			UserID:  cred.UserID,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "spotify-playback",
		Method:      http.MethodPost,
		Path:        "/spotify/play",
		Summary:     "Control playback",
		Errors:      append([]int{http.StatusUnauthorized}, commonErrors...),
	}, func(ctx context.Context, input *struct {
		Body PlaybackRequest `json:"body"`
	}) (*struct {
		Body PlaybackResponse `json:"body"`
	}, error) {
		userID := ""
		if input.Body.UserID != nil {
			userID = *input.Body.UserID
		}
		playlistURI := ""
		if input.Body.PlaylistURI != nil {
			playlistURI = *input.Body.PlaylistURI
		}
		if err := e.ControlPlayback(ctx, userID, input.Body.Action, playlistURI); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PlaybackResponse `json:"body"`
		}{Body: PlaybackResponse{
			Message: fmt.Sprintf("%s Playback %s sent.", quack.Pick(quack.Success), input.Body.Action),
			Action:  input.Body.Action,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "spotify-playlists",
		Method:      http.MethodGet,
		Path:        "/spotify/playlists",
		Summary:     "List playlists",
		Errors:      append([]int{http.StatusUnauthorized}, commonErrors...),
	}, func(ctx context.Context, input *struct {
		UserID string `query:"user_id" required:"false"`
	}) (*struct {
		Body PlaylistsResponse `json:"body"`
	}, error) {
		lists, err := e.ListPlaylists(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PlaylistsResponse `json:"body"`
		}{Body: PlaylistsResponse{
			Message:        fmt.Sprintf("Found %d playlist(s) in your pond.", len(lists)),
			Playlists:      lists,
			Total:          len(lists),
			Recommendation: "Instrumental playlists pair well with focus sessions.",
		}}, nil
	})
}

func registerActivity(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "activity-log",
		Method:      http.MethodGet,
		Path:        "/activity",
		Summary:     "Recent activity",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type" required:"false"`
		EntityKind string `query:"entity_kind" required:"false"`
		Limit      int    `query:"limit" required:"false"`
	}) (*struct {
		Body ActivityResponse `json:"body"`
	}, error) {
		events, err := e.ActivityLog(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityResponse `json:"body"`
		}{Body: ActivityResponse{Events: events, Total: len(events)}}, nil
	})
}
