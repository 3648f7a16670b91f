package server

import (
	"duckpond/internal/domain"
	"duckpond/internal/spotify"
)

// Request payloads

type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty" enum:"low,medium,high"`
	DueDate     *string `json:"due_date,omitempty"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" enum:"pending,in_progress,completed"`
	Priority    *string `json:"priority,omitempty" enum:"low,medium,high"`
	DueDate     *string `json:"due_date,omitempty"`
}

type StartDebugRequest struct {
	Problem string `json:"problem"`
}

type StartFocusRequest struct {
	DurationMinutes int     `json:"duration_minutes"`
	TaskDescription *string `json:"task_description,omitempty"`
}

type PlaybackRequest struct {
	Action      string  `json:"action" enum:"play,pause,next,previous"`
	PlaylistURI *string `json:"playlist_uri,omitempty"`
	UserID      *string `json:"user_id,omitempty"`
}

type CallbackRequest struct {
	Code   string  `json:"code"`
	State  *string `json:"state,omitempty"`
	UserID *string `json:"user_id,omitempty"`
}

// Response payloads

type WelcomeResponse struct {
	Message string   `json:"message"`
	Docs    string   `json:"docs"`
	Quack   string   `json:"quack"`
	Tools   []string `json:"tools"`
}

type TaskResponse struct {
	Message       string      `json:"message"`
	Task          domain.Task `json:"task"`
	Encouragement string      `json:"encouragement"`
}

type TaskListResponse struct {
	Message       string        `json:"message"`
	Tasks         []domain.Task `json:"tasks"`
	Total         int           `json:"total"`
	Encouragement string        `json:"encouragement"`
}

type DebugSessionResponse struct {
	Message       string              `json:"message"`
	Session       domain.DebugSession `json:"session"`
	Encouragement string              `json:"encouragement"`
}

type FocusSessionResponse struct {
	Message       string              `json:"message"`
	Session       domain.FocusSession `json:"session"`
	Encouragement string              `json:"encouragement"`
}

type FocusStatsResponse struct {
	Message       string            `json:"message"`
	Stats         domain.FocusStats `json:"stats"`
	Encouragement string            `json:"encouragement"`
}

type AuthURLResponse struct {
	AuthURL      string `json:"auth_url"`
	Instructions string `json:"instructions"`
}

type CallbackResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

type PlaybackResponse struct {
	Message string `json:"message"`
	Action  string `json:"action"`
}

type PlaylistsResponse struct {
	Message        string             `json:"message"`
	Playlists      []spotify.Playlist `json:"playlists"`
	Total          int                `json:"total"`
	Recommendation string             `json:"recommendation"`
}

type ActivityResponse struct {
	Events []domain.Event `json:"events"`
	Total  int            `json:"total"`
}
