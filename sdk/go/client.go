// Package duckpondsdk is a minimal client for the Duckpond HTTP API.
package duckpondsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Duckpond HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model.
type Task struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	DueDate     *string `json:"due_date,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// DebugSession represents a rubber duck debugging session.
type DebugSession struct {
	ID        int64  `json:"id"`
	Problem   string `json:"problem"`
	Advice    string `json:"advice"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// FocusSession represents a timed focus block.
type FocusSession struct {
	ID              int64   `json:"id"`
	DurationMinutes int     `json:"duration_minutes"`
	TaskDescription string  `json:"task_description"`
	Completed       bool    `json:"completed"`
	StartedAt       string  `json:"started_at"`
	CompletedAt     *string `json:"completed_at,omitempty"`
}

// FocusStats aggregates completed focus sessions.
type FocusStats struct {
	TotalSessions  int     `json:"total_sessions"`
	TotalMinutes   int     `json:"total_minutes"`
	TotalHours     float64 `json:"total_hours"`
	AverageMinutes int     `json:"average_minutes"`
	PeriodDays     int     `json:"period_days"`
}

// Event represents an activity log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

type taskEnvelope struct {
	Task Task `json:"task"`
}

type taskListEnvelope struct {
	Tasks []Task `json:"tasks"`
}

type debugEnvelope struct {
	Session DebugSession `json:"session"`
}

type focusEnvelope struct {
	Session FocusSession `json:"session"`
}

type statsEnvelope struct {
	Stats FocusStats `json:"stats"`
}

type activityEnvelope struct {
	Events []Event `json:"events"`
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, title, description, priority string) (Task, error) {
	body := map[string]any{"title": title}
	if description != "" {
		body["description"] = description
	}
	if priority != "" {
		body["priority"] = priority
	}
	var resp taskEnvelope
	err := c.do(ctx, http.MethodPost, "api/tasks", body, &resp)
	return resp.Task, err
}

// ListTasks lists tasks, newest first. Zero-value filters are omitted.
func (c *Client) ListTasks(ctx context.Context, status, priority string, limit int) ([]Task, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if priority != "" {
		q.Set("priority", priority)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	endpoint := "api/tasks"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp taskListEnvelope
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Tasks, err
}

// UpdateTask applies a partial update. Only keys present in fields change.
func (c *Client) UpdateTask(ctx context.Context, id int64, fields map[string]any) (Task, error) {
	var resp taskEnvelope
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("api/tasks/%d", id), fields, &resp)
	return resp.Task, err
}

// DeleteTask removes a task and returns its last state.
func (c *Client) DeleteTask(ctx context.Context, id int64) (Task, error) {
	var resp taskEnvelope
	err := c.do(ctx, http.MethodDelete, fmt.Sprintf("api/tasks/%d", id), nil, &resp)
	return resp.Task, err
}

// StartDebugSession starts a rubber duck session.
func (c *Client) StartDebugSession(ctx context.Context, problem string) (DebugSession, error) {
	var resp debugEnvelope
	err := c.do(ctx, http.MethodPost, "api/debug", map[string]any{"problem": problem}, &resp)
	return resp.Session, err
}

// ResolveDebugSession marks a session resolved.
func (c *Client) ResolveDebugSession(ctx context.Context, id int64) (DebugSession, error) {
	var resp debugEnvelope
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("api/debug/%d/resolve", id), nil, &resp)
	return resp.Session, err
}

// StartFocusSession starts a timed focus block.
func (c *Client) StartFocusSession(ctx context.Context, durationMinutes int, taskDescription string) (FocusSession, error) {
	body := map[string]any{"duration_minutes": durationMinutes}
	if taskDescription != "" {
		body["task_description"] = taskDescription
	}
	var resp focusEnvelope
	err := c.do(ctx, http.MethodPost, "api/focus", body, &resp)
	return resp.Session, err
}

// CompleteFocusSession completes a focus session.
func (c *Client) CompleteFocusSession(ctx context.Context, id int64) (FocusSession, error) {
	var resp focusEnvelope
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("api/focus/%d/complete", id), nil, &resp)
	return resp.Session, err
}

// FocusStats returns aggregate focus statistics.
func (c *Client) FocusStats(ctx context.Context, days int) (FocusStats, error) {
	endpoint := "api/focus/stats"
	if days > 0 {
		endpoint = fmt.Sprintf("%s?days=%d", endpoint, days)
	}
	var resp statsEnvelope
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Stats, err
}

// Activity returns recent activity log entries.
func (c *Client) Activity(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "api/activity"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp activityEnvelope
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Events, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
