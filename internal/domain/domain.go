package domain

// Task statuses.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Debug session statuses.
const (
	DebugActive   = "active"
	DebugResolved = "resolved"
)

type Task struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status" enum:"pending,in_progress,completed"`
	Priority    string  `json:"priority" enum:"low,medium,high"`
	DueDate     *string `json:"due_date,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type DebugSession struct {
	ID        int64  `json:"id"`
	Problem   string `json:"problem"`
	Advice    string `json:"advice"`
	Status    string `json:"status" enum:"active,resolved"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type FocusSession struct {
	ID              int64   `json:"id"`
	DurationMinutes int     `json:"duration_minutes"`
	TaskDescription string  `json:"task_description,omitempty"`
	Completed       bool    `json:"completed"`
	StartedAt       string  `json:"started_at" format:"date-time"`
	CompletedAt     *string `json:"completed_at,omitempty" format:"date-time"`
}

// FocusStats aggregates completed focus sessions. TotalHours is
// TotalMinutes/60 rounded to one decimal; PeriodDays echoes the
// requested window.
type FocusStats struct {
	TotalSessions  int     `json:"total_sessions"`
	TotalMinutes   int     `json:"total_minutes"`
	TotalHours     float64 `json:"total_hours"`
	AverageMinutes int     `json:"average_minutes"`
	PeriodDays     int     `json:"period_days"`
}

// SpotifyCredential holds one token pair per user. ExpiresAt is an
// absolute RFC3339 timestamp.
type SpotifyCredential struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at" format:"date-time"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}

func ValidTaskStatus(s string) bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted:
		return true
	}
	return false
}

func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ValidPlaybackAction reports whether a playback control action is one
// the music provider supports.
func ValidPlaybackAction(a string) bool {
	switch a {
	case "play", "pause", "next", "previous":
		return true
	}
	return false
}
