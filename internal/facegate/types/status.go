package types

import "time"

// Category drives how the presentation layer styles a status line.
type Category string

const (
	CategorySuccess Category = "success"
	CategoryError   Category = "error"
	CategoryNeutral Category = "neutral"
)

type Status struct {
	Text      string    `json:"text"`
	Category  Category  `json:"category"`
	SessionID string    `json:"session_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	StatusStopped           = Status{Text: "System stopped", Category: CategoryNeutral}
	StatusCameraUnavailable = Status{Text: "Camera unavailable", Category: CategoryError}
)
