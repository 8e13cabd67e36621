package protocol

import "time"

// SessionSummary is one row of GET /api/sessions.
type SessionSummary struct {
	ID           string    `json:"id"`
	Users        []User    `json:"users"`
	ControllerID *string   `json:"controllerId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewSession is the body of GET /api/sessions/new.
type NewSession struct {
	SessionID string `json:"sessionId"`
}
