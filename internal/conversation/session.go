// Package conversation runs the profile-building dialogue: a session
// accumulates turns and partial profile fields until it has learned enough
// to back a playlist. The server supplies structure, not intelligence — the
// MCP caller extracts profile fields from the user's words and hands them
// over already typed.
package conversation

import (
	"time"

	"github.com/kalambet/mixtape/internal/profile"
)

// SessionTTL is how long a session stays alive without activity.
const SessionTTL = 24 * time.Hour

// Generation readiness thresholds.
const (
	MinTurns      = 5
	MinConfidence = 21
)

// State is the session's lifecycle position, derived from its fields rather
// than stored, so persistence cannot hold a stale state.
type State string

const (
	StateActive          State = "active"
	StateReadyToGenerate State = "ready_to_generate"
	StateCompleted       State = "completed"
	StateExpired         State = "expired"
)

// Turn is one message in the session history.
type Turn struct {
	Role    string    `json:"role"` // "user" or "assistant"
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Session is a profile-building conversation. All mutation goes through the
// Manager; a Session value on its own is a snapshot.
type Session struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Turns         []Turn          `json:"turns"`
	Profile       profile.Profile `json:"profile"`
	Confidence    int             `json:"confidence"`
	QuestionCount int             `json:"question_count"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
	Completed     bool            `json:"completed"`
}

// State reports the lifecycle position at the given instant. Completed wins
// over expiry: a finished session is kept for reference, never expired away
// by the clock.
func (s *Session) State(now time.Time) State {
	switch {
	case s.Completed:
		return StateCompleted
	case now.After(s.ExpiresAt):
		return StateExpired
	case s.ready():
		return StateReadyToGenerate
	default:
		return StateActive
	}
}

func (s *Session) ready() bool {
	return s.QuestionCount >= MinTurns && s.Confidence >= MinConfidence
}

// openingMessage is the scripted first assistant turn of every session.
const openingMessage = "Hey! Let's put together a mixtape. Tell me about the music you keep coming back to — a few artists or styles you love — and what you'll be doing while you listen."
