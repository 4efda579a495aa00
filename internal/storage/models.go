package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ProfileRecord is one entry in a user's profile history. Profiles are
// append-only: every save supersedes the previous code without erasing it.
type ProfileRecord struct {
	UserID    string
	Code      string
	CreatedAt time.Time
}

// HistoryEntry is one (user, track) row of listening history.
type HistoryEntry struct {
	UserID       string
	CatalogID    string
	Artist       string
	PlayCount    int
	LastPlayedAt time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
