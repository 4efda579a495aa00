package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/mixtape/internal/profile"
)

var (
	// ErrSessionNotFound is returned by Store implementations for unknown IDs.
	ErrSessionNotFound = errors.New("conversation: session not found")
	// ErrSessionCompleted rejects mutation of a finished session.
	ErrSessionCompleted = errors.New("conversation: session already completed")
	// ErrSessionExpired rejects activity on a session past its TTL.
	ErrSessionExpired = errors.New("conversation: session expired")
	// ErrInsufficientConfidence marks a generation attempt below the
	// readiness threshold. Use errors.As with *RefusalError for details.
	ErrInsufficientConfidence = errors.New("conversation: insufficient confidence to generate")
)

// Refusal explains why generation was declined, structured so the caller can
// keep the conversation going instead of treating it as a failure.
type Refusal struct {
	Reason        string   `json:"reason"`
	Confidence    int      `json:"confidence"`
	TurnsTaken    int      `json:"turns"`
	MissingGroups []string `json:"missing"`
}

// RefusalError carries a Refusal and unwraps to ErrInsufficientConfidence.
type RefusalError struct {
	Refusal Refusal
}

func (e *RefusalError) Error() string {
	return fmt.Sprintf("generation refused: %s (confidence %d/%d, turns %d/%d)",
		e.Refusal.Reason, e.Refusal.Confidence, MinConfidence, e.Refusal.TurnsTaken, MinTurns)
}

func (e *RefusalError) Unwrap() error { return ErrInsufficientConfidence }

// Store persists sessions. The Manager writes through on every mutation;
// whatever caching a Store does internally is never the source of truth.
type Store interface {
	SaveSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
}

// Manager owns session mutation. Each session is single-writer: a
// per-session mutex serializes concurrent turns on the same ID while leaving
// unrelated sessions fully parallel.
type Manager struct {
	store Store
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a Manager over the given store.
func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *Manager) sessionLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// Start creates a new active session for the user, seeded with the scripted
// opening message, and persists it.
func (m *Manager) Start(ctx context.Context, userID string) (*Session, error) {
	now := m.now()
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Profile:   profile.New(),
		Turns:     []Turn{{Role: "assistant", Content: openingMessage, At: now}},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(SessionTTL),
	}
	if err := m.store.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("save new session: %w", err)
	}
	return s, nil
}

// Get loads a session by ID.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.GetSession(ctx, id)
}

// AddTurn appends one user/assistant exchange, merges the partial profile the
// caller extracted from the user's message, recomputes confidence, bumps the
// question counter and refreshes the TTL. The updated session is persisted
// before it is returned.
func (m *Manager) AddTurn(ctx context.Context, id, userMsg, reply string, partial profile.Profile) (*Session, error) {
	lock := m.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	now := m.now()
	if s.Completed {
		return nil, ErrSessionCompleted
	}
	if now.After(s.ExpiresAt) {
		return nil, ErrSessionExpired
	}

	s.Turns = append(s.Turns,
		Turn{Role: "user", Content: userMsg, At: now},
		Turn{Role: "assistant", Content: reply, At: now},
	)
	s.Profile = profile.Merge(s.Profile, partial)
	s.Confidence = profile.Confidence(s.Profile)
	s.QuestionCount++
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(SessionTTL)

	if err := m.store.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("save session turn: %w", err)
	}
	return s, nil
}

// EnsureReady loads the session and verifies it can back a playlist. Below
// the threshold it returns a *RefusalError naming what is still missing.
func (m *Manager) EnsureReady(ctx context.Context, id string) (*Session, error) {
	s, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	now := m.now()
	if s.Completed {
		return nil, ErrSessionCompleted
	}
	if now.After(s.ExpiresAt) {
		return nil, ErrSessionExpired
	}
	if !s.ready() {
		reason := "I need a few more answers before the mixtape will feel right."
		if s.QuestionCount < MinTurns {
			reason = fmt.Sprintf("we're only %d questions in, let's talk a bit more", s.QuestionCount)
		}
		return nil, &RefusalError{Refusal: Refusal{
			Reason:        reason,
			Confidence:    s.Confidence,
			TurnsTaken:    s.QuestionCount,
			MissingGroups: profile.MissingGroups(s.Profile),
		}}
	}
	return s, nil
}

// Complete marks the session finished after a playlist has been produced
// from it. Completed sessions are immutable; a second call is an error.
func (m *Manager) Complete(ctx context.Context, id string) (*Session, error) {
	lock := m.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Completed {
		return nil, ErrSessionCompleted
	}
	now := m.now()
	s.Completed = true
	s.UpdatedAt = now
	if err := m.store.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("save completed session: %w", err)
	}

	// The lock entry is no longer needed once the session is immutable.
	m.mu.Lock()
	delete(m.locks, id)
	m.mu.Unlock()

	return s, nil
}
