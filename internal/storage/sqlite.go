// Package storage persists profiles, sessions, the shared track-feature
// cache, listening history and the background job queue in a single SQLite
// database.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kalambet/mixtape/internal/conversation"
	"github.com/kalambet/mixtape/internal/features"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for profiles, sessions,
// cached track features, listening history and jobs.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "mixtape.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Profiles ---

// SetProfileCode appends a new profile code for the user. Earlier codes stay
// on record as superseded history.
func (s *Store) SetProfileCode(ctx context.Context, userID, code string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, code, created_at) VALUES (?, ?, ?)`,
		userID, code, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetProfileCode returns the user's most recent profile code.
func (s *Store) GetProfileCode(ctx context.Context, userID string) (string, error) {
	var code string
	err := s.db.QueryRowContext(ctx,
		`SELECT code FROM profiles WHERE user_id = ? ORDER BY id DESC LIMIT 1`, userID,
	).Scan(&code)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return code, err
}

// ProfileHistory returns the user's profile codes, newest first.
func (s *Store) ProfileHistory(ctx context.Context, userID string, limit int) ([]ProfileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, code, created_at FROM profiles
		WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ProfileRecord
	for rows.Next() {
		var r ProfileRecord
		var createdAt string
		if err := rows.Scan(&r.UserID, &r.Code, &createdAt); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// --- Sessions ---

// SaveSession upserts the full session. The JSON blob is the source of
// truth; the indexed columns exist for queries and GC.
func (s *Store) SaveSession(ctx context.Context, sess *conversation.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, data_json, confidence, question_count, completed, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data_json = excluded.data_json,
			confidence = excluded.confidence,
			question_count = excluded.question_count,
			completed = excluded.completed,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at`,
		sess.ID, sess.UserID, string(data), sess.Confidence, sess.QuestionCount, boolToInt(sess.Completed),
		sess.CreatedAt.UTC().Format(time.RFC3339),
		sess.UpdatedAt.UTC().Format(time.RFC3339),
		sess.ExpiresAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetSession loads a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*conversation.Session, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data_json FROM sessions WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, conversation.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var sess conversation.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("unmarshaling session %s: %w", id, err)
	}
	return &sess, nil
}

// RecentSessions returns the user's sessions ordered by last activity.
func (s *Store) RecentSessions(ctx context.Context, userID string, limit int) ([]*conversation.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data_json FROM sessions WHERE user_id = ?
		ORDER BY updated_at DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*conversation.Session
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var sess conversation.Session
		if err := json.Unmarshal([]byte(data), &sess); err != nil {
			return nil, fmt.Errorf("unmarshaling session: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// DeleteExpiredSessions removes sessions past their TTL. Completed sessions
// are kept for reference regardless of age.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE completed = 0 AND expires_at < ?`,
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Track feature cache ---

// SetTrackFeatures caches a feature vector, replacing any previous entry.
// Per-user listening stats are deliberately not serialized: the cache is
// shared across users.
func (s *Store) SetTrackFeatures(ctx context.Context, t features.Track) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshaling features: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO track_features (catalog_id, features_json, cached_at)
		VALUES (?, ?, ?)
		ON CONFLICT(catalog_id) DO UPDATE SET
			features_json = excluded.features_json,
			cached_at = excluded.cached_at`,
		t.CatalogID, string(data), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetTrackFeatures returns a cached feature vector no older than ttl.
// Stale entries are treated as missing and cleaned up on read.
func (s *Store) GetTrackFeatures(ctx context.Context, catalogID string, ttl time.Duration) (features.Track, error) {
	var data, cachedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT features_json, cached_at FROM track_features WHERE catalog_id = ?`, catalogID,
	).Scan(&data, &cachedAt)
	if err == sql.ErrNoRows {
		return features.Track{}, ErrNotFound
	}
	if err != nil {
		return features.Track{}, err
	}

	at, err := time.Parse(time.RFC3339, cachedAt)
	if err != nil {
		return features.Track{}, fmt.Errorf("parsing cached_at: %w", err)
	}
	if ttl > 0 && time.Since(at) > ttl {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM track_features WHERE catalog_id = ?`, catalogID); err != nil {
			return features.Track{}, err
		}
		return features.Track{}, ErrNotFound
	}

	var t features.Track
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return features.Track{}, fmt.Errorf("unmarshaling features %s: %w", catalogID, err)
	}
	return t, nil
}

// --- Listening history ---

// RecordPlay upserts one play of a track for the user.
func (s *Store) RecordPlay(ctx context.Context, userID, catalogID, artist string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO listening_history (user_id, catalog_id, artist, play_count, last_played_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(user_id, catalog_id) DO UPDATE SET
			play_count = play_count + 1,
			artist = excluded.artist,
			last_played_at = excluded.last_played_at`,
		userID, catalogID, artist, at.UTC().Format(time.RFC3339),
	)
	return err
}

// ListeningStats returns per-track stats for the given catalog IDs, with
// artist-level play totals joined in. Tracks with no history are absent
// from the result.
func (s *Store) ListeningStats(ctx context.Context, userID string, catalogIDs []string) (map[string]features.ListeningStats, error) {
	stats := make(map[string]features.ListeningStats)
	if len(catalogIDs) == 0 {
		return stats, nil
	}

	placeholders := strings.Repeat(",?", len(catalogIDs)-1)
	args := make([]any, 0, len(catalogIDs)+1)
	args = append(args, userID)
	for _, id := range catalogIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT catalog_id, artist, play_count, last_played_at FROM listening_history
		WHERE user_id = ? AND catalog_id IN (?`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	artistOf := make(map[string]string)
	for rows.Next() {
		var id, artist, lastPlayed string
		var st features.ListeningStats
		if err := rows.Scan(&id, &artist, &st.PlayCount, &lastPlayed); err != nil {
			return nil, err
		}
		if st.LastPlayedAt, err = time.Parse(time.RFC3339, lastPlayed); err != nil {
			return nil, fmt.Errorf("parsing last_played_at: %w", err)
		}
		artistOf[id] = artist
		stats[id] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	totals, err := s.artistPlayTotals(ctx, userID)
	if err != nil {
		return nil, err
	}
	for id, st := range stats {
		st.ArtistPlayCount = totals[artistOf[id]]
		st.NewArtist = st.ArtistPlayCount == 0
		stats[id] = st
	}
	return stats, nil
}

func (s *Store) artistPlayTotals(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT artist, SUM(play_count) FROM listening_history
		WHERE user_id = ? AND artist != '' GROUP BY artist`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var artist string
		var total int
		if err := rows.Scan(&artist, &total); err != nil {
			return nil, err
		}
		totals[artist] = total
	}
	return totals, rows.Err()
}

// ListHistory returns the user's listening history, most recent first.
func (s *Store) ListHistory(ctx context.Context, userID string, limit int) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, catalog_id, artist, play_count, last_played_at FROM listening_history
		WHERE user_id = ? ORDER BY last_played_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var lastPlayed string
		if err := rows.Scan(&e.UserID, &e.CatalogID, &e.Artist, &e.PlayCount, &lastPlayed); err != nil {
			return nil, err
		}
		if e.LastPlayedAt, err = time.Parse(time.RFC3339, lastPlayed); err != nil {
			return nil, fmt.Errorf("parsing last_played_at: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Jobs ---

func (s *Store) EnqueueJob(job Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC().Format(time.RFC3339)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]interface{}, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err = tx.QueryRow(query, args...).Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = "running"
	j.LastError = lastError.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, now); err != nil {
		return nil, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return &j, nil
}

func (s *Store) CompleteJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) FailJob(id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++

	if attempts >= maxAttempts {
		_, err = tx.Exec(`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Format(time.RFC3339), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		runAfter := now.Add(backoff)
		_, err = tx.Exec(`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id)
	}

	if err != nil {
		return err
	}

	return tx.Commit()
}
