package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"modvault/internal/config"
)

// Store manages catalog and history persistence backed by SQLite. A file lock
// next to the database enforces a single modvault instance per data directory.
type Store struct {
	db   *sql.DB
	path string
	lock *flock.Flock

	mu      sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// Open initializes or connects to the catalog database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.Paths.DataDir, "modvault.lock"))
	held, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire data lock: %w", err)
	}
	if !held {
		return nil, errors.New("another modvault instance is using this data directory")
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "modvault.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:   db,
		path: dbPath,
		lock: lock,
		subs: make(map[int]func(Event)),
	}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection and releases the instance lock.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var err error
	if s.db != nil {
		err = s.db.Close()
	}
	if s.lock != nil {
		if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}
	return err
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// GetArtifact fetches one catalog record. Returns ErrNotFound when absent.
func (s *Store) GetArtifact(ctx context.Context, id string) (*Artifact, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, author, tags_json, size_bytes, local_path, downloaded_at
         FROM artifacts WHERE id = ?`,
		id,
	)
	artifact, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: artifact %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return artifact, nil
}

// HasArtifact reports whether a catalog record exists for id.
func (s *Store) HasArtifact(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM artifacts WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has artifact: %w", err)
	}
	return true, nil
}

// PutArtifact inserts or replaces a catalog record and notifies subscribers.
func (s *Store) PutArtifact(ctx context.Context, artifact *Artifact) error {
	if artifact == nil || strings.TrimSpace(artifact.ID) == "" {
		return errors.New("put artifact: missing id")
	}
	tagsJSON, err := json.Marshal(artifact.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	downloadedAt := artifact.DownloadedAt
	if downloadedAt.IsZero() {
		downloadedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO artifacts (id, name, author, tags_json, size_bytes, local_path, downloaded_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
           name = excluded.name,
           author = excluded.author,
           tags_json = excluded.tags_json,
           size_bytes = excluded.size_bytes,
           local_path = excluded.local_path,
           downloaded_at = excluded.downloaded_at`,
		artifact.ID,
		artifact.Name,
		artifact.Author,
		string(tagsJSON),
		artifact.SizeBytes,
		artifact.LocalPath,
		downloadedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put artifact: %w", err)
	}

	s.notify(Event{Op: OpPut, ArtifactID: artifact.ID})
	return nil
}

// DeleteArtifact removes a catalog record and its preview, then notifies
// subscribers. Deleting an absent record is not an error.
func (s *Store) DeleteArtifact(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM previews WHERE artifact_id = ?`, id); err != nil {
		return fmt.Errorf("delete preview: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected > 0 {
		s.notify(Event{Op: OpDelete, ArtifactID: id})
	}
	return nil
}

// ListArtifacts returns all catalog records ordered by download time, newest
// first.
func (s *Store) ListArtifacts(ctx context.Context) ([]Artifact, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, name, author, tags_json, size_bytes, local_path, downloaded_at
         FROM artifacts ORDER BY downloaded_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []Artifact
	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, *artifact)
	}
	return artifacts, rows.Err()
}

// SavePreview stores a preview representation (a data URL) for an artifact.
// Previews are written before their artifact record so consumers never observe
// a record pointing at a not-yet-ready preview.
func (s *Store) SavePreview(ctx context.Context, artifactID, dataURL string) error {
	if strings.TrimSpace(artifactID) == "" {
		return errors.New("save preview: missing artifact id")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO previews (artifact_id, data_url, updated_at)
         VALUES (?, ?, ?)
         ON CONFLICT(artifact_id) DO UPDATE SET
           data_url = excluded.data_url,
           updated_at = excluded.updated_at`,
		artifactID,
		dataURL,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save preview: %w", err)
	}
	return nil
}

// Preview returns the stored preview data URL for an artifact, or ErrNotFound.
func (s *Store) Preview(ctx context.Context, artifactID string) (string, error) {
	var dataURL string
	err := s.db.QueryRowContext(
		ctx,
		`SELECT data_url FROM previews WHERE artifact_id = ?`,
		artifactID,
	).Scan(&dataURL)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: preview for %q", ErrNotFound, artifactID)
	}
	if err != nil {
		return "", fmt.Errorf("get preview: %w", err)
	}
	return dataURL, nil
}

// AppendHistory appends one entry to the download history log. The entry is
// assigned an ID when it has none.
func (s *Store) AppendHistory(ctx context.Context, entry *HistoryEntry) error {
	if entry == nil {
		return errors.New("append history: nil entry")
	}
	id := entry.ID
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO download_history (id, artifact_id, name, status, error, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		entry.ArtifactID,
		entry.Name,
		string(entry.Status),
		entry.Error,
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	entry.ID = id
	return nil
}

// History returns up to limit history entries, newest first. A non-positive
// limit returns everything.
func (s *Store) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	query := `SELECT id, artifact_id, name, status, error, created_at
              FROM download_history ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		var status, createdAt string
		if err := rows.Scan(&entry.ID, &entry.ArtifactID, &entry.Name, &status, &entry.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entry.Status = HistoryStatus(status)
		entry.CreatedAt = parseTimestamp(createdAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Subscribe registers a catalog change listener and returns an unsubscribe
// function. Listeners are invoked synchronously after each mutation.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify(event Event) {
	s.mu.Lock()
	listeners := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(event)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (*Artifact, error) {
	var artifact Artifact
	var tagsJSON, downloadedAt string
	if err := row.Scan(
		&artifact.ID,
		&artifact.Name,
		&artifact.Author,
		&tagsJSON,
		&artifact.SizeBytes,
		&artifact.LocalPath,
		&downloadedAt,
	); err != nil {
		return nil, err
	}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &artifact.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	artifact.DownloadedAt = parseTimestamp(downloadedAt)
	return &artifact, nil
}

func parseTimestamp(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
