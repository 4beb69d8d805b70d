package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps episodes in a local SQLite database. It backs the CLI
// and single-node server deployments.
type SQLiteStore struct {
	db    *sql.DB
	clock func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS episodes (
    id TEXT PRIMARY KEY,
    sort_key TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    progress_percent REAL NOT NULL DEFAULT 0,
    stage_message TEXT NOT NULL DEFAULT '',
    error_stage TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    tts_provider TEXT NOT NULL DEFAULT '',
    model TEXT NOT NULL DEFAULT '',
    preset TEXT NOT NULL DEFAULT '',
    transcript TEXT NOT NULL DEFAULT '',
    audio_key TEXT NOT NULL DEFAULT '',
    audio_url TEXT NOT NULL DEFAULT '',
    duration TEXT NOT NULL DEFAULT '',
    size_bytes INTEGER NOT NULL DEFAULT 0,
    tier TEXT NOT NULL DEFAULT '',
    utterances INTEGER NOT NULL DEFAULT 0,
    play_count INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_episodes_sort ON episodes(sort_key);
CREATE TABLE IF NOT EXISTS checkpoints (
    name TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, ep Episode) error {
	now := s.clock()
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = now
	}
	if ep.Status == "" {
		ep.Status = StatusSubmitted
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO episodes(id, sort_key, title, source, status, tts_provider, model, preset, transcript, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		ep.ID, sortKey(ep.CreatedAt, ep.ID), ep.Title, ep.Source, string(ep.Status),
		ep.TTSProvider, ep.Model, ep.Preset, ep.Transcript, stamp(ep.CreatedAt), stamp(now))
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("create %s: %w", ep.ID, ErrExists)
	}
	return nil
}

func (s *SQLiteStore) exec(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) UpdateProgress(ctx context.Context, id string, status Status, percent float64, message string) error {
	err := s.exec(ctx, id,
		`UPDATE episodes SET status = ?, progress_percent = ?, stage_message = ?, updated_at = ? WHERE id = ?`,
		string(status), percent, message, stamp(s.clock()), id)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveTranscript(ctx context.Context, id, transcript string) error {
	err := s.exec(ctx, id,
		`UPDATE episodes SET transcript = ?, updated_at = ? WHERE id = ?`,
		transcript, stamp(s.clock()), id)
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Complete(ctx context.Context, id string, c Completion) error {
	err := s.exec(ctx, id,
		`UPDATE episodes SET status = ?, progress_percent = 1, stage_message = 'Complete',
		   title = CASE WHEN ? = '' THEN title ELSE ? END,
		   audio_key = ?, audio_url = ?, duration = ?, size_bytes = ?, tier = ?, utterances = ?, updated_at = ?
		 WHERE id = ?`,
		string(StatusComplete), c.Title, c.Title, c.AudioKey, c.AudioURL, c.Duration,
		c.SizeBytes, c.Tier, c.Utterances, stamp(s.clock()), id)
	if err != nil {
		return fmt.Errorf("complete episode: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Fail(ctx context.Context, id, stage, message string) error {
	err := s.exec(ctx, id,
		`UPDATE episodes SET status = ?, error_stage = ?, error_message = ?, stage_message = ?, updated_at = ? WHERE id = ?`,
		string(StatusFailed), stage, message, "Failed: "+message, stamp(s.clock()), id)
	if err != nil {
		return fmt.Errorf("fail episode: %w", err)
	}
	return nil
}

const episodeColumns = `id, title, source, status, progress_percent, stage_message, error_stage, error_message,
	tts_provider, model, preset, transcript, audio_key, audio_url, duration, size_bytes, tier, utterances,
	play_count, created_at, updated_at, sort_key`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEpisode(row rowScanner) (Episode, string, error) {
	var (
		ep               Episode
		status           string
		created, updated string
		sk               string
	)
	err := row.Scan(&ep.ID, &ep.Title, &ep.Source, &status, &ep.ProgressPercent, &ep.StageMessage,
		&ep.ErrorStage, &ep.ErrorMessage, &ep.TTSProvider, &ep.Model, &ep.Preset, &ep.Transcript,
		&ep.AudioKey, &ep.AudioURL, &ep.Duration, &ep.SizeBytes, &ep.Tier, &ep.Utterances,
		&ep.PlayCount, &created, &updated, &sk)
	if err != nil {
		return ep, "", err
	}
	ep.Status = Status(status)
	ep.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	ep.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return ep, sk, nil
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id)
	ep, _, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get episode: %w", err)
	}
	return &ep, nil
}

// List pages by sort key, newest first. One extra row is fetched to decide
// whether a next cursor exists.
func (s *SQLiteStore) List(ctx context.Context, limit int, cursor string) ([]Episode, string, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if cursor != "" && !strings.Contains(cursor, "#") {
		return nil, "", fmt.Errorf("invalid cursor %q", cursor)
	}

	query := `SELECT ` + episodeColumns + ` FROM episodes`
	args := []any{}
	if cursor != "" {
		query += ` WHERE sort_key < ?`
		args = append(args, cursor)
	}
	query += ` ORDER BY sort_key DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var (
		episodes []Episode
		keys     []string
	)
	for rows.Next() {
		ep, sk, err := scanEpisode(rows)
		if err != nil {
			return nil, "", fmt.Errorf("scan episode: %w", err)
		}
		episodes = append(episodes, ep)
		keys = append(keys, sk)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("list episodes: %w", err)
	}

	var next string
	if len(episodes) > limit {
		episodes = episodes[:limit]
		next = keys[limit-1]
	}
	return episodes, next, nil
}

func (s *SQLiteStore) AddPlays(ctx context.Context, id string, n int) error {
	err := s.exec(ctx, id, `UPDATE episodes SET play_count = play_count + ? WHERE id = ?`, n, id)
	if err != nil {
		return fmt.Errorf("add plays: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Checkpoint(ctx context.Context, name string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM checkpoints WHERE name = ?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get checkpoint: %w", err)
	}
	return v, nil
}

func (s *SQLiteStore) SetCheckpoint(ctx context.Context, name, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints(name, value) VALUES(?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		name, value)
	if err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}
