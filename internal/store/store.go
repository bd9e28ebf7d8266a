// Package store persists run history and the result cache in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"
)

// Run statuses as stored in the runs table.
const (
	StatusRunning   = "running"
	StatusDone      = "done"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// ErrNotFound is returned when a run or cache entry does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

// Run is one pipeline invocation.
type Run struct {
	ID             string
	Action         string
	SourceText     string
	TargetLanguage string
	Title          string
	URL            string
	Status         string
	FinalText      string
	Error          string
	Chunks         int
	FailedChunks   int
	StartedAt      time.Time
	FinishedAt     time.Time
}

// ChunkResult is the accepted (or failed) output of one chunk of a run.
type ChunkResult struct {
	RunID     string
	Index     int
	Failed    bool
	Text      string
	Error     string
	CreatedAt time.Time
}

// CacheEntry is a row of the result cache.
type CacheEntry struct {
	ID             string
	SourceText     string
	Action         string
	TargetLanguage string
	FinalText      string
	UsageCount     int
	Invalidated    bool
	LastUsed       time.Time
}

// Stats summarises the cache and the run history.
type Stats struct {
	TotalEntries   int
	ActiveEntries  int
	InvalidEntries int
	TotalUsage     int
	Runs           int
	CompletedRuns  int
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serialises writers from concurrent runs.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		source_text TEXT NOT NULL,
		target_language TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'running',
		final_text TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		chunk_count INTEGER NOT NULL DEFAULT 0,
		failed_chunks INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chunk_results (
		run_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		failed BOOLEAN NOT NULL DEFAULT FALSE,
		text TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (run_id, chunk_index),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	-- result_cache maps normalized source text + action + language to a final result
	CREATE TABLE IF NOT EXISTS result_cache (
		id TEXT PRIMARY KEY,
		source_text TEXT NOT NULL,
		action TEXT NOT NULL,
		target_language TEXT NOT NULL DEFAULT '',
		final_text TEXT NOT NULL,
		usage_count INTEGER DEFAULT 1,
		invalidated BOOLEAN DEFAULT FALSE,
		last_used TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(source_text, action, target_language)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_cache_lookup ON result_cache(source_text, action, target_language);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun records the start of a run.
func (s *Store) SaveRun(ctx context.Context, run *Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, action, source_text, target_language, title, url, status, chunk_count, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Action, run.SourceText, run.TargetLanguage, run.Title, run.URL, run.Status, run.Chunks, run.StartedAt)
	return err
}

func (s *Store) SaveChunkResult(ctx context.Context, cr *ChunkResult) error {
	if cr.CreatedAt.IsZero() {
		cr.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chunk_results (run_id, chunk_index, failed, text, error, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		cr.RunID, cr.Index, cr.Failed, cr.Text, cr.Error, cr.CreatedAt)
	return err
}

// FinishRun stores the terminal state of run.
func (s *Store) FinishRun(ctx context.Context, run *Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, final_text = ?, error = ?, chunk_count = ?, failed_chunks = ?, finished_at = ? WHERE id = ?`,
		run.Status, run.FinalText, run.Error, run.Chunks, run.FailedChunks, run.FinishedAt, run.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

const runColumns = `id, action, source_text, target_language, title, url, status, final_text, error, chunk_count, failed_chunks, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r        Run
		finished sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.Action, &r.SourceText, &r.TargetLanguage, &r.Title, &r.URL, &r.Status,
		&r.FinalText, &r.Error, &r.Chunks, &r.FailedChunks, &r.StartedAt, &finished); err != nil {
		return nil, err
	}
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	return &r, nil
}

// GetRun returns a run together with its chunk results in index order.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, []ChunkResult, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, chunk_index, failed, text, error, created_at FROM chunk_results WHERE run_id = ? ORDER BY chunk_index`, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var chunks []ChunkResult
	for rows.Next() {
		var c ChunkResult
		if err := rows.Scan(&c.RunID, &c.Index, &c.Failed, &c.Text, &c.Error, &c.CreatedAt); err != nil {
			return nil, nil, err
		}
		chunks = append(chunks, c)
	}
	return run, chunks, rows.Err()
}

// ListRuns returns the most recent runs first. limit ≤ 0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetCachedResult returns the cached final text for the input, bumping its
// usage count. Invalidated entries are misses.
func (s *Store) GetCachedResult(ctx context.Context, sourceText, action, targetLanguage string) (string, bool, error) {
	key := normalizeText(sourceText)

	var (
		finalText   string
		invalidated bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT final_text, invalidated FROM result_cache WHERE source_text = ? AND action = ? AND target_language = ?`,
		key, action, targetLanguage).Scan(&finalText, &invalidated)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && invalidated) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE result_cache SET usage_count = usage_count + 1, last_used = ? WHERE source_text = ? AND action = ? AND target_language = ?`,
		time.Now(), key, action, targetLanguage)
	return finalText, true, err
}

// SaveToCache stores or replaces the final text for the input.
func (s *Store) SaveToCache(ctx context.Context, sourceText, action, targetLanguage, finalText string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO result_cache (id, source_text, action, target_language, final_text, usage_count, invalidated, last_used, created_at)
		 VALUES (?, ?, ?, ?, ?, 1, FALSE, ?, ?)`,
		ulid.Make().String(), normalizeText(sourceText), action, targetLanguage, finalText, now, now)
	return err
}

func (s *Store) InvalidateCache(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE result_cache SET invalidated = TRUE WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("cache entry %s: %w", id, ErrNotFound)
	}
	return nil
}

// ClearCache removes every cache entry and returns how many were deleted.
func (s *Store) ClearCache(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM result_cache`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListCache returns all cache entries, most recently used first.
func (s *Store) ListCache(ctx context.Context) ([]CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_text, action, target_language, final_text, usage_count, invalidated, last_used FROM result_cache ORDER BY last_used DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []CacheEntry
	for rows.Next() {
		var e CacheEntry
		if err := rows.Scan(&e.ID, &e.SourceText, &e.Action, &e.TargetLanguage, &e.FinalText, &e.UsageCount, &e.Invalidated, &e.LastUsed); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN NOT invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(usage_count), 0)
		FROM result_cache`).Scan(
		&stats.TotalEntries,
		&stats.ActiveEntries,
		&stats.InvalidEntries,
		&stats.TotalUsage,
	)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) FROM runs`,
		StatusDone).Scan(&stats.Runs, &stats.CompletedRuns)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// FuzzyGetCachedResult returns the cached result whose normalized source text
// is at least threshold similar (0-1, by edit distance) to sourceText, for the
// same action and language. threshold ≤ 0 disables the lookup. Inputs longer
// than maxFuzzyRunes are never fuzzy-matched.
func (s *Store) FuzzyGetCachedResult(ctx context.Context, sourceText, action, targetLanguage string, threshold float64) (string, bool, error) {
	if threshold <= 0 {
		return "", false, nil
	}
	key := []rune(normalizeText(sourceText))
	if len(key) > maxFuzzyRunes {
		return "", false, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source_text, final_text FROM result_cache WHERE action = ? AND target_language = ? AND NOT invalidated`,
		action, targetLanguage)
	if err != nil {
		return "", false, err
	}
	defer rows.Close()

	var (
		best      string
		bestScore float64
	)
	for rows.Next() {
		var src, final string
		if err := rows.Scan(&src, &final); err != nil {
			return "", false, err
		}
		candidate := []rune(src)
		// The length gap alone bounds the best reachable score.
		longest := max(len(key), len(candidate))
		if longest > 0 && 1-float64(abs(len(key)-len(candidate)))/float64(longest) < threshold {
			continue
		}
		if score := similarity(key, candidate); score >= threshold && score > bestScore {
			best, bestScore = final, score
		}
	}
	if err := rows.Err(); err != nil {
		return "", false, err
	}
	return best, best != "", nil
}

const maxFuzzyRunes = 5000

// normalizeText trims whitespace and applies Unicode NFC normalization so the
// same page text always produces the same cache key.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

func similarity(a, b []rune) float64 {
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

// levenshtein is the rune edit distance, computed with two rolling rows.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// ResultCache looks up exact matches first and falls back to fuzzy matching
// when a threshold is set.
type ResultCache struct {
	store     *Store
	threshold float64
}

func (s *Store) ResultCache(fuzzyThreshold float64) *ResultCache {
	return &ResultCache{store: s, threshold: fuzzyThreshold}
}

func (c *ResultCache) Lookup(ctx context.Context, text, action, targetLanguage string) (string, bool, error) {
	result, ok, err := c.store.GetCachedResult(ctx, text, action, targetLanguage)
	if err != nil || ok {
		return result, ok, err
	}
	return c.store.FuzzyGetCachedResult(ctx, text, action, targetLanguage, c.threshold)
}

func (c *ResultCache) Save(ctx context.Context, text, action, targetLanguage, result string) error {
	return c.store.SaveToCache(ctx, text, action, targetLanguage, result)
}
