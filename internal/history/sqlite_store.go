package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Run is one orchestrated translation pass over a subtitle file.
type Run struct {
	ID           string
	SourceFile   string
	LangCodes    string
	ModelName    string
	StartIndex   int
	TotalItems   int
	SuccessCount int
	FailedCount  int
	InputTokens  int
	OutputTokens int
	StartedAt    time.Time
	FinishedAt   sql.NullTime
}

// Failure is one permanently failed item within a run.
type Failure struct {
	RunID string
	Index int
	Error string
}

// SQLiteStore persists the run ledger. SQLite with a single connection keeps
// writes serialized without any app-level locking.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	// Bootstrap schema_migrations table so we can track applied versions.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// StartRun records a new run row before any item is processed.
func (s *SQLiteStore) StartRun(ctx context.Context, run *Run) error {
	if run == nil {
		return fmt.Errorf("run is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (
			id, source_file, lang_codes, model_name, start_index, total_items,
			success_count, failed_count, input_tokens, output_tokens, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.SourceFile,
		run.LangCodes,
		run.ModelName,
		run.StartIndex,
		run.TotalItems,
		run.SuccessCount,
		run.FailedCount,
		run.InputTokens,
		run.OutputTokens,
		run.StartedAt.UTC(),
	)
	return err
}

// FinishRun closes out a run with its final counters.
func (s *SQLiteStore) FinishRun(ctx context.Context, run *Run) error {
	if run == nil {
		return fmt.Errorf("run is nil")
	}
	finishedAt := time.Now().UTC()
	if run.FinishedAt.Valid {
		finishedAt = run.FinishedAt.Time.UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET
			success_count = ?,
			failed_count = ?,
			input_tokens = ?,
			output_tokens = ?,
			finished_at = ?
		 WHERE id = ?`,
		run.SuccessCount,
		run.FailedCount,
		run.InputTokens,
		run.OutputTokens,
		finishedAt,
		run.ID,
	)
	return err
}

// RecordFailures stores the permanently failed indices of a run. Re-recording
// the same index overwrites the error text.
func (s *SQLiteStore) RecordFailures(ctx context.Context, runID string, failures []Failure) error {
	if len(failures) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, failure := range failures {
		if _, err = tx.ExecContext(
			ctx,
			`INSERT INTO run_failures (run_id, item_index, error)
			 VALUES (?, ?, ?)
			 ON CONFLICT(run_id, item_index) DO UPDATE SET error=excluded.error`,
			runID,
			failure.Index,
			failure.Error,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListRuns returns all runs, oldest first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source_file, lang_codes, model_name, start_index, total_items,
			success_count, failed_count, input_tokens, output_tokens, started_at, finished_at
		 FROM runs
		 ORDER BY started_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]Run, 0)
	for rows.Next() {
		var item Run
		if err := rows.Scan(
			&item.ID,
			&item.SourceFile,
			&item.LangCodes,
			&item.ModelName,
			&item.StartIndex,
			&item.TotalItems,
			&item.SuccessCount,
			&item.FailedCount,
			&item.InputTokens,
			&item.OutputTokens,
			&item.StartedAt,
			&item.FinishedAt,
		); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// FailuresForRun returns a run's permanently failed items ordered by index.
func (s *SQLiteStore) FailuresForRun(ctx context.Context, runID string) ([]Failure, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT run_id, item_index, error
		 FROM run_failures
		 WHERE run_id = ?
		 ORDER BY item_index ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]Failure, 0)
	for rows.Next() {
		var item Failure
		if err := rows.Scan(&item.RunID, &item.Index, &item.Error); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}
