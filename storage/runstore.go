// Package storage persists pipeline run summaries in SQLite.
//
// Information Hiding:
// - SQLite connection management hidden behind the store type
// - Schema details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/verideck/verideck/corpus"
	"github.com/verideck/verideck/pipeline"
)

// ErrRunNotFound is returned when a run id is not in the store.
var ErrRunNotFound = errors.New("run not found")

// RunStore keeps run summaries and their per-blob outcomes across
// invocations, so statistics accumulate over many batches.
type RunStore struct {
	db *sql.DB
}

// OpenSqlite opens or creates a run store at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*RunStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store := &RunStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// NewSqliteInMemory creates an in-memory store (useful for testing).
func NewSqliteInMemory() (*RunStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	store := &RunStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}

func (s *RunStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			designs_processed INTEGER NOT NULL,
			designs_rejected INTEGER NOT NULL,
			mutants_generated INTEGER NOT NULL,
			mutants_failed INTEGER NOT NULL,
			questions_generated INTEGER NOT NULL,
			questions_verified INTEGER NOT NULL,
			questions_failed INTEGER NOT NULL,
			candidates_failed INTEGER NOT NULL,
			checks_equivalent INTEGER NOT NULL,
			checks_negative INTEGER NOT NULL,
			checks_timed_out INTEGER NOT NULL,
			checks_failed INTEGER NOT NULL,
			merges_applied INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS run_blobs (
			run_id TEXT NOT NULL,
			blob_index INTEGER NOT NULL,
			hash TEXT NOT NULL,
			class_id TEXT NOT NULL,
			state TEXT NOT NULL,
			error TEXT NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE,
			PRIMARY KEY (run_id, blob_index)
		);

		CREATE INDEX IF NOT EXISTS idx_run_blobs_hash
		ON run_blobs(hash);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun stores a summary, replacing any earlier record of the same run id.
func (s *RunStore) SaveRun(ctx context.Context, summary *pipeline.RunSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback is a no-op after Commit.
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			run_id, started_at, finished_at,
			designs_processed, designs_rejected,
			mutants_generated, mutants_failed,
			questions_generated, questions_verified, questions_failed, candidates_failed,
			checks_equivalent, checks_negative, checks_timed_out, checks_failed,
			merges_applied
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID, summary.StartedAt.Unix(), summary.FinishedAt.Unix(),
		summary.DesignsProcessed, summary.DesignsRejected,
		summary.MutantsGenerated, summary.MutantsFailed,
		summary.QuestionsGenerated, summary.QuestionsVerified, summary.QuestionsFailed, summary.CandidatesFailed,
		summary.ChecksEquivalent, summary.ChecksNegative, summary.ChecksTimedOut, summary.ChecksFailed,
		summary.MergesApplied,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM run_blobs WHERE run_id = ?", summary.RunID); err != nil {
		return fmt.Errorf("failed to clear old blob records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO run_blobs (run_id, blob_index, hash, class_id, state, error) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare blob insert: %w", err)
	}
	defer stmt.Close()

	for i, blob := range summary.Blobs {
		errText := ""
		if blob.Err != nil {
			errText = blob.Err.Error()
		}
		if _, err := stmt.ExecContext(ctx, summary.RunID, i, blob.Hash, blob.ClassID, blob.State.String(), errText); err != nil {
			return fmt.Errorf("failed to insert blob record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadRun loads one run summary with its blob records.
func (s *RunStore) LoadRun(ctx context.Context, runID string) (*pipeline.RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, started_at, finished_at,
			designs_processed, designs_rejected,
			mutants_generated, mutants_failed,
			questions_generated, questions_verified, questions_failed, candidates_failed,
			checks_equivalent, checks_negative, checks_timed_out, checks_failed,
			merges_applied
		FROM runs WHERE run_id = ?`, runID)

	summary, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT hash, class_id, state, error FROM run_blobs WHERE run_id = ? ORDER BY blob_index ASC",
		runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query blob records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash, classID, state, errText string
		if err := rows.Scan(&hash, &classID, &state, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan blob record: %w", err)
		}
		blob := pipeline.BlobResult{
			Hash:    corpus.Digest(hash),
			ClassID: corpus.Digest(classID),
			State:   parseState(state),
		}
		if errText != "" {
			blob.Err = errors.New(errText)
		}
		summary.Blobs = append(summary.Blobs, blob)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blob records: %w", err)
	}

	return summary, nil
}

// ListRuns returns all stored summaries, most recent first, without their
// blob records.
func (s *RunStore) ListRuns(ctx context.Context) ([]*pipeline.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at,
			designs_processed, designs_rejected,
			mutants_generated, mutants_failed,
			questions_generated, questions_verified, questions_failed, candidates_failed,
			checks_equivalent, checks_negative, checks_timed_out, checks_failed,
			merges_applied
		FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []*pipeline.RunSummary{}
	for rows.Next() {
		summary, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// Totals aggregates counts across every stored run.
type Totals struct {
	Runs int

	DesignsProcessed int
	DesignsRejected  int

	MutantsGenerated int
	MutantsFailed    int

	QuestionsGenerated int
	QuestionsVerified  int
	QuestionsFailed    int
	CandidatesFailed   int

	ChecksEquivalent int
	ChecksNegative   int
	ChecksTimedOut   int
	ChecksFailed     int

	MergesApplied int
}

// VerificationRate is verified questions over generated questions, 0 when
// nothing was generated.
func (t Totals) VerificationRate() float64 {
	if t.QuestionsGenerated == 0 {
		return 0
	}
	return float64(t.QuestionsVerified) / float64(t.QuestionsGenerated)
}

// Totals computes the cross-run aggregate.
func (s *RunStore) Totals(ctx context.Context) (Totals, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(designs_processed), 0), COALESCE(SUM(designs_rejected), 0),
			COALESCE(SUM(mutants_generated), 0), COALESCE(SUM(mutants_failed), 0),
			COALESCE(SUM(questions_generated), 0), COALESCE(SUM(questions_verified), 0), COALESCE(SUM(questions_failed), 0),
			COALESCE(SUM(candidates_failed), 0),
			COALESCE(SUM(checks_equivalent), 0), COALESCE(SUM(checks_negative), 0), COALESCE(SUM(checks_timed_out), 0), COALESCE(SUM(checks_failed), 0),
			COALESCE(SUM(merges_applied), 0)
		FROM runs`)

	var t Totals
	err := row.Scan(&t.Runs,
		&t.DesignsProcessed, &t.DesignsRejected,
		&t.MutantsGenerated, &t.MutantsFailed,
		&t.QuestionsGenerated, &t.QuestionsVerified, &t.QuestionsFailed,
		&t.CandidatesFailed,
		&t.ChecksEquivalent, &t.ChecksNegative, &t.ChecksTimedOut, &t.ChecksFailed,
		&t.MergesApplied)
	if err != nil {
		return Totals{}, fmt.Errorf("failed to aggregate runs: %w", err)
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*pipeline.RunSummary, error) {
	var (
		summary           pipeline.RunSummary
		started, finished int64
	)
	err := row.Scan(&summary.RunID, &started, &finished,
		&summary.DesignsProcessed, &summary.DesignsRejected,
		&summary.MutantsGenerated, &summary.MutantsFailed,
		&summary.QuestionsGenerated, &summary.QuestionsVerified, &summary.QuestionsFailed,
		&summary.CandidatesFailed,
		&summary.ChecksEquivalent, &summary.ChecksNegative, &summary.ChecksTimedOut, &summary.ChecksFailed,
		&summary.MergesApplied)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	summary.StartedAt = time.Unix(started, 0)
	summary.FinishedAt = time.Unix(finished, 0)
	return &summary, nil
}

func parseState(s string) pipeline.State {
	states := []pipeline.State{
		pipeline.StateStandardizing,
		pipeline.StateRejected,
		pipeline.StateInserted,
		pipeline.StateCandidatesRequested,
		pipeline.StateVerdictsPending,
		pipeline.StateMerged,
		pipeline.StateIsolated,
		pipeline.StatePersisted,
	}
	for _, st := range states {
		if st.String() == s {
			return st
		}
	}
	return pipeline.StateStandardizing
}
