package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/verideck/verideck/pipeline"
)

func sampleSummary(id string) *pipeline.RunSummary {
	return &pipeline.RunSummary{
		RunID:              id,
		StartedAt:          time.Unix(1700000000, 0),
		FinishedAt:         time.Unix(1700000060, 0),
		DesignsProcessed:   3,
		DesignsRejected:    1,
		MutantsGenerated:   6,
		MutantsFailed:      1,
		QuestionsGenerated: 5,
		QuestionsVerified:  4,
		QuestionsFailed:    1,
		CandidatesFailed:   2,
		ChecksEquivalent:   7,
		ChecksNegative:     10,
		ChecksTimedOut:     2,
		ChecksFailed:       1,
		MergesApplied:      2,
		Blobs: []pipeline.BlobResult{
			{Hash: "aaaa", ClassID: "aaaa", State: pipeline.StateIsolated},
			{Hash: "bbbb", ClassID: "aaaa", State: pipeline.StateMerged},
			{State: pipeline.StateRejected, Err: errors.New("empty content")},
		},
	}
}

func newTestStore(t *testing.T) *RunStore {
	t.Helper()
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLoadRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := sampleSummary("run-1")
	if err := store.SaveRun(ctx, want); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := store.LoadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if got.RunID != want.RunID {
		t.Errorf("run id %q, want %q", got.RunID, want.RunID)
	}
	if !got.StartedAt.Equal(want.StartedAt) || !got.FinishedAt.Equal(want.FinishedAt) {
		t.Errorf("timestamps %v/%v, want %v/%v", got.StartedAt, got.FinishedAt, want.StartedAt, want.FinishedAt)
	}
	if got.QuestionsVerified != 4 || got.MergesApplied != 2 || got.ChecksTimedOut != 2 {
		t.Errorf("counts not preserved: %+v", got)
	}
	if got.CandidatesFailed != 2 {
		t.Errorf("dropped-candidate count not preserved, got %d", got.CandidatesFailed)
	}
	if len(got.Blobs) != 3 {
		t.Fatalf("expected 3 blob records, got %d", len(got.Blobs))
	}
	if got.Blobs[1].State != pipeline.StateMerged || got.Blobs[1].ClassID != "aaaa" {
		t.Errorf("blob record not preserved: %+v", got.Blobs[1])
	}
	if got.Blobs[2].Err == nil || got.Blobs[2].Err.Error() != "empty content" {
		t.Errorf("rejection cause not preserved: %v", got.Blobs[2].Err)
	}
}

func TestSaveRunReplacesExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := sampleSummary("run-1")
	if err := store.SaveRun(ctx, first); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	second := sampleSummary("run-1")
	second.MergesApplied = 9
	second.Blobs = second.Blobs[:1]
	if err := store.SaveRun(ctx, second); err != nil {
		t.Fatalf("re-save failed: %v", err)
	}

	got, err := store.LoadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got.MergesApplied != 9 {
		t.Errorf("expected replaced counts, got %d merges", got.MergesApplied)
	}
	if len(got.Blobs) != 1 {
		t.Errorf("expected replaced blob records, got %d", len(got.Blobs))
	}
}

func TestLoadRunNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LoadRun(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestListRunsMostRecentFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := sampleSummary("run-old")
	newer := sampleSummary("run-new")
	newer.StartedAt = older.StartedAt.Add(time.Hour)
	if err := store.SaveRun(ctx, older); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.SaveRun(ctx, newer); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != "run-new" {
		t.Errorf("expected run-new first, got %q", runs[0].RunID)
	}
}

func TestTotalsAggregateAcrossRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveRun(ctx, sampleSummary("run-1")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.SaveRun(ctx, sampleSummary("run-2")); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	totals, err := store.Totals(ctx)
	if err != nil {
		t.Fatalf("totals failed: %v", err)
	}
	if totals.Runs != 2 {
		t.Errorf("expected 2 runs, got %d", totals.Runs)
	}
	if totals.DesignsProcessed != 6 {
		t.Errorf("expected 6 processed designs, got %d", totals.DesignsProcessed)
	}
	if totals.QuestionsVerified != 8 {
		t.Errorf("expected 8 verified questions, got %d", totals.QuestionsVerified)
	}
	if totals.CandidatesFailed != 4 {
		t.Errorf("expected 4 dropped candidates, got %d", totals.CandidatesFailed)
	}
	if rate := totals.VerificationRate(); rate != 0.8 {
		t.Errorf("expected verification rate 0.8, got %v", rate)
	}
}

func TestTotalsEmptyStore(t *testing.T) {
	store := newTestStore(t)

	totals, err := store.Totals(context.Background())
	if err != nil {
		t.Fatalf("totals failed: %v", err)
	}
	if totals.Runs != 0 {
		t.Errorf("expected 0 runs, got %d", totals.Runs)
	}
	if totals.VerificationRate() != 0 {
		t.Errorf("expected rate 0 on empty store, got %v", totals.VerificationRate())
	}
}

func TestOpenSqliteCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "runs.db")
	store, err := OpenSqlite(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer store.Close()

	if err := store.SaveRun(context.Background(), sampleSummary("run-1")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
}
