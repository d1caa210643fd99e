// Orchestrator - drives ingested designs through the full run.
//
// One run processes one ingestion batch: standardize and insert every blob,
// fan out candidate generation (mutants and verified questions), gather all
// pairwise oracle verdicts for the batch, commit the implied merges, then
// persist. Verdict gathering and generation run fully parallel; every
// database mutation and every summary update is applied by the coordinating
// goroutine draining a single results channel, so there is exactly one
// writer and no lock is held across a blocking call.
//
// Per-item failures (one mutant, one question, one oracle pair) are counted
// and isolated. Only structural failures abort the run: an unknown class id
// during merge or question insert, or a persistence error.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/verideck/verideck/corpus"
	"github.com/verideck/verideck/merge"
	"github.com/verideck/verideck/mutate"
	"github.com/verideck/verideck/oracle"
	"github.com/verideck/verideck/question"
)

// Options configures one orchestrator. Zero values fall back to the
// defaults below.
type Options struct {
	MutantsPerDesign      int
	MutationStrength      int
	QuestionsPerMutant    int
	CandidatesPerQuestion int

	// CheckAgainstExisting widens verdict gathering from batch-only pairs to
	// every class already in the database. Quadratically more oracle calls;
	// off by default.
	CheckAgainstExisting bool

	// Persistence targets. Leaving DesignsPath empty skips the persist phase.
	DesignsPath   string
	QuestionsPath string
	Replace       bool
}

func (o Options) withDefaults() Options {
	if o.MutantsPerDesign <= 0 {
		o.MutantsPerDesign = 2
	}
	if o.MutationStrength <= 0 {
		o.MutationStrength = 3
	}
	if o.QuestionsPerMutant <= 0 {
		o.QuestionsPerMutant = 1
	}
	if o.CandidatesPerQuestion <= 0 {
		o.CandidatesPerQuestion = 3
	}
	return o
}

// BlobResult records where one input blob ended up.
type BlobResult struct {
	Hash    corpus.Digest
	ClassID corpus.Digest // final class after merges; empty when rejected
	State   State
	Err     error // rejection cause, nil otherwise
}

// RunSummary is the run-level report: per-category counts plus the final
// state of every input blob.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	DesignsProcessed int
	DesignsRejected  int

	MutantsGenerated int
	MutantsFailed    int

	QuestionsGenerated int
	QuestionsVerified  int
	QuestionsFailed    int

	// CandidatesFailed counts candidate solutions abandoned by the
	// generation collaborator; they never reach the oracle, so they are
	// kept apart from the check counts below.
	CandidatesFailed int

	ChecksEquivalent int
	ChecksNegative   int
	ChecksTimedOut   int
	ChecksFailed     int

	MergesApplied int

	Blobs []BlobResult
}

// Orchestrator wires the store, the mutator, the question generator and the
// oracle gateway into one runnable pipeline.
type Orchestrator struct {
	db        *corpus.Database
	mutator   mutate.Mutator
	questions *question.Generator
	gateway   *oracle.Gateway
	opts      Options
}

func NewOrchestrator(db *corpus.Database, mutator mutate.Mutator, questions *question.Generator, gateway *oracle.Gateway, opts Options) *Orchestrator {
	return &Orchestrator{
		db:        db,
		mutator:   mutator,
		questions: questions,
		gateway:   gateway,
		opts:      opts.withDefaults(),
	}
}

// Run processes one ingestion batch end to end and returns its summary.
// The summary is returned even when the run aborts, so callers can report
// what completed before the failure.
func (o *Orchestrator) Run(ctx context.Context, contents []string) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	defer func() { summary.FinishedAt = time.Now() }()

	accepted := o.insertBatch(contents, summary)

	batchClasses, err := o.generateCandidates(ctx, accepted, summary)
	if err != nil {
		return summary, err
	}

	if err := o.gatherAndMerge(ctx, batchClasses, summary); err != nil {
		return summary, err
	}

	o.resolveFinalStates(summary)

	if o.opts.DesignsPath != "" {
		if err := o.db.WriteFiles(o.opts.DesignsPath, o.opts.QuestionsPath, o.opts.Replace); err != nil {
			return summary, fmt.Errorf("persisting run %s: %w", summary.RunID, err)
		}
		for i := range summary.Blobs {
			if summary.Blobs[i].State != StateRejected {
				summary.Blobs[i].State = StatePersisted
			}
		}
	}

	return summary, nil
}

// insertBatch standardizes and inserts every input blob. Canonicalization
// failures reject the blob; everything else enters as (possibly) a new
// singleton class.
func (o *Orchestrator) insertBatch(contents []string, summary *RunSummary) []corpus.Digest {
	var accepted []corpus.Digest
	for _, content := range contents {
		hash, _, err := o.db.Add(content)
		if err != nil {
			summary.DesignsRejected++
			summary.Blobs = append(summary.Blobs, BlobResult{State: StateRejected, Err: err})
			continue
		}
		summary.DesignsProcessed++
		summary.Blobs = append(summary.Blobs, BlobResult{Hash: hash, ClassID: hash, State: StateInserted})
		accepted = append(accepted, hash)
	}
	return accepted
}

// generateCandidates fans out mutant and question generation for the
// accepted blobs and returns every class id the batch produced (inputs plus
// new mutant singletons). Workers never touch the database or the summary
// directly: they submit closures that the coordinator applies one at a time.
func (o *Orchestrator) generateCandidates(ctx context.Context, accepted []corpus.Digest, summary *RunSummary) ([]corpus.Digest, error) {
	for i := range summary.Blobs {
		if summary.Blobs[i].State == StateInserted {
			summary.Blobs[i].State = StateCandidatesRequested
		}
	}

	// mutantClasses is appended to only by coordinator closures.
	var mutantClasses []corpus.Digest

	apply := make(chan func(), len(accepted))
	grp, grpCtx := errgroup.WithContext(ctx)

	for _, h := range accepted {
		entries := o.db.Designs(h)
		if len(entries) == 0 {
			continue
		}
		content := entries[0].Content
		grp.Go(func() error {
			return o.processDesign(grpCtx, content, apply, summary, &mutantClasses)
		})
	}

	go func() {
		grp.Wait()
		close(apply)
	}()

	// Single writer: every mutation and count lands here, in submission
	// order, while the workers run free.
	for fn := range apply {
		fn()
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[corpus.Digest]struct{}, len(accepted)+len(mutantClasses))
	batch := make([]corpus.Digest, 0, len(accepted)+len(mutantClasses))
	for _, id := range append(append([]corpus.Digest{}, accepted...), mutantClasses...) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		batch = append(batch, id)
	}
	return batch, nil
}

// processDesign runs the candidate flow for one accepted blob: generate
// mutants, insert each as a singleton class, then generate and verify
// questions targeting each mutant. Per-item failures are counted through the
// apply channel and do not abort siblings.
func (o *Orchestrator) processDesign(ctx context.Context, content string, apply chan<- func(), summary *RunSummary, mutantClasses *[]corpus.Digest) error {
	mutants, err := o.mutator.Mutate(ctx, content, o.opts.MutantsPerDesign, o.opts.MutationStrength)
	if err != nil {
		o.submitAsync(ctx, apply, func() { summary.MutantsFailed++ })
		return nil
	}

	for _, mutant := range mutants {
		var (
			hash   corpus.Digest
			isNew  bool
			addErr error
		)
		if err := o.submit(ctx, apply, func() {
			hash, isNew, addErr = o.db.Add(mutant)
			if addErr != nil {
				summary.MutantsFailed++
				return
			}
			if isNew {
				summary.MutantsGenerated++
				*mutantClasses = append(*mutantClasses, hash)
			}
		}); err != nil {
			return err
		}
		if addErr != nil || !isNew {
			continue
		}

		if err := o.processMutant(ctx, mutant, hash, apply, summary); err != nil {
			return err
		}
	}
	return nil
}

// processMutant generates questions for one mutant class and inserts the
// ones that verify. A ReferentialError from the insert is structural and
// aborts the run.
func (o *Orchestrator) processMutant(ctx context.Context, mutant string, class corpus.Digest, apply chan<- func(), summary *RunSummary) error {
	for i := 0; i < o.opts.QuestionsPerMutant; i++ {
		q, err := o.questions.Generate(ctx, mutant)
		if err != nil {
			o.submitAsync(ctx, apply, func() { summary.QuestionsFailed++ })
			continue
		}
		o.submitAsync(ctx, apply, func() { summary.QuestionsGenerated++ })

		result, err := o.questions.Verify(ctx, q, mutant, o.opts.CandidatesPerQuestion)
		o.submitAsync(ctx, apply, func() {
			summary.ChecksEquivalent += result.Equivalent
			summary.ChecksNegative += result.Negative
			summary.ChecksTimedOut += result.TimedOut
			summary.ChecksFailed += result.Failed
			summary.CandidatesFailed += result.GenerationFailed
		})
		if err != nil || !result.Verified {
			continue
		}

		var addErr error
		if err := o.submit(ctx, apply, func() {
			_, addErr = o.db.AddQuestion(q, map[corpus.Digest]struct{}{class: {}})
			if addErr == nil {
				summary.QuestionsVerified++
			}
		}); err != nil {
			return err
		}
		if addErr != nil {
			var refErr *corpus.ReferentialError
			if errors.As(addErr, &refErr) {
				return fmt.Errorf("inserting verified question: %w", addErr)
			}
			o.submitAsync(ctx, apply, func() { summary.QuestionsFailed++ })
		}
	}
	return nil
}

// gatherAndMerge issues every pairwise check for the batch, waits for the
// complete verdict set, and only then commits the merges. Nothing merges on
// a partial batch.
func (o *Orchestrator) gatherAndMerge(ctx context.Context, batchClasses []corpus.Digest, summary *RunSummary) error {
	for i := range summary.Blobs {
		if summary.Blobs[i].State == StateCandidatesRequested {
			summary.Blobs[i].State = StateVerdictsPending
		}
	}

	pairs := o.buildPairs(batchClasses)
	if len(pairs) == 0 {
		return nil
	}

	verdicts, err := o.gateway.CheckPairs(ctx, pairs)
	if err != nil {
		return fmt.Errorf("gathering verdicts: %w", err)
	}

	report, err := merge.Plan(o.db, verdicts)
	summary.ChecksEquivalent += report.PositiveEdge
	summary.ChecksNegative += report.Negative
	summary.ChecksTimedOut += report.TimedOut
	summary.ChecksFailed += report.Failed
	summary.MergesApplied += report.MergedPairs
	if err != nil {
		return fmt.Errorf("committing merges: %w", err)
	}
	return nil
}

// buildPairs enumerates the unordered class pairs to check: batch-vs-batch
// by default, widened to batch-vs-everything when configured.
func (o *Orchestrator) buildPairs(batchClasses []corpus.Digest) []oracle.Pair {
	targets := batchClasses
	if o.opts.CheckAgainstExisting {
		targets = o.db.ClassIDs()
	}

	var pairs []oracle.Pair
	seen := make(map[[2]corpus.Digest]struct{})
	for _, a := range batchClasses {
		for _, b := range targets {
			if a == b {
				continue
			}
			key := [2]corpus.Digest{a, b}
			if b < a {
				key = [2]corpus.Digest{b, a}
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			ea, eb := o.db.Designs(key[0]), o.db.Designs(key[1])
			if len(ea) == 0 || len(eb) == 0 {
				continue
			}
			pairs = append(pairs, oracle.Pair{
				A:        key[0],
				B:        key[1],
				ContentA: ea[0].Content,
				ContentB: eb[0].Content,
			})
		}
	}
	return pairs
}

// resolveFinalStates looks up where each input blob landed after merging.
func (o *Orchestrator) resolveFinalStates(summary *RunSummary) {
	for i := range summary.Blobs {
		b := &summary.Blobs[i]
		if b.State == StateRejected {
			continue
		}
		class, ok := o.db.ClassOf(b.Hash)
		if !ok {
			continue
		}
		b.ClassID = class
		if len(o.db.Designs(class)) > 1 {
			b.State = StateMerged
		} else {
			b.State = StateIsolated
		}
	}
}

// submit hands a closure to the coordinator and waits for it to run, giving
// the worker a serialized view of the database without holding any lock
// itself.
func (o *Orchestrator) submit(ctx context.Context, apply chan<- func(), fn func()) error {
	done := make(chan struct{})
	select {
	case apply <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// submitAsync hands a fire-and-forget closure to the coordinator, used for
// summary counts where the worker does not need the result.
func (o *Orchestrator) submitAsync(ctx context.Context, apply chan<- func(), fn func()) {
	select {
	case apply <- fn:
	case <-ctx.Done():
	}
}
