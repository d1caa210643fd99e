// Command execution for CLI commands.
//
// Information Hiding:
// - Component wiring (client, gateway, store) hidden
// - Output formatting hidden

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/verideck/verideck/config"
	"github.com/verideck/verideck/corpus"
	"github.com/verideck/verideck/llm"
	"github.com/verideck/verideck/mutate"
	"github.com/verideck/verideck/oracle"
	"github.com/verideck/verideck/pipeline"
	"github.com/verideck/verideck/question"
	"github.com/verideck/verideck/storage"
)

// Options holds CLI execution options.
type Options struct {
	ConfigPath string
	Provider   string
	Verbose    bool
}

func loadSettings(opts Options) (config.Settings, error) {
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Settings{}, err
	}
	if opts.Provider != "" {
		settings.LLM.Provider = opts.Provider
	}
	return settings, nil
}

func buildClient(settings config.Settings) (*llm.Client, error) {
	providerType, err := llm.ParseProviderType(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}

	builder := llm.NewProviderBuilder(providerType).
		MaxTokens(uint32(settings.LLM.MaxTokens)).
		Temperature(float32(settings.LLM.Temperature))
	if settings.LLM.Model != "" {
		builder = builder.Model(settings.LLM.Model)
	}

	provider, err := builder.FromEnv()
	if err != nil {
		return nil, err
	}
	return llm.NewClient(provider, settings.Limiter.CallsPerWindow, settings.Limiter.Window(), settings.LLM.MaxRetries), nil
}

func buildGateway(settings config.Settings) (*oracle.Gateway, error) {
	policy, err := oracle.ParseTimeoutPolicy(settings.Oracle.TimeoutPolicy)
	if err != nil {
		return nil, err
	}
	checker := oracle.NewYosysChecker(settings.Oracle.Binary, settings.Oracle.WorkDir)
	return oracle.NewGateway(checker, settings.Oracle.Concurrency, settings.Oracle.Timeout(), policy), nil
}

func loadDatabase(settings config.Settings) (*corpus.Database, error) {
	db := corpus.NewDatabase(nil)
	if err := db.ReadFiles(settings.Data.DesignsPath, settings.Data.QuestionsPath); err != nil {
		return nil, fmt.Errorf("loading database: %w", err)
	}
	return db, nil
}

// designContents returns one representative content per class, in class-id
// order.
func designContents(db *corpus.Database) []string {
	var contents []string
	for _, id := range db.ClassIDs() {
		entries := db.Designs(id)
		if len(entries) > 0 {
			contents = append(contents, entries[0].Content)
		}
	}
	return contents
}

// Ingest reads .v files from dir, runs an oracle self-check on each, and
// stores the survivors.
func Ingest(ctx context.Context, dir string, replace bool, opts Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}
	gateway, err := buildGateway(settings)
	if err != nil {
		return err
	}
	db, err := loadDatabase(settings)
	if err != nil {
		return err
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.v"))
	if err != nil {
		return fmt.Errorf("listing %s: %w", dir, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no .v files found in %s", dir)
	}
	sort.Strings(files)

	added, skipped, failed := 0, 0, 0
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", filepath.Base(file), err)
			failed++
			continue
		}

		if err := gateway.SelfCheck(ctx, string(data)); err != nil {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", filepath.Base(file), err)
			failed++
			continue
		}

		hash, isNew, err := db.Add(string(data))
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", filepath.Base(file), err)
			failed++
			continue
		}
		if !isNew {
			skipped++
			continue
		}
		added++
		if opts.Verbose {
			fmt.Printf("  %s -> %s\n", filepath.Base(file), hash)
		}
	}

	if err := db.WriteFiles(settings.Data.DesignsPath, settings.Data.QuestionsPath, replace); err != nil {
		return fmt.Errorf("writing database: %w", err)
	}

	fmt.Printf("Ingested %d designs (%d duplicates skipped, %d failed) into %s\n",
		added, skipped, failed, settings.Data.DesignsPath)
	return nil
}

// Run executes the full pipeline over the stored designs and records the
// run summary.
func Run(ctx context.Context, opts Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}
	client, err := buildClient(settings)
	if err != nil {
		return err
	}
	gateway, err := buildGateway(settings)
	if err != nil {
		return err
	}
	db, err := loadDatabase(settings)
	if err != nil {
		return err
	}

	contents := designContents(db)
	if len(contents) == 0 {
		return fmt.Errorf("no designs in %s; run ingest first", settings.Data.DesignsPath)
	}

	orch := pipeline.NewOrchestrator(
		db,
		mutate.NewLLMMutator(client),
		question.NewGenerator(client, gateway),
		gateway,
		pipeline.Options{
			MutantsPerDesign:      settings.Pipeline.MutantsPerDesign,
			MutationStrength:      settings.Pipeline.MutationStrength,
			QuestionsPerMutant:    settings.Pipeline.QuestionsPerMutant,
			CandidatesPerQuestion: settings.Pipeline.CandidatesPerQuestion,
			CheckAgainstExisting:  settings.Pipeline.CheckAgainstExisting,
			DesignsPath:           settings.Data.DesignsPath,
			QuestionsPath:         settings.Data.QuestionsPath,
			Replace:               true,
		})

	fmt.Printf("Processing %d designs...\n", len(contents))
	summary, runErr := orch.Run(ctx, contents)

	printSummary(summary)

	if store, err := storage.OpenSqlite(settings.Data.StatsPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to open run store: %v\n", err)
	} else {
		defer store.Close()
		if err := store.SaveRun(ctx, summary); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to record run: %v\n", err)
		}
	}

	return runErr
}

func printSummary(summary *pipeline.RunSummary) {
	fmt.Printf("\nRun %s\n", summary.RunID)
	fmt.Printf("  Designs:   %d processed, %d rejected\n", summary.DesignsProcessed, summary.DesignsRejected)
	fmt.Printf("  Mutants:   %d generated, %d failed\n", summary.MutantsGenerated, summary.MutantsFailed)
	fmt.Printf("  Questions: %d generated, %d verified, %d failed\n",
		summary.QuestionsGenerated, summary.QuestionsVerified, summary.QuestionsFailed)
	fmt.Printf("  Checks:    %d equivalent, %d negative, %d timed out, %d failed\n",
		summary.ChecksEquivalent, summary.ChecksNegative, summary.ChecksTimedOut, summary.ChecksFailed)
	if summary.CandidatesFailed > 0 {
		fmt.Printf("  Candidates dropped before checking: %d\n", summary.CandidatesFailed)
	}
	fmt.Printf("  Merges:    %d applied\n", summary.MergesApplied)
	fmt.Printf("  Duration:  %s\n", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
}

// Verify re-verifies every stored question against a representative design
// of each class it certifies.
func Verify(ctx context.Context, candidates int, opts Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}
	client, err := buildClient(settings)
	if err != nil {
		return err
	}
	gateway, err := buildGateway(settings)
	if err != nil {
		return err
	}
	db, err := loadDatabase(settings)
	if err != nil {
		return err
	}
	if candidates <= 0 {
		candidates = settings.Pipeline.CandidatesPerQuestion
	}

	gen := question.NewGenerator(client, gateway)

	questions := db.Questions()
	if len(questions) == 0 {
		return fmt.Errorf("no questions in %s", settings.Data.QuestionsPath)
	}

	passed, failedCount := 0, 0
	for _, q := range questions {
		for _, classID := range sortedClassIDs(q) {
			entries := db.Designs(classID)
			if len(entries) == 0 {
				continue
			}
			result, err := gen.Verify(ctx, q.Content, entries[0].Content, candidates)
			if err != nil {
				return fmt.Errorf("verifying question %s: %w", q.Hash, err)
			}
			if result.Verified {
				passed++
			} else {
				failedCount++
			}
			if opts.Verbose {
				fmt.Printf("  %s vs %s: verified=%v (%d/%d equivalent, %d timed out, %d failed)\n",
					q.Hash, classID, result.Verified, result.Equivalent, result.Candidates, result.TimedOut, result.Failed)
			}
		}
	}

	fmt.Printf("Verified %d question/class pairs: %d passed, %d failed\n", passed+failedCount, passed, failedCount)
	return nil
}

func sortedClassIDs(q *corpus.QuestionEntry) []corpus.Digest {
	ids := make([]corpus.Digest, 0, len(q.ClassIDs))
	for id := range q.ClassIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SelfCheck runs the oracle self-check over every stored class.
func SelfCheck(ctx context.Context, opts Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}
	gateway, err := buildGateway(settings)
	if err != nil {
		return err
	}
	db, err := loadDatabase(settings)
	if err != nil {
		return err
	}

	ids := db.ClassIDs()
	if len(ids) == 0 {
		return fmt.Errorf("no designs in %s", settings.Data.DesignsPath)
	}

	failures := 0
	for _, id := range ids {
		entries := db.Designs(id)
		if len(entries) == 0 {
			continue
		}
		if err := gateway.SelfCheck(ctx, entries[0].Content); err != nil {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", id, err)
			failures++
		} else if opts.Verbose {
			fmt.Printf("  %s: ok\n", id)
		}
	}

	if failures > 0 {
		return fmt.Errorf("self-check failed for %d of %d classes", failures, len(ids))
	}
	fmt.Printf("Self-check passed for all %d classes\n", len(ids))
	return nil
}

// Stats prints cross-run totals from the run store.
func Stats(ctx context.Context, opts Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}

	store, err := storage.OpenSqlite(settings.Data.StatsPath)
	if err != nil {
		return fmt.Errorf("opening run store: %w", err)
	}
	defer store.Close()

	totals, err := store.Totals(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Runs recorded: %d\n", totals.Runs)
	fmt.Printf("  Designs:   %d processed, %d rejected\n", totals.DesignsProcessed, totals.DesignsRejected)
	fmt.Printf("  Mutants:   %d generated, %d failed\n", totals.MutantsGenerated, totals.MutantsFailed)
	fmt.Printf("  Questions: %d generated, %d verified, %d failed (%.1f%% verification rate)\n",
		totals.QuestionsGenerated, totals.QuestionsVerified, totals.QuestionsFailed,
		totals.VerificationRate()*100)
	fmt.Printf("  Checks:    %d equivalent, %d negative, %d timed out, %d failed\n",
		totals.ChecksEquivalent, totals.ChecksNegative, totals.ChecksTimedOut, totals.ChecksFailed)
	if totals.CandidatesFailed > 0 {
		fmt.Printf("  Candidates dropped before checking: %d\n", totals.CandidatesFailed)
	}
	fmt.Printf("  Merges:    %d applied\n", totals.MergesApplied)

	if opts.Verbose {
		runs, err := store.ListRuns(ctx)
		if err != nil {
			return err
		}
		fmt.Println("\nRecent runs:")
		for _, run := range runs {
			fmt.Printf("  %s  %s  designs=%d merges=%d questions=%d\n",
				run.RunID, run.StartedAt.Format("2006-01-02 15:04:05"),
				run.DesignsProcessed, run.MergesApplied, run.QuestionsVerified)
		}
	}
	return nil
}

// Search finds every stored design containing the given pattern.
func Search(pattern string, opts Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}
	db, err := loadDatabase(settings)
	if err != nil {
		return err
	}

	idx := corpus.NewSearchIndex(db)
	hits := idx.Search(pattern)
	if len(hits) == 0 {
		fmt.Printf("No matches for %q in %d designs\n", pattern, idx.Designs())
		return nil
	}

	// One line per design, occurrences aggregated
	counts := make(map[corpus.Digest]int)
	classOf := make(map[corpus.Digest]corpus.Digest)
	var order []corpus.Digest
	for _, hit := range hits {
		if _, seen := counts[hit.Hash]; !seen {
			order = append(order, hit.Hash)
			classOf[hit.Hash] = hit.ClassID
		}
		counts[hit.Hash]++
	}

	fmt.Printf("%d matches in %d designs:\n", len(hits), len(order))
	for _, hash := range order {
		fmt.Printf("  %s (class %s): %d occurrences\n", hash, classOf[hash], counts[hash])
	}
	return nil
}

// Show resolves a class-id prefix and prints the class's members and
// questions.
func Show(prefix string, opts Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}
	db, err := loadDatabase(settings)
	if err != nil {
		return err
	}

	matches := db.ResolvePrefix(prefix)
	switch len(matches) {
	case 0:
		return fmt.Errorf("no class matches prefix %q", prefix)
	case 1:
	default:
		fmt.Printf("Prefix %q is ambiguous (%d matches):\n", prefix, len(matches))
		for _, id := range matches {
			fmt.Printf("  %s\n", id)
		}
		return nil
	}

	classID := matches[0]
	entries := db.Designs(classID)
	questions := db.QuestionsByClass(classID)

	fmt.Printf("Class %s: %d members, %d questions\n", classID, len(entries), len(questions))
	for _, entry := range entries {
		fmt.Printf("\n  member %s\n", entry.Hash)
		if opts.Verbose {
			fmt.Println(indent(entry.Content, "    "))
		}
	}
	for _, q := range questions {
		fmt.Printf("\n  question %s\n", q.Hash)
		if opts.Verbose {
			fmt.Println(indent(q.Content, "    "))
		}
	}
	return nil
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n"+prefix)
}
