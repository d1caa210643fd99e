// Mutator - fault injection for hardware designs.
//
// A mutant is a copy of a design with a small behavioral bug planted in it.
// Mutants drive question generation: a question targeting a mutant separates
// the buggy behavior from the original.
//
// Information Hiding: the prompt wording, the bug-category JSON schema, and
// the response parsing are private. Callers see only Mutate and the
// BugCategory type.

package mutate

import (
	"context"
	"fmt"
	"strings"

	"github.com/verideck/verideck/corpus"
	ijson "github.com/verideck/verideck/internal/json"
	"github.com/verideck/verideck/llm"
)

// BugCategory describes one class of fault a mutant can carry.
type BugCategory struct {
	Type        string `json:"bug_type"`
	Description string `json:"description"`
}

// Mutator produces up to count mutants of a design. Strength controls how
// invasive each mutation should be. Best effort: fewer than count mutants may
// come back when individual generations fail or duplicates are dropped.
type Mutator interface {
	Mutate(ctx context.Context, content string, count, strength int) ([]string, error)
}

// LLMMutator plants bugs through the generation client in two steps: first it
// asks for distinct bug categories fitting the design, then it generates one
// mutant per category. The two-step split keeps mutants diverse; asking for n
// mutants in one call tends to produce n variations of the same bug.
type LLMMutator struct {
	client *llm.Client
}

var _ Mutator = (*LLMMutator)(nil)

func NewLLMMutator(client *llm.Client) *LLMMutator {
	return &LLMMutator{client: client}
}

type bugCategoryList struct {
	Bugs []BugCategory `json:"bugs"`
}

// BugCategories asks the model for count distinct fault classes that could
// plausibly be introduced into the design.
func (m *LLMMutator) BugCategories(ctx context.Context, content string, count int) ([]BugCategory, error) {
	prompt := fmt.Sprintf(`You are a hardware verification expert. Given a Verilog design, propose %d distinct categories of realistic bugs that could be introduced into it.

Each category must name a different kind of fault (for example: wrong operator, inverted condition, off-by-one constant, missing reset branch, blocking vs non-blocking assignment).

Return ONLY a JSON object with this exact shape:
{"bugs": [{"bug_type": "<short name>", "description": "<one sentence describing the fault and where it applies in this design>"}]}

Design:
%s`, count, content)

	reply, err := m.client.ChatWithFormat(ctx,
		[]llm.ChatMessage{llm.SystemMessage(prompt)},
		llm.NewJSONObjectFormat())
	if err != nil {
		return nil, fmt.Errorf("bug category generation: %w", err)
	}

	list, err := ijson.ExtractJSONFromResponse[bugCategoryList](reply)
	if err != nil {
		return nil, fmt.Errorf("bug category parsing: %w", err)
	}
	if len(list.Bugs) == 0 {
		return nil, fmt.Errorf("bug category generation: model returned no categories")
	}
	if len(list.Bugs) > count {
		list.Bugs = list.Bugs[:count]
	}
	return list.Bugs, nil
}

// Mutate generates up to count mutants, one per bug category. Failed or
// duplicate generations are skipped. An error is returned only when no mutant
// at all could be produced.
func (m *LLMMutator) Mutate(ctx context.Context, content string, count, strength int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}
	categories, err := m.BugCategories(ctx, content, count)
	if err != nil {
		return nil, err
	}

	original := corpus.HashContent(content)
	seen := map[corpus.Digest]struct{}{original: {}}

	var mutants []string
	var lastErr error
	for _, cat := range categories {
		mutant, err := m.generateMutant(ctx, content, cat, strength)
		if err != nil {
			lastErr = err
			continue
		}
		hash := corpus.HashContent(mutant)
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}
		mutants = append(mutants, mutant)
	}

	if len(mutants) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("mutant generation: all %d categories failed: %w", len(categories), lastErr)
		}
		return nil, fmt.Errorf("mutant generation: every mutant was identical to the original")
	}
	return mutants, nil
}

func (m *LLMMutator) generateMutant(ctx context.Context, content string, cat BugCategory, strength int) (string, error) {
	invasiveness := "a single, subtle change"
	if strength > 1 {
		invasiveness = fmt.Sprintf("%d related changes", strength)
	}

	prompt := fmt.Sprintf(`You are a Verilog bug injector. Introduce the following bug into the design with %s. The result must still be syntactically valid Verilog that compiles, but behave differently from the original on at least one input.

Bug category: %s
Bug description: %s

Return ONLY the complete mutated module in a fenced code block:
`+"```verilog\n(mutated code)\n```"+`

Original design:
%s`, invasiveness, cat.Type, cat.Description, content)

	reply, err := m.client.Chat(ctx, []llm.ChatMessage{llm.SystemMessage(prompt)})
	if err != nil {
		return "", err
	}
	code := strings.TrimSpace(ExtractCode(reply))
	if code == "" {
		return "", fmt.Errorf("mutant for %q came back empty", cat.Type)
	}
	return code, nil
}
