package mutate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/verideck/verideck/llm"
)

// fakeProvider answers category requests with canned JSON and mutant requests
// with canned code blocks, keyed by the bug type mentioned in the prompt.
type fakeProvider struct {
	categoryJSON string
	mutants      map[string]string
	mutantErrs   map[string]error
	chatCalls    int
}

func (p *fakeProvider) Name() string  { return "fake" }
func (p *fakeProvider) Model() string { return "fake-model" }

func (p *fakeProvider) Chat(ctx context.Context, messages []llm.ChatMessage) (llm.Response, error) {
	p.chatCalls++
	prompt := messages[0].Content
	for bugType, code := range p.mutants {
		if strings.Contains(prompt, "Bug category: "+bugType) {
			if err := p.mutantErrs[bugType]; err != nil {
				return llm.Response{}, err
			}
			return llm.Response{Content: "```verilog\n" + code + "\n```"}, nil
		}
	}
	return llm.Response{}, errors.New("no scripted mutant for prompt")
}

func (p *fakeProvider) ChatWithFormat(ctx context.Context, messages []llm.ChatMessage, format *llm.ResponseFormat) (llm.Response, error) {
	return llm.Response{Content: p.categoryJSON}, nil
}

func newTestMutator(p llm.Provider) *LLMMutator {
	return NewLLMMutator(llm.NewClient(p, 0, time.Minute, 1))
}

const testDesign = `module adder(input [7:0] a, input [7:0] b, output [7:0] sum);
  assign sum = a + b;
endmodule`

func TestBugCategoriesParsesJSON(t *testing.T) {
	provider := &fakeProvider{
		categoryJSON: `{"bugs": [
			{"bug_type": "wrong-operator", "description": "replace + with -"},
			{"bug_type": "stuck-output", "description": "tie sum to zero"}
		]}`,
	}
	mutator := newTestMutator(provider)

	cats, err := mutator.BugCategories(context.Background(), testDesign, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(cats))
	}
	if cats[0].Type != "wrong-operator" {
		t.Errorf("expected first category wrong-operator, got %q", cats[0].Type)
	}
}

func TestBugCategoriesHandlesWrappedJSON(t *testing.T) {
	provider := &fakeProvider{
		categoryJSON: "Here are the bugs:\n```json\n" +
			`{"bugs": [{"bug_type": "inverted-condition", "description": "flip the if"}]}` +
			"\n```",
	}
	mutator := newTestMutator(provider)

	cats, err := mutator.BugCategories(context.Background(), testDesign, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cats) != 1 || cats[0].Type != "inverted-condition" {
		t.Errorf("unexpected categories: %+v", cats)
	}
}

func TestBugCategoriesTruncatesToCount(t *testing.T) {
	provider := &fakeProvider{
		categoryJSON: `{"bugs": [
			{"bug_type": "a", "description": "x"},
			{"bug_type": "b", "description": "y"},
			{"bug_type": "c", "description": "z"}
		]}`,
	}
	mutator := newTestMutator(provider)

	cats, err := mutator.BugCategories(context.Background(), testDesign, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cats) != 2 {
		t.Errorf("expected truncation to 2 categories, got %d", len(cats))
	}
}

func TestBugCategoriesRejectsEmptyList(t *testing.T) {
	provider := &fakeProvider{categoryJSON: `{"bugs": []}`}
	mutator := newTestMutator(provider)

	if _, err := mutator.BugCategories(context.Background(), testDesign, 2); err == nil {
		t.Error("expected error for empty category list")
	}
}

func TestMutateOneMutantPerCategory(t *testing.T) {
	provider := &fakeProvider{
		categoryJSON: `{"bugs": [
			{"bug_type": "wrong-operator", "description": "replace + with -"},
			{"bug_type": "stuck-output", "description": "tie sum to zero"}
		]}`,
		mutants: map[string]string{
			"wrong-operator": "module adder(input [7:0] a, input [7:0] b, output [7:0] sum);\n  assign sum = a - b;\nendmodule",
			"stuck-output":   "module adder(input [7:0] a, input [7:0] b, output [7:0] sum);\n  assign sum = 8'b0;\nendmodule",
		},
	}
	mutator := newTestMutator(provider)

	mutants, err := mutator.Mutate(context.Background(), testDesign, 2, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mutants) != 2 {
		t.Fatalf("expected 2 mutants, got %d", len(mutants))
	}
	for i, m := range mutants {
		if strings.Contains(m, "```") {
			t.Errorf("mutant %d still contains a code fence", i)
		}
	}
}

func TestMutateSkipsFailedCategories(t *testing.T) {
	provider := &fakeProvider{
		categoryJSON: `{"bugs": [
			{"bug_type": "wrong-operator", "description": "replace + with -"},
			{"bug_type": "stuck-output", "description": "tie sum to zero"}
		]}`,
		mutants: map[string]string{
			"wrong-operator": "module adder(input [7:0] a, input [7:0] b, output [7:0] sum);\n  assign sum = a - b;\nendmodule",
			"stuck-output":   "",
		},
		mutantErrs: map[string]error{
			"stuck-output": errors.New("provider unavailable"),
		},
	}
	mutator := newTestMutator(provider)

	mutants, err := mutator.Mutate(context.Background(), testDesign, 2, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mutants) != 1 {
		t.Errorf("expected 1 surviving mutant, got %d", len(mutants))
	}
}

func TestMutateDropsDuplicatesAndOriginal(t *testing.T) {
	same := "module adder(input [7:0] a, input [7:0] b, output [7:0] sum);\n  assign sum = a - b;\nendmodule"
	provider := &fakeProvider{
		categoryJSON: `{"bugs": [
			{"bug_type": "first", "description": "x"},
			{"bug_type": "second", "description": "y"},
			{"bug_type": "third", "description": "z"}
		]}`,
		mutants: map[string]string{
			"first":  same,
			"second": same,
			"third":  testDesign,
		},
	}
	mutator := newTestMutator(provider)

	mutants, err := mutator.Mutate(context.Background(), testDesign, 3, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mutants) != 1 {
		t.Errorf("expected duplicates and the unchanged copy dropped, got %d mutants", len(mutants))
	}
}

func TestMutateAllFailuresSurfaceError(t *testing.T) {
	provider := &fakeProvider{
		categoryJSON: `{"bugs": [{"bug_type": "only", "description": "x"}]}`,
		mutants:      map[string]string{"only": ""},
		mutantErrs:   map[string]error{"only": errors.New("provider unavailable")},
	}
	mutator := newTestMutator(provider)

	if _, err := mutator.Mutate(context.Background(), testDesign, 1, 1); err == nil {
		t.Error("expected error when every category fails")
	}
}

func TestMutateZeroCountIsNoop(t *testing.T) {
	provider := &fakeProvider{}
	mutator := newTestMutator(provider)

	mutants, err := mutator.Mutate(context.Background(), testDesign, 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mutants != nil {
		t.Errorf("expected nil mutants, got %v", mutants)
	}
	if provider.chatCalls != 0 {
		t.Errorf("expected no provider calls, got %d", provider.chatCalls)
	}
}
