package question

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/verideck/verideck/llm"
	"github.com/verideck/verideck/oracle"
)

const testDesign = `module adder(input [7:0] a, input [7:0] b, output [7:0] sum);
  assign sum = a + b;
endmodule`

const goodAnswer = `module adder(input [7:0] x, input [7:0] y, output [7:0] s);
  assign s = x + y;
endmodule`

const badAnswer = `module adder(input [7:0] x, input [7:0] y, output [7:0] s);
  assign s = x - y;
endmodule`

// fakeProvider answers question prompts with a marked question and answer
// prompts with scripted candidates, handed out in order.
type fakeProvider struct {
	mu         sync.Mutex
	question   string
	candidates []string
	candidErrs []error
	next       int
}

func (p *fakeProvider) Name() string  { return "fake" }
func (p *fakeProvider) Model() string { return "fake-model" }

func (p *fakeProvider) Chat(ctx context.Context, messages []llm.ChatMessage) (llm.Response, error) {
	prompt := messages[len(messages)-1].Content
	if strings.Contains(prompt, "RTL problem description") {
		p.mu.Lock()
		i := p.next
		p.next++
		p.mu.Unlock()
		if i < len(p.candidErrs) && p.candidErrs[i] != nil {
			return llm.Response{}, p.candidErrs[i]
		}
		if i >= len(p.candidates) {
			return llm.Response{}, errors.New("no scripted candidate left")
		}
		return llm.Response{Content: "```verilog\n" + p.candidates[i] + "\n```"}, nil
	}
	return llm.Response{Content: p.question}, nil
}

func (p *fakeProvider) ChatWithFormat(ctx context.Context, messages []llm.ChatMessage, format *llm.ResponseFormat) (llm.Response, error) {
	return p.Chat(ctx, messages)
}

// answerChecker calls a candidate equivalent when it matches the known-good
// answer text.
type answerChecker struct {
	err     error
	timeout bool
}

func (c *answerChecker) Check(ctx context.Context, a, b string) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	if c.timeout {
		return false, oracle.ErrTimeout
	}
	return a == goodAnswer, nil
}

func newTestGenerator(p llm.Provider, c oracle.Checker, policy oracle.TimeoutPolicy) *Generator {
	client := llm.NewClient(p, 0, time.Minute, 1)
	gateway := oracle.NewGateway(c, 2, time.Minute, policy)
	return NewGenerator(client, gateway)
}

func TestGenerateExtractsMarkedQuestion(t *testing.T) {
	provider := &fakeProvider{
		question: "Intro text.\nQUESTION BEGIN\nDesign an 8-bit adder.\nQUESTION END\nOutro.",
	}
	gen := newTestGenerator(provider, &answerChecker{}, oracle.FailClosed)

	q, err := gen.Generate(context.Background(), testDesign)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q != "Design an 8-bit adder." {
		t.Errorf("unexpected question: %q", q)
	}
}

func TestGenerateRejectsUnmarkedResponse(t *testing.T) {
	provider := &fakeProvider{question: "Design an adder, no markers here."}
	gen := newTestGenerator(provider, &answerChecker{}, oracle.FailClosed)

	if _, err := gen.Generate(context.Background(), testDesign); err == nil {
		t.Error("expected error for response without markers")
	}
}

func TestVerifyPassesWithOneEquivalentCandidate(t *testing.T) {
	provider := &fakeProvider{
		candidates: []string{badAnswer, goodAnswer, badAnswer},
	}
	gen := newTestGenerator(provider, &answerChecker{}, oracle.FailClosed)

	result, err := gen.Verify(context.Background(), "q", testDesign, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Verified {
		t.Error("expected verification to pass")
	}
	if result.Candidates != 3 {
		t.Errorf("expected 3 candidates, got %d", result.Candidates)
	}
	if result.Equivalent != 1 {
		t.Errorf("expected 1 equivalent candidate, got %d", result.Equivalent)
	}
}

func TestVerifyFailsWithNoEquivalentCandidate(t *testing.T) {
	provider := &fakeProvider{
		candidates: []string{badAnswer, badAnswer},
	}
	gen := newTestGenerator(provider, &answerChecker{}, oracle.FailClosed)

	result, err := gen.Verify(context.Background(), "q", testDesign, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Verified {
		t.Error("expected verification to fail")
	}
	if result.Equivalent != 0 {
		t.Errorf("expected 0 equivalent candidates, got %d", result.Equivalent)
	}
	if result.Negative != 2 {
		t.Errorf("expected 2 negative verdicts, got %d", result.Negative)
	}
}

func TestVerifyCountsGenerationFailures(t *testing.T) {
	provider := &fakeProvider{
		candidates: []string{goodAnswer, ""},
		candidErrs: []error{nil, errors.New("provider unavailable")},
	}
	gen := newTestGenerator(provider, &answerChecker{}, oracle.FailClosed)

	result, err := gen.Verify(context.Background(), "q", testDesign, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Verified {
		t.Error("expected verification to pass despite one failed candidate")
	}
	if result.GenerationFailed != 1 {
		t.Errorf("expected 1 generation failure, got %d", result.GenerationFailed)
	}
	if result.Failed != 0 {
		t.Errorf("expected 0 oracle failures, got %d", result.Failed)
	}
	if result.Candidates != 1 {
		t.Errorf("expected 1 checked candidate, got %d", result.Candidates)
	}
}

func TestVerifyAllCandidateGenerationsFail(t *testing.T) {
	provider := &fakeProvider{
		candidates: []string{"", "", ""},
		candidErrs: []error{
			errors.New("provider unavailable"),
			errors.New("provider unavailable"),
			errors.New("provider unavailable"),
		},
	}
	gen := newTestGenerator(provider, &answerChecker{}, oracle.FailClosed)

	result, err := gen.Verify(context.Background(), "q", testDesign, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Verified {
		t.Error("expected verification to fail when no candidate is generated")
	}
	if result.GenerationFailed != 3 {
		t.Errorf("expected 3 generation failures, got %d", result.GenerationFailed)
	}
	if result.Candidates != 0 {
		t.Errorf("expected 0 checked candidates, got %d", result.Candidates)
	}
	if result.Negative != 0 {
		t.Errorf("expected 0 negative verdicts, got %d", result.Negative)
	}
	if result.Failed != 0 {
		t.Errorf("expected 0 oracle failures, got %d", result.Failed)
	}
}

func TestVerifyTimeoutFailClosed(t *testing.T) {
	provider := &fakeProvider{candidates: []string{goodAnswer}}
	gen := newTestGenerator(provider, &answerChecker{timeout: true}, oracle.FailClosed)

	result, err := gen.Verify(context.Background(), "q", testDesign, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Verified {
		t.Error("fail-closed timeout must not verify the question")
	}
	if result.TimedOut != 1 {
		t.Errorf("expected 1 timeout, got %d", result.TimedOut)
	}
}

func TestVerifyTimeoutFailOpen(t *testing.T) {
	provider := &fakeProvider{candidates: []string{goodAnswer}}
	gen := newTestGenerator(provider, &answerChecker{timeout: true}, oracle.FailOpen)

	result, err := gen.Verify(context.Background(), "q", testDesign, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Verified {
		t.Error("fail-open timeout should count the candidate as equivalent")
	}
	if result.TimedOut != 1 {
		t.Errorf("expected 1 timeout, got %d", result.TimedOut)
	}
}

func TestVerifyCountsOracleFailures(t *testing.T) {
	provider := &fakeProvider{candidates: []string{goodAnswer}}
	checker := &answerChecker{err: errors.New("yosys not found")}
	gen := newTestGenerator(provider, checker, oracle.FailClosed)

	result, err := gen.Verify(context.Background(), "q", testDesign, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Verified {
		t.Error("oracle failure must not verify the question")
	}
	if result.Failed != 1 {
		t.Errorf("expected 1 failure, got %d", result.Failed)
	}
}

func TestVerifyRejectsNonPositiveCount(t *testing.T) {
	gen := newTestGenerator(&fakeProvider{}, &answerChecker{}, oracle.FailClosed)
	if _, err := gen.Verify(context.Background(), "q", testDesign, 0); err == nil {
		t.Error("expected error for zero candidate count")
	}
}
