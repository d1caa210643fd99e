// Question generation and verification.
//
// A question is a natural-language problem statement whose unique correct
// answer is a given hardware design. Generation asks the model to describe
// the design without revealing it; verification closes the loop by having the
// model solve its own question and checking the solutions against the design
// with the equivalence oracle. A question that cannot be solved back to the
// design is discarded.
//
// Information Hiding: prompt wording and candidate bookkeeping are private.
// Callers see Generate, Verify, and the VerifyResult counts.

package question

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/verideck/verideck/llm"
	"github.com/verideck/verideck/mutate"
	"github.com/verideck/verideck/oracle"
)

const questionSystemPrompt = `You are an expert hardware interview question writer. You craft clear,
concise, LeetCode-style problem statements about designing RTL modules.
Only output the problem statement; do not include any solution code.`

const questionUserPromptFormat = `Create a LeetCode-style question whose unique correct answer is the
following Verilog module. The question should:
- Clearly describe the required behavior, I/O interface, and any timing/edge conditions.
- Avoid revealing implementation details or providing code.
- Be self-contained and unambiguous.
- Fit within 150-300 words.

Return ONLY the question text between the exact markers below.
QUESTION BEGIN
<write the problem statement here>
QUESTION END

Target Verilog module (ground-truth answer):
----- BEGIN VERILOG -----
%s
----- END VERILOG -----
`

const answerPromptFormat = `Hello, you are a hardware engineering assistant. You will be given a
description of an RTL circuit. Generate the corresponding Verilog code
according to the information provided.

Reply with only the RTL circuit code in Verilog, in a fenced code block:
` + "```verilog\n(verilog code)\n```" + `

RTL problem description:
%s`

// VerifyResult reports the outcome of verifying one question against its
// design. Every candidate lands in exactly one bucket: generation failures
// never reach the oracle, and Candidates covers only those that did, so
// Candidates = Equivalent + Negative + TimedOut + Failed.
type VerifyResult struct {
	Candidates       int // candidate solutions that reached the oracle
	Equivalent       int // definite positives
	Negative         int // definite negatives
	TimedOut         int // ambiguous checks resolved by the timeout policy
	Failed           int // oracle infrastructure failures
	GenerationFailed int // candidates abandoned before reaching the oracle
	Verified         bool
}

// Generator produces questions for designs and verifies them through the
// oracle gateway.
type Generator struct {
	client  *llm.Client
	gateway *oracle.Gateway
}

func NewGenerator(client *llm.Client, gateway *oracle.Gateway) *Generator {
	return &Generator{client: client, gateway: gateway}
}

// Generate produces a question for the design. The model's reply is required
// to carry the question between markers; a reply without them is a
// generation failure.
func (g *Generator) Generate(ctx context.Context, design string) (string, error) {
	reply, err := g.client.Chat(ctx, []llm.ChatMessage{
		llm.SystemMessage(questionSystemPrompt),
		llm.UserMessage(fmt.Sprintf(questionUserPromptFormat, design)),
	})
	if err != nil {
		return "", fmt.Errorf("question generation: %w", err)
	}
	question := mutate.ExtractQuestion(reply)
	if question == "" {
		return "", fmt.Errorf("question generation: response carried no question markers")
	}
	return question, nil
}

// GenerateAnswer produces one candidate Verilog solution for a question.
func (g *Generator) GenerateAnswer(ctx context.Context, question string) (string, error) {
	reply, err := g.client.Ask(ctx, fmt.Sprintf(answerPromptFormat, question))
	if err != nil {
		return "", fmt.Errorf("answer generation: %w", err)
	}
	code := strings.TrimSpace(mutate.ExtractCode(reply))
	if code == "" {
		return "", fmt.Errorf("answer generation: response carried no code")
	}
	return code, nil
}

// Verify generates n candidate solutions for the question and checks each
// against the design. The question passes when at least one candidate is
// equivalent. Per-candidate failures are counted, not fatal; the whole batch
// is always attempted so the counts are complete.
func (g *Generator) Verify(ctx context.Context, question, design string, n int) (VerifyResult, error) {
	if n <= 0 {
		return VerifyResult{}, fmt.Errorf("question verification: candidate count must be positive, got %d", n)
	}

	var (
		mu       sync.Mutex
		result   VerifyResult
		verified bool
	)

	grp, grpCtx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		grp.Go(func() error {
			candidate, err := g.GenerateAnswer(grpCtx, question)
			if err != nil {
				mu.Lock()
				result.GenerationFailed++
				mu.Unlock()
				return nil
			}

			equivalent, timedOut, err := g.gateway.Check(grpCtx, candidate, design)
			mu.Lock()
			defer mu.Unlock()
			result.Candidates++
			if err != nil {
				result.Failed++
				return nil
			}
			// The gateway has already resolved a timeout by policy, so
			// equivalent alone decides the pass; the counts keep ambiguous
			// verdicts apart from definite positives.
			if equivalent {
				verified = true
			}
			switch {
			case timedOut:
				result.TimedOut++
			case equivalent:
				result.Equivalent++
			default:
				result.Negative++
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return result, err
	}

	result.Verified = verified
	return result, nil
}
