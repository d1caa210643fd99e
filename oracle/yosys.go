// Yosys-backed equivalence checker.
//
// Information Hiding:
// - Miter script construction and module renaming hidden
// - Scratch file management hidden (one directory per call)
// - Subprocess invocation via exec.CommandContext

package oracle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// modulePattern matches a Verilog module declaration, including
// parameterized forms (module name #(...) (...)).
var modulePattern = regexp.MustCompile(`(?s)\bmodule\s+(\w+)\s*(?:#\s*\(.*?\))?\s*\(`)

// YosysChecker runs the yosys miter+SAT equivalence flow as a subprocess.
// Both designs are written to a per-call scratch directory; modules in the
// golden copy are renamed so the two netlists can coexist in one script.
type YosysChecker struct {
	binary  string
	workDir string
	satSeq  int
}

// NewYosysChecker creates a checker running the given yosys binary, with
// scratch directories created under workDir.
func NewYosysChecker(binary, workDir string) *YosysChecker {
	if binary == "" {
		binary = "yosys"
	}
	return &YosysChecker{binary: binary, workDir: workDir, satSeq: 20}
}

// Check reports whether the two designs are behaviorally equivalent.
// One miter+SAT run per module pair; all runs must prove equivalence.
func (c *YosysChecker) Check(ctx context.Context, a, b string) (bool, error) {
	dir, err := os.MkdirTemp(c.workDir, "eqcheck-*")
	if err != nil {
		return false, &InfraError{Stage: "scratch dir", Err: err}
	}
	defer os.RemoveAll(dir)

	golden, renames := RenameModules(b)
	if len(renames) == 0 {
		return false, &InfraError{Stage: "parse", Err: fmt.Errorf("no module declaration found in golden design")}
	}

	genPath := filepath.Join(dir, "gen.v")
	goldenPath := filepath.Join(dir, "golden.v")
	if err := os.WriteFile(genPath, []byte(a), 0644); err != nil {
		return false, &InfraError{Stage: "write inputs", Err: err}
	}
	if err := os.WriteFile(goldenPath, []byte(golden), 0644); err != nil {
		return false, &InfraError{Stage: "write inputs", Err: err}
	}

	for original, renamed := range renames {
		script := c.miterScript(goldenPath, genPath, renamed, original)
		scriptPath := filepath.Join(dir, "check_"+original+".ys")
		if err := os.WriteFile(scriptPath, []byte(script), 0644); err != nil {
			return false, &InfraError{Stage: "write script", Err: err}
		}

		equivalent, err := c.runScript(ctx, scriptPath)
		if err != nil {
			return false, err
		}
		if !equivalent {
			return false, nil
		}
	}
	return true, nil
}

func (c *YosysChecker) runScript(ctx context.Context, scriptPath string) (bool, error) {
	cmd := exec.CommandContext(ctx, c.binary, "-s", scriptPath)
	err := cmd.Run()

	if ctx.Err() != nil {
		return false, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Non-zero exit is how yosys reports a failed proof; the sat
			// -verify pass aborts when the miter is satisfiable.
			return false, nil
		}
		return false, &InfraError{Stage: "exec", Err: err}
	}
	return true, nil
}

// miterScript builds the equivalence-check script for one module pair.
func (c *YosysChecker) miterScript(goldenPath, genPath, goldenModule, genModule string) string {
	return fmt.Sprintf(`read_verilog %s
read_verilog %s
prep; proc; opt; memory;
clk2fflogic;
miter -equiv -flatten %s %s miter
sat -seq %d -verify -prove trigger 0 -show-inputs -show-outputs -set-init-zero miter
`, goldenPath, genPath, goldenModule, genModule, c.satSeq)
}

// RenameModules rewrites every module declaration and instantiation in
// verilog with a "golden_" prefix so the golden and generated designs can be
// read into one yosys session. Returns the rewritten source and the map from
// original to renamed module names.
func RenameModules(verilog string) (string, map[string]string) {
	names := modulePattern.FindAllStringSubmatch(verilog, -1)
	renames := make(map[string]string, len(names))
	for _, m := range names {
		renames[m[1]] = "golden_" + m[1]
	}

	out := modulePattern.ReplaceAllStringFunc(verilog, func(decl string) string {
		sub := modulePattern.FindStringSubmatch(decl)
		return strings.Replace(decl, sub[1], renames[sub[1]], 1)
	})
	for original, renamed := range renames {
		wordPattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(original) + `\b`)
		out = wordPattern.ReplaceAllString(out, renamed)
	}
	return out, renames
}

// Verify YosysChecker implements Checker
var _ Checker = (*YosysChecker)(nil)
