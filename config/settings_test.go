package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingDefaultFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(cwd) })

	settings, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "deepseek" {
		t.Errorf("expected default provider deepseek, got %q", settings.LLM.Provider)
	}
	if settings.Oracle.Concurrency != 4 {
		t.Errorf("expected default concurrency 4, got %d", settings.Oracle.Concurrency)
	}
	if settings.Oracle.TimeoutPolicy != "fail-closed" {
		t.Errorf("expected default policy fail-closed, got %q", settings.Oracle.TimeoutPolicy)
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
llm:
  provider: openai
  model: gpt-4o
  temperature: 0.4
oracle:
  binary: /usr/local/bin/yosys
  timeout_seconds: 120
  concurrency: 8
  timeout_policy: fail-open
limiter:
  calls_per_window: 60
  window_seconds: 60
pipeline:
  mutants_per_design: 4
data:
  designs_path: /tmp/designs.jsonl
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "openai" || settings.LLM.Model != "gpt-4o" {
		t.Errorf("llm config not parsed: %+v", settings.LLM)
	}
	if settings.Oracle.Timeout() != 2*time.Minute {
		t.Errorf("expected 2m oracle timeout, got %v", settings.Oracle.Timeout())
	}
	if settings.Oracle.TimeoutPolicy != "fail-open" {
		t.Errorf("expected fail-open policy, got %q", settings.Oracle.TimeoutPolicy)
	}
	if settings.Limiter.Window() != time.Minute {
		t.Errorf("expected 1m limiter window, got %v", settings.Limiter.Window())
	}
	if settings.Pipeline.MutantsPerDesign != 4 {
		t.Errorf("expected 4 mutants per design, got %d", settings.Pipeline.MutantsPerDesign)
	}
	// Unset fields keep defaults.
	if settings.Pipeline.CandidatesPerQuestion != 3 {
		t.Errorf("expected default candidates per question, got %d", settings.Pipeline.CandidatesPerQuestion)
	}
	if settings.Data.QuestionsPath != "./data/questions.jsonl" {
		t.Errorf("expected default questions path, got %q", settings.Data.QuestionsPath)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  provider: openai\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("VERIDECK_PROVIDER", "anthropic")
	t.Setenv("ORACLE_CONCURRENCY", "16")
	t.Setenv("LLM_TEMPERATURE", "0.2")

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "anthropic" {
		t.Errorf("env should override file, got %q", settings.LLM.Provider)
	}
	if settings.Oracle.Concurrency != 16 {
		t.Errorf("expected concurrency 16, got %d", settings.Oracle.Concurrency)
	}
	if settings.LLM.Temperature != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", settings.LLM.Temperature)
	}
}

func TestInvalidEnvValueFails(t *testing.T) {
	t.Setenv("ORACLE_CONCURRENCY", "lots")
	if _, err := Load(""); err == nil {
		t.Error("expected error for non-numeric env value")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero concurrency", func(s *Settings) { s.Oracle.Concurrency = 0 }},
		{"zero timeout", func(s *Settings) { s.Oracle.TimeoutSeconds = 0 }},
		{"unknown policy", func(s *Settings) { s.Oracle.TimeoutPolicy = "fail-sometimes" }},
		{"zero limiter window", func(s *Settings) { s.Limiter.WindowSeconds = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := Defaults()
			tt.mutate(&settings)
			if err := settings.validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
