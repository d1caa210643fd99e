// Package config provides application settings loaded from a YAML file with
// environment-variable overrides.
//
// Settings are created via Load() which handles:
// - YAML parsing with default value application
// - Environment variable overrides with validation
// - A missing default config file falling back to pure defaults

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file consulted when no path is given.
const DefaultPath = "./config.yaml"

// Settings holds all application configuration.
type Settings struct {
	LLM      LLMConfig      `yaml:"llm"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Limiter  LimiterConfig  `yaml:"limiter"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Data     DataConfig     `yaml:"data"`
}

// LLMConfig holds generation-provider configuration.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	MaxRetries  int     `yaml:"max_retries"`
}

// OracleConfig holds equivalence-oracle configuration.
type OracleConfig struct {
	Binary         string `yaml:"binary"`
	WorkDir        string `yaml:"work_dir"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Concurrency    int    `yaml:"concurrency"`
	TimeoutPolicy  string `yaml:"timeout_policy"`
}

// Timeout returns the per-check timeout as a duration.
func (o OracleConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// LimiterConfig expresses the generation rate limit as N calls per window.
type LimiterConfig struct {
	CallsPerWindow int `yaml:"calls_per_window"`
	WindowSeconds  int `yaml:"window_seconds"`
}

// Window returns the limiter window as a duration.
func (l LimiterConfig) Window() time.Duration {
	return time.Duration(l.WindowSeconds) * time.Second
}

// PipelineConfig holds per-run generation counts.
type PipelineConfig struct {
	MutantsPerDesign      int  `yaml:"mutants_per_design"`
	MutationStrength      int  `yaml:"mutation_strength"`
	QuestionsPerMutant    int  `yaml:"questions_per_mutant"`
	CandidatesPerQuestion int  `yaml:"candidates_per_question"`
	CheckAgainstExisting  bool `yaml:"check_against_existing"`
}

// DataConfig holds persistence paths.
type DataConfig struct {
	DesignsPath   string `yaml:"designs_path"`
	QuestionsPath string `yaml:"questions_path"`
	StatsPath     string `yaml:"stats_path"`
}

// Defaults returns the settings used when no file and no environment
// overrides are present.
func Defaults() Settings {
	return Settings{
		LLM: LLMConfig{
			Provider:    "deepseek",
			MaxTokens:   4096,
			Temperature: 0.7,
			MaxRetries:  3,
		},
		Oracle: OracleConfig{
			Binary:         "yosys",
			TimeoutSeconds: 60,
			Concurrency:    4,
			TimeoutPolicy:  "fail-closed",
		},
		Limiter: LimiterConfig{
			CallsPerWindow: 200,
			WindowSeconds:  60,
		},
		Pipeline: PipelineConfig{
			MutantsPerDesign:      2,
			MutationStrength:      3,
			QuestionsPerMutant:    1,
			CandidatesPerQuestion: 3,
		},
		Data: DataConfig{
			DesignsPath:   "./data/designs.jsonl",
			QuestionsPath: "./data/questions.jsonl",
			StatsPath:     "./data/runs.db",
		},
	}
}

// Load reads settings from the YAML file at path, applies environment
// overrides, and validates the result. An empty path means DefaultPath, and
// only then a missing file silently falls back to defaults; a path given
// explicitly must exist.
func Load(path string) (Settings, error) {
	settings := Defaults()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return Settings{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// Defaults stand.
	default:
		return Settings{}, fmt.Errorf("reading config: %w", err)
	}

	if err := settings.applyEnv(); err != nil {
		return Settings{}, err
	}
	if err := settings.validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func (s *Settings) applyEnv() error {
	s.LLM.Provider = getEnvString("VERIDECK_PROVIDER", s.LLM.Provider)
	s.LLM.Model = getEnvString("VERIDECK_MODEL", s.LLM.Model)

	var err error
	if s.LLM.MaxTokens, err = getEnvInt("LLM_MAX_TOKENS", s.LLM.MaxTokens); err != nil {
		return err
	}
	if s.LLM.Temperature, err = getEnvFloat64("LLM_TEMPERATURE", s.LLM.Temperature); err != nil {
		return err
	}
	if s.LLM.MaxRetries, err = getEnvInt("LLM_MAX_RETRIES", s.LLM.MaxRetries); err != nil {
		return err
	}

	s.Oracle.Binary = getEnvString("ORACLE_BINARY", s.Oracle.Binary)
	s.Oracle.WorkDir = getEnvString("ORACLE_WORK_DIR", s.Oracle.WorkDir)
	if s.Oracle.TimeoutSeconds, err = getEnvInt("ORACLE_TIMEOUT_SECONDS", s.Oracle.TimeoutSeconds); err != nil {
		return err
	}
	if s.Oracle.Concurrency, err = getEnvInt("ORACLE_CONCURRENCY", s.Oracle.Concurrency); err != nil {
		return err
	}
	s.Oracle.TimeoutPolicy = getEnvString("ORACLE_TIMEOUT_POLICY", s.Oracle.TimeoutPolicy)

	if s.Limiter.CallsPerWindow, err = getEnvInt("LIMITER_CALLS", s.Limiter.CallsPerWindow); err != nil {
		return err
	}
	if s.Limiter.WindowSeconds, err = getEnvInt("LIMITER_WINDOW_SECONDS", s.Limiter.WindowSeconds); err != nil {
		return err
	}

	s.Data.DesignsPath = getEnvString("VERIDECK_DESIGNS", s.Data.DesignsPath)
	s.Data.QuestionsPath = getEnvString("VERIDECK_QUESTIONS", s.Data.QuestionsPath)
	s.Data.StatsPath = getEnvString("VERIDECK_STATS", s.Data.StatsPath)

	return nil
}

func (s Settings) validate() error {
	if s.Oracle.Concurrency <= 0 {
		return fmt.Errorf("oracle concurrency must be positive, got %d", s.Oracle.Concurrency)
	}
	if s.Oracle.TimeoutSeconds <= 0 {
		return fmt.Errorf("oracle timeout must be positive, got %d", s.Oracle.TimeoutSeconds)
	}
	switch s.Oracle.TimeoutPolicy {
	case "", "fail-closed", "fail-open":
	default:
		return fmt.Errorf("unknown oracle timeout policy %q", s.Oracle.TimeoutPolicy)
	}
	if s.Limiter.WindowSeconds <= 0 {
		return fmt.Errorf("limiter window must be positive, got %d", s.Limiter.WindowSeconds)
	}
	return nil
}

// Environment variable helpers with proper error handling

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}
