// Package config loads specq's three-layer YAML configuration: a tracked
// team config, an untracked personal override, and environment variables
// for API keys (highest priority).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/specq-run/specq/internal/models"
)

// ProviderCreds holds a single provider's API key.
type ProviderCreds struct {
	APIKey string `yaml:"api_key"`
}

// Providers holds per-provider credentials, overridable by environment
// variables at load time.
type Providers struct {
	Anthropic ProviderCreds `yaml:"anthropic"`
	OpenAI    ProviderCreds `yaml:"openai"`
	Google    ProviderCreds `yaml:"google"`
	GLM       ProviderCreds `yaml:"glm"`
	DeepSeek  ProviderCreds `yaml:"deepseek"`
}

// Compiler configures the brief compiler's optional refining text
// generator.
type Compiler struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Fallback bool   `yaml:"fallback"`
}

// Executor configures the default coding-agent backend.
type Executor struct {
	Type     string   `yaml:"type"`
	Model    string   `yaml:"model"`
	MaxTurns int      `yaml:"max_turns"`
	Tools    []string `yaml:"tools"`
}

// VoterEntry names one committee member: a provider/model pair.
type VoterEntry struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// Verification configures the voter committee's members and required
// checks.
type Verification struct {
	Voters []VoterEntry `yaml:"voters"`
	Checks []string     `yaml:"checks"`
}

// RiskStrategy names a single risk tier's default aggregation strategy.
type RiskStrategy struct {
	Strategy string `yaml:"strategy"`
}

// RiskPolicy maps each risk tier to its default verification strategy.
type RiskPolicy struct {
	Low    RiskStrategy `yaml:"low"`
	Medium RiskStrategy `yaml:"medium"`
	High   RiskStrategy `yaml:"high"`
}

// Budgets bounds retries, durations, and per-day throughput.
type Budgets struct {
	MaxRetries     int `yaml:"max_retries"`
	MaxDurationSec int `yaml:"max_duration_sec"`
	MaxTurns       int `yaml:"max_turns"`
	DailyTaskLimit int `yaml:"daily_task_limit"`
}

// Notify configures the webhook notifier.
type Notify struct {
	WebhookURL string   `yaml:"webhook_url"`
	Events     []string `yaml:"events"`
}

// Config is specq's fully-resolved configuration for one project.
type Config struct {
	ChangesDir   string       `yaml:"changes_dir"`
	BaseBranch   string       `yaml:"base_branch"`
	Compiler     Compiler     `yaml:"compiler"`
	Executor     Executor     `yaml:"executor"`
	Verification Verification `yaml:"verification"`
	RiskPolicy   RiskPolicy   `yaml:"risk_policy"`
	Budgets      Budgets      `yaml:"budgets"`
	Notify       Notify       `yaml:"notify"`
	Providers    Providers    `yaml:"providers"`

	ProjectRoot string `yaml:"-"`
}

// Default returns the built-in default configuration, matching the values
// a fresh `specq init` would write out.
func Default() *Config {
	return &Config{
		BaseBranch: "main",
		Compiler:   Compiler{Provider: "anthropic", Model: "claude-haiku-4-5"},
		Executor:   Executor{Type: "claude_code", Model: "claude-sonnet-4-5", MaxTurns: 50},
		Verification: Verification{
			Checks: []string{"spec_compliance", "regression_risk", "architecture"},
		},
		RiskPolicy: RiskPolicy{
			Low:    RiskStrategy{Strategy: string(models.StrategySkip)},
			Medium: RiskStrategy{Strategy: string(models.StrategyMajority)},
			High:   RiskStrategy{Strategy: string(models.StrategyUnanimous)},
		},
		Budgets: Budgets{
			MaxRetries:     models.DefaultMaxRetries,
			MaxDurationSec: 600,
			MaxTurns:       50,
			DailyTaskLimit: 50,
		},
		Notify: Notify{
			Events: []string{"change.completed", "change.failed", "change.needs_review"},
		},
	}
}

// Clone returns a deep copy so callers can mutate their own snapshot
// without aliasing the original.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Executor.Tools = append([]string(nil), c.Executor.Tools...)
	cp.Verification.Checks = append([]string(nil), c.Verification.Checks...)
	cp.Verification.Voters = append([]VoterEntry(nil), c.Verification.Voters...)
	cp.Notify.Events = append([]string(nil), c.Notify.Events...)
	return &cp
}

// GetVerificationStrategy resolves the strategy to use for a work item: its
// own override if set, else the risk policy's default for its risk tier.
func GetVerificationStrategy(wi *models.WorkItem, cfg *Config) models.VerificationStrategy {
	if wi.VerificationStrategy != "" {
		return wi.VerificationStrategy
	}
	switch wi.Risk {
	case models.RiskLow:
		return models.VerificationStrategy(cfg.RiskPolicy.Low.Strategy)
	case models.RiskHigh:
		return models.VerificationStrategy(cfg.RiskPolicy.High.Strategy)
	default:
		return models.VerificationStrategy(cfg.RiskPolicy.Medium.Strategy)
	}
}

// deepMerge merges override into base, field by field. Maps are merged
// recursively; any other value (including lists) in override replaces the
// base value wholesale. nil entries in override are ignored.
func deepMerge(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if bm, ok := result[k].(map[string]any); ok {
			if om, ok := v.(map[string]any); ok {
				result[k] = deepMerge(bm, om)
				continue
			}
		}
		result[k] = v
	}
	return result
}

func loadYAMLFile(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

// Load reads and merges specq's three config layers for projectRoot:
//  1. .specq/config.yaml (team, tracked)
//  2. .specq/local.config.yaml (personal, untracked) — overrides (1)
//  3. Environment variables (ANTHROPIC_API_KEY, OPENAI_API_KEY,
//     GOOGLE_API_KEY, GLM_API_KEY, DEEPSEEK_API_KEY) — override both, for
//     API keys only.
//
// changes_dir auto-detects (preferring openspec/changes) when left unset
// by every layer.
func Load(projectRoot string) (*Config, error) {
	specqDir := filepath.Join(projectRoot, ".specq")

	base, err := loadYAMLFile(filepath.Join(specqDir, "config.yaml"))
	if err != nil {
		return nil, err
	}
	local, err := loadYAMLFile(filepath.Join(specqDir, "local.config.yaml"))
	if err != nil {
		return nil, err
	}
	merged := deepMerge(base, local)

	mergedYAML, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("config: re-marshal merged config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(mergedYAML, cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal merged config: %w", err)
	}
	cfg.ProjectRoot = projectRoot

	if cfg.ChangesDir == "" {
		if fi, err := os.Stat(filepath.Join(projectRoot, "openspec", "changes")); err == nil && fi.IsDir() {
			cfg.ChangesDir = "openspec/changes"
		} else {
			cfg.ChangesDir = "changes"
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.Anthropic.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		cfg.Providers.Google.APIKey = v
	}
	if v := os.Getenv("GLM_API_KEY"); v != "" {
		cfg.Providers.GLM.APIKey = v
	}
	if v := os.Getenv("DEEPSEEK_API_KEY"); v != "" {
		cfg.Providers.DeepSeek.APIKey = v
	}
}
