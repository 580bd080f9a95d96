package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/specq-run/specq/internal/agent"
	"github.com/specq-run/specq/internal/compiler"
	"github.com/specq-run/specq/internal/config"
	"github.com/specq-run/specq/internal/executor"
	"github.com/specq-run/specq/internal/notifier"
	"github.com/specq-run/specq/internal/pipeline"
	"github.com/specq-run/specq/internal/store"
	"github.com/specq-run/specq/internal/textgen"
	"github.com/specq-run/specq/internal/voter"
)

// chatEndpoints names the chat-completions-style endpoint used for each
// configured provider. anthropic and google are adapted to the same
// generic request/response shape as the openai-compatible providers,
// trading provider-specific request formats for one uniform TextGenerator
// implementation.
var chatEndpoints = map[string]string{
	"anthropic": "https://api.anthropic.com/v1/messages",
	"openai":    "https://api.openai.com/v1/chat/completions",
	"google":    "https://generativelanguage.googleapis.com/v1beta/chat/completions",
	"glm":       "https://open.bigmodel.cn/api/paas/v4/chat/completions",
	"deepseek":  "https://api.deepseek.com/v1/chat/completions",
}

func apiKeyFor(cfg *config.Config, provider string) string {
	switch provider {
	case "anthropic":
		return cfg.Providers.Anthropic.APIKey
	case "openai":
		return cfg.Providers.OpenAI.APIKey
	case "google":
		return cfg.Providers.Google.APIKey
	case "glm":
		return cfg.Providers.GLM.APIKey
	case "deepseek":
		return cfg.Providers.DeepSeek.APIKey
	default:
		return ""
	}
}

func newGenerator(provider, model string, cfg *config.Config) textgen.TextGenerator {
	endpoint := chatEndpoints[provider]
	return textgen.New(nil, endpoint, apiKeyFor(cfg, provider), model)
}

// buildCompiler selects Passthrough (no compiler provider configured) or
// Refined, wired to the configured provider/model.
func buildCompiler(cfg *config.Config) compiler.Compiler {
	if cfg.Compiler.Provider == "" {
		return compiler.Passthrough{}
	}
	return compiler.Refined{
		Generator: newGenerator(cfg.Compiler.Provider, cfg.Compiler.Model, cfg),
		Fallback:  cfg.Compiler.Fallback,
	}
}

// buildAgent selects the coding-agent CLI backend named by
// cfg.Executor.Type.
func buildAgent(cfg *config.Config) executor.Agent {
	switch cfg.Executor.Type {
	case "gemini_cli":
		return agent.GeminiCLI(cfg.Executor.Model, "")
	case "codex":
		return agent.Codex(cfg.Executor.Model, "")
	default:
		// claude_code and any other configured type run as a bare ACP
		// command named by the type string.
		cmd := strings.Fields(cfg.Executor.Type)
		if len(cmd) == 0 {
			cmd = []string{"claude-code-acp"}
		}
		if cfg.Executor.Model != "" {
			cmd = append(cmd, "--model", cfg.Executor.Model)
		}
		return agent.New(cmd, "", true)
	}
}

// buildVoterFactory turns configured voter entries into a
// pipeline.VoterFactory. When no voters are configured, it falls back to a
// single voter using the compiler's provider/model.
func buildVoterFactory(cfg *config.Config) pipeline.VoterFactory {
	return func(c *config.Config) []voter.Voter {
		entries := c.Verification.Voters
		if len(entries) == 0 {
			return []voter.Voter{{
				Name:      fmt.Sprintf("%s/%s", c.Compiler.Provider, c.Compiler.Model),
				Generator: newGenerator(c.Compiler.Provider, c.Compiler.Model, c),
			}}
		}
		voters := make([]voter.Voter, len(entries))
		for i, e := range entries {
			name := e.Name
			if name == "" {
				name = fmt.Sprintf("%s/%s", e.Provider, e.Model)
			}
			voters[i] = voter.Voter{Name: name, Generator: newGenerator(e.Provider, e.Model, c)}
		}
		return voters
	}
}

// buildLoop assembles a pipeline.Loop from resolved config and an open
// store.
func buildLoop(cfg *config.Config, st *store.Store) *pipeline.Loop {
	return &pipeline.Loop{
		Config:      cfg,
		Store:       st,
		Compiler:    buildCompiler(cfg),
		Executor:    executor.New(buildAgent(cfg)),
		Notifier:    notifier.New(nil, cfg.Notify.WebhookURL, cfg.Notify.Events),
		BuildVoters: buildVoterFactory(cfg),
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(projectRoot)
	if err != nil {
		return nil, &setupError{err: fmt.Errorf("load config: %w", err)}
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	specqDir := filepath.Join(cfg.ProjectRoot, ".specq")
	if err := os.MkdirAll(specqDir, 0o755); err != nil {
		return nil, &setupError{err: fmt.Errorf("create .specq directory: %w", err)}
	}
	dbPath := filepath.Join(specqDir, "state.db")
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, &setupError{err: fmt.Errorf("open store: %w", err)}
	}
	return st, nil
}
