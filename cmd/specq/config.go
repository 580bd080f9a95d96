package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the fully resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// Redact secrets before printing: credentials come from env/local
		// config, never meant for terminal scrollback or CI logs.
		redacted := *cfg
		redacted.Providers.Anthropic.APIKey = redactKey(cfg.Providers.Anthropic.APIKey)
		redacted.Providers.OpenAI.APIKey = redactKey(cfg.Providers.OpenAI.APIKey)
		redacted.Providers.Google.APIKey = redactKey(cfg.Providers.Google.APIKey)
		redacted.Providers.GLM.APIKey = redactKey(cfg.Providers.GLM.APIKey)
		redacted.Providers.DeepSeek.APIKey = redactKey(cfg.Providers.DeepSeek.APIKey)

		out, err := yaml.Marshal(redacted)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func redactKey(key string) string {
	if key == "" {
		return ""
	}
	return "***set***"
}

func init() {
	rootCmd.AddCommand(configCmd)
}
