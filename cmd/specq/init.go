package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/specq-run/specq/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold .specq/config.yaml and a changes directory for this project",
	RunE: func(cmd *cobra.Command, args []string) error {
		specqDir := filepath.Join(projectRoot, ".specq")
		if err := os.MkdirAll(specqDir, 0o755); err != nil {
			return &setupError{err: err}
		}

		configPath := filepath.Join(specqDir, "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			fmt.Println("config already exists at", configPath)
		} else {
			out, err := yaml.Marshal(config.Default())
			if err != nil {
				return err
			}
			if err := os.WriteFile(configPath, out, 0o644); err != nil {
				return &setupError{err: err}
			}
			fmt.Println("wrote", configPath)
		}

		changesDir := filepath.Join(projectRoot, "changes")
		if err := os.MkdirAll(changesDir, 0o755); err != nil {
			return &setupError{err: err}
		}
		fmt.Println("changes directory ready at", changesDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
