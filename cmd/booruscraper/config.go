package main

import (
	"fmt"
	"os"

	"booruscraper/pkg/config"
	"booruscraper/pkg/ui"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage booruscraper configuration files.

Configuration is loaded from, highest priority first:
  - Command line flags
  - Environment variables (BOORUSCRAPER_*)
  - .env files
  - Configuration file
  - Default values`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with every option at its default",
	Long: `Write a configuration file with every option at its default value.

The file is created as .booruscraper.yaml in the current directory unless a
different path is given with --config. An existing file is never overwritten.`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = ".booruscraper.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	cfg := config.DefaultConfig()
	cfg.Datasets = map[string][]string{
		"example": {"hatsune_miku", "kagamine_rin"},
	}
	if err := cfg.Save(path); err != nil {
		return err
	}

	ui.NewConsole(cmd.OutOrStdout(), quiet).Success("Configuration written to " + path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
