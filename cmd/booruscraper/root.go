package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"booruscraper/pkg/config"
	"booruscraper/pkg/logger"
	"booruscraper/pkg/ui"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	// Version information, set with -ldflags at build time
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	logFile    string
	quiet      bool
	verbose    bool
)

// errSilent marks failures the command already reported on the console
var errSilent = errors.New("run failed")

var rootCmd = &cobra.Command{
	Use:   "booruscraper",
	Short: "Crawl booru image boards into resumable, labelled datasets",
	Long: `booruscraper walks the search listing of a booru image board (Danbooru or
Sankaku), filters every post by format, rating and character, and stores the
accepted media next to a JSON metadata document.

Progress is checkpointed after every accepted post, so an interrupted crawl
resumes where it stopped. Browser sessions are restarted automatically after
timeouts and connection failures.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errSilent) {
			ui.NewConsole(os.Stderr, false).Error("Error", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.booruscraper.yaml or ~/.config/booruscraper/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this file")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "print only errors and the final summary")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show info logs alongside the progress line")

	rootCmd.SetVersionTemplate(`booruscraper {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig merges the global flags into flags and loads the configuration
func loadConfig(cmd *cobra.Command, flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	} else if stdoutIsTerminal() && !verbose {
		// keep the live progress line readable
		flags["log-level"] = "warn"
	}
	if logFile != "" {
		flags["log-file"] = logFile
	}
	return config.Load(configFile, flags)
}

// setupLogger initializes the global logger and returns a run-scoped child
func setupLogger(cfg *config.Config, fields map[string]interface{}) (logger.Logger, error) {
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	l := logger.GetLogger().WithFields(fields)
	logger.SetLogger(l)
	return l, nil
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
