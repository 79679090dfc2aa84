package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"booruscraper/pkg/checkpoint"
	"booruscraper/pkg/logger"
	"booruscraper/pkg/ui"

	"github.com/spf13/cobra"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or reset crawl checkpoints",
	Long: `Every scope directory holds a checkpoint.json with the posts accepted so far
and the last page that produced one. These commands work on scope directories
directly and need no configuration.`,
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show <scope-dir>...",
	Short: "Show the checkpoint of one or more scope directories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheckpointShow,
}

var checkpointResetCmd = &cobra.Command{
	Use:   "reset <scope-dir>...",
	Short: "Back up and delete checkpoints so the next crawl starts over",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheckpointReset,
}

func init() {
	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointShowCmd)
	checkpointCmd.AddCommand(checkpointResetCmd)
}

func runCheckpointShow(cmd *cobra.Command, args []string) error {
	console := ui.NewConsole(cmd.OutOrStdout(), false)
	store := checkpoint.NewStore(logger.NewNopLogger())

	for _, scope := range args {
		info, err := store.Info(scope)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout())
		console.Info("Scope", scope)
		if info == nil {
			console.Warning("No checkpoint")
			continue
		}

		keys := make([]string, 0, len(info))
		for k := range info {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			console.Info("  "+k, formatInfoValue(info[k]))
		}
	}
	return nil
}

func runCheckpointReset(cmd *cobra.Command, args []string) error {
	console := ui.NewConsole(cmd.OutOrStdout(), quiet)
	store := checkpoint.NewStore(logger.NewNopLogger())

	for _, scope := range args {
		if !store.Exists(scope) {
			console.Warning("No checkpoint", scope)
			continue
		}
		if err := store.Backup(scope); err != nil {
			return err
		}
		if err := store.Delete(scope); err != nil {
			return err
		}
		console.Success(fmt.Sprintf("Checkpoint reset: %s (backup at %s.backup)", scope, checkpoint.Path(scope)))
	}
	return nil
}

func formatInfoValue(v interface{}) string {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x)
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}

// scopeExists reports whether dir is an existing directory
func scopeExists(dir string) bool {
	st, err := os.Stat(dir)
	return err == nil && st.IsDir()
}
