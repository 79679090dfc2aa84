package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"booruscraper/pkg/metadata"
	"booruscraper/pkg/ui"

	"github.com/spf13/cobra"
)

var (
	summaryCSV string
	summaryTop int
)

var summaryCmd = &cobra.Command{
	Use:   "summary <dir>",
	Short: "Aggregate the metadata documents below a directory",
	Long: `Scan every metadata document below a dataset directory and report the
rating and format distribution, the most frequent tags per category and any
post stored more than once. With --csv the documents are also exported as one
row per file.`,
	Args: cobra.ExactArgs(1),
	RunE: runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	summaryCmd.Flags().StringVar(&summaryCSV, "csv", "", "write one row per metadata document to this CSV file")
	summaryCmd.Flags().IntVar(&summaryTop, "top", 10, "tags listed per category")
}

func runSummary(cmd *cobra.Command, args []string) error {
	root := args[0]
	if !scopeExists(root) {
		return fmt.Errorf("%s is not a directory", root)
	}

	docs, paths, skipped, err := metadata.Scan(root)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", root, err)
	}

	out := cmd.OutOrStdout()
	console := ui.NewConsole(out, quiet)
	s := metadata.Summarize(docs, summaryTop)

	console.Info("Documents", strconv.Itoa(s.Total))
	console.Info("Ratings", formatCounts(s.ByRating))
	console.Info("Formats", formatCounts(s.ByFormat))

	categories := make([]string, 0, len(s.TopTags))
	for category := range s.TopTags {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	for _, category := range categories {
		parts := make([]string, 0, len(s.TopTags[category]))
		for _, tc := range s.TopTags[category] {
			parts = append(parts, fmt.Sprintf("%s (%d)", tc.Tag, tc.Count))
		}
		console.Info("Top "+category, strings.Join(parts, ", "))
	}

	if len(s.Duplicate) > 0 {
		console.Warning(fmt.Sprintf("%d posts stored more than once", len(s.Duplicate)))
		for _, u := range s.Duplicate {
			fmt.Fprintln(out, "  "+u)
		}
	}
	if len(skipped) > 0 {
		console.Warning(fmt.Sprintf("%d files skipped (not metadata documents)", len(skipped)))
	}

	if summaryCSV == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(summaryCSV), 0755); err != nil {
		return fmt.Errorf("failed to create CSV directory: %w", err)
	}
	file, err := os.Create(summaryCSV)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	if err := metadata.WriteCSV(file, docs, paths); err != nil {
		file.Close()
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close CSV file: %w", err)
	}
	console.Success("CSV written to " + summaryCSV)
	return nil
}

// formatCounts renders a histogram as "a=3, b=1", largest first
func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}
