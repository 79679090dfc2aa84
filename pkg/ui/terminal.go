package ui

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"booruscraper/pkg/crawler"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// ASCIILogo is printed above every run
const ASCIILogo = `
 ┏┓ ┏━┓┏━┓┏━┓╻ ╻┏━┓┏━╸┏━┓┏━┓┏━┓┏━╸┏━┓
 ┣┻┓┃ ┃┃ ┃┣┳┛┃ ┃┗━┓┃  ┣┳┛┣━┫┣━┛┣╸ ┣┳┛
 ┗━┛┗━┛┗━┛╹┗╸┗━┛┗━┛┗━╸╹┗╸╹ ╹╹  ┗━╸╹┗╸
`

// Console prints the human-facing run output. In quiet mode only errors
// and the final summary are written.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	quiet bool
}

// NewConsole creates a console writing to out
func NewConsole(out io.Writer, quiet bool) *Console {
	return &Console{out: out, quiet: quiet}
}

// Quiet reports whether progress output is suppressed
func (c *Console) Quiet() bool {
	return c.quiet
}

// Banner prints the logo and the version line
func (c *Console) Banner(version string) {
	if c.quiet {
		return
	}
	c.println(logoStyle.Render(ASCIILogo))
	c.println(dimStyle.Render("  booru crawl engine " + version))
}

// Info prints a label/value pair
func (c *Console) Info(label, value string) {
	if c.quiet {
		return
	}
	c.println(fmt.Sprintf("%s: %s", labelStyle.Render(label), valueStyle.Render(value)))
}

// Success prints a message in green
func (c *Console) Success(msg string) {
	if c.quiet {
		return
	}
	c.println(successStyle.Render(msg))
}

// Warning prints a message in orange
func (c *Console) Warning(msg string, args ...interface{}) {
	if c.quiet {
		return
	}
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	c.println(warningStyle.Render(msg))
}

// Error prints a message in red, even in quiet mode
func (c *Console) Error(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	c.println(errorStyle.Render(msg))
}

// TagHeader announces the tag about to be crawled
func (c *Console) TagHeader(index, total int, target crawler.Target, resumed int) {
	if c.quiet {
		return
	}
	title := titleStyle.Render(fmt.Sprintf("TAG %d/%d  %s", index, total, target.Tag))
	c.println("\n" + title)
	c.Info("  query", target.Query)
	c.Info("  scope", target.Dir)
	if resumed > 0 {
		c.Info("  resumed", strconv.Itoa(resumed)+" posts from checkpoint")
	}
}

// Summary prints one row per tag plus the totals written by this run
func (c *Console) Summary(results []crawler.TagResult, files int, bytes int64, elapsed time.Duration) {
	c.println("\n" + SummaryTable(results))

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	line := fmt.Sprintf("%d new files • %s • %s", files, FormatBytes(bytes), FormatDuration(elapsed))
	if failed > 0 {
		c.println(errorStyle.Render(fmt.Sprintf("✗ %d of %d tags failed", failed, len(results))) + dimStyle.Render(" • "+line))
		return
	}
	c.println(successStyle.Render("✓ done") + dimStyle.Render(" • "+line))
}

// SummaryTable renders the per-tag results
func SummaryTable(results []crawler.TagResult) string {
	rows := make([][]string, 0, len(results))
	failed := make([]bool, len(results))
	for i, r := range results {
		reason := string(r.Reason)
		if r.Err != nil {
			failed[i] = true
			reason = reason + ": " + truncate(r.Err.Error(), 48)
		}
		rows = append(rows, []string{
			r.Tag,
			strconv.Itoa(r.NewlyAccepted),
			strconv.Itoa(r.Collected),
			strconv.Itoa(r.LastProductivePage),
			FormatDuration(r.Duration),
			reason,
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tableBorderStyle).
		Headers("TAG", "NEW", "TOTAL", "LAST PAGE", "TIME", "RESULT").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCellStyle
			}
			if col == 5 && row >= 0 && row < len(results) {
				return reasonStyle(failed[row], string(results[row].Reason))
			}
			return cellStyle
		}).
		String()
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

// FormatBytes formats bytes in a human-readable way
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
