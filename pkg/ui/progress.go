package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"booruscraper/pkg/crawler"
)

// ProgressDisplay prints one status line per listing page. Live mode
// rewrites the line in place; otherwise every page gets its own line.
type ProgressDisplay struct {
	mu        sync.Mutex
	out       io.Writer
	live      bool
	limit     int
	tag       string
	resumed   int
	startTime time.Time
	lastLen   int
}

// NewProgressDisplay creates a display. limit is the per-tag target, 0 for
// unbounded.
func NewProgressDisplay(out io.Writer, live bool, limit int) *ProgressDisplay {
	return &ProgressDisplay{out: out, live: live, limit: limit}
}

// StartTag resets the counters for a new tag
func (p *ProgressDisplay) StartTag(tag string, resumed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tag = tag
	p.resumed = resumed
	p.startTime = time.Now()
	p.lastLen = 0
}

// Page renders the report of a finished listing page
func (p *ProgressDisplay) Page(r crawler.PageReport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	line := p.line(r)
	if !p.live {
		fmt.Fprintln(p.out, line)
	} else {
		pad := ""
		if n := len(line); n < p.lastLen {
			pad = strings.Repeat(" ", p.lastLen-n)
		}
		fmt.Fprintf(p.out, "\r%s%s", line, pad)
		p.lastLen = len(line)
	}

	if r.JumpedTo > 0 {
		p.newline()
		fmt.Fprintln(p.out, warningStyle.Render(fmt.Sprintf("↺ nothing new, back to page %d", r.JumpedTo)))
	}
}

// Finish ends the live line of the current tag
func (p *ProgressDisplay) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.newline()
}

func (p *ProgressDisplay) newline() {
	if p.live && p.lastLen > 0 {
		fmt.Fprintln(p.out)
		p.lastLen = 0
	}
}

func (p *ProgressDisplay) line(r crawler.PageReport) string {
	elapsed := time.Since(p.startTime)
	fresh := r.Collected - p.resumed
	rate := 0.0
	if elapsed > 0 {
		rate = float64(fresh) / elapsed.Minutes()
	}

	counter := fmt.Sprintf("%d", r.Collected)
	if p.limit > 0 {
		counter = fmt.Sprintf("%s %d/%d", bar(r.Collected, p.limit, 20), r.Collected, p.limit)
	}

	pageNote := fmt.Sprintf("+%d of %d", r.Accepted, r.Links)
	if r.Accepted == 0 {
		pageNote = dimStyle.Render(pageNote)
	}

	return fmt.Sprintf("%s p%d %s • %s • %.1f/min • %s",
		labelStyle.Render(p.tag),
		r.Page,
		counter,
		pageNote,
		rate,
		FormatDuration(elapsed),
	)
}

func bar(done, total, width int) string {
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("━", filled) + strings.Repeat("─", width-filled) + "]"
}
