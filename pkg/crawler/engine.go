package crawler

import (
	"context"
	"time"

	errs "booruscraper/pkg/errors"
	"booruscraper/pkg/extractor"
	"booruscraper/pkg/logger"
	"booruscraper/pkg/metrics"
)

// StopReason says why a tag's traversal ended
type StopReason string

const (
	StopEndOfListing StopReason = "end_of_listing"
	StopLimit        StopReason = "limit_reached"
	StopPageCeiling  StopReason = "page_ceiling"
	StopStale        StopReason = "stale"
	StopCancelled    StopReason = "cancelled"
	StopFailed       StopReason = "failed"
)

// Processor handles one post link. *Pipeline is the production one.
type Processor interface {
	Process(ctx context.Context, postURL string, state *State, target Target) (Outcome, error)
}

// EngineOptions bound a traversal
type EngineOptions struct {
	// Limit stops the tag once this many posts are collected; 0 is unbounded
	Limit int
	// MaxPages stops after this page number; 0 is unbounded
	MaxPages int
	// StaleJumpLimit stops after this many jump-backs in a row without a
	// new acceptance; 0 disables the check
	StaleJumpLimit int
}

// PageReport describes one finished listing page
type PageReport struct {
	Tag       string
	Page      int
	Links     int
	Accepted  int
	Collected int
	JumpedTo  int
}

// Engine drives the page state machine for one tag at a time
type Engine struct {
	fetcher     Fetcher
	extractor   extractor.Extractor
	processor   Processor
	checkpoints CheckpointStore
	supervisor  *Supervisor
	opts        EngineOptions
	logger      logger.Logger

	// OnPage, when set, is called after every listing page
	OnPage func(PageReport)
}

// EngineConfig holds the engine's collaborators
type EngineConfig struct {
	Fetcher     Fetcher
	Extractor   extractor.Extractor
	Processor   Processor
	Checkpoints CheckpointStore
	Supervisor  *Supervisor
	Options     EngineOptions
	Logger      logger.Logger
}

// NewEngine creates an engine
func NewEngine(cfg EngineConfig) *Engine {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Engine{
		fetcher:     cfg.Fetcher,
		extractor:   cfg.Extractor,
		processor:   cfg.Processor,
		checkpoints: cfg.Checkpoints,
		supervisor:  cfg.Supervisor,
		opts:        cfg.Options,
		logger:      log,
	}
}

// pageProgress survives supervisor retries of the same page so accepted
// posts are still counted when the retry sees them as duplicates.
type pageProgress struct {
	links        int
	accepted     int
	endOfListing bool
	limitReached bool
}

// Run traverses target until a stop condition. The checkpoint is saved
// after every acceptance, so an early return never loses accepted posts.
func (e *Engine) Run(ctx context.Context, target Target, state *State) (StopReason, error) {
	log := e.logger.WithField("tag", target.Tag)
	staleJumps := 0

	if e.limitReached(state) {
		return StopLimit, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return StopCancelled, err
		}
		if e.opts.MaxPages > 0 && state.PageNumber > e.opts.MaxPages {
			return StopPageCeiling, nil
		}

		var progress pageProgress
		page := state.PageNumber
		err := e.supervisor.Do(ctx, func(ctx context.Context) error {
			return e.processPage(ctx, target, state, &progress)
		})
		if err != nil {
			if errs.IsCancelled(err) || ctx.Err() != nil {
				return StopCancelled, err
			}
			return StopFailed, err
		}

		if progress.endOfListing {
			state.EndOfListing = true
			metrics.ObservePage(e.extractor.Name(), "end")
			log.InfoWithFields("Listing exhausted", map[string]interface{}{"page": page})
			return StopEndOfListing, nil
		}

		if state.finishPage(progress.accepted) {
			if err := e.save(target, state); err != nil {
				return StopFailed, err
			}
		}
		result := "empty"
		if progress.accepted > 0 {
			result = "productive"
			staleJumps = 0
		}
		metrics.ObservePage(e.extractor.Name(), result)

		report := PageReport{
			Tag:       target.Tag,
			Page:      page,
			Links:     progress.links,
			Accepted:  progress.accepted,
			Collected: state.Len(),
		}
		logger.LogPageProgress(log, target.Tag, page, progress.accepted, progress.links, state.Len())

		if progress.limitReached {
			e.report(report)
			return StopLimit, nil
		}

		if state.jumpBack() {
			staleJumps++
			report.JumpedTo = state.PageNumber + 1
			metrics.ObserveJumpBack(target.Tag)
			log.InfoWithFields("Empty page limit reached, jumping back", map[string]interface{}{
				"from_page":            page,
				"to_page":              report.JumpedTo,
				"last_productive_page": state.LastProductivePage,
			})
		}
		e.report(report)
		state.advance()

		if e.opts.StaleJumpLimit > 0 && staleJumps >= e.opts.StaleJumpLimit {
			log.WarnWithFields("No new posts after repeated jump-backs", map[string]interface{}{
				"jumps": staleJumps,
			})
			return StopStale, nil
		}
	}
}

func (e *Engine) processPage(ctx context.Context, target Target, state *State, progress *pageProgress) error {
	listingURL := e.extractor.SearchURL(target.Query, state.PageNumber)

	start := time.Now()
	page, err := e.fetcher.Fetch(ctx, listingURL)
	metrics.ObserveFetch("listing", time.Since(start))
	if err != nil {
		return err
	}
	doc, err := page.Document()
	if err != nil {
		return err
	}
	pageURL := page.FinalURL
	if pageURL == "" {
		pageURL = listingURL
	}

	links, found := e.extractor.ListingLinks(doc, pageURL)
	if !found {
		progress.endOfListing = true
		return nil
	}
	progress.links = len(links)

	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return err
		}
		if state.Has(link) {
			continue
		}

		start := time.Now()
		outcome, err := e.processor.Process(ctx, link, state, target)
		metrics.ObserveFetch("post", time.Since(start))
		if err != nil {
			return err
		}
		if outcome.Kind != Accepted {
			continue
		}

		state.add(link)
		if err := e.save(target, state); err != nil {
			return err
		}
		progress.accepted++

		if e.limitReached(state) {
			progress.limitReached = true
			return nil
		}
	}
	return nil
}

func (e *Engine) limitReached(state *State) bool {
	return e.opts.Limit > 0 && state.Len() >= e.opts.Limit
}

func (e *Engine) save(target Target, state *State) error {
	rec := state.Record()
	if err := e.checkpoints.Save(target.Dir, rec); err != nil {
		return err
	}
	state.createdAt = rec.CreatedAt
	metrics.SetCollected(target.Tag, state.Len())
	return nil
}

func (e *Engine) report(r PageReport) {
	if e.OnPage != nil {
		e.OnPage(r)
	}
}
