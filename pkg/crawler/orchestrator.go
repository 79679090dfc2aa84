package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "booruscraper/pkg/errors"
	"booruscraper/pkg/logger"
)

// TagResult is the final account of one tag
type TagResult struct {
	Tag                string
	Scope              string
	Collected          int
	NewlyAccepted      int
	Resumed            int
	LastPage           int
	LastProductivePage int
	Reason             StopReason
	Duration           time.Duration
	Err                error
}

// Checkpointer is the checkpoint store as the orchestrator needs it
type Checkpointer interface {
	CheckpointStore
	Backup(scope string) error
	Delete(scope string) error
	Exists(scope string) bool
}

// Runner traverses one tag. *Engine is the production one.
type Runner interface {
	Run(ctx context.Context, target Target, state *State) (StopReason, error)
}

// TargetFunc maps a tag to its crawl target
type TargetFunc func(tag string) (Target, error)

// OrchestratorConfig configures an Orchestrator
type OrchestratorConfig struct {
	Runner         Runner
	Checkpoints    Checkpointer
	Targets        TargetFunc
	EmptyPageLimit int
	// Force discards existing checkpoints after backing them up
	Force  bool
	Logger logger.Logger

	OnTagStart func(target Target, resumed int)
	OnTagDone  func(TagResult)
}

// Orchestrator runs tags one after another
type Orchestrator struct {
	cfg    OrchestratorConfig
	logger logger.Logger
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Orchestrator{cfg: cfg, logger: log}
}

// Run crawls every tag in order. Cancellation stops the whole run. Any
// other failure is recorded on that tag's result and the next tag starts;
// the returned error joins all of them.
func (o *Orchestrator) Run(ctx context.Context, tags []string) ([]TagResult, error) {
	results := make([]TagResult, 0, len(tags))
	var failures []error

	for _, tag := range tags {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}

		result := o.runTag(ctx, tag)
		results = append(results, result)
		if o.cfg.OnTagDone != nil {
			o.cfg.OnTagDone(result)
		}

		if result.Reason == StopCancelled {
			o.logger.WithField("tag", tag).Warn("Crawl cancelled, remaining tags skipped")
			failures = append(failures, result.Err)
			break
		}
		if result.Err != nil {
			o.logger.WithError(result.Err).WithField("tag", tag).Error("Tag failed, continuing with next tag")
			failures = append(failures, fmt.Errorf("tag %q: %w", tag, result.Err))
		}
	}

	return results, errors.Join(failures...)
}

func (o *Orchestrator) runTag(ctx context.Context, tag string) TagResult {
	start := time.Now()
	result := TagResult{Tag: tag}
	log := o.logger.WithField("tag", tag)

	fail := func(err error) TagResult {
		result.Err = err
		result.Reason = StopFailed
		if errs.IsCancelled(err) {
			result.Reason = StopCancelled
		}
		result.Duration = time.Since(start)
		return result
	}

	target, err := o.cfg.Targets(tag)
	if err != nil {
		return fail(err)
	}
	result.Scope = target.Dir

	if o.cfg.Force && o.cfg.Checkpoints.Exists(target.Dir) {
		if err := o.cfg.Checkpoints.Backup(target.Dir); err != nil {
			return fail(err)
		}
		if err := o.cfg.Checkpoints.Delete(target.Dir); err != nil {
			return fail(err)
		}
		log.Info("Existing checkpoint discarded")
	}

	rec, err := o.cfg.Checkpoints.Load(target.Dir)
	if err != nil {
		return fail(err)
	}
	state := StateFromRecord(tag, o.cfg.EmptyPageLimit, rec)
	result.Resumed = state.Len()

	logger.LogComponentStart(log, "engine", map[string]interface{}{
		"scope":   target.Dir,
		"query":   target.Query,
		"resumed": result.Resumed,
	})
	if o.cfg.OnTagStart != nil {
		o.cfg.OnTagStart(target, result.Resumed)
	}

	reason, err := o.cfg.Runner.Run(ctx, target, state)

	result.Reason = reason
	result.Err = err
	result.Collected = state.Len()
	result.NewlyAccepted = state.Len() - result.Resumed
	result.LastPage = state.PageNumber
	result.LastProductivePage = state.LastProductivePage
	result.Duration = time.Since(start)

	logger.LogComponentStop(log, "engine", string(reason))
	log.InfoWithFields("Tag finished", map[string]interface{}{
		"collected":            result.Collected,
		"new":                  result.NewlyAccepted,
		"last_productive_page": result.LastProductivePage,
		"duration":             result.Duration,
	})
	return result
}
