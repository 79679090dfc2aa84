package crawler

import (
	"context"
	"io"

	errs "booruscraper/pkg/errors"
	"booruscraper/pkg/extractor"
	"booruscraper/pkg/logger"
	"booruscraper/pkg/metadata"
	"booruscraper/pkg/metrics"
)

// OutcomeKind classifies what happened to one post link
type OutcomeKind int

const (
	NotFound OutcomeKind = iota
	Rejected
	Accepted
)

func (k OutcomeKind) String() string {
	switch k {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return "not_found"
	}
}

// Outcome is the result of processing one post
type Outcome struct {
	Kind OutcomeKind
	// Filename is the media file written, set when Accepted
	Filename string
	// Reason names the failed filter rule or the extraction miss
	Reason string
	Bytes  int64
}

// Pipeline turns one post URL into at most one stored artifact
type Pipeline struct {
	fetcher    Fetcher
	extractor  extractor.Extractor
	filter     Filter
	downloader MediaDownloader
	artifacts  ArtifactStore
	runID      string
	logger     logger.Logger
}

// PipelineConfig holds the pipeline's collaborators
type PipelineConfig struct {
	Fetcher    Fetcher
	Extractor  extractor.Extractor
	Filter     Filter
	Downloader MediaDownloader
	Artifacts  ArtifactStore
	RunID      string
	Logger     logger.Logger
}

// NewPipeline creates a pipeline
func NewPipeline(cfg PipelineConfig) *Pipeline {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Pipeline{
		fetcher:    cfg.Fetcher,
		extractor:  cfg.Extractor,
		filter:     cfg.Filter,
		downloader: cfg.Downloader,
		artifacts:  cfg.Artifacts,
		runID:      cfg.RunID,
		logger:     log,
	}
}

// Process fetches postURL, filters it and on acceptance writes the media
// and its metadata into target. The file number is state.NextSequence();
// the caller records the acceptance. Returned errors are transient fetch
// failures, cancellation or storage failures. Anything else that goes
// wrong with the post is a NotFound outcome.
func (p *Pipeline) Process(ctx context.Context, postURL string, state *State, target Target) (Outcome, error) {
	log := p.logger.WithFields(map[string]interface{}{
		"tag":  target.Tag,
		"post": postURL,
	})

	page, err := p.fetcher.Fetch(ctx, postURL)
	if err != nil {
		if fatalForPost(err) {
			return Outcome{}, err
		}
		log.WithError(err).Debug("Post page unavailable")
		return p.miss(string(errs.TypeOf(err))), nil
	}

	doc, err := page.Document()
	if err != nil {
		log.WithError(err).Debug("Post page unparseable")
		return p.miss("parse"), nil
	}
	pageURL := page.FinalURL
	if pageURL == "" {
		pageURL = postURL
	}
	candidate, err := p.extractor.Post(doc, pageURL)
	if err != nil {
		log.WithError(err).Debug("Post extraction failed")
		return p.miss("extract"), nil
	}
	if candidate == nil {
		log.Debug("No media on post page")
		return p.miss("no_media"), nil
	}
	candidate.PostURL = postURL

	if reason := p.filter.Reason(candidate); reason != "" {
		log.DebugWithFields("Post rejected", map[string]interface{}{
			"reason": reason,
			"format": candidate.Format,
			"rating": candidate.Rating,
		})
		metrics.ObservePost(p.extractor.Name(), Rejected.String())
		return Outcome{Kind: Rejected, Reason: reason}, nil
	}

	filename := ArtifactName(target.Prefix, state.NextSequence(), candidate.Format)
	size, err := p.downloader.Download(ctx, candidate.MediaURL, postURL, func(r io.Reader) (int64, error) {
		return p.artifacts.WriteMedia(target.Dir, filename, r)
	})
	if err != nil {
		if fatalForPost(err) {
			return Outcome{}, err
		}
		log.WithError(err).Warn("Media unavailable")
		return p.miss("media_" + string(errs.TypeOf(err))), nil
	}

	meta := metadata.FromCandidate(p.extractor.Name(), target.Tag, filename, p.runID, candidate)
	if err := p.artifacts.WriteMetadata(target.Dir, filename, meta); err != nil {
		return Outcome{}, err
	}

	metrics.ObservePost(p.extractor.Name(), Accepted.String())
	metrics.ObserveMediaBytes(p.extractor.Name(), size)
	log.InfoWithFields("Post saved", map[string]interface{}{
		"file":   filename,
		"size":   size,
		"rating": candidate.Rating,
	})
	return Outcome{Kind: Accepted, Filename: filename, Bytes: size}, nil
}

func (p *Pipeline) miss(reason string) Outcome {
	metrics.ObservePost(p.extractor.Name(), NotFound.String())
	return Outcome{Kind: NotFound, Reason: reason}
}

// fatalForPost reports errors that must leave the pipeline instead of
// degrading to NotFound.
func fatalForPost(err error) bool {
	return errs.IsCancelled(err) || errs.IsTransient(err) || errs.IsStorage(err)
}
