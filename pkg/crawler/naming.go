package crawler

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"booruscraper/pkg/config"
	"booruscraper/pkg/extractor"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.()\-]+`)

// Target is where and how one tag is crawled
type Target struct {
	Tag string
	// Query is the decorated search string sent to the site
	Query string
	// Dir is the absolute scope directory holding media, metadata and the
	// checkpoint
	Dir string
	// Prefix starts every artifact file name
	Prefix string
}

// ArtifactName returns {prefix}_{seq:05d}.{format}
func ArtifactName(prefix string, seq int, format string) string {
	return fmt.Sprintf("%s_%05d.%s", prefix, seq, format)
}

// FilePrefix derives the artifact prefix from a tag: its first search term
// with characters unsafe in file names replaced.
func FilePrefix(tag string) string {
	fields := strings.Fields(strings.ReplaceAll(tag, "+", " "))
	if len(fields) == 0 {
		return "post"
	}
	prefix := strings.Trim(unsafeChars.ReplaceAllString(fields[0], "_"), "._")
	if prefix == "" {
		return "post"
	}
	return prefix
}

// DatasetName is the output directory name for a run. An explicit dataset
// wins; otherwise the name encodes the site, first tag and filter options.
func DatasetName(cfg *config.Config) string {
	if cfg.Output.Dataset != "" {
		return cfg.Output.Dataset
	}

	tag := "untagged"
	if len(cfg.Crawl.Tags) > 0 {
		tag = FilePrefix(cfg.Crawl.Tags[0])
	}
	parts := []string{cfg.Site.Name, tag}
	if len(cfg.Filter.Ratings) > 0 {
		ratings := make([]string, len(cfg.Filter.Ratings))
		for i, r := range cfg.Filter.Ratings {
			ratings[i] = strings.ToLower(r)
		}
		parts = append(parts, strings.Join(ratings, "_"))
	}
	if cfg.Output.Sample {
		parts = append(parts, "sample")
	}
	if cfg.Filter.SingleCharacter {
		parts = append(parts, "single-character")
	}
	switch cfg.Filter.Media {
	case config.MediaWithVideo:
		parts = append(parts, "with-video")
	case config.MediaVideoOnly:
		parts = append(parts, "video-only")
	}
	name := unsafeChars.ReplaceAllString(strings.Join(parts, "_"), "_")

	switch cfg.Search.AI {
	case config.AIExclude:
		name = filepath.Join(name, "no_ai")
	case config.AIOnly:
		name = filepath.Join(name, "ai_only")
	}
	return name
}

// ScopeResolver maps a relative scope to an absolute directory
type ScopeResolver interface {
	Resolve(scope string) (string, error)
}

// Planner turns configured tags into crawl targets
type Planner struct {
	dataset  string
	perTag   bool
	query    extractor.QueryOptions
	resolver ScopeResolver
}

// NewPlanner prepares targets for cfg. Runs with several tags give each
// tag its own subdirectory of the dataset.
func NewPlanner(cfg *config.Config, resolver ScopeResolver) *Planner {
	q := extractor.QueryOptions{
		ExcludeTags: cfg.Search.ExcludeTags,
		AI:          cfg.Search.AI,
	}
	if len(cfg.Filter.Ratings) == 1 {
		q.Rating = cfg.Filter.Ratings[0]
	}
	return &Planner{
		dataset:  DatasetName(cfg),
		perTag:   len(cfg.Crawl.Tags) > 1,
		query:    q,
		resolver: resolver,
	}
}

// Target builds the target for tag
func (p *Planner) Target(tag string) (Target, error) {
	scope := p.dataset
	if p.perTag {
		scope = filepath.Join(scope, unsafeChars.ReplaceAllString(tag, "_"))
	}
	dir, err := p.resolver.Resolve(scope)
	if err != nil {
		return Target{}, fmt.Errorf("resolve scope for %q: %w", tag, err)
	}
	return Target{
		Tag:    tag,
		Query:  extractor.BuildQuery(tag, p.query),
		Dir:    dir,
		Prefix: FilePrefix(tag),
	}, nil
}
