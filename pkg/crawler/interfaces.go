package crawler

import (
	"context"
	"io"

	"booruscraper/internal/downloader"
	"booruscraper/pkg/checkpoint"
	"booruscraper/pkg/extractor"
	"booruscraper/pkg/fetcher"
)

// Fetcher loads listing and post pages
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Page, error)
}

// Restarter can replace a broken fetcher session
type Restarter interface {
	Restart(ctx context.Context) error
}

// CheckpointStore persists per-scope progress
type CheckpointStore interface {
	Load(scope string) (*checkpoint.Record, error)
	Save(scope string, rec *checkpoint.Record) error
}

// ArtifactStore writes media files and their metadata documents
type ArtifactStore interface {
	WriteMedia(scopeDir, filename string, r io.Reader) (int64, error)
	WriteMetadata(scopeDir, mediaFilename string, doc interface{}) error
}

// MediaDownloader streams a media URL into a writer
type MediaDownloader interface {
	Download(ctx context.Context, mediaURL, referer string, write downloader.WriteFunc) (int64, error)
}

// Filter decides whether a candidate is kept
type Filter interface {
	Reason(c *extractor.PostCandidate) string
}
