package metadata

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"booruscraper/pkg/extractor"
)

// Document is the JSON written next to every accepted media file
type Document struct {
	PostID           string              `json:"post_id"`
	Rating           string              `json:"rating"`
	Site             string              `json:"site"`
	PostURL          string              `json:"post_url"`
	MediaURL         string              `json:"media_url"`
	OriginalFilename string              `json:"original_filename"`
	SourceURL        string              `json:"source_url,omitempty"`
	Filename         string              `json:"filename"`
	Tag              string              `json:"tag"`
	Tags             map[string][]string `json:"tags"`
	RunID            string              `json:"run_id,omitempty"`
	DownloadedAt     time.Time           `json:"downloaded_at"`
}

// FromCandidate builds the document for an accepted candidate
func FromCandidate(site, tag, filename, runID string, c *extractor.PostCandidate) *Document {
	tags := c.Tags
	if tags == nil {
		tags = map[string][]string{}
	}
	return &Document{
		PostID:           c.PostID,
		Rating:           c.Rating,
		Site:             site,
		PostURL:          c.PostURL,
		MediaURL:         c.MediaURL,
		OriginalFilename: c.OriginalFilename,
		SourceURL:        c.SourceURL,
		Filename:         filename,
		Tag:              tag,
		Tags:             tags,
		RunID:            runID,
		DownloadedAt:     time.Now().UTC(),
	}
}

// Load reads a metadata document
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata %s: %w", path, err)
	}
	return &doc, nil
}

// Scan loads every metadata document below root. Checkpoint files and
// anything that does not decode as a document are skipped and reported.
func Scan(root string) (docs []*Document, paths []string, skipped []string, err error) {
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || filepath.Ext(path) != ".json" || strings.HasPrefix(d.Name(), "checkpoint.") {
			return nil
		}
		doc, loadErr := Load(path)
		if loadErr != nil || doc.PostURL == "" {
			skipped = append(skipped, path)
			return nil
		}
		docs = append(docs, doc)
		paths = append(paths, path)
		return nil
	})
	return docs, paths, skipped, err
}

// Summary aggregates a set of documents
type Summary struct {
	Total     int
	ByRating  map[string]int
	ByFormat  map[string]int
	TopTags   map[string][]TagCount
	Duplicate []string
}

// TagCount is one entry of a frequency table
type TagCount struct {
	Tag   string
	Count int
}

// Summarize counts ratings, formats and the most frequent tags per
// category. Posts stored more than once are listed in Duplicate.
func Summarize(docs []*Document, top int) *Summary {
	s := &Summary{
		Total:    len(docs),
		ByRating: map[string]int{},
		ByFormat: map[string]int{},
		TopTags:  map[string][]TagCount{},
	}
	counts := map[string]map[string]int{}
	seen := map[string]int{}

	for _, doc := range docs {
		rating := doc.Rating
		if rating == "" {
			rating = "unknown"
		}
		s.ByRating[strings.ToLower(rating)]++
		s.ByFormat[strings.ToLower(strings.TrimPrefix(filepath.Ext(doc.Filename), "."))]++

		seen[doc.PostURL]++
		if seen[doc.PostURL] == 2 {
			s.Duplicate = append(s.Duplicate, doc.PostURL)
		}

		for category, tags := range doc.Tags {
			if counts[category] == nil {
				counts[category] = map[string]int{}
			}
			for _, tag := range tags {
				counts[category][tag]++
			}
		}
	}

	for category, freq := range counts {
		list := make([]TagCount, 0, len(freq))
		for tag, n := range freq {
			list = append(list, TagCount{Tag: tag, Count: n})
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].Count != list[j].Count {
				return list[i].Count > list[j].Count
			}
			return list[i].Tag < list[j].Tag
		})
		if top > 0 && len(list) > top {
			list = list[:top]
		}
		s.TopTags[category] = list
	}
	sort.Strings(s.Duplicate)
	return s
}
