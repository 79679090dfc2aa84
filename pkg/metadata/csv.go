package metadata

import (
	"encoding/csv"
	"io"
	"sort"
	"strings"
)

// WriteCSV writes one row per document. Tag categories become columns
// holding space separated tags, in a stable order across all rows.
func WriteCSV(w io.Writer, docs []*Document, paths []string) error {
	categorySet := map[string]struct{}{}
	for _, doc := range docs {
		for category := range doc.Tags {
			categorySet[category] = struct{}{}
		}
	}
	categories := make([]string, 0, len(categorySet))
	for category := range categorySet {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	cw := csv.NewWriter(w)
	header := append([]string{"file", "post_id", "rating", "site", "tag", "post_url", "source_url"}, categories...)
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, doc := range docs {
		file := doc.Filename
		if i < len(paths) {
			file = paths[i]
		}
		row := []string{file, doc.PostID, doc.Rating, doc.Site, doc.Tag, doc.PostURL, doc.SourceURL}
		for _, category := range categories {
			row = append(row, strings.Join(doc.Tags[category], " "))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
