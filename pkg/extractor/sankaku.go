package extractor

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var sankakuCategories = []string{
	"artist", "copyright", "character", "genre", "fashion", "anatomy", "pose",
	"activity", "entity", "object", "substance", "setting", "general", "meta",
	"automatic",
}

var sankakuRatings = map[string]string{
	"rating-s": "General",
	"rating-q": "Questionable",
	"rating-e": "Explicit",
}

// Sankaku extracts posts from Sankaku Complex
type Sankaku struct {
	base      *url.URL
	FullImage bool
}

// NewSankaku creates a Sankaku extractor rooted at base
func NewSankaku(base *url.URL) *Sankaku {
	return &Sankaku{base: base}
}

func (s *Sankaku) Name() string { return "sankaku" }

func (s *Sankaku) SearchURL(query string, page int) string {
	v := url.Values{}
	v.Set("page", strconv.Itoa(page))
	v.Set("tags", query)
	return s.base.String() + "/en/posts?" + v.Encode()
}

// ListingLinks flattens every posts container on the page into one list.
func (s *Sankaku) ListingLinks(doc *goquery.Document, pageURL string) ([]string, bool) {
	containers := doc.Find("div.posts-container.gap-2")
	if containers.Length() == 0 {
		return nil, false
	}
	return listingLinks(s.base, containers), true
}

func (s *Sankaku) Post(doc *goquery.Document, pageURL string) (*PostCandidate, error) {
	var href string
	var ok bool
	if s.FullImage {
		href, ok = doc.Find("#highres[href]").First().Attr("href")
	} else {
		href, ok = doc.Find("#image-link img[src]").First().Attr("src")
	}
	if !ok || href == "" {
		return nil, nil
	}

	mediaURL, err := resolve(s.base, href)
	if err != nil {
		return nil, fmt.Errorf("sankaku media link: %w", err)
	}
	filename, format, err := mediaName(mediaURL)
	if err != nil {
		return nil, err
	}

	tags := make(map[string][]string, len(sankakuCategories))
	for _, category := range sankakuCategories {
		list := []string{}
		doc.Find("li.tag-type-" + category).Each(func(_ int, li *goquery.Selection) {
			if name := strings.Join(strings.Fields(li.Text()), " "); name != "" {
				list = append(list, name)
			}
		})
		tags[category] = list
	}

	return &PostCandidate{
		PostURL:           pageURL,
		MediaURL:          mediaURL,
		Format:            format,
		PostID:            sankakuPostID(doc),
		Rating:            sankakuRating(doc),
		OriginalFilename:  filename,
		Tags:              tags,
		CharacterCategory: "character",
	}, nil
}

func sankakuRating(doc *goquery.Document) string {
	span := doc.Find("#stats span[class^='rating-']").First()
	class, _ := span.Attr("class")
	fields := strings.Fields(class)
	if len(fields) == 0 {
		return ""
	}
	return sankakuRatings[fields[0]]
}

func sankakuPostID(doc *goquery.Document) string {
	text := strings.TrimSpace(doc.Find("#stats span").First().Text())
	if !strings.HasPrefix(text, "Post ID:") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(text, "Post ID:"))
}
