package extractor

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/PuerkitoBio/goquery"
)

var danbooruCategories = []string{"artist", "copyright", "character", "general", "meta"}

// Danbooru extracts posts from Danbooru-compatible boards
type Danbooru struct {
	base *url.URL
	// FullImage selects the original file over the resized sample
	FullImage bool
}

// NewDanbooru creates a Danbooru extractor rooted at base
func NewDanbooru(base *url.URL) *Danbooru {
	return &Danbooru{base: base}
}

func (d *Danbooru) Name() string { return "danbooru" }

func (d *Danbooru) SearchURL(query string, page int) string {
	v := url.Values{}
	v.Set("page", strconv.Itoa(page))
	v.Set("tags", query)
	return d.base.String() + "/posts?" + v.Encode()
}

func (d *Danbooru) ListingLinks(doc *goquery.Document, pageURL string) ([]string, bool) {
	containers := doc.Find("div.posts-container")
	if containers.Length() == 0 {
		return nil, false
	}
	return listingLinks(d.base, containers), true
}

func (d *Danbooru) Post(doc *goquery.Document, pageURL string) (*PostCandidate, error) {
	// Full mode never falls back to the sample shown on the page.
	selector, attr := "#image[src]", "src"
	if d.FullImage {
		selector, attr = "#post-info-size a[href]", "href"
	}
	href, ok := doc.Find(selector).First().Attr(attr)
	if !ok || href == "" {
		return nil, nil
	}

	mediaURL, err := resolve(d.base, href)
	if err != nil {
		return nil, fmt.Errorf("danbooru media link: %w", err)
	}
	filename, format, err := mediaName(mediaURL)
	if err != nil {
		return nil, err
	}

	source, _ := doc.Find("#post-info-source a[href]").First().Attr("href")

	tags := make(map[string][]string, len(danbooruCategories))
	for _, category := range danbooruCategories {
		var list []string
		doc.Find("ul." + category + "-tag-list li[data-tag-name]").Each(func(_ int, li *goquery.Selection) {
			if name, ok := li.Attr("data-tag-name"); ok && name != "" {
				list = append(list, name)
			}
		})
		if list == nil {
			list = []string{}
		}
		tags[category+"_tags"] = list
	}

	return &PostCandidate{
		PostURL:           pageURL,
		MediaURL:          mediaURL,
		Format:            format,
		PostID:            afterColon(doc.Find("#post-info-id")),
		Rating:            afterColon(doc.Find("#post-info-rating")),
		SourceURL:         source,
		OriginalFilename:  filename,
		Tags:              tags,
		CharacterCategory: "character_tags",
	}, nil
}
