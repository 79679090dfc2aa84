// Package extractor turns rendered board pages into post links and post
// candidates.
//
// One Extractor exists per supported site. All of them share the same
// contract so the crawl engine never looks at markup itself.
package extractor

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PostCandidate is everything the filter and the artifact writer need to
// know about one post.
type PostCandidate struct {
	PostURL          string
	MediaURL         string
	Format           string
	PostID           string
	Rating           string
	SourceURL        string
	OriginalFilename string
	// Tags maps a site category name to the tags in it
	Tags map[string][]string
	// CharacterCategory names the key of Tags holding character tags
	CharacterCategory string
}

// Characters returns the candidate's character tags
func (c *PostCandidate) Characters() []string {
	if c.Tags == nil {
		return nil
	}
	return c.Tags[c.CharacterCategory]
}

// Extractor understands one site's markup
type Extractor interface {
	// Name is the site identifier used in directory names and metadata
	Name() string
	// SearchURL returns the listing URL for a search query and 1-based page
	SearchURL(query string, page int) string
	// ListingLinks returns absolute post URLs in page order. found is false
	// when the page has no listing container at all, which marks the end of
	// the listing.
	ListingLinks(doc *goquery.Document, pageURL string) (links []string, found bool)
	// Post extracts the post on a post page. It returns nil, nil when the
	// page carries no media element.
	Post(doc *goquery.Document, pageURL string) (*PostCandidate, error)
}

// QueryOptions decorates the user's tag into a site search query
type QueryOptions struct {
	ExcludeTags []string
	// Rating is added as a rating: term when non-empty
	Rating string
	// AI is one of "", "any", "exclude" or "only"
	AI string
}

// BuildQuery joins the tag with its decorations into a single search
// string. Terms are space separated; the site URL encodes them.
func BuildQuery(tag string, opts QueryOptions) string {
	terms := strings.Fields(tag)
	for _, ex := range opts.ExcludeTags {
		ex = strings.TrimSpace(ex)
		if ex == "" || containsTerm(terms, ex) {
			continue
		}
		terms = append(terms, "-"+ex)
	}
	if opts.Rating != "" {
		terms = append(terms, "rating:"+strings.ToLower(opts.Rating))
	}
	switch opts.AI {
	case "exclude":
		terms = append(terms, "-ai-created")
	case "only":
		terms = append(terms, "ai-created")
	}
	return strings.Join(terms, " ")
}

func containsTerm(terms []string, term string) bool {
	for _, t := range terms {
		if t == term {
			return true
		}
	}
	return false
}

// New returns the extractor for a site. fullImage selects original files
// instead of the resized samples the post page displays.
func New(site, baseURL string, fullImage bool) (Extractor, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	switch strings.ToLower(site) {
	case "danbooru":
		d := NewDanbooru(base)
		d.FullImage = fullImage
		return d, nil
	case "sankaku":
		s := NewSankaku(base)
		s.FullImage = fullImage
		return s, nil
	default:
		return nil, fmt.Errorf("no extractor for site %q", site)
	}
}

// resolve makes href absolute against base, accepting protocol-relative
// links such as //s.example.com/a.jpg.
func resolve(base *url.URL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("empty link")
	}
	u, err := base.Parse(href)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", href, err)
	}
	return u.String(), nil
}

// mediaName returns the file name and lower-cased extension of a media URL,
// ignoring any query string.
func mediaName(mediaURL string) (filename, format string, err error) {
	u, err := url.Parse(mediaURL)
	if err != nil {
		return "", "", fmt.Errorf("parse media URL: %w", err)
	}
	filename = path.Base(u.Path)
	if filename == "." || filename == "/" {
		return "", "", fmt.Errorf("media URL %q has no file name", mediaURL)
	}
	ext := path.Ext(filename)
	return filename, strings.ToLower(strings.TrimPrefix(ext, ".")), nil
}

// afterColon returns the text following the first ": ", as used in the
// "ID: 123" style info rows.
func afterColon(s *goquery.Selection) string {
	text := strings.TrimSpace(s.First().Text())
	if i := strings.Index(text, ": "); i >= 0 {
		return strings.TrimSpace(text[i+2:])
	}
	return ""
}

// listingLinks collects the first link of every article in the matched
// containers.
func listingLinks(base *url.URL, containers *goquery.Selection) []string {
	var links []string
	containers.Each(func(_ int, c *goquery.Selection) {
		c.Find("article").Each(func(_ int, article *goquery.Selection) {
			href, ok := article.Find("a[href]").First().Attr("href")
			if !ok {
				return
			}
			abs, err := resolve(base, href)
			if err != nil {
				return
			}
			links = append(links, abs)
		})
	})
	return links
}
