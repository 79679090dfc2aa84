package extractor

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

const danbooruListing = `<html><body>
<div class="posts-container">
  <article id="post_1"><a href="/posts/1?q=touhou"><img src="/t/1.jpg"></a></article>
  <article id="post_2"><a href="/posts/2?q=touhou"><img src="/t/2.jpg"></a></article>
  <article id="post_3"><span>deleted</span></article>
</div>
</body></html>`

const danbooruPost = `<html><body>
<section id="content">
  <img id="image" src="https://cdn.donmai.us/sample/ab/cd/sample-abcd.jpg">
</section>
<section id="post-information"><ul>
  <li id="post-info-id">ID: 4242</li>
  <li id="post-info-size">Size: <a href="https://cdn.donmai.us/original/ab/cd/abcd.PNG?download=1">1.2 MB .png</a> (800x600)</li>
  <li id="post-info-source">Source: <a href="https://pixiv.net/artworks/9">pixiv.net/artworks/9</a></li>
  <li id="post-info-rating">Rating: Sensitive</li>
</ul></section>
<ul class="artist-tag-list"><li data-tag-name="zun">zun</li></ul>
<ul class="copyright-tag-list"><li data-tag-name="touhou">touhou</li></ul>
<ul class="character-tag-list">
  <li data-tag-name="hakurei_reimu">hakurei reimu</li>
  <li data-tag-name="kirisame_marisa">kirisame marisa</li>
</ul>
<ul class="general-tag-list"><li data-tag-name="1girl"></li><li>no attr</li></ul>
</body></html>`

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		opts QueryOptions
		want string
	}{
		{"plain", "hatsune_miku", QueryOptions{}, "hatsune_miku"},
		{"exclusions", "hatsune_miku", QueryOptions{ExcludeTags: []string{"holostars", ""}}, "hatsune_miku -holostars"},
		{"rating", "touhou", QueryOptions{Rating: "General"}, "touhou rating:general"},
		{"ai only", "touhou", QueryOptions{AI: "only"}, "touhou ai-created"},
		{"ai exclude", "touhou", QueryOptions{AI: "exclude"}, "touhou -ai-created"},
		{"multi word", "touhou  1girl", QueryOptions{ExcludeTags: []string{"1girl"}}, "touhou 1girl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildQuery(tt.tag, tt.opts))
		})
	}
}

func TestNew(t *testing.T) {
	e, err := New("Danbooru", "https://danbooru.donmai.us/", true)
	require.NoError(t, err)
	assert.Equal(t, "danbooru", e.Name())
	assert.True(t, e.(*Danbooru).FullImage)

	e, err = New("sankaku", "https://chan.sankakucomplex.com", false)
	require.NoError(t, err)
	assert.Equal(t, "sankaku", e.Name())

	_, err = New("gelbooru", "https://gelbooru.com", false)
	assert.Error(t, err)
	_, err = New("danbooru", "not a url", false)
	assert.Error(t, err)
}

func TestDanbooruSearchURL(t *testing.T) {
	d := NewDanbooru(mustURL(t, "https://danbooru.donmai.us"))
	assert.Equal(t,
		"https://danbooru.donmai.us/posts?page=3&tags=touhou+-holostars",
		d.SearchURL("touhou -holostars", 3))
}

func TestDanbooruListing(t *testing.T) {
	d := NewDanbooru(mustURL(t, "https://danbooru.donmai.us"))

	links, found := d.ListingLinks(parse(t, danbooruListing), "")
	assert.True(t, found)
	assert.Equal(t, []string{
		"https://danbooru.donmai.us/posts/1?q=touhou",
		"https://danbooru.donmai.us/posts/2?q=touhou",
	}, links)

	links, found = d.ListingLinks(parse(t, `<html><body><p>Nobody here but us chickens!</p></body></html>`), "")
	assert.False(t, found)
	assert.Empty(t, links)

	links, found = d.ListingLinks(parse(t, `<div class="posts-container"></div>`), "")
	assert.True(t, found, "an empty container is a page, not the end")
	assert.Empty(t, links)
}

func TestDanbooruPost(t *testing.T) {
	base := mustURL(t, "https://danbooru.donmai.us")

	t.Run("sample", func(t *testing.T) {
		post, err := NewDanbooru(base).Post(parse(t, danbooruPost), "https://danbooru.donmai.us/posts/4242")
		require.NoError(t, err)
		require.NotNil(t, post)

		assert.Equal(t, "https://cdn.donmai.us/sample/ab/cd/sample-abcd.jpg", post.MediaURL)
		assert.Equal(t, "jpg", post.Format)
		assert.Equal(t, "sample-abcd.jpg", post.OriginalFilename)
		assert.Equal(t, "4242", post.PostID)
		assert.Equal(t, "Sensitive", post.Rating)
		assert.Equal(t, "https://pixiv.net/artworks/9", post.SourceURL)
		assert.Equal(t, "https://danbooru.donmai.us/posts/4242", post.PostURL)
		assert.Equal(t, []string{"hakurei_reimu", "kirisame_marisa"}, post.Characters())
		assert.Equal(t, []string{"1girl"}, post.Tags["general_tags"])
		assert.Equal(t, []string{}, post.Tags["meta_tags"])
	})

	t.Run("full image", func(t *testing.T) {
		d := NewDanbooru(base)
		d.FullImage = true
		post, err := d.Post(parse(t, danbooruPost), "https://danbooru.donmai.us/posts/4242")
		require.NoError(t, err)
		assert.Equal(t, "png", post.Format)
		assert.Equal(t, "abcd.PNG", post.OriginalFilename)
	})

	t.Run("full image without size link", func(t *testing.T) {
		d := NewDanbooru(base)
		d.FullImage = true
		post, err := d.Post(parse(t, `<img id="image" src="/sample/sample-abc.jpg">`), "p")
		assert.NoError(t, err)
		assert.Nil(t, post)
	})

	t.Run("relative media", func(t *testing.T) {
		post, err := NewDanbooru(base).Post(parse(t, `<img id="image" src="/data/x.webm">`), "p")
		require.NoError(t, err)
		assert.Equal(t, "https://danbooru.donmai.us/data/x.webm", post.MediaURL)
		assert.Equal(t, "webm", post.Format)
	})

	t.Run("no media", func(t *testing.T) {
		post, err := NewDanbooru(base).Post(parse(t, `<p>This post was deleted</p>`), "p")
		assert.NoError(t, err)
		assert.Nil(t, post)
	})
}

const sankakuListing = `<html><body>
<div class="posts-container gap-2">
  <article><a href="/en/posts/aaa"><img></a></article>
  <article><a href="/en/posts/bbb"><img></a></article>
</div>
<div class="posts-container gap-2">
  <article><a href="/en/posts/ccc"><img></a></article>
</div>
<div class="posts-container"><article><a href="/en/posts/ignored"></a></article></div>
</body></html>`

const sankakuPost = `<html><body>
<div id="stats"><ul>
  <li><span>Post ID: 31337</span></li>
  <li>Rating: <span class="rating-q">Questionable</span></li>
</ul></div>
<a id="image-link"><img src="//s.sankakucomplex.com/data/sample/12/34/sample-1234.jpg?e=1&m=x"></a>
<a id="highres" href="//s.sankakucomplex.com/data/12/34/1234.mp4?e=1">Original</a>
<ul>
  <li class="tag-type-character">  hatsune   miku </li>
  <li class="tag-type-character">kagamine rin</li>
  <li class="tag-type-copyright">vocaloid</li>
</ul>
</body></html>`

func TestSankakuListingFlattensContainers(t *testing.T) {
	s := NewSankaku(mustURL(t, "https://chan.sankakucomplex.com"))
	links, found := s.ListingLinks(parse(t, sankakuListing), "")
	assert.True(t, found)
	assert.Equal(t, []string{
		"https://chan.sankakucomplex.com/en/posts/aaa",
		"https://chan.sankakucomplex.com/en/posts/bbb",
		"https://chan.sankakucomplex.com/en/posts/ccc",
	}, links)
	assert.Equal(t,
		"https://chan.sankakucomplex.com/en/posts?page=1&tags=miku+-ai-created",
		s.SearchURL("miku -ai-created", 1))
}

func TestSankakuPost(t *testing.T) {
	base := mustURL(t, "https://chan.sankakucomplex.com")

	post, err := NewSankaku(base).Post(parse(t, sankakuPost), "https://chan.sankakucomplex.com/en/posts/aaa")
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Equal(t, "https://s.sankakucomplex.com/data/sample/12/34/sample-1234.jpg?e=1&m=x", post.MediaURL)
	assert.Equal(t, "jpg", post.Format)
	assert.Equal(t, "sample-1234.jpg", post.OriginalFilename)
	assert.Equal(t, "31337", post.PostID)
	assert.Equal(t, "Questionable", post.Rating)
	assert.Equal(t, []string{"hatsune miku", "kagamine rin"}, post.Characters())
	assert.Equal(t, []string{"vocaloid"}, post.Tags["copyright"])
	assert.Len(t, post.Tags, len(sankakuCategories))

	full := NewSankaku(base)
	full.FullImage = true
	post, err = full.Post(parse(t, sankakuPost), "p")
	require.NoError(t, err)
	assert.Equal(t, "mp4", post.Format)

	post, err = NewSankaku(base).Post(parse(t, `<div id="stats"></div>`), "p")
	assert.NoError(t, err)
	assert.Nil(t, post)
}
