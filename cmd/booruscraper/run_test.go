package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"booruscraper/pkg/checkpoint"
	"booruscraper/pkg/config"
	"booruscraper/pkg/crawler"
	"booruscraper/pkg/logger"
	"booruscraper/pkg/metadata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBoard serves a small Danbooru-style board: two listing pages, then an
// empty result page without a posts container.
type fakeBoard struct {
	mu      sync.Mutex
	ratings map[int]string
	pages   [][]int
	listed  []string
}

func newFakeBoard() *fakeBoard {
	return &fakeBoard{
		ratings: map[int]string{1: "General", 2: "General", 3: "Explicit", 4: "General"},
		pages:   [][]int{{1, 2, 3}, {4}},
	}
}

func (b *fakeBoard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/posts":
		b.mu.Lock()
		b.listed = append(b.listed, r.URL.Query().Get("page"))
		b.mu.Unlock()

		var page int
		fmt.Sscan(r.URL.Query().Get("page"), &page)
		if page < 1 || page > len(b.pages) {
			fmt.Fprint(w, `<html><body><p>No posts found.</p></body></html>`)
			return
		}
		var sb strings.Builder
		sb.WriteString(`<html><body><div class="posts-container">`)
		for _, id := range b.pages[page-1] {
			fmt.Fprintf(&sb, `<article><a href="/posts/%d"><img src="/t/%d.jpg"></a></article>`, id, id)
		}
		sb.WriteString(`</div></body></html>`)
		fmt.Fprint(w, sb.String())

	case strings.HasPrefix(r.URL.Path, "/posts/"):
		var id int
		fmt.Sscan(strings.TrimPrefix(r.URL.Path, "/posts/"), &id)
		rating, ok := b.ratings[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `<html><body>
<ul class="character-tag-list"><li data-tag-name="hakurei_reimu">hakurei reimu</li></ul>
<ul class="copyright-tag-list"><li data-tag-name="touhou">touhou</li></ul>
<section id="post-information"><ul>
  <li id="post-info-id">ID: %d</li>
  <li id="post-info-size">Size: <a href="/data/%d.png">1 KB .png</a></li>
  <li id="post-info-rating">Rating: %s</li>
</ul></section>
<img id="image" src="/sample/%d.jpg">
</body></html>`, id, id, rating, id)

	case strings.HasPrefix(r.URL.Path, "/data/"):
		w.Header().Set("Content-Type", "image/png")
		fmt.Fprint(w, "png:"+r.URL.Path)

	default:
		http.NotFound(w, r)
	}
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Site.BaseURL = baseURL
	cfg.Crawl.Tags = []string{"touhou"}
	cfg.Filter.Ratings = []string{"general"}
	cfg.Fetcher.Backend = config.BackendHTTP
	cfg.Fetcher.SettleDelay = 0
	cfg.Fetcher.RestartDelay = 0
	cfg.Fetcher.NavigationTimeout = 5 * time.Second
	cfg.Fetcher.RequestsPerMinute = 60000
	cfg.Fetcher.BurstSize = 100
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Retry.MaxDelay = 10 * time.Millisecond
	cfg.Output.BaseDirectory = t.TempDir()
	cfg.Output.MetadataDir = "labels"
	return cfg
}

func TestCrawlRunEndToEnd(t *testing.T) {
	board := newFakeBoard()
	srv := httptest.NewServer(board)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	var pages []crawler.PageReport
	run, err := newCrawlRun(cfg, "run-1", logger.NewNopLogger(), runHooks{
		OnPage: func(r crawler.PageReport) { pages = append(pages, r) },
	})
	require.NoError(t, err)
	defer run.Close()

	results, err := run.orchestrator.Run(context.Background(), cfg.Crawl.Tags)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, crawler.StopEndOfListing, results[0].Reason)
	assert.Equal(t, 3, results[0].NewlyAccepted)
	assert.Equal(t, []string{"1", "2", "3"}, board.listed)
	assert.Len(t, pages, 2)

	scope := filepath.Join(cfg.Output.BaseDirectory, "danbooru_touhou_general")
	for i, id := range []int{1, 2, 4} {
		name := fmt.Sprintf("touhou_%05d.png", i+1)
		body, err := os.ReadFile(filepath.Join(scope, name))
		require.NoError(t, err, name)
		assert.Equal(t, fmt.Sprintf("png:/data/%d.png", id), string(body))

		doc, err := metadata.Load(filepath.Join(scope, "labels", fmt.Sprintf("touhou_%05d.json", i+1)))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(id), doc.PostID)
		assert.Equal(t, "run-1", doc.RunID)
		assert.Equal(t, []string{"hakurei_reimu"}, doc.Tags["character_tags"])
	}

	rec, err := checkpoint.NewStore(nil).Load(scope)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{srv.URL + "/posts/1", srv.URL + "/posts/2", srv.URL + "/posts/4"}, rec.Collected)
	assert.Equal(t, 2, rec.LastProductivePage)

	files, _ := run.store.Stats()
	assert.Equal(t, 3, files)
}

func TestCrawlRunResumesWithoutDuplicates(t *testing.T) {
	srv := httptest.NewServer(newFakeBoard())
	defer srv.Close()
	cfg := testConfig(t, srv.URL)

	first, err := newCrawlRun(cfg, "run-1", logger.NewNopLogger(), runHooks{})
	require.NoError(t, err)
	_, err = first.orchestrator.Run(context.Background(), cfg.Crawl.Tags)
	require.NoError(t, err)
	first.Close()

	// one more post appears on the first page
	board := newFakeBoard()
	board.ratings[5] = "General"
	board.pages[0] = append([]int{5}, board.pages[0]...)
	srv.Config.Handler = board

	second, err := newCrawlRun(cfg, "run-2", logger.NewNopLogger(), runHooks{})
	require.NoError(t, err)
	defer second.Close()
	results, err := second.orchestrator.Run(context.Background(), cfg.Crawl.Tags)
	require.NoError(t, err)

	assert.Equal(t, 3, results[0].Resumed)
	assert.Equal(t, 1, results[0].NewlyAccepted)

	scope := filepath.Join(cfg.Output.BaseDirectory, "danbooru_touhou_general")
	body, err := os.ReadFile(filepath.Join(scope, "touhou_00004.png"))
	require.NoError(t, err)
	assert.Equal(t, "png:/data/5.png", string(body))
	_, err = os.Stat(filepath.Join(scope, "touhou_00005.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestCrawlRunRejectsUnknownSite(t *testing.T) {
	cfg := testConfig(t, "https://board.test")
	cfg.Site.Name = "gelbooru"

	_, err := newCrawlRun(cfg, "run", logger.NewNopLogger(), runHooks{})
	assert.Error(t, err)
}

func TestMetricsFailureDoesNotCancelCrawl(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	log := logger.NewTestLogger()
	err = runWithMetrics(context.Background(), busy.Addr().String(), log, func(ctx context.Context) error {
		assert.Eventually(t, func() bool {
			return len(log.GetMessagesByLevel("WARN")) > 0
		}, 2*time.Second, 10*time.Millisecond)
		return ctx.Err()
	})

	assert.NoError(t, err)
	warnings := log.GetMessagesByLevel("WARN")
	require.Len(t, warnings, 1)
	assert.Equal(t, "Metrics server stopped", warnings[0].Message)
	assert.Error(t, warnings[0].Error)
}

func TestMetricsServerStopsWithCrawl(t *testing.T) {
	log := logger.NewTestLogger()
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := runWithMetrics(context.Background(), "127.0.0.1:0", log, func(context.Context) error {
			return nil
		})
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server kept running after the crawl returned")
	}
	assert.Empty(t, log.GetMessagesByLevel("WARN"))
}
