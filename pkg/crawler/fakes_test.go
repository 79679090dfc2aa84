package crawler

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"booruscraper/internal/downloader"
	"booruscraper/pkg/checkpoint"
	errs "booruscraper/pkg/errors"
	"booruscraper/pkg/extractor"
	"booruscraper/pkg/fetcher"
	"booruscraper/pkg/retry"

	"github.com/PuerkitoBio/goquery"
)

// fakeFetcher serves every URL with an empty document. failures holds how
// many transient errors a URL returns before succeeding.
type fakeFetcher struct {
	mu       sync.Mutex
	visited  []string
	failures map[string]int
	statuses map[string]int
	restarts int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{failures: map[string]int{}, statuses: map[string]int{}}
}

func (f *fakeFetcher) Fetch(ctx context.Context, u string) (*fetcher.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.visited = append(f.visited, u)
	if f.failures[u] > 0 {
		f.failures[u]--
		return nil, errs.New(errs.ErrorTypeTimeout, "navigation timed out: "+u)
	}
	if code := f.statuses[u]; code != 0 {
		return nil, errs.FromStatus(code, u)
	}
	return &fetcher.Page{URL: u, FinalURL: u, HTML: "<html><body></body></html>", Status: 200}, nil
}

func (f *fakeFetcher) Restart(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
	return nil
}

// fakeExtractor answers listings from a page function and posts from a map
type fakeExtractor struct {
	listing func(page int) ([]string, bool)
	posts   map[string]*extractor.PostCandidate
	postErr map[string]error
}

func (x *fakeExtractor) Name() string { return "testbooru" }

func (x *fakeExtractor) SearchURL(query string, page int) string {
	return "https://board.test/posts?" + url.Values{"page": {strconv.Itoa(page)}, "tags": {query}}.Encode()
}

func (x *fakeExtractor) ListingLinks(_ *goquery.Document, pageURL string) ([]string, bool) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, false
	}
	page, _ := strconv.Atoi(u.Query().Get("page"))
	return x.listing(page)
}

func (x *fakeExtractor) Post(_ *goquery.Document, pageURL string) (*extractor.PostCandidate, error) {
	if err := x.postErr[pageURL]; err != nil {
		return nil, err
	}
	c, ok := x.posts[pageURL]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// pagesOf builds a listing where page n returns pages[n-1] and anything
// past the end has no listing container.
func pagesOf(pages ...[]string) func(int) ([]string, bool) {
	return func(page int) ([]string, bool) {
		if page < 1 || page > len(pages) {
			return nil, false
		}
		return pages[page-1], true
	}
}

func links(prefix string, ids ...int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = fmt.Sprintf("https://board.test/posts/%s%d", prefix, id)
	}
	return out
}

// fakeProcessor decides outcomes per link without touching the network
type fakeProcessor struct {
	mu      sync.Mutex
	calls   []string
	seqs    []int
	decide  func(ctx context.Context, link string, call int) (Outcome, error)
	accepts map[string]bool
}

func (p *fakeProcessor) Process(ctx context.Context, link string, state *State, target Target) (Outcome, error) {
	p.mu.Lock()
	p.calls = append(p.calls, link)
	p.seqs = append(p.seqs, state.NextSequence())
	call := len(p.calls)
	p.mu.Unlock()

	if p.decide != nil {
		return p.decide(ctx, link, call)
	}
	if p.accepts == nil || p.accepts[link] {
		return Outcome{Kind: Accepted, Filename: ArtifactName(target.Prefix, state.NextSequence(), "jpg")}, nil
	}
	return Outcome{Kind: Rejected, Reason: "rating"}, nil
}

// memStore keeps checkpoint records in memory and remembers every save
type memStore struct {
	mu      sync.Mutex
	records map[string]*checkpoint.Record
	history map[string][][]string
	backups map[string]int
	failFor map[string]error
	events  *[]string
}

func newMemStore() *memStore {
	return &memStore{
		records: map[string]*checkpoint.Record{},
		history: map[string][][]string{},
		backups: map[string]int{},
		failFor: map[string]error{},
	}
}

func (s *memStore) Load(scope string) (*checkpoint.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[scope]
	if !ok {
		return nil, nil
	}
	cp := *rec
	cp.Collected = append([]string(nil), rec.Collected...)
	return &cp, nil
}

func (s *memStore) Save(scope string, rec *checkpoint.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor[scope]; err != nil {
		return err
	}
	cp := *rec
	cp.Collected = append([]string(nil), rec.Collected...)
	s.records[scope] = &cp
	s.history[scope] = append(s.history[scope], cp.Collected)
	if s.events != nil {
		*s.events = append(*s.events, fmt.Sprintf("checkpoint %d", len(cp.Collected)))
	}
	return nil
}

func (s *memStore) Backup(scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backups[scope]++
	return nil
}

func (s *memStore) Delete(scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, scope)
	return nil
}

func (s *memStore) Exists(scope string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[scope]
	return ok
}

// fakeDownloader serves media bodies from a map of URL to content
type fakeDownloader struct {
	bodies map[string]string
	errFor map[string]error
}

func (d *fakeDownloader) Download(_ context.Context, mediaURL, _ string, write downloader.WriteFunc) (int64, error) {
	if err := d.errFor[mediaURL]; err != nil {
		return 0, err
	}
	body, ok := d.bodies[mediaURL]
	if !ok {
		return 0, errs.FromStatus(404, mediaURL)
	}
	return write(strings.NewReader(body))
}

// recordingArtifacts logs writes into a shared event list
type recordingArtifacts struct {
	events  *[]string
	failErr error
}

func (a *recordingArtifacts) WriteMedia(_, filename string, r io.Reader) (int64, error) {
	if a.failErr != nil {
		return 0, a.failErr
	}
	n, err := io.Copy(io.Discard, r)
	*a.events = append(*a.events, "media "+filename)
	return n, err
}

func (a *recordingArtifacts) WriteMetadata(_, mediaFilename string, _ interface{}) error {
	*a.events = append(*a.events, "metadata "+mediaFilename)
	return nil
}

func fastSupervisor(session Restarter) *Supervisor {
	return NewSupervisor(session, SupervisorConfig{
		Backoff: &retry.ConstantBackoff{},
	})
}

func testTarget() Target {
	return Target{Tag: "touhou", Query: "touhou", Dir: "/scope/touhou", Prefix: "touhou"}
}

func newTestEngine(f *fakeFetcher, x *fakeExtractor, p Processor, store CheckpointStore, opts EngineOptions) *Engine {
	return NewEngine(EngineConfig{
		Fetcher:     f,
		Extractor:   x,
		Processor:   p,
		Checkpoints: store,
		Supervisor:  fastSupervisor(f),
		Options:     opts,
	})
}

// listingPages returns the page numbers fetched, in order
func listingPages(f *fakeFetcher) []int {
	var pages []int
	for _, v := range f.visited {
		u, err := url.Parse(v)
		if err != nil || u.Path != "/posts" {
			continue
		}
		n, _ := strconv.Atoi(u.Query().Get("page"))
		pages = append(pages, n)
	}
	return pages
}
