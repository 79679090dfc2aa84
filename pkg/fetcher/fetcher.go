package fetcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"booruscraper/pkg/config"
	errs "booruscraper/pkg/errors"
	"booruscraper/pkg/logger"
	"booruscraper/pkg/ratelimit"

	"github.com/PuerkitoBio/goquery"
)

// DefaultUserAgent is sent when the configuration leaves it empty
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// Page is a fetched document
type Page struct {
	URL      string
	FinalURL string
	HTML     string
	// Status is 0 when the backend could not observe it
	Status int
}

// Document parses the page HTML
func (p *Page) Document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, "parse "+p.URL, err)
	}
	return doc, nil
}

// Fetcher loads pages for the crawl engine
type Fetcher interface {
	// Fetch navigates to url and returns the rendered page
	Fetch(ctx context.Context, url string) (*Page, error)
	// Restart tears down the session and starts a fresh one
	Restart(ctx context.Context) error
	// Close releases the session
	Close() error
}

// Backend is one page loading technology
type Backend interface {
	Name() string
	Open(ctx context.Context) error
	Navigate(ctx context.Context, url string) (*Page, error)
	Close() error
}

// Options tune a Session
type Options struct {
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	Limiter           ratelimit.Limiter
	Logger            logger.Logger
}

// Session wraps a Backend with rate limiting, timeouts and error
// classification. The backend is opened lazily on first use.
type Session struct {
	backend Backend
	opts    Options
	log     logger.Logger

	mu   sync.Mutex
	open bool
}

// NewSession creates a session around backend
func NewSession(backend Backend, opts Options) *Session {
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Unlimited{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	return &Session{
		backend: backend,
		opts:    opts,
		log:     opts.Logger.WithField("backend", backend.Name()),
	}
}

// New builds the session for the configured backend
func New(cfg *config.FetcherConfig, log logger.Logger) (*Session, error) {
	var cookies []*http.Cookie
	if cfg.CookieFile != "" {
		loaded, err := LoadCookieFile(cfg.CookieFile)
		if err != nil {
			return nil, err
		}
		cookies = loaded
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	var backend Backend
	switch cfg.Backend {
	case config.BackendRod, "":
		backend = NewRod(RodConfig{
			Headless:   cfg.Headless,
			BrowserBin: cfg.BrowserBin,
			UserAgent:  ua,
			Cookies:    cookies,
		})
	case config.BackendChromedp:
		backend = NewChromedp(ChromedpConfig{
			Headless:   cfg.Headless,
			BrowserBin: cfg.BrowserBin,
			UserAgent:  ua,
			Cookies:    cookies,
		})
	case config.BackendHTTP:
		backend = NewHTTP(HTTPConfig{
			UserAgent: ua,
			Cookies:   cookies,
			Timeout:   cfg.NavigationTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown fetcher backend %q", cfg.Backend)
	}

	return NewSession(backend, Options{
		NavigationTimeout: cfg.NavigationTimeout,
		SettleDelay:       cfg.SettleDelay,
		Limiter:           ratelimit.PerMinute(cfg.RequestsPerMinute, cfg.BurstSize),
		Logger:            log,
	}), nil
}

// Fetch implements Fetcher
func (s *Session) Fetch(ctx context.Context, url string) (*Page, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return nil, err
	}
	if err := s.opts.Limiter.Wait(ctx); err != nil {
		return nil, classify(ctx, err, "rate limiter")
	}

	navCtx := ctx
	if s.opts.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, s.opts.NavigationTimeout)
		defer cancel()
	}

	start := time.Now()
	page, err := s.backend.Navigate(navCtx, url)
	if err != nil {
		return nil, classify(ctx, err, "navigate "+url)
	}

	if page.Status >= 400 {
		return nil, errs.FromStatus(page.Status, url)
	}

	if err := sleep(ctx, s.opts.SettleDelay); err != nil {
		return nil, err
	}

	s.log.DebugWithFields("Page fetched", map[string]interface{}{
		"url":      url,
		"status":   page.Status,
		"duration": time.Since(start),
	})
	return page, nil
}

// Restart implements Fetcher
func (s *Session) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		if err := s.backend.Close(); err != nil {
			s.log.WithError(err).Warn("Closing session before restart failed")
		}
		s.open = false
	}
	if err := s.backend.Open(ctx); err != nil {
		return classify(ctx, err, "restart "+s.backend.Name())
	}
	s.open = true
	s.opts.Limiter.Reset()
	s.log.Info("Fetcher session restarted")
	return nil
}

// Close implements Fetcher
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}
	s.open = false
	return s.backend.Close()
}

func (s *Session) ensureOpen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return nil
	}
	if err := s.backend.Open(ctx); err != nil {
		return classify(ctx, err, "open "+s.backend.Name())
	}
	s.open = true
	return nil
}

// classify turns a backend failure into a typed error. parent is the
// caller's context: its cancellation wins over whatever the backend saw.
func classify(parent context.Context, err error, msg string) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	var typed *errs.Error
	if stderrors.As(err, &typed) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.ErrorTypeTimeout, msg, err)
	}
	return errs.Wrap(errs.ErrorTypeNetwork, msg, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
