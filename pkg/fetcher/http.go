package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
)

// HTTPConfig configures the colly backend
type HTTPConfig struct {
	UserAgent string
	Cookies   []*http.Cookie
	Timeout   time.Duration
}

// HTTP fetches pages without a browser. It only sees server rendered
// markup, which is enough for boards that do not build listings in script.
type HTTP struct {
	cfg       HTTPConfig
	collector *colly.Collector
}

// NewHTTP creates an unopened colly backend
func NewHTTP(cfg HTTPConfig) *HTTP {
	return &HTTP{cfg: cfg}
}

func (h *HTTP) Name() string { return "http" }

// Open builds a fresh collector with its own cookie jar
func (h *HTTP) Open(ctx context.Context) error {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
	)
	c.WithTransport(newHTTPTransport())
	c.ParseHTTPErrorResponse = true
	if h.cfg.UserAgent != "" {
		c.UserAgent = h.cfg.UserAgent
	}
	timeout := h.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	c.SetRequestTimeout(timeout)

	for _, cookie := range h.cfg.Cookies {
		u := &url.URL{Scheme: "https", Host: cookieDomain(cookie), Path: "/"}
		if err := c.SetCookies(u.String(), []*http.Cookie{cookie}); err != nil {
			return fmt.Errorf("set cookie %s: %w", cookie.Name, err)
		}
	}
	h.collector = c
	return nil
}

// Navigate performs a GET and returns the body
func (h *HTTP) Navigate(ctx context.Context, target string) (*Page, error) {
	if h.collector == nil {
		return nil, fmt.Errorf("http session is not open")
	}
	collector := h.collector.Clone()
	collector.Context = ctx

	var (
		page     *Page
		fetchErr error
	)
	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})
	collector.OnResponse(func(r *colly.Response) {
		page = &Page{
			URL:      target,
			FinalURL: r.Request.URL.String(),
			HTML:     string(r.Body),
			Status:   r.StatusCode,
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("colly visit failed: %w", err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("colly response failed: %w", fetchErr)
		}
		if page == nil {
			return nil, fmt.Errorf("colly returned no response for %s", target)
		}
		return page, nil
	}
}

// Close drops the collector
func (h *HTTP) Close() error {
	h.collector = nil
	return nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
