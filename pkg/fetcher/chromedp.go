package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// ChromedpConfig configures the chromedp backend
type ChromedpConfig struct {
	Headless   bool
	BrowserBin string
	UserAgent  string
	Cookies    []*http.Cookie
}

// Chromedp drives Chrome through chromedp. A session owns one allocator
// and one browser tab.
type Chromedp struct {
	cfg         ChromedpConfig
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	mu     sync.Mutex
	status int
}

// NewChromedp creates an unopened chromedp backend
func NewChromedp(cfg ChromedpConfig) *Chromedp {
	return &Chromedp{cfg: cfg}
}

func (c *Chromedp) Name() string { return "chromedp" }

// Open starts the browser and installs user agent and cookies
func (c *Chromedp) Open(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.NoSandbox,
	)
	if c.cfg.BrowserBin != "" {
		opts = append(opts, chromedp.ExecPath(c.cfg.BrowserBin))
	}
	if c.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.cfg.UserAgent))
	}

	// The browser outlives the Open call, so it hangs off a fresh root.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	c.allocCancel = allocCancel
	c.tabCtx = tabCtx
	c.tabCancel = tabCancel

	chromedp.ListenTarget(tabCtx, c.captureStatus)

	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	if err := chromedp.Run(tabCtx, c.setupAction()); err != nil {
		_ = c.Close()
		return fmt.Errorf("chromedp setup: %w", err)
	}
	return nil
}

func (c *Chromedp) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if c.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(c.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		for _, cookie := range c.cfg.Cookies {
			set := network.SetCookie(cookie.Name, cookie.Value).
				WithDomain(cookieDomain(cookie)).
				WithPath(cookiePath(cookie)).
				WithSecure(cookie.Secure).
				WithHTTPOnly(cookie.HttpOnly)
			if !cookie.Expires.IsZero() {
				exp := cdp.TimeSinceEpoch(cookie.Expires)
				set = set.WithExpires(&exp)
			}
			if err := set.Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", cookie.Name, err)
			}
		}
		return nil
	})
}

// captureStatus records the status of the last top level document response
func (c *Chromedp) captureStatus(ev interface{}) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	c.mu.Lock()
	c.status = int(resp.Response.Status)
	c.mu.Unlock()
}

// Navigate loads url and returns the rendered DOM
func (c *Chromedp) Navigate(ctx context.Context, url string) (*Page, error) {
	if c.tabCtx == nil {
		return nil, fmt.Errorf("chromedp session is not open")
	}
	c.mu.Lock()
	c.status = 0
	c.mu.Unlock()

	// Bound the run by ctx without cancelling the long-lived tab.
	runCtx, cancel := context.WithCancel(c.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html, finalURL string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("chromedp run: %w", ctx.Err())
		}
		return nil, fmt.Errorf("chromedp run: %w", err)
	}

	c.mu.Lock()
	status := c.status
	c.mu.Unlock()

	return &Page{URL: url, FinalURL: finalURL, HTML: html, Status: status}, nil
}

// Close stops the tab and the browser
func (c *Chromedp) Close() error {
	if c.tabCancel != nil {
		c.tabCancel()
		c.tabCancel = nil
	}
	if c.allocCancel != nil {
		c.allocCancel()
		c.allocCancel = nil
	}
	c.tabCtx = nil
	return nil
}
