package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
)

// RodConfig configures the rod backend
type RodConfig struct {
	Headless   bool
	BrowserBin string
	UserAgent  string
	Cookies    []*http.Cookie
}

// Rod drives a stealth Chromium through the DevTools protocol. One tab is
// reused for every navigation of a session.
type Rod struct {
	cfg      RodConfig
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// NewRod creates an unopened rod backend
func NewRod(cfg RodConfig) *Rod {
	return &Rod{cfg: cfg}
}

func (r *Rod) Name() string { return "rod" }

// Open launches the browser and prepares the tab
func (r *Rod) Open(ctx context.Context) error {
	l := launcher.New().
		Context(ctx).
		Headless(r.cfg.Headless).
		NoSandbox(true)
	if r.cfg.BrowserBin != "" {
		l = l.Bin(r.cfg.BrowserBin)
	}
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	r.launcher = l

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	r.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = r.Close()
		return fmt.Errorf("failed to open tab: %w", err)
	}
	r.page = page

	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		_ = r.Close()
		return fmt.Errorf("stealth injection failed: %w", err)
	}
	if r.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.cfg.UserAgent}); err != nil {
			_ = r.Close()
			return fmt.Errorf("set user agent: %w", err)
		}
	}
	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{"Accept-Language": "en-US,en;q=0.9"}),
	}.Call(page)

	if len(r.cfg.Cookies) > 0 {
		if err := browser.SetCookies(rodCookies(r.cfg.Cookies)); err != nil {
			_ = r.Close()
			return fmt.Errorf("set cookies: %w", err)
		}
	}
	return nil
}

// Navigate loads url in the session tab and waits for the DOM to settle
func (r *Rod) Navigate(ctx context.Context, url string) (*Page, error) {
	if r.page == nil {
		return nil, fmt.Errorf("rod session is not open")
	}
	p := r.page.Context(ctx)

	if err := p.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	// Listing grids fill in after load; a DOM that never settles is still usable.
	_ = p.WaitDOMStable(300*time.Millisecond, 0.1)

	html, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("read html: %w", err)
	}

	page := &Page{URL: url, FinalURL: url, HTML: html}
	if res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch (e) {}
		return 0;
	}`); err == nil {
		page.Status = res.Value.Int()
	}
	if info, err := p.Info(); err == nil && info.URL != "" {
		page.FinalURL = info.URL
	}
	return page, nil
}

// Close kills the browser process
func (r *Rod) Close() error {
	var closeErr error
	if r.page != nil {
		_ = r.page.Close()
		r.page = nil
	}
	if r.browser != nil {
		closeErr = r.browser.Close()
		r.browser = nil
	}
	if r.launcher != nil {
		r.launcher.Kill()
		r.launcher.Cleanup()
		r.launcher = nil
	}
	return closeErr
}

// toHeadersMap converts plain headers to the gson values NetworkSetExtraHTTPHeaders wants
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

func rodCookies(cookies []*http.Cookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   cookieDomain(c),
			Path:     cookiePath(c),
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
		if !c.Expires.IsZero() {
			param.Expires = proto.TimeSinceEpoch(c.Expires.Unix())
		}
		params = append(params, param)
	}
	return params
}
