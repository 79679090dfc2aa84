// Package downloader streams media files from a board CDN to storage.
package downloader

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	errs "booruscraper/pkg/errors"
	"booruscraper/pkg/logger"
	"booruscraper/pkg/ratelimit"
	"booruscraper/pkg/retry"
)

// WriteFunc consumes the media body and reports how many bytes it stored
type WriteFunc func(r io.Reader) (int64, error)

// Options configure a Downloader
type Options struct {
	UserAgent string
	Cookies   []*http.Cookie
	Timeout   time.Duration
	// Attempts bounds tries per file; 0 or less means one try
	Attempts int
	Backoff  retry.BackoffStrategy
	Limiter  ratelimit.Limiter
	Logger   logger.Logger
	// Client overrides the HTTP client, mainly for tests
	Client *http.Client
}

// Downloader fetches media with the crawl's identity: same user agent,
// same cookies, and the post page as Referer.
type Downloader struct {
	client    *http.Client
	userAgent string
	attempts  int
	backoff   retry.BackoffStrategy
	limiter   ratelimit.Limiter
	logger    logger.Logger
}

// New creates a downloader
func New(opts Options) (*Downloader, error) {
	client := opts.Client
	if client == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		for _, c := range opts.Cookies {
			domain := strings.TrimPrefix(c.Domain, ".")
			if domain == "" {
				continue
			}
			jar.SetCookies(&url.URL{Scheme: "https", Host: domain, Path: "/"}, []*http.Cookie{c})
		}
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Jar: jar, Timeout: timeout}
	}

	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	backoff := opts.Backoff
	if backoff == nil {
		backoff = retry.DefaultExponentialBackoff()
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	return &Downloader{
		client:    client,
		userAgent: opts.UserAgent,
		attempts:  attempts,
		backoff:   backoff,
		limiter:   limiter,
		logger:    log.WithField("component", "downloader"),
	}, nil
}

// Download fetches mediaURL and hands the body to write. Transient failures
// are retried up to the configured attempts. A 4xx answer comes back as a
// typed, non-transient error.
func (d *Downloader) Download(ctx context.Context, mediaURL, referer string, write WriteFunc) (int64, error) {
	start := time.Now()

	size, err := retry.DoWithResult(ctx, func(ctx context.Context) (int64, error) {
		return d.fetch(ctx, mediaURL, referer, write)
	}, &retry.Config{
		MaxAttempts: d.attempts,
		Backoff:     d.backoff,
		RetryIf: func(err error) bool {
			return errs.IsTransient(err) && !errs.IsStorage(err)
		},
		Logger: d.logger,
	})
	if err != nil {
		d.logger.WarnWithFields("Media download failed", map[string]interface{}{
			"url":        mediaURL,
			"error":      err.Error(),
			"error_type": string(errs.TypeOf(err)),
		})
		return 0, err
	}

	d.logger.DebugWithFields("Media downloaded", map[string]interface{}{
		"url":      mediaURL,
		"size":     size,
		"duration": time.Since(start),
	})
	return size, nil
}

func (d *Downloader) fetch(ctx context.Context, mediaURL, referer string, write WriteFunc) (int64, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return 0, errs.Wrap(errs.ErrorTypeNotFound, "bad media url", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, errs.FromStatus(resp.StatusCode, mediaURL)
	}

	return write(&bodyReader{ctx: ctx, r: resp.Body})
}

func classifyTransport(err error) error {
	var netErr interface{ Timeout() bool }
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errs.Wrap(errs.ErrorTypeTimeout, "media request", err)
	}
	return errs.Wrap(errs.ErrorTypeNetwork, "media request", err)
}

// bodyReader types read failures so a dropped connection mid-body is
// retried instead of being reported as a storage failure.
type bodyReader struct {
	ctx context.Context
	r   io.Reader
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err == nil || err == io.EOF {
		return n, err
	}
	if b.ctx.Err() != nil {
		return n, b.ctx.Err()
	}
	return n, classifyTransport(err)
}
