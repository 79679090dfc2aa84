// Package retry runs operations with backoff until they succeed or fail
// permanently.
//
// Errors are classified through pkg/errors: by default only transient fetch
// failures are retried. MaxAttempts of zero retries without bound, which is
// what the crawl supervisor uses; cancellation of the context always ends the
// loop immediately, including while waiting out a backoff delay.
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//		return fetch(ctx, url)
//	}, &retry.Config{
//		MaxAttempts: 0,
//		Backoff:     retry.NewErrorTypeBackoff(nil),
//		OnRetry: func(ctx context.Context, attempt int, err error, d time.Duration) error {
//			return session.Restart(ctx)
//		},
//	})
package retry
