// Package fetcher retrieves rendered board pages.
//
// Three backends share the Fetcher contract: a stealth rod browser, a
// chromedp browser and a plain colly HTTP collector. Every backend runs
// behind Session, which owns rate limiting, the navigation timeout, the
// settle delay after each load and error classification. Failures come
// back as typed errors from pkg/errors, so callers can tell a transient
// fetch failure from cancellation.
package fetcher
