// Package ratelimit paces navigations so a crawl stays polite to the board
// it visits.
//
// TokenBucket wraps golang.org/x/time/rate: it allows a short burst and then
// spaces requests evenly. Wait honours context cancellation, so a pending
// navigation is abandoned as soon as the crawl is stopped.
package ratelimit
