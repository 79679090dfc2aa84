// Package crawler runs the per-tag pagination state machine.
//
// An Orchestrator walks the configured tags one at a time. For each tag it
// restores a State from the checkpoint store and hands it to an Engine,
// which visits listing pages in order, sends unseen post links through the
// Pipeline and persists the checkpoint after every accepted post. When a
// run of pages yields nothing new, the engine jumps back to the last page
// that did. Page steps run under a Supervisor, which restarts the fetcher
// session and retries the same page after transient failures.
//
// Everything is sequential: one tag, one page and one post at a time.
package crawler
