// Package storage writes crawl artifacts to the local filesystem.
//
// Every artifact is written to a temporary file, synced and renamed into
// place, so a file with the final name is always complete. Paths are
// confined to the configured output root.
package storage
