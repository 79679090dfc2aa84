// Package checkpoint persists per-tag crawl progress so an interrupted crawl
// resumes where it stopped.
//
// A record holds the ordered list of collected post identifiers and the last
// listing page that yielded a new post. It lives in checkpoint.json inside
// the tag's output directory, next to the artifacts it describes, and is
// rewritten after every accepted post using a temp file, fsync and rename.
//
// Records are versioned. Files without a version are read as version 1;
// files from a newer layout are refused rather than silently misread.
package checkpoint
