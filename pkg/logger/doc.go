// Package logger provides the structured logging interface used across the
// crawler.
//
// It wraps zerolog. Console output is colourised when stdout is a terminal
// and emitted as JSON lines otherwise, so redirected runs stay machine
// readable. A log file, when configured, always receives JSON.
//
// Basic Usage:
//
//	err := logger.Initialize(&cfg.Logging)
//	log := logger.GetLogger().WithField("run_id", runID)
//	log.InfoWithFields("Crawl started", map[string]interface{}{"tags": 3})
//
// Tests use NewNopLogger, or NewTestLogger to assert on captured messages.
package logger
