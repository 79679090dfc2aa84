package logger

import (
	"context"

	"github.com/rs/zerolog"
)

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, fields map[string]interface{}) {
	l = l.WithField("component", component)
	if len(fields) > 0 {
		l = l.WithFields(fields)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component string, reason string) {
	l.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// LogPageProgress logs the outcome of one listing page
func LogPageProgress(l Logger, tag string, page, accepted, links, collected int) {
	l.DebugWithFields("Listing page processed", map[string]interface{}{
		"tag":       tag,
		"page":      page,
		"accepted":  accepted,
		"links":     links,
		"collected": collected,
	})
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (n nopLogger) Debug(string)                                          {}
func (n nopLogger) Info(string)                                           {}
func (n nopLogger) Warn(string)                                           {}
func (n nopLogger) Error(string)                                          {}
func (n nopLogger) WithField(string, interface{}) Logger                  { return n }
func (n nopLogger) WithFields(map[string]interface{}) Logger              { return n }
func (n nopLogger) WithError(error) Logger                                { return n }
func (n nopLogger) WithContext(context.Context) Logger                    { return n }
func (n nopLogger) DebugWithFields(string, map[string]interface{})        {}
func (n nopLogger) InfoWithFields(string, map[string]interface{})         {}
func (n nopLogger) WarnWithFields(string, map[string]interface{})         {}
func (n nopLogger) ErrorWithFields(string, map[string]interface{})        {}
func (n nopLogger) GetZerolog() *zerolog.Logger                           { nop := zerolog.Nop(); return &nop }
