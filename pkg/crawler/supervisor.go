package crawler

import (
	"context"
	"sync/atomic"
	"time"

	errs "booruscraper/pkg/errors"
	"booruscraper/pkg/logger"
	"booruscraper/pkg/metrics"
	"booruscraper/pkg/retry"
)

// DefaultRestartDelay is the pause after relaunching the fetcher session
const DefaultRestartDelay = 5 * time.Second

// SupervisorConfig tunes recovery
type SupervisorConfig struct {
	// MaxAttempts bounds tries per page step; 0 retries forever
	MaxAttempts  int
	Backoff      retry.BackoffStrategy
	RestartDelay time.Duration
	Logger       logger.Logger
}

// Supervisor retries page steps after transient failures, restarting the
// fetcher session before every retry. Other errors pass through untouched.
type Supervisor struct {
	session      Restarter
	maxAttempts  int
	backoff      retry.BackoffStrategy
	restartDelay time.Duration
	logger       logger.Logger

	retries  atomic.Int64
	restarts atomic.Int64
}

// NewSupervisor creates a supervisor around session
func NewSupervisor(session Restarter, cfg SupervisorConfig) *Supervisor {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = retry.NewErrorTypeBackoff(retry.DefaultExponentialBackoff())
	}
	return &Supervisor{
		session:      session,
		maxAttempts:  cfg.MaxAttempts,
		backoff:      backoff,
		restartDelay: cfg.RestartDelay,
		logger:       log.WithField("component", "supervisor"),
	}
}

// Do runs op until it succeeds or fails with something other than a
// transient error. Cancellation ends it at once, even mid-backoff.
func (s *Supervisor) Do(ctx context.Context, op retry.Operation) error {
	return retry.Do(ctx, op, &retry.Config{
		MaxAttempts: s.maxAttempts,
		Backoff:     s.backoff,
		RetryIf:     errs.IsTransient,
		OnRetry:     s.recover,
		Logger:      s.logger,
	})
}

// Retries is the number of retried failures so far
func (s *Supervisor) Retries() int64 { return s.retries.Load() }

// Restarts is the number of session restarts so far
func (s *Supervisor) Restarts() int64 { return s.restarts.Load() }

func (s *Supervisor) recover(ctx context.Context, attempt int, err error, delay time.Duration) error {
	s.retries.Add(1)
	metrics.ObserveRetry(string(errs.TypeOf(err)))

	s.logger.WarnWithFields("Transient failure, restarting fetcher session", map[string]interface{}{
		"attempt":    attempt,
		"error":      err.Error(),
		"error_type": string(errs.TypeOf(err)),
		"backoff":    delay,
	})

	if restartErr := s.session.Restart(ctx); restartErr != nil {
		if errs.IsCancelled(restartErr) || ctx.Err() != nil {
			return ctx.Err()
		}
		// The next fetch opens the session again if this one did not come up.
		s.logger.WithError(restartErr).Warn("Fetcher restart failed")
	} else {
		s.restarts.Add(1)
		metrics.ObserveRestart()
	}

	return retry.Wait(ctx, s.restartDelay)
}
