// Package session opens the model session for one orchestrator run.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/voxdesk/pkg/provider/s2s"
)

// Default dialing parameters. A single attempt means a failed connect is fatal.
const (
	defaultMaxAttempts = 1
	defaultBackoff     = 1 * time.Second
	defaultMaxBackoff  = 30 * time.Second
)

// DialerConfig configures a [Dialer].
type DialerConfig struct {
	// Provider opens the sessions.
	Provider s2s.Provider

	// MaxAttempts is the number of connect attempts before giving up.
	// Defaults to 1 if zero.
	MaxAttempts int

	// Backoff is the initial wait between attempts. Doubles each attempt up to
	// MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on the wait. Defaults to 30s if zero.
	MaxBackoff time.Duration

	// Logger receives attempt diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Dialer connects to a provider with bounded exponential backoff. Sessions
// are never re-dialled once established: a connection lost mid-session ends
// the run.
type Dialer struct {
	provider    s2s.Provider
	maxAttempts int
	backoff     time.Duration
	maxBackoff  time.Duration
	log         *slog.Logger
}

// NewDialer creates a new [Dialer] with the given configuration.
func NewDialer(cfg DialerConfig) *Dialer {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Dialer{
		provider:    cfg.Provider,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		maxBackoff:  maxBackoff,
		log:         log,
	}
}

// Dial opens a session, retrying failed attempts until MaxAttempts is
// exhausted or ctx is done. The last connect error is returned.
func (d *Dialer) Dial(ctx context.Context, cfg s2s.SessionConfig) (s2s.Session, error) {
	currentBackoff := d.backoff
	var lastErr error

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("session: dial: %w", err)
		}

		sess, err := d.provider.Connect(ctx, cfg)
		if err == nil {
			if attempt > 1 {
				d.log.Info("session connected after retry", "attempt", attempt)
			}
			return sess, nil
		}
		lastErr = err

		if attempt == d.maxAttempts {
			break
		}

		d.log.Warn("session connect attempt failed",
			"attempt", attempt,
			"max_attempts", d.maxAttempts,
			"backoff", currentBackoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("session: dial: %w", ctx.Err())
		case <-time.After(currentBackoff):
		}

		// Exponential backoff.
		currentBackoff *= 2
		if currentBackoff > d.maxBackoff {
			currentBackoff = d.maxBackoff
		}
	}

	return nil, fmt.Errorf("session: connect failed after %d attempt(s): %w", d.maxAttempts, lastErr)
}
