package driver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/autoqliq/autoqliq/pkg/errors"
)

// BinaryResolver maps a browser type to its driver binary path. The config
// package supplies one; a nil resolver means paths must be passed explicitly
// or discoverable on PATH by the backend.
type BinaryResolver func(BrowserType) string

// RetryPolicy bounds acquisition retries. The zero value performs a single
// attempt, which is the default for manual runs; the scheduler may opt in to
// retries for unattended fires.
type RetryPolicy struct {
	Attempts int           // total attempts; values < 1 mean 1
	Backoff  time.Duration // base delay, doubled per attempt, capped at 30s
}

func (p RetryPolicy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	base := p.Backoff
	if base <= 0 {
		base = time.Second
	}
	d := base << (attempt - 1)
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// Manager owns the driver lifecycle for runs: it validates acquisition
// inputs, resolves binaries, creates the handle, and guarantees idempotent
// release. One manager serves many concurrent runs; every Acquire returns an
// independent Lease.
type Manager struct {
	factory  Factory
	resolver BinaryResolver
	retry    RetryPolicy
	logger   *slog.Logger
}

// NewManager creates a lifecycle manager around a driver factory.
func NewManager(factory Factory, resolver BinaryResolver, retry RetryPolicy, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{factory: factory, resolver: resolver, retry: retry, logger: logger}
}

// Lease is an acquired driver handle scoped to one run. Release is safe to
// call multiple times and from deferred paths; errors during release are
// logged and dropped so they never mask the run's own outcome.
type Lease struct {
	driver Driver
	logger *slog.Logger
	once   sync.Once
}

// Driver returns the underlying handle.
func (l *Lease) Driver() Driver {
	return l.driver
}

// Release quits the driver session. Idempotent.
func (l *Lease) Release() {
	l.once.Do(func() {
		if err := l.driver.Quit(); err != nil {
			l.logger.Warn("driver release failed", "error", err)
		}
	})
}

// Acquire validates opts, resolves the driver binary, and creates a handle.
// Backend faults come back as webdriver errors carrying the driver type;
// unknown browser tags and unresolvable binaries are config errors.
func (m *Manager) Acquire(ctx context.Context, opts Options) (*Lease, error) {
	browser, err := ParseBrowserType(string(opts.Browser))
	if err != nil {
		return nil, err
	}
	opts.Browser = browser

	if opts.DriverPath == "" && m.resolver != nil {
		opts.DriverPath = m.resolver(browser)
	}

	attempts := m.retry.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(errors.KindWebDriver, "driver acquisition cancelled", err).
				With(errors.CtxDriverType, string(browser))
		}

		drv, err := m.factory.Create(ctx, opts)
		if err == nil {
			m.logger.Debug("driver acquired",
				"browser", string(browser),
				"headless", opts.Headless,
				"attempt", attempt,
			)
			return &Lease{driver: drv, logger: m.logger}, nil
		}

		lastErr = Convert(err, string(browser), "create driver")
		if errors.IsKind(lastErr, errors.KindConfig) {
			return nil, lastErr
		}
		if attempt < attempts {
			m.logger.Warn("driver creation failed, retrying",
				"browser", string(browser),
				"attempt", attempt,
				"max_attempts", attempts,
				"error", err,
			)
			select {
			case <-time.After(m.retry.delay(attempt)):
			case <-ctx.Done():
				return nil, errors.Wrap(errors.KindWebDriver, "driver acquisition cancelled", ctx.Err()).
					With(errors.CtxDriverType, string(browser))
			}
		}
	}
	return nil, lastErr
}
