package driver

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoqliq/autoqliq/pkg/errors"
)

// stubDriver tracks quit calls; every other method is unused by the manager.
type stubDriver struct {
	mu        sync.Mutex
	quitCalls int
	quitErr   error
}

func (d *stubDriver) Navigate(context.Context, string) error        { return nil }
func (d *stubDriver) Find(context.Context, string) error            { return nil }
func (d *stubDriver) Click(context.Context, string) error           { return nil }
func (d *stubDriver) Type(context.Context, string, string) error    { return nil }
func (d *stubDriver) IsPresent(context.Context, string) (bool, error) {
	return false, nil
}
func (d *stubDriver) Screenshot(context.Context, string) error { return nil }
func (d *stubDriver) WaitFor(context.Context, string, time.Duration) error {
	return nil
}
func (d *stubDriver) ExecuteScript(context.Context, string, ...any) (any, error) {
	return nil, nil
}
func (d *stubDriver) CurrentURL(context.Context) (string, error) { return "", nil }
func (d *stubDriver) Title(context.Context) (string, error)      { return "", nil }
func (d *stubDriver) Quit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quitCalls++
	return d.quitErr
}

func TestAcquireAndRelease(t *testing.T) {
	drv := &stubDriver{}
	m := NewManager(FactoryFunc(func(context.Context, Options) (Driver, error) {
		return drv, nil
	}), nil, RetryPolicy{}, nil)

	lease, err := m.Acquire(context.Background(), Options{Browser: BrowserChrome})
	require.NoError(t, err)
	assert.Same(t, Driver(drv), lease.Driver())

	lease.Release()
	lease.Release()
	lease.Release()
	assert.Equal(t, 1, drv.quitCalls)
}

func TestAcquireRejectsUnknownBrowser(t *testing.T) {
	created := 0
	m := NewManager(FactoryFunc(func(context.Context, Options) (Driver, error) {
		created++
		return &stubDriver{}, nil
	}), nil, RetryPolicy{}, nil)

	_, err := m.Acquire(context.Background(), Options{Browser: "netscape"})
	require.Error(t, err)
	assert.Equal(t, errors.KindConfig, errors.KindOf(err))
	assert.Zero(t, created)
}

func TestAcquireResolvesBinaryPath(t *testing.T) {
	var seen Options
	m := NewManager(FactoryFunc(func(_ context.Context, opts Options) (Driver, error) {
		seen = opts
		return &stubDriver{}, nil
	}), func(b BrowserType) string {
		return "/opt/drivers/" + string(b) + "driver"
	}, RetryPolicy{}, nil)

	_, err := m.Acquire(context.Background(), Options{Browser: BrowserFirefox})
	require.NoError(t, err)
	assert.Equal(t, "/opt/drivers/firefoxdriver", seen.DriverPath)

	// An explicit path wins over the resolver.
	_, err = m.Acquire(context.Background(), Options{Browser: BrowserFirefox, DriverPath: "/custom/geckodriver"})
	require.NoError(t, err)
	assert.Equal(t, "/custom/geckodriver", seen.DriverPath)
}

func TestAcquireSingleAttemptByDefault(t *testing.T) {
	attempts := 0
	m := NewManager(FactoryFunc(func(context.Context, Options) (Driver, error) {
		attempts++
		return nil, fmt.Errorf("connection refused")
	}), nil, RetryPolicy{}, nil)

	_, err := m.Acquire(context.Background(), Options{Browser: BrowserChrome})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, errors.KindWebDriver, errors.KindOf(err))
}

func TestAcquireRetriesTransientFailures(t *testing.T) {
	attempts := 0
	drv := &stubDriver{}
	m := NewManager(FactoryFunc(func(context.Context, Options) (Driver, error) {
		attempts++
		if attempts < 3 {
			return nil, fmt.Errorf("connection refused")
		}
		return drv, nil
	}), nil, RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, nil)

	lease, err := m.Acquire(context.Background(), Options{Browser: BrowserChrome})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Same(t, Driver(drv), lease.Driver())
}

func TestAcquireDoesNotRetryConfigErrors(t *testing.T) {
	attempts := 0
	m := NewManager(FactoryFunc(func(context.Context, Options) (Driver, error) {
		attempts++
		return nil, errors.NewConfig("no driver binary configured")
	}), nil, RetryPolicy{Attempts: 5, Backoff: time.Millisecond}, nil)

	_, err := m.Acquire(context.Background(), Options{Browser: BrowserChrome})
	require.Error(t, err)
	assert.Equal(t, errors.KindConfig, errors.KindOf(err))
	assert.Equal(t, 1, attempts)
}

func TestAcquireHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	created := 0
	m := NewManager(FactoryFunc(func(context.Context, Options) (Driver, error) {
		created++
		return &stubDriver{}, nil
	}), nil, RetryPolicy{}, nil)

	_, err := m.Acquire(ctx, Options{Browser: BrowserChrome})
	require.Error(t, err)
	assert.Zero(t, created)
}

func TestAcquireReturnsIndependentLeases(t *testing.T) {
	m := NewManager(FactoryFunc(func(context.Context, Options) (Driver, error) {
		return &stubDriver{}, nil
	}), nil, RetryPolicy{}, nil)

	a, err := m.Acquire(context.Background(), Options{Browser: BrowserChrome})
	require.NoError(t, err)
	b, err := m.Acquire(context.Background(), Options{Browser: BrowserChrome})
	require.NoError(t, err)

	assert.NotSame(t, a.Driver().(*stubDriver), b.Driver().(*stubDriver))

	// Releasing one leaves the other usable.
	a.Release()
	assert.Zero(t, b.Driver().(*stubDriver).quitCalls)
}

func TestReleaseSwallowsQuitErrors(t *testing.T) {
	drv := &stubDriver{quitErr: fmt.Errorf("session already gone")}
	m := NewManager(FactoryFunc(func(context.Context, Options) (Driver, error) {
		return drv, nil
	}), nil, RetryPolicy{}, nil)

	lease, err := m.Acquire(context.Background(), Options{Browser: BrowserChrome})
	require.NoError(t, err)

	// Must not panic or propagate.
	lease.Release()
	assert.Equal(t, 1, drv.quitCalls)
}

func TestRetryPolicyDefaults(t *testing.T) {
	assert.Equal(t, 1, RetryPolicy{}.attempts())
	assert.Equal(t, 1, RetryPolicy{Attempts: -2}.attempts())
	assert.Equal(t, 4, RetryPolicy{Attempts: 4}.attempts())

	p := RetryPolicy{Backoff: time.Second}
	assert.Equal(t, time.Second, p.delay(1))
	assert.Equal(t, 2*time.Second, p.delay(2))
	assert.Equal(t, 30*time.Second, p.delay(10))
}
