// Package driver defines the browser capability contract the execution
// pipeline consumes, the fault taxonomy for backend errors, and the
// lifecycle manager that owns acquisition and guaranteed release of a
// driver handle for the duration of one run.
package driver

import (
	"context"
	"fmt"
	"time"
)

// Driver is the capability set a run needs from a browser backend.
//
// Selectors are opaque to the pipeline; the bundled backend interprets them
// as CSS. Every method reports backend faults as a taxonomy error of kind
// webdriver, with the fault code attached (see Convert). Blocking calls
// honour ctx so cancellation is observed during waits.
type Driver interface {
	// Navigate loads the given URL.
	Navigate(ctx context.Context, url string) error

	// Find asserts that an element matching selector exists.
	Find(ctx context.Context, selector string) error

	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error

	// Type replaces the content of the element matching selector with text.
	Type(ctx context.Context, selector, text string) error

	// IsPresent reports whether an element matching selector exists. Absence
	// is not an error; only backend faults are.
	IsPresent(ctx context.Context, selector string) (bool, error)

	// Screenshot captures the current page into the file at path.
	Screenshot(ctx context.Context, path string) error

	// WaitFor polls until an element matching selector exists or timeout
	// elapses. Expiry surfaces as a timeout fault.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error

	// ExecuteScript runs a script in the page and returns its result.
	ExecuteScript(ctx context.Context, script string, args ...any) (any, error)

	// CurrentURL returns the URL of the current page.
	CurrentURL(ctx context.Context) (string, error)

	// Title returns the title of the current page.
	Title(ctx context.Context) (string, error)

	// Quit tears the session down. Safe to call more than once.
	Quit() error
}

// BrowserType tags a supported browser backend.
type BrowserType string

const (
	BrowserChrome  BrowserType = "chrome"
	BrowserFirefox BrowserType = "firefox"
	BrowserEdge    BrowserType = "edge"
	BrowserSafari  BrowserType = "safari"
)

// ParseBrowserType validates a browser tag. Unknown tags are a config error,
// not a driver fault, because they come from configuration or the caller.
func ParseBrowserType(tag string) (BrowserType, error) {
	switch BrowserType(tag) {
	case BrowserChrome, BrowserFirefox, BrowserEdge, BrowserSafari:
		return BrowserType(tag), nil
	default:
		return "", errConfigf("unknown browser type %q (expected chrome, firefox, edge or safari)", tag)
	}
}

// Options configures one driver acquisition.
type Options struct {
	Browser      BrowserType
	DriverPath   string        // backend binary; resolved from config when empty
	Headless     bool
	ImplicitWait time.Duration // applied to the handle after creation
	Extra        map[string]any // backend-specific options bag
}

// Factory creates driver handles. The selenium subpackage provides the real
// implementation; tests substitute fakes.
type Factory interface {
	Create(ctx context.Context, opts Options) (Driver, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, opts Options) (Driver, error)

// Create implements Factory.
func (f FactoryFunc) Create(ctx context.Context, opts Options) (Driver, error) {
	return f(ctx, opts)
}

func (o Options) String() string {
	return fmt.Sprintf("browser=%s headless=%v implicit_wait=%s", o.Browser, o.Headless, o.ImplicitWait)
}
