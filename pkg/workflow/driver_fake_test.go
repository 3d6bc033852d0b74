package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/autoqliq/autoqliq/pkg/driver"
)

// fakeDriver is a scriptable in-memory driver used across the package
// tests. Presence and failures are configured per selector.
type fakeDriver struct {
	mu          sync.Mutex
	navigated   []string
	clicked     []string
	typed       map[string]string
	screenshots []string

	present      map[string]bool
	failClick    map[string]error
	failNavigate error
	url          string
	title        string
	quitCalls    int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		typed:     make(map[string]string),
		present:   make(map[string]bool),
		failClick: make(map[string]error),
		url:       "about:blank",
	}
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failNavigate != nil {
		return d.failNavigate
	}
	d.navigated = append(d.navigated, url)
	d.url = url
	return nil
}

func (d *fakeDriver) Find(_ context.Context, selector string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.present[selector] {
		return fmt.Errorf("no such element: %s", selector)
	}
	return nil
}

func (d *fakeDriver) Click(_ context.Context, selector string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failClick[selector]; err != nil {
		return err
	}
	d.clicked = append(d.clicked, selector)
	return nil
}

func (d *fakeDriver) Type(_ context.Context, selector, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.typed[selector] = text
	return nil
}

func (d *fakeDriver) IsPresent(_ context.Context, selector string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.present[selector], nil
}

func (d *fakeDriver) Screenshot(_ context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.screenshots = append(d.screenshots, path)
	return nil
}

func (d *fakeDriver) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	present, err := d.IsPresent(ctx, selector)
	if err != nil {
		return err
	}
	if !present {
		return driver.NewFault(driver.FaultTimeout, "fake", "wait for "+selector,
			fmt.Errorf("element %s did not appear", selector))
	}
	return nil
}

func (d *fakeDriver) ExecuteScript(_ context.Context, script string, _ ...any) (any, error) {
	return nil, nil
}

func (d *fakeDriver) CurrentURL(_ context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

func (d *fakeDriver) Title(_ context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.title, nil
}

func (d *fakeDriver) Quit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quitCalls++
	return nil
}
