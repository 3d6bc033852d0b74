// Package selenium implements the driver capability contract over Selenium
// WebDriver sessions. Chrome and Firefox sessions are started locally from
// their driver binaries; Edge and Safari attach to an already-running
// WebDriver endpoint given as the "remote_url" extra option.
package selenium

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"github.com/tebeka/selenium/firefox"

	"github.com/autoqliq/autoqliq/pkg/driver"
	"github.com/autoqliq/autoqliq/pkg/errors"
)

// presencePollInterval is how often WaitFor probes for an element.
const presencePollInterval = 250 * time.Millisecond

// Factory creates WebDriver-backed driver handles.
type Factory struct {
	logger *slog.Logger
}

// NewFactory creates a selenium driver factory.
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// Create implements driver.Factory.
func (f *Factory) Create(_ context.Context, opts driver.Options) (driver.Driver, error) {
	browser := string(opts.Browser)

	var service *selenium.Service
	var remoteURL string

	switch opts.Browser {
	case driver.BrowserChrome, driver.BrowserFirefox:
		binary := opts.DriverPath
		if binary == "" {
			return nil, errors.NewConfig("no driver binary configured for " + browser)
		}
		port, err := freePort()
		if err != nil {
			return nil, driver.Convert(err, browser, "allocate driver port")
		}
		service, err = startService(opts.Browser, binary, port)
		if err != nil {
			return nil, driver.Convert(err, browser, "start driver service")
		}
		remoteURL = fmt.Sprintf("http://localhost:%d", port)
	case driver.BrowserEdge, driver.BrowserSafari:
		url, _ := opts.Extra["remote_url"].(string)
		if url == "" {
			return nil, errors.NewConfig(browser + " requires a remote_url option pointing at a running WebDriver")
		}
		remoteURL = url
	default:
		return nil, errors.NewConfig("unknown browser type " + browser)
	}

	caps := capabilities(opts)
	wd, err := selenium.NewRemote(caps, remoteURL)
	if err != nil {
		if service != nil {
			_ = service.Stop()
		}
		return nil, driver.Convert(err, browser, "create session")
	}

	if opts.ImplicitWait > 0 {
		if err := wd.SetImplicitWaitTimeout(opts.ImplicitWait); err != nil {
			f.logger.Warn("cannot set implicit wait", "browser", browser, "error", err)
		}
	}

	f.logger.Debug("selenium session created", "browser", browser, "remote", remoteURL)
	return &webDriver{wd: wd, service: service, browser: browser}, nil
}

func startService(browser driver.BrowserType, binary string, port int) (*selenium.Service, error) {
	switch browser {
	case driver.BrowserChrome:
		return selenium.NewChromeDriverService(binary, port)
	case driver.BrowserFirefox:
		return selenium.NewGeckoDriverService(binary, port)
	default:
		return nil, fmt.Errorf("no local service for %s", browser)
	}
}

func capabilities(opts driver.Options) selenium.Capabilities {
	caps := selenium.Capabilities{"browserName": string(opts.Browser)}
	switch opts.Browser {
	case driver.BrowserChrome:
		chromeCaps := chrome.Capabilities{}
		if opts.Headless {
			chromeCaps.Args = append(chromeCaps.Args, "--headless=new", "--disable-gpu")
		}
		if extra, ok := opts.Extra["chrome_args"].([]string); ok {
			chromeCaps.Args = append(chromeCaps.Args, extra...)
		}
		caps.AddChrome(chromeCaps)
	case driver.BrowserFirefox:
		ffCaps := firefox.Capabilities{}
		if opts.Headless {
			ffCaps.Args = append(ffCaps.Args, "-headless")
		}
		caps.AddFirefox(ffCaps)
	}
	return caps
}

// webDriver adapts a selenium session to the driver contract. The selenium
// client is not context-aware, so cancellation is honoured before each call
// and during the poll loop of WaitFor.
type webDriver struct {
	wd      selenium.WebDriver
	service *selenium.Service
	browser string
}

func (d *webDriver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return driver.Convert(d.wd.Get(url), d.browser, "navigate")
}

func (d *webDriver) Find(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.wd.FindElement(selenium.ByCSSSelector, selector)
	return driver.Convert(err, d.browser, "find "+selector)
}

func (d *webDriver) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	elem, err := d.wd.FindElement(selenium.ByCSSSelector, selector)
	if err != nil {
		return driver.Convert(err, d.browser, "find "+selector)
	}
	return driver.Convert(elem.Click(), d.browser, "click "+selector)
}

func (d *webDriver) Type(ctx context.Context, selector, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	elem, err := d.wd.FindElement(selenium.ByCSSSelector, selector)
	if err != nil {
		return driver.Convert(err, d.browser, "find "+selector)
	}
	if err := elem.Clear(); err != nil {
		return driver.Convert(err, d.browser, "clear "+selector)
	}
	return driver.Convert(elem.SendKeys(text), d.browser, "type into "+selector)
}

func (d *webDriver) IsPresent(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	elems, err := d.wd.FindElements(selenium.ByCSSSelector, selector)
	if err != nil {
		return false, driver.Convert(err, d.browser, "probe "+selector)
	}
	return len(elems) > 0, nil
}

func (d *webDriver) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := d.wd.Screenshot()
	if err != nil {
		return driver.Convert(err, d.browser, "screenshot")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return driver.Convert(err, d.browser, "create screenshot directory")
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return driver.Convert(err, d.browser, "write screenshot")
	}
	return nil
}

// WaitFor polls for presence until timeout. It uses its own poll loop
// rather than selenium waits so cancellation interrupts the wait
// immediately.
func (d *webDriver) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(presencePollInterval)
	defer ticker.Stop()
	for {
		present, err := d.IsPresent(ctx, selector)
		if err != nil {
			return err
		}
		if present {
			return nil
		}
		if time.Now().After(deadline) {
			return driver.NewFault(driver.FaultTimeout, d.browser, "wait for "+selector,
				fmt.Errorf("element %s did not appear within %s", selector, timeout))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *webDriver) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := d.wd.ExecuteScript(script, args)
	if err != nil {
		return nil, driver.Convert(err, d.browser, "execute script")
	}
	return out, nil
}

func (d *webDriver) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	url, err := d.wd.CurrentURL()
	if err != nil {
		return "", driver.Convert(err, d.browser, "current url")
	}
	return url, nil
}

func (d *webDriver) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	title, err := d.wd.Title()
	if err != nil {
		return "", driver.Convert(err, d.browser, "title")
	}
	return title, nil
}

func (d *webDriver) Quit() error {
	var quitErr error
	if d.wd != nil {
		quitErr = d.wd.Quit()
		d.wd = nil
	}
	if d.service != nil {
		if err := d.service.Stop(); err != nil && quitErr == nil {
			quitErr = err
		}
		d.service = nil
	}
	return driver.Convert(quitErr, d.browser, "quit")
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
