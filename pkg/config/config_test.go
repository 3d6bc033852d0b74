package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoqliq/autoqliq/pkg/driver"
	"github.com/autoqliq/autoqliq/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "chrome", cfg.DefaultBrowser)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "STOP_ON_ERROR", cfg.ErrorStrategy)
	assert.Equal(t, "workflows", cfg.WorkflowsPath)
	assert.Equal(t, time.Second, cfg.SchedulerPoll)
	assert.False(t, cfg.Headless)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `default_browser: firefox
headless: true
implicit_wait: 2.5
log_level: debug
error_strategy: CONTINUE_ON_ERROR
firefox_driver_path: /opt/geckodriver
metrics_addr: ":9120"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "firefox", cfg.DefaultBrowser)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 2.5, cfg.ImplicitWait)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "CONTINUE_ON_ERROR", cfg.ErrorStrategy)
	assert.Equal(t, ":9120", cfg.MetricsAddr)

	// Unset fields keep their defaults.
	assert.Equal(t, "workflows", cfg.WorkflowsPath)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, errors.KindConfig, errors.KindOf(err))
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad browser", "default_browser: netscape\n"},
		{"bad log level", "log_level: verbose\n"},
		{"bad strategy", "error_strategy: halt\n"},
		{"bad repository", "repository_type: postgres\n"},
		{"negative wait", "implicit_wait: -1\n"},
		{"not yaml", ":::\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.doc), 0o644))

			_, err := Load(path)
			require.Error(t, err)
			assert.Equal(t, errors.KindConfig, errors.KindOf(err))
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AUTOQLIQ_DEFAULT_BROWSER", "edge")
	t.Setenv("AUTOQLIQ_HEADLESS", "true")
	t.Setenv("AUTOQLIQ_IMPLICIT_WAIT", "7.5")
	t.Setenv("AUTOQLIQ_ERROR_STRATEGY", "CONTINUE_ON_ERROR")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "edge", cfg.DefaultBrowser)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 7.5, cfg.ImplicitWait)
	assert.Equal(t, "CONTINUE_ON_ERROR", cfg.ErrorStrategy)
}

func TestEnvOverridesAreValidated(t *testing.T) {
	t.Setenv("AUTOQLIQ_DEFAULT_BROWSER", "netscape")

	_, err := Load("")
	require.Error(t, err)
	assert.Equal(t, errors.KindConfig, errors.KindOf(err))
}

func TestDriverPath(t *testing.T) {
	cfg := Default()
	cfg.ChromeDriverPath = "/opt/chromedriver"
	cfg.FirefoxDriverPath = "/opt/geckodriver"

	assert.Equal(t, "/opt/chromedriver", cfg.DriverPath(driver.BrowserChrome))
	assert.Equal(t, "/opt/geckodriver", cfg.DriverPath(driver.BrowserFirefox))
	assert.Empty(t, cfg.DriverPath(driver.BrowserEdge))
	assert.Empty(t, cfg.DriverPath(driver.BrowserType("other")))
}

func TestDriverOptions(t *testing.T) {
	cfg := Default()
	cfg.DefaultBrowser = "firefox"
	cfg.Headless = true
	cfg.ImplicitWait = 2.5

	opts := cfg.DriverOptions()
	assert.Equal(t, driver.BrowserFirefox, opts.Browser)
	assert.True(t, opts.Headless)
	assert.Equal(t, 2500*time.Millisecond, opts.ImplicitWait)
}
