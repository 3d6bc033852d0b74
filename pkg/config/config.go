// Package config loads and validates application configuration from a YAML
// file with environment-variable overrides (AUTOQLIQ_* keys).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/autoqliq/autoqliq/pkg/driver"
	"github.com/autoqliq/autoqliq/pkg/errors"
)

// Config is the application configuration.
type Config struct {
	DefaultBrowser  string  `yaml:"default_browser" validate:"omitempty,oneof=chrome firefox edge safari"`
	ImplicitWait    float64 `yaml:"implicit_wait" validate:"gte=0"`
	Headless        bool    `yaml:"headless"`
	ChromeDriverPath  string `yaml:"chrome_driver_path"`
	FirefoxDriverPath string `yaml:"firefox_driver_path"`
	EdgeDriverPath    string `yaml:"edge_driver_path"`
	SafariDriverPath  string `yaml:"safari_driver_path"`

	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFile  string `yaml:"log_file"`

	WorkflowsPath   string `yaml:"workflows_path"`
	CredentialsPath string `yaml:"credentials_path"`
	RepositoryType  string `yaml:"repository_type" validate:"omitempty,oneof=file"`

	ErrorStrategy string `yaml:"error_strategy" validate:"omitempty,oneof=STOP_ON_ERROR CONTINUE_ON_ERROR"`

	SchedulerPoll time.Duration `yaml:"scheduler_poll" validate:"gte=0"`
	MetricsAddr   string        `yaml:"metrics_addr"`

	// Window settings are consumed by UI frontends, carried here so one
	// config file serves both.
	WindowTitle    string `yaml:"window_title"`
	WindowGeometry string `yaml:"window_geometry"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultBrowser:  "chrome",
		ImplicitWait:    5,
		LogLevel:        "info",
		WorkflowsPath:   "workflows",
		CredentialsPath: "credentials.json",
		RepositoryType:  "file",
		ErrorStrategy:   "STOP_ON_ERROR",
		SchedulerPoll:   time.Second,
		WindowTitle:     "AutoQliq",
	}
}

var validate = validator.New()

// Load reads configuration from path (optional: "" loads defaults), applies
// environment overrides, and validates the result. Every failure is a
// config error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.KindConfig, "cannot read config file "+path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, "config file "+path+" is not valid YAML", err)
		}
	}
	applyEnv(cfg)
	if err := validate.Struct(cfg); err != nil {
		return nil, errors.Wrap(errors.KindConfig, "invalid configuration", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, target *string) {
		if v, ok := os.LookupEnv(key); ok {
			*target = v
		}
	}
	setString("AUTOQLIQ_DEFAULT_BROWSER", &cfg.DefaultBrowser)
	setString("AUTOQLIQ_LOG_LEVEL", &cfg.LogLevel)
	setString("AUTOQLIQ_LOG_FILE", &cfg.LogFile)
	setString("AUTOQLIQ_WORKFLOWS_PATH", &cfg.WorkflowsPath)
	setString("AUTOQLIQ_CREDENTIALS_PATH", &cfg.CredentialsPath)
	setString("AUTOQLIQ_ERROR_STRATEGY", &cfg.ErrorStrategy)
	setString("AUTOQLIQ_METRICS_ADDR", &cfg.MetricsAddr)
	setString("AUTOQLIQ_CHROME_DRIVER_PATH", &cfg.ChromeDriverPath)
	setString("AUTOQLIQ_FIREFOX_DRIVER_PATH", &cfg.FirefoxDriverPath)
	setString("AUTOQLIQ_EDGE_DRIVER_PATH", &cfg.EdgeDriverPath)
	setString("AUTOQLIQ_SAFARI_DRIVER_PATH", &cfg.SafariDriverPath)
	if v, ok := os.LookupEnv("AUTOQLIQ_IMPLICIT_WAIT"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ImplicitWait = f
		}
	}
	if v, ok := os.LookupEnv("AUTOQLIQ_HEADLESS"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Headless = b
		}
	}
}

// DriverPath resolves the configured driver binary for a browser. Empty
// means the backend should rely on PATH lookup.
func (c *Config) DriverPath(browser driver.BrowserType) string {
	switch browser {
	case driver.BrowserChrome:
		return c.ChromeDriverPath
	case driver.BrowserFirefox:
		return c.FirefoxDriverPath
	case driver.BrowserEdge:
		return c.EdgeDriverPath
	case driver.BrowserSafari:
		return c.SafariDriverPath
	default:
		return ""
	}
}

// DriverOptions assembles driver acquisition options from the config.
func (c *Config) DriverOptions() driver.Options {
	return driver.Options{
		Browser:      driver.BrowserType(c.DefaultBrowser),
		Headless:     c.Headless,
		ImplicitWait: time.Duration(c.ImplicitWait * float64(time.Second)),
	}
}
