package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CIDgravity/snakelet"
	"github.com/joho/godotenv"
)

// TokenEnvVar is read when no token is given on the command line or in the config file
const TokenEnvVar = "CODACY_API_TOKEN"

// supported git providers, as named by the analysis service
var SupportedProviders = []string{"gh", "gl", "bb"}

// config structure
type Config struct {
	API    APIConfig    `mapstructure:"API"`
	Codacy CodacyConfig `mapstructure:"CODACY"`
	Retry  RetryConfig  `mapstructure:"RETRY"`
	Report ReportConfig `mapstructure:"REPORT"`
	Logs   LogsConfig   `mapstructure:"LOGS"`
}

type APIConfig struct {
	ListenPort string `mapstructure:"ListenPort"`
}

type CodacyConfig struct {
	BaseURL               string  `mapstructure:"BaseURL"`
	Token                 string  `mapstructure:"Token"`
	Provider              string  `mapstructure:"Provider"` // gh | gl | bb
	Organization          string  `mapstructure:"Organization"`
	PageSize              int     `mapstructure:"PageSize"`
	RequestsPerSecond     float64 `mapstructure:"RequestsPerSecond"` // 0 disables local pacing
	RequestTimeoutSeconds int     `mapstructure:"RequestTimeoutSeconds"`
}

// RetryConfig holds the retry budgets applied to every single API call.
// Counters are never shared between calls.
type RetryConfig struct {
	MaxRateLimitRetries      int `mapstructure:"MaxRateLimitRetries"`
	DefaultRetryAfterSeconds int `mapstructure:"DefaultRetryAfterSeconds"`
	MaxTransientRetries      int `mapstructure:"MaxTransientRetries"`
	BackoffBaseSeconds       int `mapstructure:"BackoffBaseSeconds"`
	BackoffMaxSeconds        int `mapstructure:"BackoffMaxSeconds"`
	MaxWaitSeconds           int `mapstructure:"MaxWaitSeconds"` // caps any single wait, Retry-After hints included
}

type ReportConfig struct {
	OutputDir             string        `mapstructure:"OutputDir"`
	FilePrefix            string        `mapstructure:"FilePrefix"`
	IncludeEmptyStandards bool          `mapstructure:"IncludeEmptyStandards"`
	IssueBreakdown        bool          `mapstructure:"IssueBreakdown"`
	Detailed              bool          `mapstructure:"Detailed"` // one row per issue instead of one row per repository
	IssuesFilePrefix      string        `mapstructure:"IssuesFilePrefix"`
	Filters               FiltersConfig `mapstructure:"FILTERS"`
}

// FiltersConfig restricts the issues counted by the issue breakdown
type FiltersConfig struct {
	Levels       []string `mapstructure:"Levels"`
	Categories   []string `mapstructure:"Categories"`
	Languages    []string `mapstructure:"Languages"`
	AuthorEmails []string `mapstructure:"AuthorEmails"`
	BranchName   string   `mapstructure:"BranchName"`
}

type LogsConfig struct {
	Level            string `mapstructure:"Level"` // error | warn | info | debug - case insensitive
	OutputLogsAsJSON bool   `mapstructure:"OutputLogsAsJson"`
}

// Load reads the configuration file on top of the default values.
// When path is empty, config/config.toml is searched next to the binary then in the working directory.
// A missing file is not an error, defaults are returned instead.
func Load(path string) (*Config, error) {
	cfg := GetDefault()

	configFilePath, err := locateConfigFile(path)
	if err != nil {
		return nil, err
	}

	if configFilePath == "" {
		return cfg, nil
	}

	if _, err := snakelet.InitAndLoad(cfg, configFilePath); err != nil {
		return nil, fmt.Errorf("unable to load configuration file %s: %w", configFilePath, err)
	}

	return cfg, nil
}

func locateConfigFile(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", err
		}

		return path, nil
	}

	dir, err := filepath.Abs(filepath.Dir(os.Args[0]))
	if err != nil {
		return "", err
	}

	candidates := []string{filepath.Join(dir, "config", "config.toml"), filepath.Join("config", "config.toml")}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}

	return "", nil
}

// LoadEnv loads variables from .env files into the process environment.
// Files that do not exist are ignored, variables already set are kept.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}

		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("unable to load env file %s: %w", f, err)
		}
	}

	return nil
}

// ResolveToken keeps the configured token, or falls back to the environment
func (c *Config) ResolveToken() {
	if strings.TrimSpace(c.Codacy.Token) == "" {
		c.Codacy.Token = os.Getenv(TokenEnvVar)
	}
}

// Validate checks the values required to run a report
func (c Config) Validate() error {
	if strings.TrimSpace(c.Codacy.Organization) == "" {
		return errors.New("organization is required")
	}

	if !IsSupportedProvider(c.Codacy.Provider) {
		return fmt.Errorf("unsupported provider %q, expected one of %s", c.Codacy.Provider, strings.Join(SupportedProviders, ", "))
	}

	if strings.TrimSpace(c.Codacy.Token) == "" {
		return fmt.Errorf("API token not provided. set %s or pass it as an argument", TokenEnvVar)
	}

	if c.Codacy.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", c.Codacy.PageSize)
	}

	if c.Retry.MaxRateLimitRetries < 0 || c.Retry.MaxTransientRetries < 0 {
		return errors.New("retry counts cannot be negative")
	}

	if c.Retry.BackoffBaseSeconds <= 0 || c.Retry.BackoffMaxSeconds < c.Retry.BackoffBaseSeconds {
		return fmt.Errorf("backoff must satisfy 0 < base <= max, got base %ds and max %ds", c.Retry.BackoffBaseSeconds, c.Retry.BackoffMaxSeconds)
	}

	if c.Retry.MaxWaitSeconds < c.Retry.BackoffMaxSeconds || c.Retry.MaxWaitSeconds < c.Retry.DefaultRetryAfterSeconds {
		return fmt.Errorf("max wait %ds is shorter than the backoff max or the default Retry-After", c.Retry.MaxWaitSeconds)
	}

	return nil
}

// IsSupportedProvider reports whether p is one of gh, gl or bb
func IsSupportedProvider(p string) bool {
	for _, supported := range SupportedProviders {
		if p == supported {
			return true
		}
	}

	return false
}

// RequestTimeout
func (c CodacyConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// DefaultRetryAfter is the wait applied on a 429 without usable Retry-After header
func (r RetryConfig) DefaultRetryAfter() time.Duration {
	return time.Duration(r.DefaultRetryAfterSeconds) * time.Second
}

// BackoffBase
func (r RetryConfig) BackoffBase() time.Duration {
	return time.Duration(r.BackoffBaseSeconds) * time.Second
}

// BackoffMax
func (r RetryConfig) BackoffMax() time.Duration {
	return time.Duration(r.BackoffMaxSeconds) * time.Second
}

// MaxWait
func (r RetryConfig) MaxWait() time.Duration {
	return time.Duration(r.MaxWaitSeconds) * time.Second
}

// GetDefault
func GetDefault() *Config {
	return &Config{
		API: APIConfig{
			ListenPort: "5000",
		},
		Codacy: CodacyConfig{
			BaseURL:               "https://app.codacy.com/api/v3",
			Provider:              "gh",
			PageSize:              100,
			RequestsPerSecond:     10,
			RequestTimeoutSeconds: 30,
		},
		Retry: RetryConfig{
			MaxRateLimitRetries:      5,
			DefaultRetryAfterSeconds: 60,
			MaxTransientRetries:      3,
			BackoffBaseSeconds:       2,
			BackoffMaxSeconds:        30,
			MaxWaitSeconds:           300,
		},
		Report: ReportConfig{
			OutputDir:        ".",
			FilePrefix:       "coding_standards_report",
			IssuesFilePrefix: "detailed_issues_report",
		},
		Logs: LogsConfig{
			Level:            "info",
			OutputLogsAsJSON: false,
		},
	}
}
