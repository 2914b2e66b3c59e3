package config

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultBaseURL      = "https://v2.doc2x.noedgeai.com"
	DefaultHTTPTimeout  = 60 * time.Second
	DefaultPollInterval = 2 * time.Second
	DefaultMaxWait      = 600 * time.Second
	// ImageMaxWaitCap bounds the default wait for image layout tasks.
	ImageMaxWaitCap = 300 * time.Second

	EnvPrefix = "DOC2X"
)

// Key sources reported by the config command.
const (
	KeySourceEnv     = "env"
	KeySourceFile    = "config"
	KeySourceFlag    = "flag"
	KeySourceMissing = "missing"
)

// DefaultDownloadAllowlist holds host suffixes Doc2x serves artifacts from.
var DefaultDownloadAllowlist = []string{".amazonaws.com.cn", ".aliyuncs.com", ".noedgeai.com"}

// Config holds all application configuration
type Config struct {
	// API settings
	BaseURL      string
	APIKey       string
	APIKeySource string

	// Timing
	HTTPTimeout  time.Duration
	PollInterval time.Duration
	MaxWait      time.Duration

	// Output limits for merged PDF text, 0 = unlimited
	ParsePDFMaxOutputChars int
	ParsePDFMaxOutputPages int

	// Download host rules; ["*"] disables host checking
	DownloadAllowlist []string

	// Log directory used while the TUI owns the terminal; empty selects
	// the app data directory
	LogDir string
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		BaseURL:           DefaultBaseURL,
		APIKeySource:      KeySourceMissing,
		HTTPTimeout:       DefaultHTTPTimeout,
		PollInterval:      DefaultPollInterval,
		MaxWait:           DefaultMaxWait,
		DownloadAllowlist: append([]string(nil), DefaultDownloadAllowlist...),
	}
}

// LoadFromEnvironment loads DOC2X_* environment variables. Values already
// loaded from a file are overridden.
func (c *Config) LoadFromEnvironment() error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return c.apply(v, KeySourceEnv)
}

// LoadFile loads a YAML/JSON/TOML config file using the same keys as the
// environment, without the prefix (base_url, api_key, ...).
func (c *Config) LoadFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return c.apply(v, KeySourceFile)
}

// SetAPIKey applies an explicitly provided key.
func (c *Config) SetAPIKey(raw, source string) {
	if key := ParseAPIKey(raw); key != "" {
		c.APIKey = key
		c.APIKeySource = source
	}
}

func (c *Config) apply(v *viper.Viper, source string) error {
	if raw := v.GetString("base_url"); raw != "" {
		c.BaseURL = strings.TrimRight(strings.TrimSpace(raw), "/")
	}

	c.SetAPIKey(v.GetString("api_key"), source)

	if raw := v.GetString("http_timeout_ms"); strings.TrimSpace(raw) != "" {
		d, err := ParseDuration(raw, time.Millisecond)
		if err != nil {
			return fmt.Errorf("invalid http_timeout_ms: %w", err)
		}
		c.HTTPTimeout = d
	} else if raw := v.GetString("http_timeout"); strings.TrimSpace(raw) != "" {
		d, err := ParseDuration(raw, time.Second)
		if err != nil {
			return fmt.Errorf("invalid http_timeout: %w", err)
		}
		c.HTTPTimeout = d
	}

	if err := setMillis(v, "poll_interval_ms", &c.PollInterval); err != nil {
		return err
	}
	if err := setMillis(v, "max_wait_ms", &c.MaxWait); err != nil {
		return err
	}
	if err := setCount(v, "parse_pdf_max_output_chars", &c.ParsePDFMaxOutputChars); err != nil {
		return err
	}
	if err := setCount(v, "parse_pdf_max_output_pages", &c.ParsePDFMaxOutputPages); err != nil {
		return err
	}

	switch raw := v.Get("download_url_allowlist").(type) {
	case nil:
	case string:
		if strings.TrimSpace(raw) != "" {
			c.DownloadAllowlist = ParseAllowlist(raw)
		}
	case []interface{}:
		rules := make([]string, 0, len(raw))
		for _, r := range raw {
			rules = append(rules, fmt.Sprint(r))
		}
		c.DownloadAllowlist = ParseAllowlist(strings.Join(rules, ","))
	default:
		return fmt.Errorf("invalid download_url_allowlist: %v", raw)
	}

	if raw := v.GetString("log_dir"); raw != "" {
		c.LogDir = raw
	}
	return nil
}

func setMillis(v *viper.Viper, key string, dst *time.Duration) error {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return nil
	}
	n, err := parsePositiveInt(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = time.Duration(n) * time.Millisecond
	return nil
}

func setCount(v *viper.Viper, key string, dst *int) error {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || n < 0 || math.IsInf(n, 0) || math.IsNaN(n) {
		return fmt.Errorf("invalid %s: %s", key, raw)
	}
	*dst = int(math.Floor(n))
	return nil
}

func parsePositiveInt(raw string) (int64, error) {
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || n <= 0 || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, fmt.Errorf("must be a positive number, got %q", raw)
	}
	return int64(math.Floor(n)), nil
}

var durationPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)(ms|s|m)?$`)

// ParseDuration parses "1500", "1500ms", "2s", "1.5m"; bare numbers use
// defaultUnit.
func ParseDuration(raw string, defaultUnit time.Duration) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid duration: %s", raw)
	}
	num, err := strconv.ParseFloat(m[1], 64)
	if err != nil || num <= 0 {
		return 0, fmt.Errorf("invalid duration: %s", raw)
	}

	unit := defaultUnit
	switch m[2] {
	case "ms":
		unit = time.Millisecond
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	}
	ms := math.Floor(num * float64(unit) / float64(time.Millisecond))
	if ms <= 0 {
		return 0, fmt.Errorf("invalid duration: %s", raw)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

var bearerPrefix = regexp.MustCompile(`(?i)^bearer\s+`)

// ParseAPIKey trims the key, strips a "Bearer " prefix and rejects unexpanded
// ${VAR} placeholders some launchers pass through literally.
func ParseAPIKey(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	if strings.Contains(v, "${") && strings.Contains(v, "}") {
		return ""
	}
	if bearerPrefix.MatchString(v) {
		return strings.TrimSpace(bearerPrefix.ReplaceAllString(v, ""))
	}
	return v
}

// ParseAllowlist splits a comma-separated allowlist. Empty input yields the
// default list; a literal "*" disables host checks.
func ParseAllowlist(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return append([]string(nil), DefaultDownloadAllowlist...)
	}
	if raw == "*" {
		return []string{"*"}
	}
	var rules []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			rules = append(rules, p)
		}
	}
	return rules
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("base URL must be an absolute http(s) URL, got: %q", c.BaseURL)
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP timeout must be positive, got: %v", c.HTTPTimeout)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got: %v", c.PollInterval)
	}

	if c.MaxWait <= 0 {
		return fmt.Errorf("max wait must be positive, got: %v", c.MaxWait)
	}

	if c.ParsePDFMaxOutputChars < 0 || c.ParsePDFMaxOutputPages < 0 {
		return fmt.Errorf("output limits must be non-negative")
	}

	return nil
}

// ImageMaxWait is the default wait budget for image layout tasks.
func (c *Config) ImageMaxWait() time.Duration {
	if c.MaxWait < ImageMaxWaitCap {
		return c.MaxWait
	}
	return ImageMaxWaitCap
}

// DebugInfo is the redacted view printed by the config command.
type DebugInfo struct {
	BaseURL                string   `json:"baseUrl"`
	APIKeySource           string   `json:"apiKeySource"`
	APIKeyLen              int      `json:"apiKeyLen"`
	APIKeyPrefix           string   `json:"apiKeyPrefix"`
	PollIntervalMs         int64    `json:"pollIntervalMs"`
	HTTPTimeoutMs          int64    `json:"httpTimeoutMs"`
	MaxWaitMs              int64    `json:"maxWaitMs"`
	ParsePDFMaxOutputChars int      `json:"parsePdfMaxOutputChars"`
	ParsePDFMaxOutputPages int      `json:"parsePdfMaxOutputPages"`
	DownloadURLAllowlist   []string `json:"downloadUrlAllowlist"`
}

// Describe returns the redacted configuration.
func (c *Config) Describe() DebugInfo {
	prefix := c.APIKey
	if len(prefix) > 6 {
		prefix = prefix[:6]
	}
	return DebugInfo{
		BaseURL:                c.BaseURL,
		APIKeySource:           c.APIKeySource,
		APIKeyLen:              len(c.APIKey),
		APIKeyPrefix:           prefix,
		PollIntervalMs:         c.PollInterval.Milliseconds(),
		HTTPTimeoutMs:          c.HTTPTimeout.Milliseconds(),
		MaxWaitMs:              c.MaxWait.Milliseconds(),
		ParsePDFMaxOutputChars: c.ParsePDFMaxOutputChars,
		ParsePDFMaxOutputPages: c.ParsePDFMaxOutputPages,
		DownloadURLAllowlist:   c.DownloadAllowlist,
	}
}
