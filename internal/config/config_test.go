package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 600*time.Second, cfg.MaxWait)
	assert.Equal(t, KeySourceMissing, cfg.APIKeySource)
	assert.Equal(t, DefaultDownloadAllowlist, cfg.DownloadAllowlist)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DOC2X_API_KEY", "Bearer sk-test-123")
	t.Setenv("DOC2X_BASE_URL", "https://example.test///")
	t.Setenv("DOC2X_HTTP_TIMEOUT_MS", "1500")
	t.Setenv("DOC2X_POLL_INTERVAL_MS", "250")
	t.Setenv("DOC2X_MAX_WAIT_MS", "5000")
	t.Setenv("DOC2X_PARSE_PDF_MAX_OUTPUT_CHARS", "100")
	t.Setenv("DOC2X_DOWNLOAD_URL_ALLOWLIST", "files.example.test, .cdn.test")

	cfg := NewConfig()
	require.NoError(t, cfg.LoadFromEnvironment())

	assert.Equal(t, "sk-test-123", cfg.APIKey)
	assert.Equal(t, KeySourceEnv, cfg.APIKeySource)
	assert.Equal(t, "https://example.test", cfg.BaseURL)
	assert.Equal(t, 1500*time.Millisecond, cfg.HTTPTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.MaxWait)
	assert.Equal(t, 100, cfg.ParsePDFMaxOutputChars)
	assert.Equal(t, []string{"files.example.test", ".cdn.test"}, cfg.DownloadAllowlist)
}

func TestLoadFromEnvironmentRejectsBadNumbers(t *testing.T) {
	t.Setenv("DOC2X_POLL_INTERVAL_MS", "-5")
	assert.Error(t, NewConfig().LoadFromEnvironment())
}

func TestHTTPTimeoutSecondsFallback(t *testing.T) {
	t.Setenv("DOC2X_HTTP_TIMEOUT", "90")
	cfg := NewConfig()
	require.NoError(t, cfg.LoadFromEnvironment())
	assert.Equal(t, 90*time.Second, cfg.HTTPTimeout)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc2x.yaml")
	content := "api_key: from-file\nmax_wait_ms: 9000\ndownload_url_allowlist:\n  - a.test\n  - .b.test\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := NewConfig()
	require.NoError(t, cfg.LoadFile(path))
	assert.Equal(t, "from-file", cfg.APIKey)
	assert.Equal(t, KeySourceFile, cfg.APIKeySource)
	assert.Equal(t, 9*time.Second, cfg.MaxWait)
	assert.Equal(t, []string{"a.test", ".b.test"}, cfg.DownloadAllowlist)

	t.Setenv("DOC2X_API_KEY", "from-env")
	require.NoError(t, cfg.LoadFromEnvironment())
	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, KeySourceEnv, cfg.APIKeySource)
	assert.Equal(t, 9*time.Second, cfg.MaxWait)
}

func TestLoadFileMissing(t *testing.T) {
	assert.Error(t, NewConfig().LoadFile(filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestParseDuration(t *testing.T) {
	cases := []struct {
		raw  string
		unit time.Duration
		want time.Duration
	}{
		{"1500", time.Millisecond, 1500 * time.Millisecond},
		{"2s", time.Millisecond, 2 * time.Second},
		{"1.5m", time.Millisecond, 90 * time.Second},
		{"30", time.Second, 30 * time.Second},
		{"250MS", time.Second, 250 * time.Millisecond},
	}
	for _, tc := range cases {
		got, err := ParseDuration(tc.raw, tc.unit)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}

	for _, bad := range []string{"", "abc", "-1s", "0", "5h"} {
		_, err := ParseDuration(bad, time.Second)
		assert.Error(t, err, bad)
	}
}

func TestParseAPIKey(t *testing.T) {
	assert.Equal(t, "", ParseAPIKey("   "))
	assert.Equal(t, "", ParseAPIKey("${DOC2X_API_KEY}"))
	assert.Equal(t, "abc", ParseAPIKey("  abc "))
	assert.Equal(t, "abc", ParseAPIKey("bearer   abc"))
}

func TestParseAllowlist(t *testing.T) {
	assert.Equal(t, DefaultDownloadAllowlist, ParseAllowlist(""))
	assert.Equal(t, []string{"*"}, ParseAllowlist(" * "))
	assert.Equal(t, []string{"a", "b"}, ParseAllowlist("a,, b ,"))
}

func TestValidate(t *testing.T) {
	cfg := NewConfig()
	cfg.BaseURL = "ftp://x"
	assert.Error(t, cfg.Validate())

	cfg = NewConfig()
	cfg.PollInterval = 0
	assert.Error(t, cfg.Validate())
}

func TestImageMaxWait(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, ImageMaxWaitCap, cfg.ImageMaxWait())
	cfg.MaxWait = 10 * time.Second
	assert.Equal(t, 10*time.Second, cfg.ImageMaxWait())
}

func TestDescribeRedactsKey(t *testing.T) {
	cfg := NewConfig()
	cfg.SetAPIKey("sk-abcdefghijkl", KeySourceFlag)
	info := cfg.Describe()
	assert.Equal(t, "sk-abc", info.APIKeyPrefix)
	assert.Equal(t, 15, info.APIKeyLen)
	assert.Equal(t, KeySourceFlag, info.APIKeySource)
}
