package download

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/doc2x-cli/internal/config"
	"github.com/kelsos/doc2x-cli/internal/toolerr"
)

func TestHostRules(t *testing.T) {
	g := NewGate(config.DefaultDownloadAllowlist)
	assert.True(t, g.HostAllowed("doc2x-bucket.oss-cn-shanghai.aliyuncs.com"))
	assert.True(t, g.HostAllowed("X.S3.CN-NORTH-1.AMAZONAWS.COM.CN"))
	assert.True(t, g.HostAllowed("v2.noedgeai.com"))
	assert.False(t, g.HostAllowed("noedgeai.com"))
	assert.False(t, g.HostAllowed("evil-aliyuncs.com"))
	assert.False(t, g.HostAllowed("example.com"))

	bare := NewGate([]string{"Example.com"})
	assert.True(t, bare.HostAllowed("example.com"))
	assert.True(t, bare.HostAllowed("cdn.example.com"))
	assert.False(t, bare.HostAllowed("badexample.com"))

	star := NewGate([]string{"*"})
	assert.True(t, star.HostAllowed("anything.test"))
	assert.False(t, star.HostAllowed(""))
}

func TestValidateScheme(t *testing.T) {
	_, err := ValidateScheme("http://x.aliyuncs.com/a")
	te, ok := toolerr.As(err)
	require.True(t, ok)
	assert.Equal(t, toolerr.CodeUnsafeURL, te.Code)

	_, err = ValidateScheme("not a url")
	te, ok = toolerr.As(err)
	require.True(t, ok)
	assert.Equal(t, toolerr.CodeInvalidURL, te.Code)

	u, err := ValidateScheme("https://x.aliyuncs.com/a?b=1\\u0026c=2")
	require.NoError(t, err)
	assert.Equal(t, "1", u.Query().Get("b"))
	assert.Equal(t, "2", u.Query().Get("c"))
}

func TestCheckBlocksHost(t *testing.T) {
	g := NewGate(config.DefaultDownloadAllowlist)
	_, err := g.Check("https://example.com/file.zip")
	te, ok := toolerr.As(err)
	require.True(t, ok)
	assert.Equal(t, toolerr.CodeUnsafeURL, te.Code)
	assert.Contains(t, te.Message, "example.com")
	assert.True(t, g.IsAllowed("https://bucket.aliyuncs.com/file.zip"))
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://a/b?x=1&y=2", NormalizeURL("https://a/b?x=1\\u0026y=2"))
}

func newTLSDownloader(t *testing.T, handler http.HandlerFunc) (*Downloader, string) {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return NewDownloader(NewGate([]string{u.Hostname()}), 5*time.Second, srv.Client()), srv.URL
}

func TestDownloadWritesFile(t *testing.T) {
	payload := strings.Repeat("zipdata", 4096)
	d, base := newTLSDownloader(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, payload)
	})

	out := filepath.Join(t.TempDir(), "nested", "dir", "result.zip")
	res, err := d.Download(context.Background(), base+"/convert_md_1.zip", out)
	require.NoError(t, err)
	assert.Equal(t, out, res.OutputPath)
	assert.Equal(t, int64(len(payload)), res.BytesWritten)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
}

func TestDownloadHTTPError(t *testing.T) {
	d, base := newTLSDownloader(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := d.Download(context.Background(), base+"/x", filepath.Join(t.TempDir(), "x"))
	te, ok := toolerr.As(err)
	require.True(t, ok)
	assert.Equal(t, "http_502", te.Code)
	assert.True(t, te.Retryable)
}

func TestDownloadRejectsBeforeFetching(t *testing.T) {
	called := false
	d, base := newTLSDownloader(t, func(http.ResponseWriter, *http.Request) { called = true })

	_, err := d.Download(context.Background(), strings.Replace(base, "https://", "http://", 1), filepath.Join(t.TempDir(), "x"))
	te, ok := toolerr.As(err)
	require.True(t, ok)
	assert.Equal(t, toolerr.CodeUnsafeURL, te.Code)
	assert.False(t, called)
}
