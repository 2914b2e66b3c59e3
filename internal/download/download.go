package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kelsos/doc2x-cli/internal/logger"
	"github.com/kelsos/doc2x-cli/internal/metrics"
	"github.com/kelsos/doc2x-cli/internal/toolerr"
)

// Result describes a finished download.
type Result struct {
	OutputPath   string `json:"output_path"`
	BytesWritten int64  `json:"bytes_written"`
}

// Downloader fetches gated result URLs to local files.
type Downloader struct {
	client  *resty.Client
	gate    *Gate
	timeout time.Duration
}

// NewDownloader creates a downloader; timeout bounds the whole transfer.
// A nil httpClient uses resty's default client.
func NewDownloader(gate *Gate, timeout time.Duration, httpClient *http.Client) *Downloader {
	client := resty.New()
	if httpClient != nil {
		client = resty.NewWithClient(httpClient)
	}
	return &Downloader{
		client:  client,
		gate:    gate,
		timeout: timeout,
	}
}

// ensureParentDir ensures the directory holding path exists
func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		logger.Debug("Created directory %s", dir)
	}
	return nil
}

// Download streams rawURL into outputPath.
func (d *Downloader) Download(ctx context.Context, rawURL, outputPath string) (*Result, error) {
	outPath, err := filepath.Abs(outputPath)
	if err != nil {
		return nil, toolerr.InvalidArgument("invalid output path %q: %v", outputPath, err)
	}

	u, err := d.gate.Check(rawURL)
	if err != nil {
		return nil, err
	}

	if err := ensureParentDir(outPath); err != nil {
		return nil, toolerr.New(toolerr.CodeInternalError, err.Error(), false)
	}

	reqCtx := ctx
	cancel := func() {}
	if d.timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, d.timeout)
	}
	defer cancel()

	resp, err := d.client.R().
		SetContext(reqCtx).
		SetDoNotParseResponse(true).
		Get(u.String())
	if err != nil {
		return nil, d.transferError(ctx, reqCtx, err)
	}
	body := resp.RawBody()
	if body == nil {
		return nil, toolerr.New(toolerr.CodeEmptyBody, "download failed: empty body", true)
	}
	defer body.Close()

	if status := resp.StatusCode(); status < 200 || status > 299 {
		return nil, toolerr.New(toolerr.HTTPCode(status),
			fmt.Sprintf("download failed: %s", resp.Status()),
			status >= 500 || status == 408 || status == 429)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return nil, toolerr.Newf(toolerr.CodeInternalError, "failed to create file %s: %v", outPath, err)
	}

	written, err := io.Copy(out, body)
	closeErr := out.Close()
	if err != nil {
		return nil, d.transferError(ctx, reqCtx, fmt.Errorf("failed to write file %s: %w", outPath, err))
	}
	if closeErr != nil {
		return nil, toolerr.Newf(toolerr.CodeInternalError, "failed to close file %s: %v", outPath, closeErr)
	}

	metrics.DownloadBytesTotal.Add(float64(written))
	logger.Info("Downloaded %d bytes to %s", written, outPath)
	return &Result{OutputPath: outPath, BytesWritten: written}, nil
}

func (d *Downloader) transferError(parent, reqCtx context.Context, err error) error {
	if parent.Err() != nil {
		return toolerr.FromContext(parent.Err())
	}
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return toolerr.New(toolerr.CodeTimeout, fmt.Sprintf("download timed out after %v", d.timeout), true)
	}
	return toolerr.New(toolerr.CodeNetworkError, fmt.Sprintf("download failed: %v", err), true)
}
