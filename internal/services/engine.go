package services

import (
	"context"
	"net/http"

	"github.com/kelsos/doc2x-cli/internal/assemble"
	"github.com/kelsos/doc2x-cli/internal/async"
	"github.com/kelsos/doc2x-cli/internal/client"
	"github.com/kelsos/doc2x-cli/internal/config"
	"github.com/kelsos/doc2x-cli/internal/download"
	"github.com/kelsos/doc2x-cli/internal/identity"
	"github.com/kelsos/doc2x-cli/internal/models"
)

// Engine is the composition root of the Doc2x client. It owns the identity
// caches, so one Engine should serve the whole process.
type Engine struct {
	config     *config.Config
	client     *client.APIClient
	tasks      *async.TaskManager
	gate       *download.Gate
	downloader *download.Downloader
	pdf        *PDFService
	image      *ImageService
	export     *ExportService
}

// EngineOptions injects test doubles; the zero value is production.
type EngineOptions struct {
	Client       []client.Option
	Tasks        []async.Option
	DownloadHTTP *http.Client
}

// NewEngine creates an engine with all dependencies
func NewEngine(cfg *config.Config, opts EngineOptions) *Engine {
	apiClient := client.NewAPIClient(cfg, opts.Client...)
	tasks := async.NewTaskManager(opts.Tasks...)
	gate := download.NewGate(cfg.DownloadAllowlist)

	return &Engine{
		config:     cfg,
		client:     apiClient,
		tasks:      tasks,
		gate:       gate,
		downloader: download.NewDownloader(gate, cfg.HTTPTimeout, opts.DownloadHTTP),
		pdf:        NewPDFService(apiClient, tasks, identity.NewCache()),
		image:      NewImageService(apiClient, tasks, identity.NewCache()),
		export:     NewExportService(apiClient, tasks, identity.NewSubmissionSet()),
	}
}

// Tasks exposes the wait loops in flight.
func (e *Engine) Tasks() *async.TaskManager {
	return e.tasks
}

func (e *Engine) SubmitPDF(ctx context.Context, req PDFSubmitRequest) (*models.SubmitResult, error) {
	return e.pdf.Submit(ctx, req)
}

func (e *Engine) PDFStatus(ctx context.Context, uid string) (*models.PDFStatus, error) {
	return e.pdf.Status(ctx, uid)
}

func (e *Engine) WaitPDFText(ctx context.Context, req PDFWaitRequest) (*models.TextResult, error) {
	return e.pdf.WaitText(ctx, req)
}

func (e *Engine) SubmitImage(ctx context.Context, path string) (*models.SubmitResult, error) {
	return e.image.Submit(ctx, path)
}

func (e *Engine) ImageStatus(ctx context.Context, uid string) (*models.ImageStatus, error) {
	return e.image.Status(ctx, uid)
}

func (e *Engine) WaitImageText(ctx context.Context, req ImageWaitRequest) (*models.TextResult, error) {
	return e.image.WaitText(ctx, req)
}

func (e *Engine) ParseImageSync(ctx context.Context, path string) (*ImageSyncOutput, error) {
	return e.image.ParseSync(ctx, path)
}

func (e *Engine) SubmitExport(ctx context.Context, req ExportRequest) (*models.ExportStatus, error) {
	return e.export.Submit(ctx, req)
}

func (e *Engine) ExportResult(ctx context.Context, uid string) (*models.ExportStatus, error) {
	return e.export.Result(ctx, uid)
}

func (e *Engine) WaitExport(ctx context.Context, req ExportWaitRequest) (*models.ExportStatus, error) {
	return e.export.Wait(ctx, req)
}

// MergePages merges already-fetched pages.
func (e *Engine) MergePages(pages []models.Page, sep string, limits assemble.Limits) assemble.Merged {
	return assemble.MergePages(pages, sep, limits)
}

// IsURLSafe reports whether url may be downloaded under the configured
// allowlist.
func (e *Engine) IsURLSafe(url string) bool {
	return e.gate.IsAllowed(url)
}

// Download fetches a result URL to outputPath.
func (e *Engine) Download(ctx context.Context, url, outputPath string) (*download.Result, error) {
	return e.downloader.Download(ctx, url, outputPath)
}

// MaterializeZip unpacks a base64 convert_zip into outputDir.
func (e *Engine) MaterializeZip(zipBase64, outputDir string) (*MaterializeResult, error) {
	return MaterializeZip(zipBase64, outputDir)
}

// DebugConfig returns the redacted configuration.
func (e *Engine) DebugConfig() config.DebugInfo {
	return e.config.Describe()
}
