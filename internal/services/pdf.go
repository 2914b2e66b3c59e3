package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelsos/doc2x-cli/internal/assemble"
	"github.com/kelsos/doc2x-cli/internal/async"
	"github.com/kelsos/doc2x-cli/internal/client"
	"github.com/kelsos/doc2x-cli/internal/identity"
	"github.com/kelsos/doc2x-cli/internal/logger"
	"github.com/kelsos/doc2x-cli/internal/models"
	"github.com/kelsos/doc2x-cli/internal/toolerr"
)

const (
	pathPreupload = "/api/v2/parse/preupload"
	pathPDFStatus = "/api/v2/parse/status"
)

// PDFService handles PDF parse tasks
type PDFService struct {
	client *client.APIClient
	tasks  *async.TaskManager
	cache  *identity.Cache
}

// NewPDFService creates a new PDF service
func NewPDFService(apiClient *client.APIClient, tasks *async.TaskManager, cache *identity.Cache) *PDFService {
	return &PDFService{client: apiClient, tasks: tasks, cache: cache}
}

// PDFSubmitRequest selects the file and model of a parse task.
type PDFSubmitRequest struct {
	Path           string
	Model          models.ParseModel
	IdempotencyKey string
}

// PDFWaitRequest waits on UID, or on the task for Submit.Path when UID is
// empty. Nil limits fall back to the configured defaults.
type PDFWaitRequest struct {
	UID          string
	Submit       PDFSubmitRequest
	PollInterval time.Duration
	MaxWait      time.Duration
	Separator    *string
	MaxChars     *int
	MaxPages     *int
	Observer     async.Observer
}

type pdfStatusData struct {
	Status   string              `json:"status"`
	Progress float64             `json:"progress"`
	Detail   string              `json:"detail"`
	Result   *models.ParseResult `json:"result"`
}

// cacheEntry resolves the identity cache key and signature for a request.
func (s *PDFService) cacheEntry(abs string, req PDFSubmitRequest) (string, identity.Signature, error) {
	model := req.Model.Normalize()
	if req.IdempotencyKey != "" {
		return "pdf-key:" + req.IdempotencyKey, identity.KeySignature(req.IdempotencyKey), nil
	}
	sig, err := identity.FileSignature(abs)
	if err != nil {
		return "", identity.Signature{}, toolerr.InvalidArgument("cannot read pdf_path: %v", err)
	}
	return fmt.Sprintf("pdf:%s|%s", abs, model), sig, nil
}

func validatePDFPath(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "", toolerr.InvalidArgument("pdf_path is required")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", toolerr.InvalidArgument("invalid pdf_path %q: %v", p, err)
	}
	if !strings.HasSuffix(strings.ToLower(abs), ".pdf") {
		return "", toolerr.InvalidArgument("pdf_path must end with .pdf")
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", toolerr.InvalidArgument("pdf_path not accessible: %v", err)
	}
	if info.IsDir() {
		return "", toolerr.InvalidArgument("pdf_path is a directory: %s", abs)
	}
	return abs, nil
}

// Submit uploads a PDF and starts a parse task, reusing the uid of an
// earlier submission of the same unchanged file.
func (s *PDFService) Submit(ctx context.Context, req PDFSubmitRequest) (*models.SubmitResult, error) {
	if !req.Model.Valid() {
		return nil, toolerr.InvalidArgument("unsupported model %q (use v2 or v3-2026)", req.Model)
	}
	abs, err := validatePDFPath(req.Path)
	if err != nil {
		return nil, err
	}

	key, sig, err := s.cacheEntry(abs, req)
	if err != nil {
		return nil, err
	}
	if uid, ok := s.cache.Lookup(key, sig); ok {
		logger.Info("Reusing parse task %s for %s", uid, abs)
		return &models.SubmitResult{UID: uid}, nil
	}

	logger.Info("Submitting %s for parsing (model %s)", abs, req.Model.Normalize())
	pre, err := s.preuploadWithRetry(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	if err := s.client.UploadToSignedURL(ctx, pre.URL, abs, "application/pdf"); err != nil {
		if ctx.Err() != nil {
			return nil, toolerr.FromContext(ctx.Err())
		}
		logger.Warn("Upload for task %s failed, requesting a new upload url: %v", pre.UID, err)
		pre, err = s.preuploadWithRetry(ctx, req.Model)
		if err != nil {
			return nil, err
		}
		if err := s.client.UploadToSignedURL(ctx, pre.URL, abs, "application/pdf"); err != nil {
			return nil, err
		}
	}

	s.cache.Store(key, sig, pre.UID)
	logger.Info("Created parse task %s", pre.UID)
	return &models.SubmitResult{UID: pre.UID}, nil
}

func (s *PDFService) preupload(ctx context.Context, model models.ParseModel) (*models.PreuploadResponse, error) {
	var body interface{}
	if model != "" && model != models.ModelV2 {
		body = map[string]string{"model": string(model)}
	}
	pre, err := postJSON[models.PreuploadResponse](ctx, s.client, pathPreupload, body)
	if err != nil {
		return nil, err
	}
	if pre.UID == "" || pre.URL == "" {
		return nil, toolerr.New(toolerr.CodeInvalidJSON, "preupload returned no uid or url", false)
	}
	return pre, nil
}

// preuploadWithRetry retries transient failures with backoff until ctx ends.
func (s *PDFService) preuploadWithRetry(ctx context.Context, model models.ParseModel) (*models.PreuploadResponse, error) {
	attempt := 0
	for {
		pre, err := s.preupload(ctx, model)
		if err == nil {
			return pre, nil
		}
		if !toolerr.IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		delay := s.client.Backoff().Delay(attempt)
		attempt++
		logger.Warn("Preupload failed, retrying in %v: %v", delay, err)
		if err := s.client.Sleeper()(ctx, delay); err != nil {
			return nil, toolerr.FromContext(err)
		}
	}
}

// Status polls a parse task once.
func (s *PDFService) Status(ctx context.Context, uid string) (*models.PDFStatus, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, toolerr.InvalidArgument("uid is required")
	}
	data, err := get[pdfStatusData](ctx, s.client, pathPDFStatus, map[string]string{"uid": uid})
	if err != nil {
		return nil, err
	}
	return &models.PDFStatus{
		UID:      uid,
		Status:   models.TaskStatus(data.Status),
		Progress: clampProgress(data.Progress),
		Detail:   data.Detail,
		Result:   data.Result,
	}, nil
}

func clampProgress(p float64) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return int(p)
	}
}

func (s *PDFService) kind() async.Kind[*models.PDFStatus] {
	return async.Kind[*models.PDFStatus]{
		Name:     models.KindPDFParse,
		Poll:     s.Status,
		Status:   func(st *models.PDFStatus) models.TaskStatus { return st.Status },
		Progress: func(st *models.PDFStatus) int { return st.Progress },
		Failure: func(uid string, st *models.PDFStatus) error {
			msg := st.Detail
			if msg == "" {
				msg = "parse failed"
			}
			return toolerr.WithUID(toolerr.CodeParseFailed, msg, true, uid)
		},
	}
}

// WaitText waits for a parse task and returns its merged markdown, bounded by
// the output limits. Truncated output ends with a notice naming the uid.
func (s *PDFService) WaitText(ctx context.Context, req PDFWaitRequest) (*models.TextResult, error) {
	cfg := s.client.Config()

	uid := strings.TrimSpace(req.UID)
	if uid == "" {
		if strings.TrimSpace(req.Submit.Path) == "" {
			return nil, toolerr.InvalidArgument("either uid or pdf_path is required")
		}
		submitted, err := s.Submit(ctx, req.Submit)
		if err != nil {
			return nil, err
		}
		uid = submitted.UID
	}

	opts := async.WaitOptions{
		PollInterval: orDefault(req.PollInterval, cfg.PollInterval),
		MaxWait:      orDefault(req.MaxWait, cfg.MaxWait),
		Observer:     req.Observer,
	}
	st, err := async.Wait(ctx, s.tasks, s.kind(), uid, opts)
	if err != nil {
		return nil, err
	}

	sep := assemble.DefaultSeparator
	if req.Separator != nil {
		sep = *req.Separator
	}
	limits := assemble.Limits{
		MaxChars: intOr(req.MaxChars, cfg.ParsePDFMaxOutputChars),
		MaxPages: intOr(req.MaxPages, cfg.ParsePDFMaxOutputPages),
	}

	var pages []models.Page
	if st.Result != nil {
		pages = st.Result.Pages
	}
	merged := assemble.MergePages(pages, sep, limits)

	text := merged.Text
	if merged.Truncated {
		text = assemble.AppendNotice(text, assemble.TruncationNotice(uid, merged.ReturnedPages, merged.TotalPages), limits.MaxChars)
	}

	return &models.TextResult{
		UID:           uid,
		Status:        models.TaskStatusSuccess,
		Text:          text,
		Truncated:     merged.Truncated,
		ReturnedPages: merged.ReturnedPages,
		TotalPages:    merged.TotalPages,
	}, nil
}

func orDefault(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

func intOr(v *int, def int) int {
	if v != nil && *v >= 0 {
		return *v
	}
	return def
}
