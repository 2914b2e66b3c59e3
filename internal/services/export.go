package services

import (
	"context"
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kelsos/doc2x-cli/internal/async"
	"github.com/kelsos/doc2x-cli/internal/client"
	"github.com/kelsos/doc2x-cli/internal/download"
	"github.com/kelsos/doc2x-cli/internal/identity"
	"github.com/kelsos/doc2x-cli/internal/logger"
	"github.com/kelsos/doc2x-cli/internal/models"
	"github.com/kelsos/doc2x-cli/internal/toolerr"
)

const (
	pathExportSubmit = "/api/v2/convert/parse"
	pathExportResult = "/api/v2/convert/parse/result"

	exportTimeoutHint = "exports for the same uid should be run sequentially, not in parallel"
)

// ExportService handles export (convert) tasks
type ExportService struct {
	client      *client.APIClient
	tasks       *async.TaskManager
	submissions *identity.SubmissionSet
}

// NewExportService creates a new export service
func NewExportService(apiClient *client.APIClient, tasks *async.TaskManager, submissions *identity.SubmissionSet) *ExportService {
	return &ExportService{client: apiClient, tasks: tasks, submissions: submissions}
}

// ExportRequest describes an export of a parsed PDF.
type ExportRequest struct {
	UID                 string
	To                  models.ExportFormat
	FormulaMode         models.FormulaMode
	FormulaLevel        *int
	Filename            *string
	FilenameMode        models.FilenameMode
	MergeCrossPageForms *bool
}

// ExportWaitRequest waits for an export. When FormulaMode is set and the
// same parameters were not submitted by this process, the export is
// submitted once first.
type ExportWaitRequest struct {
	ExportRequest
	PollInterval time.Duration
	MaxWait      time.Duration
	Observer     async.Observer
}

type exportData struct {
	Status string `json:"status"`
	URL    string `json:"url"`
}

// submissionKey is the canonical form of an export's parameters.
func (r ExportRequest) submissionKey() string {
	key := struct {
		UID                 string  `json:"uid"`
		To                  string  `json:"to"`
		FormulaMode         *string `json:"formula_mode"`
		FormulaLevel        *int    `json:"formula_level"`
		Filename            *string `json:"filename"`
		FilenameMode        *string `json:"filename_mode"`
		MergeCrossPageForms *bool   `json:"merge_cross_page_forms"`
	}{
		UID:                 r.UID,
		To:                  string(r.To),
		FormulaMode:         optString(string(r.FormulaMode)),
		FormulaLevel:        r.FormulaLevel,
		Filename:            r.Filename,
		FilenameMode:        optString(string(r.FilenameMode)),
		MergeCrossPageForms: r.MergeCrossPageForms,
	}
	b, _ := json.Marshal(key)
	return string(b)
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r ExportRequest) validate(requireFormulaMode bool) error {
	if strings.TrimSpace(r.UID) == "" {
		return toolerr.InvalidArgument("uid is required")
	}
	if !r.To.Valid() {
		return toolerr.InvalidArgument("to must be one of md, tex, docx (got %q)", r.To)
	}
	if requireFormulaMode || r.FormulaMode != "" {
		if !r.FormulaMode.Valid() {
			return toolerr.InvalidArgument("formula_mode must be normal or dollar (got %q)", r.FormulaMode)
		}
	}
	if r.FormulaLevel != nil && (*r.FormulaLevel < 0 || *r.FormulaLevel > 2) {
		return toolerr.InvalidArgument("formula_level must be 0, 1 or 2 (got %d)", *r.FormulaLevel)
	}
	switch r.FilenameMode {
	case "", models.FilenameAuto, models.FilenameRaw:
	default:
		return toolerr.InvalidArgument("filename_mode must be auto or raw (got %q)", r.FilenameMode)
	}
	return nil
}

// NormalizeFilename reduces filename to its base name; in auto mode the
// target format's extension is stripped as well.
func NormalizeFilename(filename string, to models.ExportFormat, mode models.FilenameMode) string {
	v := strings.TrimSpace(filename)
	if v == "" {
		return v
	}
	base := filepath.Base(strings.ReplaceAll(v, "\\", "/"))
	if mode == models.FilenameRaw {
		return base
	}
	ext := regexp.MustCompile(`(?i)\.` + regexp.QuoteMeta(string(to)) + `$`)
	return ext.ReplaceAllString(base, "")
}

// Submit starts an export.
func (s *ExportService) Submit(ctx context.Context, req ExportRequest) (*models.ExportStatus, error) {
	if err := req.validate(true); err != nil {
		return nil, err
	}

	body := models.ExportRequest{
		UID:                 strings.TrimSpace(req.UID),
		To:                  req.To,
		FormulaMode:         req.FormulaMode,
		FormulaLevel:        req.FormulaLevel,
		MergeCrossPageForms: req.MergeCrossPageForms,
	}
	if req.Filename != nil {
		name := NormalizeFilename(*req.Filename, req.To, req.FilenameMode)
		body.Filename = &name
	}

	data, err := postJSON[exportData](ctx, s.client, pathExportSubmit, body)
	if err != nil {
		return nil, err
	}
	s.submissions.Add(req.submissionKey())
	logger.Info("Started %s export for %s", req.To, body.UID)

	return &models.ExportStatus{
		UID:    body.UID,
		Status: models.TaskStatus(data.Status),
		URL:    download.NormalizeURL(data.URL),
	}, nil
}

// Result polls an export once.
func (s *ExportService) Result(ctx context.Context, uid string) (*models.ExportStatus, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, toolerr.InvalidArgument("uid is required")
	}
	data, err := get[exportData](ctx, s.client, pathExportResult, map[string]string{"uid": uid})
	if err != nil {
		return nil, err
	}
	return &models.ExportStatus{
		UID:    uid,
		Status: models.TaskStatus(data.Status),
		URL:    download.NormalizeURL(data.URL),
	}, nil
}

// URLMatchesFormat reports whether an export URL is the artifact for to.
// A success status can still carry the URL of a previous export in another
// format.
func URLMatchesFormat(url string, to models.ExportFormat) bool {
	u := strings.ToLower(url)
	if u == "" {
		return false
	}
	if to == models.ExportDOCX {
		return strings.Contains(u, "convert_docx")
	}
	return strings.Contains(u, "convert_"+string(to)+"_")
}

func (s *ExportService) kind(to models.ExportFormat) async.Kind[*models.ExportStatus] {
	return async.Kind[*models.ExportStatus]{
		Name:   models.KindExport,
		Poll:   s.Result,
		Status: func(st *models.ExportStatus) models.TaskStatus { return st.Status },
		Accept: func(st *models.ExportStatus) bool { return URLMatchesFormat(st.URL, to) },
		Failure: func(uid string, _ *models.ExportStatus) error {
			return toolerr.WithUID(toolerr.CodeConvertFailed, "convert failed", true, uid)
		},
		TimeoutHint: exportTimeoutHint,
	}
}

// Wait waits until the export URL for the requested format is available.
func (s *ExportService) Wait(ctx context.Context, req ExportWaitRequest) (*models.ExportStatus, error) {
	if err := req.validate(false); err != nil {
		return nil, err
	}
	cfg := s.client.Config()

	if req.FormulaMode != "" && !s.submissions.Has(req.submissionKey()) {
		if _, err := s.Submit(ctx, req.ExportRequest); err != nil {
			return nil, err
		}
	}

	return async.Wait(ctx, s.tasks, s.kind(req.To), strings.TrimSpace(req.UID), async.WaitOptions{
		PollInterval: orDefault(req.PollInterval, cfg.PollInterval),
		MaxWait:      orDefault(req.MaxWait, cfg.MaxWait),
		Observer:     req.Observer,
	})
}
