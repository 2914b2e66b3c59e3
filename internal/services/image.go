package services

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelsos/doc2x-cli/internal/async"
	"github.com/kelsos/doc2x-cli/internal/client"
	"github.com/kelsos/doc2x-cli/internal/identity"
	"github.com/kelsos/doc2x-cli/internal/logger"
	"github.com/kelsos/doc2x-cli/internal/models"
	"github.com/kelsos/doc2x-cli/internal/toolerr"
)

const (
	pathImageSync   = "/api/v2/parse/img/layout"
	pathImageAsync  = "/api/v2/async/parse/img/layout"
	pathImageStatus = "/api/v2/parse/img/layout/status"

	// MaxImageBytes is the largest image the layout endpoints accept.
	MaxImageBytes = 7 * 1024 * 1024
)

// ImageService handles image layout parse tasks
type ImageService struct {
	client *client.APIClient
	tasks  *async.TaskManager
	cache  *identity.Cache
}

// NewImageService creates a new image service
func NewImageService(apiClient *client.APIClient, tasks *async.TaskManager, cache *identity.Cache) *ImageService {
	return &ImageService{client: apiClient, tasks: tasks, cache: cache}
}

// ImageWaitRequest waits on UID, or on the task for Path when UID is empty.
// Sync uses the synchronous endpoint instead of submitting a task.
type ImageWaitRequest struct {
	UID          string
	Path         string
	Sync         bool
	PollInterval time.Duration
	MaxWait      time.Duration
	Observer     async.Observer
}

// ImageSyncOutput is the result of a synchronous layout parse.
type ImageSyncOutput struct {
	UID        string              `json:"uid"`
	Result     *models.ParseResult `json:"result,omitempty"`
	ConvertZip *string             `json:"convert_zip"`
	Text       string              `json:"text"`
}

type imageSubmitData struct {
	UID string `json:"uid"`
}

type imageStatusData struct {
	Status     string          `json:"status"`
	Result     json.RawMessage `json:"result"`
	ConvertZip *string         `json:"convert_zip"`
}

// readImage loads an image after checking its size.
func readImage(raw string) (string, []byte, error) {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "", nil, toolerr.InvalidArgument("image_path is required")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", nil, toolerr.InvalidArgument("invalid image_path %q: %v", p, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", nil, toolerr.InvalidArgument("image_path not accessible: %v", err)
	}
	if info.IsDir() {
		return "", nil, toolerr.InvalidArgument("image_path is a directory: %s", abs)
	}
	if info.Size() > MaxImageBytes {
		return "", nil, toolerr.Newf(toolerr.CodeFileTooLarge, "file too large: %d bytes", info.Size())
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", nil, toolerr.InvalidArgument("cannot read image_path: %v", err)
	}
	return abs, data, nil
}

// Submit starts an asynchronous layout parse, reusing the uid of an earlier
// submission of the same unchanged file.
func (s *ImageService) Submit(ctx context.Context, path string) (*models.SubmitResult, error) {
	abs, data, err := readImage(path)
	if err != nil {
		return nil, err
	}
	sig, err := identity.FileSignature(abs)
	if err != nil {
		return nil, toolerr.InvalidArgument("cannot read image_path: %v", err)
	}
	key := "image:" + abs
	if uid, ok := s.cache.Lookup(key, sig); ok {
		logger.Info("Reusing layout task %s for %s", uid, abs)
		return &models.SubmitResult{UID: uid}, nil
	}

	out, err := postRaw[imageSubmitData](ctx, s.client, pathImageAsync, data, http.DetectContentType(data))
	if err != nil {
		return nil, err
	}
	if out.UID == "" {
		return nil, toolerr.New(toolerr.CodeInvalidJSON, "layout submit returned no uid", false)
	}

	s.cache.Store(key, sig, out.UID)
	logger.Info("Created layout task %s for %s", out.UID, abs)
	return &models.SubmitResult{UID: out.UID}, nil
}

// ParseSync runs the synchronous layout endpoint.
func (s *ImageService) ParseSync(ctx context.Context, path string) (*ImageSyncOutput, error) {
	_, data, err := readImage(path)
	if err != nil {
		return nil, err
	}
	out, err := postRaw[models.ImageSyncResult](ctx, s.client, pathImageSync, data, http.DetectContentType(data))
	if err != nil {
		return nil, err
	}
	result := models.ImageStatus{Result: out.Result}.ParsedResult()
	return &ImageSyncOutput{
		UID:        out.UID,
		Result:     result,
		ConvertZip: out.ConvertZip,
		Text:       result.FirstPageMD(),
	}, nil
}

// Status polls a layout task once.
func (s *ImageService) Status(ctx context.Context, uid string) (*models.ImageStatus, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, toolerr.InvalidArgument("uid is required")
	}
	data, err := get[imageStatusData](ctx, s.client, pathImageStatus, map[string]string{"uid": uid})
	if err != nil {
		return nil, err
	}
	return &models.ImageStatus{
		UID:        uid,
		Status:     models.TaskStatus(data.Status),
		Result:     data.Result,
		ConvertZip: data.ConvertZip,
	}, nil
}

func (s *ImageService) kind() async.Kind[*models.ImageStatus] {
	return async.Kind[*models.ImageStatus]{
		Name:   models.KindImageLayoutParse,
		Poll:   s.Status,
		Status: func(st *models.ImageStatus) models.TaskStatus { return st.Status },
		Failure: func(uid string, _ *models.ImageStatus) error {
			return toolerr.WithUID(toolerr.CodeParseFailed, "parse failed", true, uid)
		},
	}
}

// WaitText waits for a layout task and returns the first page's markdown.
func (s *ImageService) WaitText(ctx context.Context, req ImageWaitRequest) (*models.TextResult, error) {
	cfg := s.client.Config()

	uid := strings.TrimSpace(req.UID)
	if uid == "" {
		if strings.TrimSpace(req.Path) == "" {
			return nil, toolerr.InvalidArgument("either uid or image_path is required")
		}
		if req.Sync {
			out, err := s.ParseSync(ctx, req.Path)
			if err != nil {
				return nil, err
			}
			return textResult(out.UID, out.Result, out.Text), nil
		}
		submitted, err := s.Submit(ctx, req.Path)
		if err != nil {
			return nil, err
		}
		uid = submitted.UID
	}

	st, err := async.Wait(ctx, s.tasks, s.kind(), uid, async.WaitOptions{
		PollInterval: orDefault(req.PollInterval, cfg.PollInterval),
		MaxWait:      orDefault(req.MaxWait, cfg.ImageMaxWait()),
		Observer:     req.Observer,
	})
	if err != nil {
		return nil, err
	}

	result := st.ParsedResult()
	return textResult(uid, result, result.FirstPageMD()), nil
}

func textResult(uid string, result *models.ParseResult, text string) *models.TextResult {
	total := 0
	if result != nil {
		total = len(result.Pages)
	}
	returned := 0
	if total > 0 {
		returned = 1
	}
	return &models.TextResult{
		UID:           uid,
		Status:        models.TaskStatusSuccess,
		Text:          text,
		ReturnedPages: returned,
		TotalPages:    total,
	}
}
