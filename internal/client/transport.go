package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kelsos/doc2x-cli/internal/logger"
	"github.com/kelsos/doc2x-cli/internal/toolerr"
)

// Request is a single HTTP exchange. Stream, when set, is sent with exactly
// ContentLength bytes instead of Body.
type Request struct {
	Method        string
	URL           string
	Header        map[string]string
	Body          []byte
	Stream        io.Reader
	ContentLength int64
	Timeout       time.Duration
}

// Response carries the raw body; JSON is nil when the body is empty or not
// valid JSON.
type Response struct {
	StatusCode int
	Status     string
	Body       []byte
	JSON       json.RawMessage
}

// Transport performs one timeout-bounded exchange.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// RestyTransport is the production Transport.
type RestyTransport struct {
	client *resty.Client
}

// NewRestyTransport creates a transport; per-request deadlines come from
// Request.Timeout.
func NewRestyTransport() *RestyTransport {
	return &RestyTransport{
		client: resty.New().SetLogger(restyLogger{}),
	}
}

// HTTPClient exposes the underlying client for raw streaming exchanges.
func (t *RestyTransport) HTTPClient() *http.Client {
	return t.client.GetClient()
}

// Send performs the exchange and reads the whole response body.
func (t *RestyTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	reqCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	var (
		out *Response
		err error
	)
	if req.Stream != nil {
		out, err = t.sendStream(reqCtx, req)
	} else {
		out, err = t.sendBuffered(reqCtx, req)
	}
	if err != nil {
		return nil, classify(ctx, reqCtx, req, err)
	}

	if trimmed := bytes.TrimSpace(out.Body); len(trimmed) > 0 && json.Valid(trimmed) {
		out.JSON = json.RawMessage(trimmed)
	}
	return out, nil
}

func (t *RestyTransport) sendBuffered(ctx context.Context, req *Request) (*Response, error) {
	r := t.client.R().SetContext(ctx).SetHeaders(req.Header)
	if req.Body != nil {
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		Body:       resp.Body(),
	}, nil
}

func (t *RestyTransport) sendStream(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, req.Stream)
	if err != nil {
		return nil, err
	}
	httpReq.ContentLength = req.ContentLength
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.GetClient().Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Status: resp.Status, Body: body}, nil
}

// classify maps a failed exchange onto a structured error. A deadline on the
// derived context with the parent still alive is the per-request timeout.
func classify(parent, reqCtx context.Context, req *Request, err error) error {
	if parent.Err() != nil {
		return toolerr.FromContext(parent.Err())
	}
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return toolerr.New(toolerr.CodeTimeout,
			fmt.Sprintf("%s %s timed out after %v", req.Method, redact(req.URL), req.Timeout), true)
	}
	return toolerr.New(toolerr.CodeNetworkError,
		fmt.Sprintf("%s %s failed: %v", req.Method, redact(req.URL), err), true)
}

// redact drops the query string; signed URLs carry credentials there.
func redact(rawURL string) string {
	base, _, _ := strings.Cut(rawURL, "?")
	return base
}

type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) { logger.Error("resty: "+format, v...) }
func (restyLogger) Warnf(format string, v ...interface{})  { logger.Warn("resty: "+format, v...) }
func (restyLogger) Debugf(format string, v ...interface{}) { logger.Debug("resty: "+format, v...) }
