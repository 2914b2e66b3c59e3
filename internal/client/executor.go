package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/google/uuid"

	"github.com/kelsos/doc2x-cli/internal/logger"
	"github.com/kelsos/doc2x-cli/internal/metrics"
	"github.com/kelsos/doc2x-cli/internal/models"
	"github.com/kelsos/doc2x-cli/internal/toolerr"
)

const snippetLimit = 300

// CallOptions describes one logical API call. JSONBody and RawBody are
// mutually exclusive; RawBody requires ContentType.
type CallOptions struct {
	Query       map[string]string
	JSONBody    interface{}
	RawBody     []byte
	ContentType string
	Headers     map[string]string
}

// IsRetryableBusinessCode reports whether a Doc2x business code is transient.
func IsRetryableBusinessCode(code string) bool {
	switch code {
	case "parse_error",
		"parse_create_task_error",
		"parse_task_limit_exceeded",
		"parse_concurrency_limit",
		"parse_status_not_found":
		return true
	default:
		return false
	}
}

// Execute performs an authenticated call and returns the envelope's data.
// 429 responses and transient business codes are retried with backoff until
// ctx ends; everything else is returned to the caller.
func (c *APIClient) Execute(ctx context.Context, method, path string, opts CallOptions) (json.RawMessage, error) {
	if c.config.APIKey == "" {
		return nil, toolerr.New(toolerr.CodeMissingAPIKey,
			"Doc2x API key is not configured (set DOC2X_API_KEY or api_key in the config file)", false)
	}

	req, err := c.buildRequest(method, path, opts)
	if err != nil {
		return nil, err
	}
	requestID := req.Header["X-Request-Id"]

	attempt := 0
	for {
		resp, err := c.transport.Send(ctx, req)
		if err != nil {
			metrics.RequestsTotal.WithLabelValues(method, toolerr.From(err).Code).Inc()
			logger.Debug("[%s] %s %s failed: %v", requestID, method, path, err)
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			metrics.RequestsTotal.WithLabelValues(method, toolerr.HTTPCode(resp.StatusCode)).Inc()
			if err := c.retry(ctx, requestID, "rate_limited", attempt); err != nil {
				return nil, err
			}
			attempt++
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			metrics.RequestsTotal.WithLabelValues(method, toolerr.HTTPCode(resp.StatusCode)).Inc()
			return nil, httpError(resp)
		}

		if resp.JSON == nil {
			metrics.RequestsTotal.WithLabelValues(method, toolerr.CodeInvalidJSON).Inc()
			return nil, invalidJSON(resp.Body)
		}

		var env models.Envelope
		if err := json.Unmarshal(resp.JSON, &env); err != nil {
			metrics.RequestsTotal.WithLabelValues(method, toolerr.CodeInvalidJSON).Inc()
			return nil, invalidJSON(resp.Body)
		}

		if code := string(env.Code); code != models.SuccessCode {
			if code == "" {
				code = toolerr.CodeDoc2xError
			}
			metrics.RequestsTotal.WithLabelValues(method, code).Inc()
			if IsRetryableBusinessCode(code) {
				if err := c.retry(ctx, requestID, code, attempt); err != nil {
					return nil, err
				}
				attempt++
				continue
			}
			msg := env.Msg
			if msg == "" {
				msg = "Doc2x error"
			}
			return nil, toolerr.New(code, msg, false)
		}

		metrics.RequestsTotal.WithLabelValues(method, "ok").Inc()
		logger.Debug("[%s] %s %s succeeded after %d retries", requestID, method, path, attempt)
		return env.Data, nil
	}
}

func (c *APIClient) retry(ctx context.Context, requestID, reason string, attempt int) error {
	delay := c.backoff.Delay(attempt)
	metrics.RetriesTotal.WithLabelValues(reason).Inc()
	logger.Debug("[%s] %s, retrying in %v (attempt %d)", requestID, reason, delay, attempt+1)
	if err := c.sleep(ctx, delay); err != nil {
		return toolerr.FromContext(err)
	}
	return nil
}

func (c *APIClient) buildRequest(method, path string, opts CallOptions) (*Request, error) {
	header := map[string]string{
		"Authorization": "Bearer " + c.config.APIKey,
		"X-Request-Id":  uuid.NewString(),
	}

	req := &Request{
		Method:  method,
		URL:     c.BuildURL(path, opts.Query),
		Header:  header,
		Timeout: c.config.HTTPTimeout,
	}

	switch {
	case opts.JSONBody != nil && opts.RawBody != nil:
		return nil, toolerr.New(toolerr.CodeInternalError, "JSONBody and RawBody are mutually exclusive", false)
	case opts.JSONBody != nil:
		body, err := json.Marshal(opts.JSONBody)
		if err != nil {
			return nil, toolerr.Newf(toolerr.CodeInternalError, "error marshaling request body: %v", err)
		}
		req.Body = body
		header["Content-Type"] = "application/json"
	case opts.RawBody != nil:
		req.Body = opts.RawBody
		contentType := opts.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header["Content-Type"] = contentType
	}

	for k, v := range opts.Headers {
		header[k] = v
	}
	return req, nil
}

func httpError(resp *Response) error {
	msg := fmt.Sprintf("Doc2x HTTP error: %s", statusLine(resp))
	if snippet := truncateRunes(string(resp.Body), snippetLimit); snippet != "" {
		msg += "; body=" + strconv.Quote(snippet)
	}
	status := resp.StatusCode
	return toolerr.New(toolerr.HTTPCode(status), msg,
		status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests)
}

func invalidJSON(body []byte) error {
	return toolerr.Newf(toolerr.CodeInvalidJSON, "Doc2x returned non-JSON: %s", truncateRunes(string(body), 200))
}

func statusLine(resp *Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// UploadToSignedURL streams the file at path to a pre-signed URL with its
// exact length. The signed URL carries its own credentials.
func (c *APIClient) UploadToSignedURL(ctx context.Context, signedURL, path string, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return toolerr.InvalidArgument("cannot open %s: %v", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return toolerr.InvalidArgument("cannot stat %s: %v", path, err)
	}

	resp, err := c.transport.Send(ctx, &Request{
		Method:        http.MethodPut,
		URL:           signedURL,
		Header:        map[string]string{"Content-Type": contentType},
		Stream:        f,
		ContentLength: info.Size(),
		Timeout:       c.config.HTTPTimeout,
	})
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(http.MethodPut, toolerr.From(err).Code).Inc()
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RequestsTotal.WithLabelValues(http.MethodPut, toolerr.PutFailedCode(resp.StatusCode)).Inc()
		return toolerr.New(toolerr.PutFailedCode(resp.StatusCode),
			fmt.Sprintf("PUT to signed url failed: %s %s", statusLine(resp), truncateRunes(string(resp.Body), 200)),
			resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout)
	}

	metrics.RequestsTotal.WithLabelValues(http.MethodPut, "ok").Inc()
	logger.Debug("Uploaded %d bytes to signed url", info.Size())
	return nil
}
