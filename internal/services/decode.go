package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/kelsos/doc2x-cli/internal/client"
	"github.com/kelsos/doc2x-cli/internal/toolerr"
)

// decode unmarshals envelope data into T.
func decode[T any](data json.RawMessage, endpoint string) (*T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, toolerr.Newf(toolerr.CodeInvalidJSON, "%s returned no data", endpoint)
	}
	var out T
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, toolerr.Newf(toolerr.CodeInvalidJSON, "%s returned unexpected data: %v", endpoint, err)
	}
	return &out, nil
}

// get performs a GET request with typed response
func get[T any](ctx context.Context, c *client.APIClient, endpoint string, query map[string]string) (*T, error) {
	data, err := c.Execute(ctx, http.MethodGet, endpoint, client.CallOptions{Query: query})
	if err != nil {
		return nil, err
	}
	return decode[T](data, endpoint)
}

// postJSON performs a JSON POST request with typed response
func postJSON[T any](ctx context.Context, c *client.APIClient, endpoint string, body interface{}) (*T, error) {
	data, err := c.Execute(ctx, http.MethodPost, endpoint, client.CallOptions{JSONBody: body})
	if err != nil {
		return nil, err
	}
	return decode[T](data, endpoint)
}

// postRaw performs a POST request with a binary body and typed response
func postRaw[T any](ctx context.Context, c *client.APIClient, endpoint string, body []byte, contentType string) (*T, error) {
	data, err := c.Execute(ctx, http.MethodPost, endpoint, client.CallOptions{RawBody: body, ContentType: contentType})
	if err != nil {
		return nil, err
	}
	return decode[T](data, endpoint)
}
