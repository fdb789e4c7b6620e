// Package transport sends the JSON calls made to the LLM and task APIs.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-changelog-hooks/core"
)

const (
	clientTimeout           = 30 * time.Second
	responseBodyLimit int64 = 10 << 20
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter sends one request and hands back whatever status the server
// answered. Retries and the meaning of a non-2xx status belong to the caller.
type RESTAdapter struct {
	client    HTTPDoer
	bodyLimit int64
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: clientTimeout}
	}
	return &RESTAdapter{client: client, bodyLimit: responseBodyLimit}
}

func (a *RESTAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.client == nil {
		return core.TransportResponse{}, failure(nil, goerrors.CategoryInternal, http.StatusInternalServerError,
			"transport: http client is not configured", nil)
	}
	endpoint := strings.TrimSpace(req.URL)
	if endpoint == "" {
		return core.TransportResponse{}, failure(nil, goerrors.CategoryBadInput, http.StatusBadRequest,
			"transport: request url is required", nil)
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(req.Body))
	if err != nil {
		return core.TransportResponse{}, failure(err, goerrors.CategoryBadInput, http.StatusBadRequest,
			"transport: build request", map[string]any{"method": method, "url": endpoint})
	}
	for name, value := range req.Headers {
		if name = strings.TrimSpace(name); name != "" {
			httpReq.Header.Set(name, strings.TrimSpace(value))
		}
	}

	res, err := a.client.Do(httpReq)
	if err != nil {
		return core.TransportResponse{}, failure(err, goerrors.CategoryExternal, http.StatusBadGateway,
			"transport: request failed", map[string]any{"method": method, "url": endpoint})
	}
	defer res.Body.Close()

	limit := a.bodyLimit
	if limit <= 0 {
		limit = responseBodyLimit
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return core.TransportResponse{}, failure(err, goerrors.CategoryExternal, http.StatusBadGateway,
			"transport: read response", map[string]any{"url": endpoint, "status_code": res.StatusCode})
	}
	if int64(len(body)) > limit {
		return core.TransportResponse{}, failure(nil, goerrors.CategoryExternal, http.StatusBadGateway,
			fmt.Sprintf("transport: response from %s exceeds %d bytes", endpoint, limit),
			map[string]any{"url": endpoint, "status_code": res.StatusCode, "limit_bytes": limit})
	}

	headers := make(map[string]string, len(res.Header))
	for name, values := range res.Header {
		headers[name] = strings.Join(values, ",")
	}
	return core.TransportResponse{StatusCode: res.StatusCode, Headers: headers, Body: body}, nil
}

// JSONRequest builds a POST carrying payload as JSON, authenticated with a
// bearer token when one is given.
func JSONRequest(endpoint string, bearerToken string, payload any) (core.TransportRequest, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return core.TransportRequest{}, failure(err, goerrors.CategoryBadInput, http.StatusBadRequest,
			"transport: encode json body", map[string]any{"url": strings.TrimSpace(endpoint)})
	}
	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	if token := strings.TrimSpace(bearerToken); token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	return core.TransportRequest{
		Method:  http.MethodPost,
		URL:     strings.TrimSpace(endpoint),
		Headers: headers,
		Body:    body,
	}, nil
}

// JoinURL appends path to base without doubling slashes.
func JoinURL(base string, path string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + "/" + strings.TrimLeft(strings.TrimSpace(path), "/")
}

func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

var _ core.TransportAdapter = (*RESTAdapter)(nil)
