package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxResponseBytes   = 1 << 20
	maxErrorBodyBytes  = 512
)

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

type apiRequest struct {
	provider    string
	method      string
	baseURL     string
	path        string
	bearer      string
	basicUser   string
	basicPass   string
	contentType string
	body        []byte
}

// jsonRequest builds a request with a JSON body. A nil payload sends no body.
func jsonRequest(providerID, method, baseURL, path, bearer string, payload interface{}) (*apiRequest, error) {
	req := &apiRequest{
		provider: providerID,
		method:   method,
		baseURL:  baseURL,
		path:     path,
		bearer:   bearer,
	}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		req.body = body
		req.contentType = "application/json"
	}
	return req, nil
}

// do sends req and classifies failures: transport errors wrap ErrNetwork,
// 401 wraps ErrUnauthorized and any other status >= 400 is a *RequestError.
func do(ctx context.Context, client *http.Client, req *apiRequest) ([]byte, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, strings.TrimRight(req.baseURL, "/")+req.path, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if req.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	if req.basicUser != "" {
		httpReq.SetBasicAuth(req.basicUser, req.basicPass)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, req.provider, req.path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, req.provider, req.path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: %s %s", ErrUnauthorized, req.provider, req.path)
	}
	if resp.StatusCode >= 400 {
		return nil, &RequestError{
			Provider:   req.provider,
			Path:       req.path,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(respBody), maxErrorBodyBytes),
		}
	}

	return respBody, nil
}

func decode(providerID, path string, body []byte, out interface{}) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrInvalidResponse, providerID, path, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func firstNonEmpty(params map[string]string, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(params[key]); v != "" {
			return v
		}
	}
	return ""
}
