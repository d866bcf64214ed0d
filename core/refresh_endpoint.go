package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPRefreshEndpoint posts a JSON refresh payload to the profile's
// refresh URL and decodes the JSON response body.
type HTTPRefreshEndpoint struct {
	client  *http.Client
	timeout time.Duration
	headers map[string]string
}

type HTTPRefreshOption func(*HTTPRefreshEndpoint)

func WithHTTPClient(client *http.Client) HTTPRefreshOption {
	return func(e *HTTPRefreshEndpoint) {
		if client != nil {
			e.client = client
		}
	}
}

func WithRequestTimeout(timeout time.Duration) HTTPRefreshOption {
	return func(e *HTTPRefreshEndpoint) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

func WithRequestHeader(key, value string) HTTPRefreshOption {
	return func(e *HTTPRefreshEndpoint) {
		if e.headers == nil {
			e.headers = make(map[string]string)
		}
		e.headers[key] = value
	}
}

func NewHTTPRefreshEndpoint(options ...HTTPRefreshOption) *HTTPRefreshEndpoint {
	endpoint := &HTTPRefreshEndpoint{
		client:  &http.Client{Timeout: DefaultRefreshTimeout},
		timeout: DefaultRefreshTimeout,
	}
	for _, option := range options {
		option(endpoint)
	}
	return endpoint
}

const maxRefreshResponseBytes = 1 << 20

func (e *HTTPRefreshEndpoint) Call(ctx context.Context, refreshURL string, payload map[string]any) (map[string]any, error) {
	if refreshURL == "" {
		return nil, fmt.Errorf("core: refresh URL is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("core: encode refresh payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, refreshURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("core: build refresh request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	for key, value := range e.headers {
		request.Header.Set(key, value)
	}

	response, err := e.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("core: refresh request: %w", err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxRefreshResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("core: read refresh response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, fmt.Errorf("core: refresh endpoint returned %d", response.StatusCode)
	}

	decoded := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, fmt.Errorf("core: decode refresh response: %w", err)
		}
	}
	return decoded, nil
}
