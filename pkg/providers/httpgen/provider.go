// Package httpgen provides a generic JSON-over-HTTP provider adapter for
// hosted generation APIs that follow the submit-then-poll shape: a POST
// returns a prediction id, a GET reports its status.
package httpgen

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
)

const defaultTimeoutSeconds = 30

// Config defines the capability-level configuration for an HTTP generation
// provider.
type Config struct {
	SubmitURL string            `json:"submit_url"`
	StatusURL string            `json:"status_url"` // prediction id is appended as a path segment
	CancelURL string            `json:"cancel_url,omitempty"`
	Headers   map[string]string `json:"headers"`
	Timeout   int               `json:"timeout"` // seconds, per HTTP call

	// IDField names the response field carrying the prediction id.
	IDField string `json:"id_field"`

	// StatusMap translates provider status strings onto the canonical
	// vocabulary. Unmapped values are treated as still processing.
	StatusMap map[string]string `json:"status_map"`
}

// ParseConfig builds a Config from an opaque configuration payload,
// applying defaults.
func ParseConfig(raw map[string]any) (Config, error) {
	cfg := Config{
		Headers:   make(map[string]string),
		Timeout:   defaultTimeoutSeconds,
		IDField:   "id",
		StatusMap: make(map[string]string),
	}

	submitURL, ok := raw["submit_url"].(string)
	if !ok || submitURL == "" {
		return cfg, errors.New("missing required field 'submit_url'")
	}

	cfg.SubmitURL = submitURL

	statusURL, ok := raw["status_url"].(string)
	if !ok || statusURL == "" {
		return cfg, errors.New("missing required field 'status_url'")
	}

	cfg.StatusURL = statusURL

	if cancelURL, ok := raw["cancel_url"].(string); ok {
		cfg.CancelURL = cancelURL
	}

	if headers, ok := raw["headers"].(map[string]any); ok {
		for k, v := range headers {
			if strVal, ok := v.(string); ok {
				cfg.Headers[k] = strVal
			}
		}
	}

	if timeout, ok := raw["timeout"].(float64); ok {
		cfg.Timeout = int(timeout)
	}

	if idField, ok := raw["id_field"].(string); ok && idField != "" {
		cfg.IDField = idField
	}

	if statusMap, ok := raw["status_map"].(map[string]any); ok {
		for k, v := range statusMap {
			if strVal, ok := v.(string); ok {
				cfg.StatusMap[k] = strVal
			}
		}
	}

	return cfg, nil
}

// HTTPError represents a non-2xx provider response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func newClient(timeoutSeconds int) *http.Client {
	return &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second}
}

func doJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body any) (map[string]any, error) {
	var reqBody io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}

		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	result := make(map[string]any)
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return result, nil
}

func joinURL(base, segment string) string {
	return strings.TrimSuffix(base, "/") + "/" + segment
}
