// Package httprequest provides the operator that performs an HTTP request and returns the
// response body as job output.
package httprequest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Config defines the parameters of one request.
type Config struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Timeout time.Duration
	Retries RetryConfig
}

// RetryConfig defines retry behavior for requests.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// Operator performs HTTP requests. Server errors and transport failures are retried; 4xx
// responses are not.
type Operator struct {
	client *http.Client
}

func New() *Operator {
	return &Operator{client: &http.Client{}}
}

func (*Operator) ID() string {
	return "http_request"
}

func (*Operator) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Request URL. Supports templating with job context.",
				"minLength":   1,
			},
			"method": map[string]any{
				"type": "string",
				"enum": []string{
					"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS",
					"get", "post", "put", "delete", "patch", "head", "options",
				},
				"default": "GET",
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{"type": "string"},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Seconds",
				"minimum":     1,
				"maximum":     300,
				"default":     30,
			},
			"retries": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "integer", "minimum": 1, "maximum": 10},
					"delay":    map[string]any{"type": "integer", "minimum": 0, "maximum": 30000},
				},
			},
		},
		"required": []string{"url"},
	}
}

// ParseConfig reads request parameters, applying defaults.
func ParseConfig(params map[string]any) (Config, error) {
	config := Config{
		Method:  http.MethodGet,
		Headers: make(map[string]string),
		Timeout: 30 * time.Second,
		Retries: RetryConfig{Attempts: 1},
	}

	url, ok := params["url"].(string)
	if !ok || url == "" {
		return config, errors.New("missing required field 'url'")
	}

	config.URL = url

	if method, ok := params["method"].(string); ok && method != "" {
		config.Method = strings.ToUpper(method)
	}

	if headers, ok := params["headers"].(map[string]any); ok {
		for k, v := range headers {
			if strVal, ok := v.(string); ok {
				config.Headers[k] = strVal
			}
		}
	}

	if body, ok := params["body"].(string); ok {
		config.Body = body
	}

	if timeout, ok := number(params["timeout"]); ok {
		config.Timeout = time.Duration(timeout * float64(time.Second))
	}

	if retries, ok := params["retries"].(map[string]any); ok {
		if attempts, ok := number(retries["attempts"]); ok && attempts >= 1 {
			config.Retries.Attempts = int(attempts)
		}

		if delay, ok := number(retries["delay"]); ok {
			config.Retries.Delay = time.Duration(delay) * time.Millisecond
		}
	}

	return config, nil
}

func (o *Operator) Execute(ctx context.Context, params map[string]any, logger *slog.Logger) (string, error) {
	config, err := ParseConfig(params)
	if err != nil {
		return "", err
	}

	var lastErr error

	for attempt := 1; attempt <= config.Retries.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(config.Retries.Delay):
			}
		}

		body, err := o.performRequest(ctx, config)
		if err == nil {
			return body, nil
		}

		lastErr = err

		logger.WarnContext(ctx, "HTTP request failed", "attempt", attempt, "url", config.URL, "error", err)

		httpErr := &HTTPError{}
		if errors.As(err, &httpErr) && httpErr.StatusCode < 500 {
			break
		}
	}

	return "", fmt.Errorf("HTTP request failed after %d attempts: %w", config.Retries.Attempts, lastErr)
}

func (o *Operator) performRequest(ctx context.Context, config Config) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	var reqBody io.Reader
	if config.Body != "" {
		reqBody = strings.NewReader(config.Body)
	}

	req, err := http.NewRequestWithContext(ctx, config.Method, config.URL, reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range config.Headers {
		req.Header.Set(key, value)
	}

	if config.Body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return "", &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	return string(respBody), nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
