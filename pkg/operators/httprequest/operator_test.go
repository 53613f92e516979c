package httprequest_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/jobflow/pkg/operators/httprequest"
)

func TestParseConfig(t *testing.T) {
	config, err := httprequest.ParseConfig(map[string]any{
		"url":     "http://example.com",
		"method":  "post",
		"headers": map[string]any{"X-Token": "abc", "X-Ignored": 1},
		"timeout": 5,
		"retries": map[string]any{"attempts": 3.0, "delay": 250},
	})
	require.NoError(t, err)

	assert.Equal(t, "POST", config.Method)
	assert.Equal(t, map[string]string{"X-Token": "abc"}, config.Headers)
	assert.Equal(t, 5*time.Second, config.Timeout)
	assert.Equal(t, 3, config.Retries.Attempts)
	assert.Equal(t, 250*time.Millisecond, config.Retries.Delay)

	_, err = httprequest.ParseConfig(map[string]any{})
	require.Error(t, err)
}

func TestOperator_Execute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, `{"ping":true}`, string(body))

		_, _ = w.Write([]byte("pong ok"))
	}))
	defer server.Close()

	got, err := httprequest.New().Execute(context.Background(), map[string]any{
		"url":    server.URL,
		"method": "POST",
		"body":   `{"ping":true}`,
	}, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "pong ok", got)
}

func TestOperator_RetriesServerErrorsOnly(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{"server error is retried", http.StatusBadGateway, 3},
		{"client error is not retried", http.StatusNotFound, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := httprequest.New().Execute(context.Background(), map[string]any{
				"url":     server.URL,
				"retries": map[string]any{"attempts": 3, "delay": 1},
			}, slog.Default())
			require.Error(t, err)

			var httpErr *httprequest.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}
