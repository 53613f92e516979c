package command_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/jobflow/pkg/operators/command"
)

func skipOnWindows(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestExecOperator(t *testing.T) {
	skipOnWindows(t)

	tests := []struct {
		name    string
		params  map[string]any
		want    string
		wantErr string
	}{
		{
			name:   "echo with args",
			params: map[string]any{"command": "echo", "args": []any{"job", "ok", 3}},
			want:   "job ok 3",
		},
		{
			name:   "env is passed",
			params: map[string]any{"command": "sh", "args": []any{"-c", "echo $GREETING"}, "env": map[string]any{"GREETING": "hi"}},
			want:   "hi",
		},
		{
			name:    "non-zero exit",
			params:  map[string]any{"command": "sh", "args": []any{"-c", "echo failing; exit 3"}},
			want:    "failing",
			wantErr: "exited with code 3",
		},
		{
			name:    "missing command",
			params:  map[string]any{},
			wantErr: "missing required field 'command'",
		},
		{
			name:    "timeout",
			params:  map[string]any{"command": "sleep", "args": []any{"5"}, "timeout": 0.1},
			wantErr: "sleep",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := command.NewExec().Execute(context.Background(), tt.params, slog.Default())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScriptOperator(t *testing.T) {
	skipOnWindows(t)

	script := filepath.Join(t.TempDir(), "hello.sh")
	require.NoError(t, os.WriteFile(script, []byte("echo \"hello $1\"\n"), 0o600))

	got, err := command.NewScript().Execute(context.Background(), map[string]any{
		"script": script,
		"args":   []any{"world"},
	}, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)

	_, err = command.NewScript().Execute(context.Background(), map[string]any{
		"script": filepath.Join(t.TempDir(), "missing.sh"),
	}, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script not readable")
}
