// Package command provides operators that run external executables: exec runs a command
// directly, script runs a script file through an interpreter.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

const defaultInterpreter = "/bin/sh"

// maxOutputInError bounds how much output is copied into an error message.
const maxOutputInError = 2048

// invocation is a fully resolved external process.
type invocation struct {
	path    string
	args    []string
	env     map[string]string
	workdir string
	timeout time.Duration
}

// ExecOperator runs params.command with params.args.
type ExecOperator struct{}

func NewExec() *ExecOperator {
	return &ExecOperator{}
}

func (*ExecOperator) ID() string {
	return "exec"
}

func (*ExecOperator) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": withCommonProperties(map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Executable to run, resolved through PATH",
				"minLength":   1,
			},
		}),
		"required": []string{"command"},
	}
}

func (*ExecOperator) Execute(ctx context.Context, params map[string]any, logger *slog.Logger) (string, error) {
	command, _ := params["command"].(string)
	if command == "" {
		return "", errors.New("missing required field 'command'")
	}

	inv, err := parseCommon(params)
	if err != nil {
		return "", err
	}

	inv.path = command

	return run(ctx, inv, logger)
}

// ScriptOperator runs params.script with params.interpreter (default /bin/sh).
type ScriptOperator struct{}

func NewScript() *ScriptOperator {
	return &ScriptOperator{}
}

func (*ScriptOperator) ID() string {
	return "script"
}

func (*ScriptOperator) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": withCommonProperties(map[string]any{
			"script": map[string]any{
				"type":        "string",
				"description": "Path of the script file",
				"minLength":   1,
			},
			"interpreter": map[string]any{
				"type":        "string",
				"description": "Interpreter the script is passed to",
				"default":     defaultInterpreter,
			},
		}),
		"required": []string{"script"},
	}
}

func (*ScriptOperator) Execute(ctx context.Context, params map[string]any, logger *slog.Logger) (string, error) {
	script, _ := params["script"].(string)
	if script == "" {
		return "", errors.New("missing required field 'script'")
	}

	if _, err := os.Stat(script); err != nil {
		return "", fmt.Errorf("script not readable: %w", err)
	}

	inv, err := parseCommon(params)
	if err != nil {
		return "", err
	}

	interpreter, _ := params["interpreter"].(string)
	if interpreter == "" {
		interpreter = defaultInterpreter
	}

	inv.path = interpreter
	inv.args = append([]string{script}, inv.args...)

	return run(ctx, inv, logger)
}

func withCommonProperties(properties map[string]any) map[string]any {
	properties["args"] = map[string]any{
		"type":  "array",
		"items": map[string]any{"type": []string{"string", "number", "boolean"}},
	}
	properties["env"] = map[string]any{
		"type":                 "object",
		"additionalProperties": map[string]any{"type": "string"},
	}
	properties["workdir"] = map[string]any{"type": "string"}
	properties["timeout"] = map[string]any{
		"type":        "number",
		"description": "Seconds before the process is killed; 0 means no limit",
		"minimum":     0,
	}

	return properties
}

func parseCommon(params map[string]any) (invocation, error) {
	inv := invocation{env: map[string]string{}}

	switch args := params["args"].(type) {
	case nil:
	case []any:
		for _, arg := range args {
			inv.args = append(inv.args, fmt.Sprint(arg))
		}
	case []string:
		inv.args = append(inv.args, args...)
	default:
		return inv, fmt.Errorf("args must be a list, got %T", args)
	}

	if env, ok := params["env"].(map[string]any); ok {
		for k, v := range env {
			inv.env[k] = fmt.Sprint(v)
		}
	}

	inv.workdir, _ = params["workdir"].(string)

	switch timeout := params["timeout"].(type) {
	case int:
		inv.timeout = time.Duration(timeout) * time.Second
	case float64:
		inv.timeout = time.Duration(timeout * float64(time.Second))
	}

	return inv, nil
}

func run(ctx context.Context, inv invocation, logger *slog.Logger) (string, error) {
	if inv.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, inv.path, inv.args...)
	cmd.Dir = inv.workdir

	if len(inv.env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range inv.env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	var output bytes.Buffer

	cmd.Stdout = &output
	cmd.Stderr = &output

	logger.DebugContext(ctx, "Running command", "path", inv.path, "args", inv.args)

	start := time.Now()
	err := cmd.Run()
	out := strings.TrimRight(output.String(), "\n")

	logger.DebugContext(ctx, "Command finished", "path", inv.path, "duration", time.Since(start), "error", err)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, fmt.Errorf("%s exited with code %d: %s", inv.path, exitErr.ExitCode(), tail(out))
		}

		return out, fmt.Errorf("failed to run %s: %w", inv.path, err)
	}

	return out, nil
}

func tail(s string) string {
	if len(s) <= maxOutputInError {
		return s
	}

	return "..." + s[len(s)-maxOutputInError:]
}
