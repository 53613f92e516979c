// Package log provides the operator that writes a message to the job logger.
package log

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Operator logs params.message at params.level and returns the message as output.
type Operator struct{}

func New() *Operator {
	return &Operator{}
}

func (*Operator) ID() string {
	return "log"
}

func (*Operator) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports templating with job context.",
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"enum":        []string{"debug", "info", "warn", "error"},
				"default":     "info",
			},
		},
		"required": []string{"message"},
	}
}

func (*Operator) Execute(ctx context.Context, params map[string]any, logger *slog.Logger) (string, error) {
	message, ok := params["message"].(string)
	if !ok {
		return "", errors.New("missing required field 'message'")
	}

	level, _ := params["level"].(string)

	switch strings.ToLower(level) {
	case "debug":
		logger.DebugContext(ctx, message)
	case "warn":
		logger.WarnContext(ctx, message)
	case "error":
		logger.ErrorContext(ctx, message)
	default:
		logger.InfoContext(ctx, message)
	}

	return message, nil
}
