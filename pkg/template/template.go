// Package template renders job parameters with text/template before an operator runs.
package template

import (
	"crypto/rand"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/jobflow/pkg/models"
)

// JobContext builds the data exposed to parameter templates for one fire of job.
func JobContext(job *models.Job, scheduledAt time.Time) map[string]any {
	return map[string]any{
		"job": map[string]any{
			"id":          job.ID,
			"name":        job.Name,
			"workflow_id": job.WorkflowID,
			"operator":    job.OperatorID,
		},
		"scheduled_at": scheduledAt.UTC().Format(time.RFC3339),
		"env":          getEnvVars(),
	}
}

// NeedsTemplating reports whether s contains template actions.
func NeedsTemplating(s string) bool {
	return strings.Contains(s, "{{")
}

// RenderParams returns a copy of params with every templated string rendered against data,
// descending into nested maps and lists.
func RenderParams(params map[string]any, data any) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}

	out := make(map[string]any, len(params))

	for key, value := range params {
		rendered, err := renderValue(value, data)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", key, err)
		}

		out[key] = rendered
	}

	return out, nil
}

func renderValue(value, data any) (any, error) {
	switch v := value.(type) {
	case string:
		if !NeedsTemplating(v) {
			return v, nil
		}

		return Render(v, data)
	case map[string]any:
		return RenderParams(v, data)
	case []any:
		out := make([]any, len(v))

		for i, item := range v {
			rendered, err := renderValue(item, data)
			if err != nil {
				return nil, err
			}

			out[i] = rendered
		}

		return out, nil
	default:
		return value, nil
	}
}

// Render executes templateStr against data.
func Render(templateStr string, data any) (string, error) {
	tmpl, err := template.
		New("param").
		Option("missingkey=error").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(upper int) int {
				if upper <= 0 {
					return 0
				}

				num := make([]byte, 1)

				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % upper
			},
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}

// getEnvVars returns environment variables as a map.
func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
