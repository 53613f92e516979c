package definition

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/jobflow/pkg/models"
	"github.com/dukex/jobflow/pkg/registry"
	"github.com/dukex/jobflow/pkg/testutil"
	"github.com/dukex/jobflow/pkg/trigger"
)

const reportYAML = `version: "1"
workflow:
  name: report
  jobs:
    - name: extract
      operator: log
      trigger: cron
      hour: "2"
      message: "extracting {{ .job.name }}"
    - name: notify
      operator: log
      trigger: dependency
      depends_on: extract
      dependency_logs_pattern: ok
      run_if_pattern_match: false
      message: done
      level: warn
`

func newTestSource(t *testing.T, files fstest.MapFS) *Source {
	t.Helper()

	reg := registry.NewRegistry(testutil.Logger())
	require.NoError(t, reg.RegisterDefaultOperators())

	return NewSourceFS(testutil.Logger(), "/workflows", files, reg)
}

func TestLoad_ParsesDocument(t *testing.T) {
	source := newTestSource(t, fstest.MapFS{
		"report.yaml": {Data: []byte(reportYAML)},
		"README.md":   {Data: []byte("not a workflow")},
	})

	docs, err := source.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)

	doc := docs[0]
	require.True(t, doc.Valid(), "unexpected error: %v", doc.Err)
	assert.Equal(t, "/workflows/report.yaml", doc.Path)
	assert.Equal(t, "report", doc.Name)
	assert.Equal(t, Fingerprint([]byte(reportYAML)), doc.Fingerprint)

	jobs := doc.Spec.Workflow.Jobs
	require.Len(t, jobs, 2)

	extract := jobs[0]
	assert.Equal(t, "log", extract.Operator)
	assert.Equal(t, models.TriggerCron, extract.Kind)
	assert.Equal(t, "2", extract.Hour)
	assert.Equal(t, map[string]any{"message": "extracting {{ .job.name }}"}, extract.Params)
	assert.True(t, extract.RunIfMatch())

	notify := jobs[1]
	assert.Equal(t, models.TriggerDependency, notify.Kind)
	assert.Equal(t, "extract", notify.DependsOn)
	assert.Equal(t, "ok", notify.DependencyLogsPattern)
	assert.False(t, notify.RunIfMatch())
	assert.Equal(t, map[string]any{"message": "done", "level": "warn"}, notify.Params)
}

func TestLoad_ReturnsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want error
	}{
		{
			name: "not yaml",
			file: "broken.yaml",
			body: "workflow: [unclosed",
			want: ErrInvalidDocument,
		},
		{
			name: "missing version",
			file: "w.yaml",
			body: "workflow:\n  name: w\n  jobs:\n    - {name: a, operator: log, trigger: date, run_date: '2030-01-01', message: hi}\n",
			want: ErrInvalidDocument,
		},
		{
			name: "no jobs",
			file: "w.yaml",
			body: "version: '1'\nworkflow:\n  name: w\n  jobs: []\n",
			want: ErrInvalidDocument,
		},
		{
			name: "unknown trigger kind",
			file: "w.yaml",
			body: "version: '1'\nworkflow:\n  name: w\n  jobs:\n    - {name: a, operator: log, trigger: hourly, message: hi}\n",
			want: ErrInvalidDocument,
		},
		{
			name: "name differs from file",
			file: "other.yml",
			body: "version: '1'\nworkflow:\n  name: w\n  jobs:\n    - {name: a, operator: log, trigger: interval, minutes: 5, message: hi}\n",
			want: ErrNameMismatch,
		},
		{
			name: "duplicate job",
			file: "w.yaml",
			body: "version: '1'\nworkflow:\n  name: w\n  jobs:\n    - {name: a, operator: log, trigger: interval, minutes: 5, message: hi}\n    - {name: a, operator: log, trigger: interval, minutes: 5, message: hi}\n",
			want: ErrDuplicateJob,
		},
		{
			name: "dangling depends_on",
			file: "w.yaml",
			body: "version: '1'\nworkflow:\n  name: w\n  jobs:\n    - {name: b, operator: log, trigger: dependency, depends_on: a, message: hi}\n",
			want: ErrDanglingDependency,
		},
		{
			name: "self dependency",
			file: "w.yaml",
			body: "version: '1'\nworkflow:\n  name: w\n  jobs:\n    - {name: b, operator: log, trigger: dependency, depends_on: b, message: hi}\n",
			want: ErrDanglingDependency,
		},
		{
			name: "dependency trigger without depends_on",
			file: "w.yaml",
			body: "version: '1'\nworkflow:\n  name: w\n  jobs:\n    - {name: b, operator: log, trigger: dependency, message: hi}\n",
			want: ErrDependencyTrigger,
		},
		{
			name: "calendar trigger with depends_on",
			file: "w.yaml",
			body: "version: '1'\nworkflow:\n  name: w\n  jobs:\n    - {name: a, operator: log, trigger: interval, minutes: 5, message: hi}\n    - {name: b, operator: log, trigger: interval, minutes: 5, depends_on: a, message: hi}\n",
			want: ErrDependencyTrigger,
		},
		{
			name: "zero interval",
			file: "w.yaml",
			body: "version: '1'\nworkflow:\n  name: w\n  jobs:\n    - {name: a, operator: log, trigger: interval, message: hi}\n",
			want: trigger.ErrInvalidTrigger,
		},
		{
			name: "unknown operator",
			file: "w.yaml",
			body: "version: '1'\nworkflow:\n  name: w\n  jobs:\n    - {name: a, operator: notebook, trigger: interval, minutes: 1}\n",
			want: registry.ErrOperatorNotRegistered,
		},
		{
			name: "params violate operator schema",
			file: "w.yaml",
			body: "version: '1'\nworkflow:\n  name: w\n  jobs:\n    - {name: a, operator: log, trigger: interval, minutes: 1, level: loud, message: hi}\n",
			want: registry.ErrInvalidParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := newTestSource(t, fstest.MapFS{tt.file: {Data: []byte(tt.body)}})

			docs, err := source.Load(context.Background())
			require.NoError(t, err)
			require.Len(t, docs, 1)

			assert.False(t, docs[0].Valid())
			assert.Nil(t, docs[0].Spec)
			assert.ErrorIs(t, docs[0].Err, tt.want)
		})
	}
}

func TestLoad_OrderedByPath(t *testing.T) {
	body := func(name string) []byte {
		return []byte("version: '1'\nworkflow:\n  name: " + name + "\n  jobs:\n    - {name: a, operator: log, trigger: interval, minutes: 1, message: hi}\n")
	}

	source := newTestSource(t, fstest.MapFS{
		"b.yml":  {Data: body("b")},
		"a.yaml": {Data: body("a")},
		"c.yaml": {Data: body("c")},
	})

	docs, err := source.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "a", docs[0].Name)
	assert.Equal(t, "b", docs[1].Name)
	assert.Equal(t, "c", docs[2].Name)

	for _, doc := range docs {
		assert.True(t, doc.Valid(), "%s: %v", doc.Path, doc.Err)
	}
}

func TestLoad_MissingDirectory(t *testing.T) {
	source := NewSource(testutil.Logger(), t.TempDir()+"/missing", nil)

	_, err := source.Load(context.Background())
	require.Error(t, err)
}

func TestFingerprint_ChangesWithContent(t *testing.T) {
	assert.Equal(t, Fingerprint([]byte("a")), Fingerprint([]byte("a")))
	assert.NotEqual(t, Fingerprint([]byte("a")), Fingerprint([]byte("b")))
	assert.Len(t, Fingerprint(nil), 64)
}
