// Package definition loads workflow definition files from a directory and validates them.
package definition

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dukex/jobflow/pkg/models"
	"github.com/dukex/jobflow/pkg/trigger"
)

var (
	ErrInvalidDocument    = errors.New("invalid workflow document")
	ErrNameMismatch       = errors.New("workflow name does not match file name")
	ErrDuplicateJob       = errors.New("duplicate job name")
	ErrDanglingDependency = errors.New("depends_on references an unknown job")
	ErrDependencyTrigger  = errors.New("depends_on and the dependency trigger must be used together")
)

// ParamsValidator checks operator parameters; the operator registry implements it.
type ParamsValidator interface {
	Validate(operatorID string, params map[string]any) error
}

// Document is one definition file as found on disk. Err is set when the file could not be parsed
// or failed validation; Spec is nil in that case.
type Document struct {
	Path        string
	Name        string
	Fingerprint string
	Spec        *models.WorkflowDocument
	Err         error
}

// Valid reports whether the document can be applied.
func (d Document) Valid() bool {
	return d.Err == nil && d.Spec != nil
}

// Source reads *.yaml and *.yml files from the root of a directory.
type Source struct {
	logger   *slog.Logger
	root     string
	fsys     fs.FS
	validate *validator.Validate
	params   ParamsValidator
}

// NewSource returns a Source over the directory root. params may be nil to skip operator checks.
func NewSource(logger *slog.Logger, root string, params ParamsValidator) *Source {
	return NewSourceFS(logger, root, os.DirFS(root), params)
}

// NewSourceFS reads definitions from fsys; root is only used to build document paths.
func NewSourceFS(logger *slog.Logger, root string, fsys fs.FS, params ParamsValidator) *Source {
	return &Source{
		logger:   logger.With("module", "definition"),
		root:     root,
		fsys:     fsys,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		params:   params,
	}
}

// Root returns the directory the source reads from.
func (s *Source) Root() string {
	return s.root
}

// Load returns every definition file of the directory ordered by path. Invalid files are returned
// with Err set; only an unreadable directory is an error.
func (s *Source) Load(ctx context.Context) ([]Document, error) {
	var files []string

	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := fs.Glob(s.fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to list definitions in %s: %w", s.root, err)
		}

		files = append(files, matches...)
	}

	_, err := fs.Stat(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions directory %s: %w", s.root, err)
	}

	sort.Strings(files)

	documents := make([]Document, 0, len(files))

	for _, file := range files {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		doc := s.loadFile(file)
		if doc.Err != nil {
			s.logger.WarnContext(ctx, "Invalid workflow definition", "path", doc.Path, "error", doc.Err)
		}

		documents = append(documents, doc)
	}

	return documents, nil
}

func (s *Source) loadFile(file string) Document {
	doc := Document{
		Path: filepath.Join(s.root, file),
		Name: strings.TrimSuffix(file, path.Ext(file)),
	}

	data, err := fs.ReadFile(s.fsys, file)
	if err != nil {
		doc.Err = fmt.Errorf("failed to read %s: %w", file, err)
		return doc
	}

	doc.Fingerprint = Fingerprint(data)

	spec, err := Parse(data)
	if err != nil {
		doc.Err = err
		return doc
	}

	err = s.Validate(doc.Name, spec)
	if err != nil {
		doc.Err = err
		return doc
	}

	doc.Spec = spec

	return doc
}

// Parse decodes one workflow document.
func Parse(data []byte) (*models.WorkflowDocument, error) {
	var doc models.WorkflowDocument

	decoder := yaml.NewDecoder(bytes.NewReader(data))

	err := decoder.Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	return &doc, nil
}

// Validate checks doc against the rules a loadable workflow must satisfy. name is the file base
// name the workflow must be declared with.
func (s *Source) Validate(name string, doc *models.WorkflowDocument) error {
	err := s.validate.Struct(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	if doc.Workflow.Name != name {
		return fmt.Errorf("%w: declared %q in %q", ErrNameMismatch, doc.Workflow.Name, name)
	}

	names := make(map[string]struct{}, len(doc.Workflow.Jobs))

	for _, job := range doc.Workflow.Jobs {
		if _, ok := names[job.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateJob, job.Name)
		}

		names[job.Name] = struct{}{}
	}

	var errs []error

	for _, job := range doc.Workflow.Jobs {
		err := s.validateJob(job, names)
		if err != nil {
			errs = append(errs, fmt.Errorf("job %q: %w", job.Name, err))
		}
	}

	return errors.Join(errs...)
}

func (s *Source) validateJob(job *models.JobSpec, names map[string]struct{}) error {
	if job.DependsOn != "" {
		if _, ok := names[job.DependsOn]; !ok || job.DependsOn == job.Name {
			return fmt.Errorf("%w: %q", ErrDanglingDependency, job.DependsOn)
		}
	}

	if (job.DependsOn != "") != (job.Kind == models.TriggerDependency) {
		return ErrDependencyTrigger
	}

	err := trigger.Validate(job.TriggerSpec)
	if err != nil {
		return err
	}

	if s.params != nil {
		err = s.params.Validate(job.Operator, job.Params)
		if err != nil {
			return err
		}
	}

	return nil
}

// Fingerprint identifies the content of a definition file.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}
