// Package registry maps operator ids to the code that executes jobs.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrOperatorNotRegistered is returned for unknown operator ids.
	ErrOperatorNotRegistered = errors.New("operator not registered")

	// ErrInvalidParams is returned when job parameters violate the operator schema.
	ErrInvalidParams = errors.New("invalid operator parameters")
)

// Operator runs one job fire and returns its textual output.
type Operator interface {
	ID() string
	// Schema is the JSON schema of the job parameters; nil accepts anything.
	Schema() map[string]any
	Execute(ctx context.Context, params map[string]any, logger *slog.Logger) (string, error)
}

// Registry holds the operators known to this process, registered at startup.
type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	operators map[string]Operator
	schemas   map[string]*gojsonschema.Schema
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log.With("module", "registry"),
		operators: make(map[string]Operator),
		schemas:   make(map[string]*gojsonschema.Schema),
	}
}

// Register adds op, replacing any operator with the same id.
func (r *Registry) Register(op Operator) error {
	var schema *gojsonschema.Schema

	if raw := op.Schema(); raw != nil {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(raw))
		if err != nil {
			return fmt.Errorf("invalid schema for operator %s: %w", op.ID(), err)
		}

		schema = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.operators[op.ID()] = op
	r.schemas[op.ID()] = schema

	r.logger.Debug("Registered operator", "operator", op.ID())

	return nil
}

// Get returns the operator registered under id.
func (r *Registry) Get(id string) (Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.operators[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperatorNotRegistered, id)
	}

	return op, nil
}

// IDs lists registered operator ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.operators))
	for id := range r.operators {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Validate checks that id is registered and params satisfy its schema.
func (r *Registry) Validate(id string, params map[string]any) error {
	if _, err := r.Get(id); err != nil {
		return err
	}

	r.mu.RLock()
	schema := r.schemas[id]
	r.mu.RUnlock()

	if schema == nil {
		return nil
	}

	if params == nil {
		params = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return fmt.Errorf("failed to validate params for operator %s: %w", id, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("%w for %s: %s", ErrInvalidParams, id, strings.Join(messages, "; "))
	}

	return nil
}

// Execute runs the operator registered under id.
func (r *Registry) Execute(ctx context.Context, id string, params map[string]any, logger *slog.Logger) (string, error) {
	op, err := r.Get(id)
	if err != nil {
		return "", err
	}

	return op.Execute(ctx, params, logger.With("operator", id))
}

// LoadOperatorPlugins opens every *.so below pluginsPath/operators and registers the
// exported Operator symbol of each.
func (r *Registry) LoadOperatorPlugins(pluginsPath string) ([]Operator, error) {
	operators, err := loadPlugin[Operator](r.logger, pluginsPath, "Operator")
	if err != nil {
		return nil, err
	}

	for _, op := range operators {
		if err := r.Register(op); err != nil {
			return nil, err
		}
	}

	return operators, nil
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := filepath.Join(pluginsPath, strings.ToLower(symbolName)+"s")

	if _, err := os.Stat(rootPath); errors.Is(err, fs.ErrNotExist) {
		logger.Info("No plugin directory", "path", rootPath)

		return nil, nil
	}

	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "*.so")
	if err != nil {
		return nil, err
	}

	nested, err := fs.Glob(root, "*/*.so")
	if err != nil {
		return nil, err
	}

	pluginPathList = append(pluginPathList, nested...)

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins", "count", len(pluginPathList))

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(filepath.Join(rootPath, p))
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s does not export %s: %w", p, symbolName, err)
		}

		switch castV := v.(type) {
		case T:
			pluginList = append(pluginList, castV)
		case *T:
			pluginList = append(pluginList, *castV)
		default:
			return nil, fmt.Errorf("plugin %s: symbol %s has type %T", p, symbolName, v)
		}

		l.Info("Loaded plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
