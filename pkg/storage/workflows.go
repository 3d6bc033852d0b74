// Package storage provides the file-backed persistence collaborators the
// engine consumes: a workflow repository of YAML-or-JSON documents and a
// JSON credential store. Both are safe for concurrent readers; writers are
// serialized internally.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/autoqliq/autoqliq/pkg/action"
	"github.com/autoqliq/autoqliq/pkg/errors"
)

// workflowDocument is the on-disk shape of one workflow. YAML files are
// normalized through JSON, so the field names below are the wire contract
// for both encodings.
type workflowDocument struct {
	Name    string           `json:"name"`
	Actions []map[string]any `json:"actions"`
}

var workflowExtensions = []string{".json", ".yaml", ".yml"}

// FileWorkflowRepository stores each workflow as one document under a
// directory. Loads are cached; a directory watcher invalidates cache
// entries when files change underneath the process.
type FileWorkflowRepository struct {
	dir     string
	factory *action.Factory
	logger  *slog.Logger

	mu      sync.RWMutex
	cache   map[string][]action.Action
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFileWorkflowRepository opens (creating if needed) the workflow
// directory and starts the change watcher. Close releases the watcher.
func NewFileWorkflowRepository(dir string, factory *action.Factory, logger *slog.Logger) (*FileWorkflowRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if factory == nil {
		factory = action.NewFactory()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewRepository("cannot create workflow directory "+dir, err)
	}
	r := &FileWorkflowRepository{
		dir:     dir,
		factory: factory,
		logger:  logger,
		cache:   make(map[string][]action.Action),
		done:    make(chan struct{}),
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("workflow change watching disabled", "error", err)
		return r, nil
	}
	if err := watcher.Add(dir); err != nil {
		logger.Warn("workflow change watching disabled", "dir", dir, "error", err)
		_ = watcher.Close()
		return r, nil
	}
	r.watcher = watcher
	go r.watch()
	return r, nil
}

func (r *FileWorkflowRepository) watch() {
	for {
		select {
		case <-r.done:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			name := workflowNameFromPath(event.Name)
			if name == "" {
				continue
			}
			r.mu.Lock()
			delete(r.cache, name)
			r.mu.Unlock()
			r.logger.Debug("workflow cache invalidated", "workflow", name, "op", event.Op.String())
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("workflow watcher error", "error", err)
		}
	}
}

// Close stops the change watcher.
func (r *FileWorkflowRepository) Close() error {
	close(r.done)
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

// List returns the stored workflow names, sorted.
func (r *FileWorkflowRepository) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, errors.NewRepository("cannot list workflows", err)
	}
	seen := make(map[string]bool)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := workflowNameFromPath(entry.Name())
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Load reads and decodes one workflow. Decoded actions are cached until the
// backing file changes.
func (r *FileWorkflowRepository) Load(_ context.Context, name string) ([]action.Action, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	r.mu.RLock()
	cached, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	path, err := r.find(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewRepository("cannot read workflow "+name, err)
	}

	var doc workflowDocument
	if err := sigsyaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewRepository("workflow "+name+" is not a valid document", err)
	}
	actions, err := r.factory.CreateActions(doc.Actions)
	if err != nil {
		return nil, errors.Wrap(errors.KindRepository, "workflow "+name+" contains invalid actions", err)
	}

	r.mu.Lock()
	r.cache[name] = actions
	r.mu.Unlock()
	return actions, nil
}

// Save writes a workflow as a JSON document, replacing any existing file
// for that name.
func (r *FileWorkflowRepository) Save(_ context.Context, name string, actions []action.Action) error {
	if err := validateName(name); err != nil {
		return err
	}
	doc := workflowDocument{Name: name, Actions: action.ToMaps(actions)}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.NewRepository("cannot encode workflow "+name, err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(r.dir, name+".json"), data, 0o644); err != nil {
		return errors.NewRepository("cannot write workflow "+name, err)
	}
	r.mu.Lock()
	r.cache[name] = append([]action.Action(nil), actions...)
	r.mu.Unlock()
	return nil
}

// Create stores a new empty workflow. Existing names are rejected.
func (r *FileWorkflowRepository) Create(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if _, err := r.find(name); err == nil {
		return errors.NewRepository("workflow "+name+" already exists", nil)
	}
	return r.Save(ctx, name, nil)
}

// Delete removes a workflow. It reports whether anything was deleted.
func (r *FileWorkflowRepository) Delete(_ context.Context, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	path, err := r.find(name)
	if err != nil {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, errors.NewRepository("cannot delete workflow "+name, err)
	}
	r.mu.Lock()
	delete(r.cache, name)
	r.mu.Unlock()
	return true, nil
}

// GetMetadata returns file-level metadata for one workflow.
func (r *FileWorkflowRepository) GetMetadata(ctx context.Context, name string) (map[string]any, error) {
	path, err := r.find(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.NewRepository("cannot stat workflow "+name, err)
	}
	actions, err := r.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"name":         name,
		"path":         path,
		"size_bytes":   info.Size(),
		"modified_at":  info.ModTime().UTC().Format("2006-01-02T15:04:05Z07:00"),
		"action_count": len(actions),
	}, nil
}

func (r *FileWorkflowRepository) find(name string) (string, error) {
	for _, ext := range workflowExtensions {
		path := filepath.Join(r.dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", errors.NewRepository("workflow "+name+" not found", nil)
}

func workflowNameFromPath(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	for _, known := range workflowExtensions {
		if ext == known {
			return strings.TrimSuffix(base, ext)
		}
	}
	return ""
}

func validateName(name string) error {
	if name == "" {
		return errors.NewRepository("workflow name must not be empty", nil)
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return errors.NewRepository(fmt.Sprintf("workflow name %q must not contain path elements", name), nil)
	}
	return nil
}
