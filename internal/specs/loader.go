// Package specs loads AgentSpec documents (spec.md §6) from a directory
// and watches it for changes, the way the teacher's agent type service
// validates type definitions before they are registered — except the
// source of truth here is the filesystem, not a repository.
package specs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"

	"github.com/aosanya/agentruntime/internal/types"
)

// ChangeType classifies a spec-directory change event.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change describes one observed change to the spec directory. Spec is nil
// for ChangeRemoved and when Err is set.
type Change struct {
	Type   ChangeType
	SpecID string
	Spec   *types.AgentSpec
	Err    error
}

// Option configures a Loader.
type Option func(*Loader)

// WithSchema validates every AgentSpec document's configuration against the
// given JSON Schema before it is materialized, mirroring
// DefaultAgentTypeService.ValidateAgentConfig.
func WithSchema(schemaJSON []byte) Option {
	return func(l *Loader) {
		l.schemaJSON = schemaJSON
	}
}

// Loader watches a directory of *.json AgentSpec documents and emits
// added/modified/removed change events as files come and go.
type Loader struct {
	dir    string
	logger *logrus.Logger

	schemaJSON []byte
	schema     *gojsonschema.Schema

	mu    sync.Mutex
	known map[string]types.AgentSpec // path -> last-loaded spec

	watcher *fsnotify.Watcher
	changes chan Change
}

// New constructs a Loader for the given directory. The directory need not
// exist yet; LoadAll creates it if missing.
func New(dir string, logger *logrus.Logger, opts ...Option) (*Loader, error) {
	l := &Loader{
		dir:     dir,
		logger:  logger,
		known:   make(map[string]types.AgentSpec),
		changes: make(chan Change, 16),
	}
	for _, opt := range opts {
		opt(l)
	}
	if len(l.schemaJSON) > 0 {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(l.schemaJSON))
		if err != nil {
			return nil, fmt.Errorf("specs: invalid configuration schema: %w", err)
		}
		l.schema = schema
	}
	return l, nil
}

// Changes returns the channel change events are published on.
func (l *Loader) Changes() <-chan Change { return l.changes }

// LoadAll scans the directory synchronously, validates every *.json file,
// and seeds the loader's known-file cache. It returns the specs that
// loaded successfully; files that fail to parse or validate are logged and
// skipped, and no change event is emitted for them.
func (l *Loader) LoadAll() ([]types.AgentSpec, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("specs: create directory: %w", err)
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("specs: read directory: %w", err)
	}

	var loaded []types.AgentSpec
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		spec, err := l.parseAndValidate(path)
		if err != nil {
			l.logger.WithError(err).WithField("path", path).Warn("specs: skipping invalid spec file")
			continue
		}
		l.known[path] = spec
		loaded = append(loaded, spec)
	}
	return loaded, nil
}

// Start begins watching the directory for filesystem changes. It runs
// until ctx is cancelled or Close is called; callers should run it in its
// own goroutine.
func (l *Loader) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("specs: create watcher: %w", err)
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("specs: watch directory: %w", err)
	}
	l.watcher = watcher

	for {
		select {
		case <-ctx.Done():
			watcher.Close()
			close(l.changes)
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				close(l.changes)
				return nil
			}
			l.handleEvent(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				continue
			}
			l.logger.WithError(err).Warn("specs: watcher error")
		}
	}
}

// Close stops the watcher if it has been started.
func (l *Loader) Close() error {
	if l.watcher == nil {
		return nil
	}
	return l.watcher.Close()
}

func (l *Loader) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".json") {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		prior, existed := l.known[event.Name]
		if !existed {
			return
		}
		delete(l.known, event.Name)
		l.emit(Change{Type: ChangeRemoved, SpecID: prior.ID})
		return
	}

	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	spec, err := l.parseAndValidate(event.Name)
	if err != nil {
		l.emit(Change{Type: ChangeModified, Err: err})
		return
	}

	changeType := ChangeAdded
	if _, existed := l.known[event.Name]; existed {
		changeType = ChangeModified
	}
	l.known[event.Name] = spec
	specCopy := spec
	l.emit(Change{Type: changeType, SpecID: spec.ID, Spec: &specCopy})
}

func (l *Loader) emit(c Change) {
	select {
	case l.changes <- c:
	default:
		l.logger.WithField("spec_id", c.SpecID).Warn("specs: change channel full, dropping event")
	}
}

func (l *Loader) parseAndValidate(path string) (types.AgentSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.AgentSpec{}, fmt.Errorf("read %s: %w", path, err)
	}

	var spec types.AgentSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return types.AgentSpec{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return types.AgentSpec{}, fmt.Errorf("validate %s: %w", path, err)
	}

	if l.schema != nil {
		configBytes, err := json.Marshal(spec.Configuration)
		if err != nil {
			return types.AgentSpec{}, fmt.Errorf("marshal configuration for %s: %w", path, err)
		}
		result, err := l.schema.Validate(gojsonschema.NewBytesLoader(configBytes))
		if err != nil {
			return types.AgentSpec{}, fmt.Errorf("schema validation error for %s: %w", path, err)
		}
		if !result.Valid() {
			msgs := make([]string, 0, len(result.Errors()))
			for _, desc := range result.Errors() {
				msgs = append(msgs, desc.String())
			}
			return types.AgentSpec{}, fmt.Errorf("%s: configuration schema violations: %s", path, strings.Join(msgs, "; "))
		}
	}

	return spec, nil
}
