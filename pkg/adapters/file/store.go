// Package file implements the flow, instance and log stores on the local filesystem.
//
// Layout under the base directory:
//
//	flows/<id>.yaml       one flow definition per file, editable by hand
//	instances/<id>.json   one conversation instance per file
//	logs/<id>.jsonl       the execution trace of one instance, one entry per line
//
// Version checks are serialized within the process only; the file stores are meant
// for a single engine process (CLI chat, local serve). Use redis for replicas.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/ports"
	"gopkg.in/yaml.v3"
)

// DefaultDir is used when a store is created with an empty base path.
const DefaultDir = ".flujos"

func baseDir(dir string) string {
	if dir == "" {
		return DefaultDir
	}
	return dir
}

// fileName maps a record id to its file, rejecting ids that would escape the directory.
func fileName(dir, id, ext string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("id cannot be empty")
	}
	if id != filepath.Base(id) || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid id %q", id)
	}
	return filepath.Join(dir, id+ext), nil
}

// writeAtomic writes data to destPath atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func writeAtomic(destPath string, data []byte) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure directory: %w", err)
	}

	// Same directory, so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Cannot rename an open file on Windows.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// On Windows, os.Rename fails if dest exists. We must remove it first.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing file for overwrite: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// listFiles returns the paths in dir with the given extension, skipping temp files.
func listFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ext || strings.HasPrefix(name, "tmp-") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// FlowStore implements ports.FlowStore with one YAML file per flow.
type FlowStore struct {
	dir string
	mu  sync.Mutex
}

// NewFlowStore creates a FlowStore under basePath (default ".flujos").
func NewFlowStore(basePath string) *FlowStore {
	return &FlowStore{dir: filepath.Join(baseDir(basePath), "flows")}
}

// Dir returns the directory holding the flow files.
func (s *FlowStore) Dir() string {
	return s.dir
}

// ReadFlowFile decodes a flow definition file and derives missing edge handles and conditions.
func ReadFlowFile(path string) (*domain.Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f domain.Flow
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse flow file %s: %w", path, err)
	}
	f.Normalize()
	return &f, nil
}

func (s *FlowStore) read(id string) (*domain.Flow, error) {
	path, err := fileName(s.dir, id, ".yaml")
	if err != nil {
		return nil, err
	}
	f, err := ReadFlowFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrFlowNotFound
		}
		return nil, err
	}
	return f, nil
}

// Save writes the flow after checking its version.
func (s *FlowStore) Save(ctx context.Context, flow *domain.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := fileName(s.dir, flow.ID, ".yaml")
	if err != nil {
		return err
	}
	current := 0
	prev, err := s.read(flow.ID)
	switch {
	case err == nil:
		current = prev.Version
	case !errors.Is(err, domain.ErrFlowNotFound):
		return err
	}
	if flow.Version != current {
		return fmt.Errorf("%w: flow %s is at version %d, got %d", domain.ErrVersionConflict, flow.ID, current, flow.Version)
	}

	next := *flow
	next.Version = current + 1
	data, err := yaml.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to marshal flow: %w", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return err
	}
	flow.Version = next.Version
	return nil
}

// Get reads the flow from disk.
func (s *FlowStore) Get(ctx context.Context, id string) (*domain.Flow, error) {
	return s.read(id)
}

// List reads every flow file and returns the matching ones ordered by creation.
func (s *FlowStore) List(ctx context.Context, filter ports.FlowFilter) ([]*domain.Flow, error) {
	paths, err := listFiles(s.dir, ".yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	out := make([]*domain.Flow, 0, len(paths))
	for _, p := range paths {
		f, err := ReadFlowFile(p)
		if err != nil {
			return nil, err
		}
		if filter.Match(f) {
			out = append(out, f)
		}
	}
	ports.SortFlows(out)
	return out, nil
}

// Delete removes the flow file.
func (s *FlowStore) Delete(ctx context.Context, id string) error {
	path, err := fileName(s.dir, id, ".yaml")
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete flow file: %w", err)
	}
	return nil
}

// InstanceStore implements ports.InstanceStore with one JSON file per instance.
type InstanceStore struct {
	dir string
	mu  sync.Mutex
}

// NewInstanceStore creates an InstanceStore under basePath (default ".flujos").
func NewInstanceStore(basePath string) *InstanceStore {
	return &InstanceStore{dir: filepath.Join(baseDir(basePath), "instances")}
}

func readInstance(path string) (*domain.Instance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var inst domain.Instance
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance %s: %w", path, err)
	}
	return &inst, nil
}

// Save writes the instance after checking its version.
func (s *InstanceStore) Save(ctx context.Context, inst *domain.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := fileName(s.dir, inst.ID, ".json")
	if err != nil {
		return err
	}
	current := 0
	prev, err := readInstance(path)
	switch {
	case err == nil:
		current = prev.Version
	case !errors.Is(err, os.ErrNotExist):
		return err
	}
	if inst.Version != current {
		return fmt.Errorf("%w: instance %s is at version %d, got %d", domain.ErrVersionConflict, inst.ID, current, inst.Version)
	}

	next := inst.Clone()
	next.Version = current + 1
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal instance: %w", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return err
	}
	inst.Version = next.Version
	return nil
}

// Get reads the instance from disk.
func (s *InstanceStore) Get(ctx context.Context, id string) (*domain.Instance, error) {
	path, err := fileName(s.dir, id, ".json")
	if err != nil {
		return nil, err
	}
	inst, err := readInstance(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrInstanceNotFound
		}
		return nil, err
	}
	return inst, nil
}

// List scans every instance file. Fine for local use; not indexed.
func (s *InstanceStore) List(ctx context.Context, filter ports.InstanceFilter) ([]*domain.Instance, error) {
	paths, err := listFiles(s.dir, ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	var out []*domain.Instance
	for _, p := range paths {
		inst, err := readInstance(p)
		if err != nil {
			return nil, err
		}
		if filter.Match(inst) {
			out = append(out, inst)
		}
	}
	ports.SortInstances(out)
	return filter.ApplyLimit(out), nil
}
