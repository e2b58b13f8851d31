package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aretw0/flujos/pkg/domain"
)

// maxLogLine bounds one encoded log entry.
const maxLogLine = 1 << 20

// LogStore implements ports.LogStore with one JSON Lines file per instance.
type LogStore struct {
	dir string
	mu  sync.Mutex
}

// NewLogStore creates a LogStore under basePath (default ".flujos").
func NewLogStore(basePath string) *LogStore {
	return &LogStore{dir: filepath.Join(baseDir(basePath), "logs")}
}

// Append writes entries at the end of their instance's file.
func (s *LogStore) Append(ctx context.Context, entries ...domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure log directory: %w", err)
	}

	byInstance := make(map[string][]domain.LogEntry)
	var order []string
	for _, e := range entries {
		if _, ok := byInstance[e.ConversacionID]; !ok {
			order = append(order, e.ConversacionID)
		}
		byInstance[e.ConversacionID] = append(byInstance[e.ConversacionID], e)
	}

	for _, id := range order {
		if err := s.appendFile(id, byInstance[id]); err != nil {
			return err
		}
	}
	return nil
}

func (s *LogStore) appendFile(id string, entries []domain.LogEntry) error {
	path, err := fileName(s.dir, id, ".jsonl")
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("failed to encode log entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write log file: %w", err)
	}
	return f.Sync()
}

// List reads the trace of one instance in append order.
func (s *LogStore) List(ctx context.Context, conversacionID string) ([]domain.LogEntry, error) {
	path, err := fileName(s.dir, conversacionID, ".jsonl")
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.LogEntry{}, nil
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	out := []domain.LogEntry{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLogLine)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e domain.LogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("corrupt log line in %s: %w", path, err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	return out, nil
}
