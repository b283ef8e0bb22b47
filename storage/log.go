package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// AppendLog is the durable source of truth for one modality: a
// line-oriented file of "id: text" pairs. The vector index is a derived
// cache rebuilt from this log. Lines are only ever appended; when the
// same id appears twice, the later line wins on replay.
type AppendLog struct {
	mu   sync.Mutex
	path string
}

func NewAppendLog(path string) *AppendLog {
	return &AppendLog{path: path}
}

func (l *AppendLog) Path() string { return l.path }

// Entries reads the full log into id -> text, last occurrence winning,
// and returns ids in first-seen order. A missing file is an empty log.
func (l *AppendLog) Entries() (map[string]string, []string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked()
}

func (l *AppendLog) readLocked() (map[string]string, []string, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil, nil
		}
		return nil, nil, fmt.Errorf("open log %s: %w", l.path, err)
	}
	defer f.Close()

	entries := make(map[string]string)
	var order []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		id, text, ok := strings.Cut(line, ": ")
		if !ok || id == "" {
			continue
		}
		if _, seen := entries[id]; !seen {
			order = append(order, id)
		}
		entries[id] = text
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan log %s: %w", l.path, err)
	}
	return entries, order, nil
}

// Append writes "id: text" lines for the given pairs. Newlines inside
// text would corrupt the line format and are flattened to spaces.
func (l *AppendLog) Append(pairs map[string]string, order []string) error {
	if len(pairs) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log %s: %w", l.path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, id := range order {
		text := strings.ReplaceAll(pairs[id], "\n", " ")
		if _, err := fmt.Fprintf(w, "%s: %s\n", id, text); err != nil {
			return fmt.Errorf("append log %s: %w", l.path, err)
		}
	}
	return w.Flush()
}

// Clear truncates the log. Only full-reload ingestion uses this.
func (l *AppendLog) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(l.path, nil, 0644)
}

// Exists reports whether a non-empty backing file is present.
func (l *AppendLog) Exists() bool {
	info, err := os.Stat(l.path)
	return err == nil && info.Size() > 0
}
