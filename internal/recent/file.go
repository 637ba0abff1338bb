package recent

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	opAdd   = "add"
	opClear = "clear"
)

type event struct {
	Op string `json:"op"`
	ID string `json:"id,omitempty"`
}

// FileStore persists the list as an append-only JSONL event log. The log
// is rewritten to the live ids on open and whenever it grows past
// compactFactor times the capacity.
type FileStore struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	list   list
	events int
}

const compactFactor = 4

// OpenFile loads or creates the store at path.
func OpenFile(path string, capacity int) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("recent: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("recent: mkdir: %w", err)
	}

	fs := &FileStore{path: path, list: newList(capacity)}
	if err := fs.load(); err != nil {
		return nil, err
	}
	if err := fs.compactLocked(); err != nil {
		return nil, err
	}
	return fs, nil
}

// load replays the event log. A torn or malformed line ends the replay.
func (fs *FileStore) load() error {
	f, err := os.Open(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("recent: open: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			break
		}
		switch e.Op {
		case opAdd:
			if id, err := normalizeID(e.ID); err == nil {
				fs.list.add(id)
			}
		case opClear:
			fs.list.ids = nil
		}
	}
	return nil
}

// compactLocked rewrites the log to one add per live id, oldest first, and
// reopens it for appending.
func (fs *FileStore) compactLocked() error {
	if fs.file != nil {
		_ = fs.file.Close()
		fs.file = nil
	}

	tmp := fs.path + ".compact"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("recent: open compact tmp: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := len(fs.list.ids) - 1; i >= 0; i-- {
		if err := enc.Encode(event{Op: opAdd, ID: fs.list.ids[i]}); err != nil {
			f.Close()
			_ = os.Remove(tmp)
			return fmt.Errorf("recent: compact write: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("recent: compact flush: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("recent: compact sync: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("recent: compact close: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("recent: compact rename: %w", err)
	}

	fs.file, err = os.OpenFile(fs.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("recent: reopen: %w", err)
	}
	fs.events = len(fs.list.ids)
	return nil
}

func (fs *FileStore) appendLocked(e event) error {
	if fs.file == nil {
		return errors.New("recent: store closed")
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("recent: marshal: %w", err)
	}
	if _, err := fs.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("recent: write: %w", err)
	}
	fs.events++
	if fs.events > compactFactor*fs.list.capacity {
		return fs.compactLocked()
	}
	return nil
}

func (fs *FileStore) Get() ([]string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.list.snapshot(), nil
}

func (fs *FileStore) Add(id string) error {
	id, err := normalizeID(id)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	// The list changes first so a compaction triggered by this append keeps id.
	fs.list.add(id)
	return fs.appendLocked(event{Op: opAdd, ID: id})
}

func (fs *FileStore) Clear() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.list.ids = nil
	return fs.compactLocked()
}

// Close closes the log file.
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}
