// Package recent keeps the per-user list of recently viewed product ids.
package recent

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/tinytelemetry/storefeed/internal/model"
)

// ErrEmptyID is returned by Add for a blank product id.
var ErrEmptyID = errors.New("recent: empty product id")

// Store is the recently-viewed collaborator owned by a feed view. Get
// returns ids most recent first; Add moves an id to the front and evicts
// the oldest past capacity.
type Store interface {
	Get() ([]string, error)
	Add(id string) error
	Clear() error
}

// list is the in-memory ordering shared by both stores.
type list struct {
	capacity int
	ids      []string
}

func newList(capacity int) list {
	if capacity <= 0 {
		capacity = model.DefaultRecentCapacity
	}
	return list{capacity: capacity}
}

func (l *list) add(id string) {
	if i := slices.Index(l.ids, id); i >= 0 {
		l.ids = slices.Delete(l.ids, i, i+1)
	}
	l.ids = slices.Insert(l.ids, 0, id)
	if len(l.ids) > l.capacity {
		l.ids = l.ids[:l.capacity]
	}
}

func (l *list) snapshot() []string {
	return slices.Clone(l.ids)
}

func normalizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrEmptyID
	}
	return id, nil
}

// MemoryStore is a Store that lives for one process.
type MemoryStore struct {
	mu   sync.Mutex
	list list
}

// NewMemoryStore returns an empty store holding up to capacity ids.
func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{list: newList(capacity)}
}

func (m *MemoryStore) Get() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list.snapshot(), nil
}

func (m *MemoryStore) Add(id string) error {
	id, err := normalizeID(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.list.add(id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	m.list.ids = nil
	m.mu.Unlock()
	return nil
}
