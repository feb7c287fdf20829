// Package preferences holds the user-chosen confidence threshold and
// acceleration mode, backed by a Store.
package preferences

import (
	"context"
	"errors"
	"sync"

	"github.com/Tutortoise/live-detection-service/models"
)

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("preferences not found")

type Store interface {
	Load(ctx context.Context) (models.Preferences, error)
	Save(ctx context.Context, p models.Preferences) error
	Close() error
}

// MemoryStore keeps preferences for the lifetime of the process.
type MemoryStore struct {
	mu    sync.Mutex
	prefs *models.Preferences
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(context.Context) (models.Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prefs == nil {
		return models.Preferences{}, ErrNotFound
	}
	return *m.prefs, nil
}

func (m *MemoryStore) Save(_ context.Context, p models.Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs = &p
	return nil
}

func (m *MemoryStore) Close() error { return nil }
