// Package identity manages the stable device identity a client presents to
// the session service. The identifier is generated once and persisted, so a
// device keeps its identity across restarts and reconnections.
package identity

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Store persists the device identifier.
type Store interface {
	// Get returns the stored identifier, or "" if none is stored.
	Get() (string, error)

	// Set stores the identifier.
	Set(id string) error
}

// Provider hands out the device identifier, generating and persisting one
// on first use. Safe for concurrent use.
type Provider struct {
	store Store

	mu sync.Mutex
	id string
}

// NewProvider creates a provider backed by the store. A nil store falls
// back to in-memory persistence.
func NewProvider(store Store) *Provider {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Provider{store: store}
}

// DeviceID returns the device identifier, generating a fresh UUID and
// persisting it if the store holds none.
func (p *Provider) DeviceID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.id != "" {
		return p.id, nil
	}

	id, err := p.store.Get()
	if err != nil {
		return "", fmt.Errorf("identity: load device id: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
		if err := p.store.Set(id); err != nil {
			return "", fmt.Errorf("identity: persist device id: %w", err)
		}
	}
	p.id = id
	return id, nil
}

// MemoryStore keeps the identifier in memory. Used by tests and by clients
// that do not need persistence across restarts.
type MemoryStore struct {
	mu sync.Mutex
	id string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Get() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, nil
}

func (m *MemoryStore) Set(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	return nil
}
