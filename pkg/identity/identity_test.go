package identity

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestProviderGeneratesOnce(t *testing.T) {
	p := NewProvider(NewMemoryStore())

	first, err := p.DeviceID()
	if err != nil {
		t.Fatalf("DeviceID() error = %v", err)
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Fatalf("DeviceID() = %q, not a UUID: %v", first, err)
	}

	second, err := p.DeviceID()
	if err != nil {
		t.Fatalf("DeviceID() error = %v", err)
	}
	if second != first {
		t.Errorf("DeviceID() = %q on second call, want %q", second, first)
	}
}

func TestProviderReusesStoredID(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Set("stored-id"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	p := NewProvider(store)
	id, err := p.DeviceID()
	if err != nil {
		t.Fatalf("DeviceID() error = %v", err)
	}
	if id != "stored-id" {
		t.Errorf("DeviceID() = %q, want %q", id, "stored-id")
	}
}

func TestProviderNilStore(t *testing.T) {
	p := NewProvider(nil)
	if _, err := p.DeviceID(); err != nil {
		t.Fatalf("DeviceID() error = %v", err)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "device.json")
	store := NewFileStore(path)

	id, err := store.Get()
	if err != nil {
		t.Fatalf("Get() on missing file error = %v", err)
	}
	if id != "" {
		t.Errorf("Get() on missing file = %q, want empty", id)
	}

	if err := store.Set("abc-123"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// A fresh store reading the same path sees the persisted value.
	id, err = NewFileStore(path).Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if id != "abc-123" {
		t.Errorf("Get() = %q, want %q", id, "abc-123")
	}
}

func TestProviderSurvivesRestartWithFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")

	first, err := NewProvider(NewFileStore(path)).DeviceID()
	if err != nil {
		t.Fatalf("DeviceID() error = %v", err)
	}

	second, err := NewProvider(NewFileStore(path)).DeviceID()
	if err != nil {
		t.Fatalf("DeviceID() error = %v", err)
	}
	if second != first {
		t.Errorf("DeviceID() after restart = %q, want %q", second, first)
	}
}
