package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists the device identifier as a small JSON file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

type fileRecord struct {
	DeviceID string `json:"deviceId"`
}

// NewFileStore creates a store writing to path. Parent directories are
// created on first Set.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Get() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("identity: read %s: %w", f.path, err)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("identity: parse %s: %w", f.path, err)
	}
	return rec.DeviceID, nil
}

func (f *FileStore) Set(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(fileRecord{DeviceID: id})
	if err != nil {
		return fmt.Errorf("identity: encode device id: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("identity: create %s: %w", filepath.Dir(f.path), err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("identity: write %s: %w", f.path, err)
	}
	return nil
}
