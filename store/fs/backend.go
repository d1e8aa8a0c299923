// Package fs provides a file system-based backend for the auth store.
package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFileName is the file created under the config directory
const DefaultFileName = "auth-store.json"

// Backend stores records as one JSON file on the filesystem. The file is
// re-read on every Load and replaced atomically on every write so separate
// processes sharing it see each other's updates.
type Backend struct {
	mu   sync.Mutex
	path string
}

// storeFile is the JSON structure stored on disk
type storeFile struct {
	Records map[string]json.RawMessage `json:"records"`
}

// New creates a file backend.
// If path is empty, defaults to ~/.config/<appName>/auth-store.json
func New(path string, appName string) (*Backend, error) {
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("could not determine config directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
		if appName == "" {
			appName = "authflow"
		}
		path = filepath.Join(configDir, appName, DefaultFileName)
	}

	b := &Backend{path: path}

	// Fail early on an unreadable file rather than on first use
	if _, err := b.read(); err != nil {
		return nil, err
	}

	return b, nil
}

// read loads all records from disk. A missing file is an empty store.
func (b *Backend) read() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse store file: %w", err)
	}
	if file.Records == nil {
		file.Records = map[string]json.RawMessage{}
	}
	return file.Records, nil
}

// write persists all records to disk
func (b *Backend) write(records map[string]json.RawMessage) error {
	// Ensure directory exists with restricted permissions
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// records are kept compact so Load returns what Save was given
	data, err := json.Marshal(storeFile{Records: records})
	if err != nil {
		return fmt.Errorf("failed to serialize store: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".auth-store-*")
	if err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	defer os.Remove(tmp.Name())

	// owner read/write only
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write store: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	return nil
}

// Load implements store.Backend
func (b *Backend) Load(key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	records, err := b.read()
	if err != nil {
		return nil, err
	}
	data, ok := records[key]
	if !ok {
		return nil, nil
	}
	return []byte(data), nil
}

// Save implements store.Backend
func (b *Backend) Save(key string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("record %q is not valid JSON", key)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	records, err := b.read()
	if err != nil {
		return err
	}
	records[key] = json.RawMessage(data)
	return b.write(records)
}

// Delete implements store.Backend
func (b *Backend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	records, err := b.read()
	if err != nil {
		return err
	}
	if _, ok := records[key]; !ok {
		return nil
	}
	delete(records, key)
	return b.write(records)
}

// Close implements store.Backend
func (b *Backend) Close() error { return nil }

// Path returns the path to the store file
func (b *Backend) Path() string {
	return b.path
}
