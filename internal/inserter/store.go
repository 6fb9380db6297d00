package inserter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/google/renameio/v2"
)

// ConfigStore persists the committed stream configuration set.
// Implementations can be file-based or remote; the registry saves through it
// after every successful mutation and restores from it on boot.
type ConfigStore interface {
	Load() ([]StreamConfig, error)
	Save(configs []StreamConfig) error
}

// DefaultStreamsFile is the default path of the persisted configuration set.
const DefaultStreamsFile = "streams.json"

// FileStore persists stream configurations as a JSON array in a single file,
// replaced atomically on every save.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the given path. If path is empty,
// DefaultStreamsFile is used.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultStreamsFile
	}
	return &FileStore{path: path}
}

// Load implements ConfigStore.Load. A missing file is an empty set.
func (s *FileStore) Load() ([]StreamConfig, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read streams file: %w", err)
	}

	var configs []StreamConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("parse streams file: %w", err)
	}
	return configs, nil
}

// Save implements ConfigStore.Save.
func (s *FileStore) Save(configs []StreamConfig) error {
	if configs == nil {
		configs = []StreamConfig{}
	}
	data, err := json.MarshalIndent(configs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode streams file: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write streams file: %w", err)
	}
	return nil
}
