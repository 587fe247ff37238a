package balance

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	cacheFilePermissions = 0o640
	cacheDirPermissions  = 0o750

	// retention drops persisted entries nobody has refreshed for a day.
	retention = 24 * time.Hour
)

// ErrCorruptCache indicates the cache file is malformed JSON.
var ErrCorruptCache = errors.New("balance cache file is corrupted")

// FileStorage persists a Cache as JSON so the CLI keeps last-known balances between runs.
type FileStorage struct {
	path string
}

// NewFileStorage creates a storage rooted at path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Path returns the cache file path.
func (s *FileStorage) Path() string {
	return s.path
}

// Save writes the cache atomically (temp file + rename).
func (s *FileStorage) Save(cache *Cache) error {
	if err := os.MkdirAll(filepath.Dir(s.path), cacheDirPermissions); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	cache.mu.RLock()
	data, err := json.MarshalIndent(cache, "", "  ")
	cache.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, cacheFilePermissions); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing cache file: %w", err)
	}
	return nil
}

// Load reads the cache. A missing file yields an empty cache. A corrupt file
// is moved aside and an empty cache is returned together with ErrCorruptCache.
func (s *FileStorage) Load() (*Cache, error) {
	// #nosec G304 -- cache path comes from configuration
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewCache(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache file: %w", err)
	}

	cache := NewCache()
	if err := json.Unmarshal(data, cache); err != nil {
		corruptPath := fmt.Sprintf("%s.corrupt.%d", s.path, time.Now().UTC().UnixNano())
		if renameErr := os.Rename(s.path, corruptPath); renameErr != nil {
			return NewCache(), fmt.Errorf("%w: %w (also failed to move file: %w)", ErrCorruptCache, err, renameErr)
		}
		return NewCache(), fmt.Errorf("%w: %w (moved to %s)", ErrCorruptCache, err, corruptPath)
	}
	if cache.Entries == nil {
		cache.Entries = make(map[string]Entry)
	}
	cache.Prune(retention)
	return cache, nil
}
