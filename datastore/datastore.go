// Package datastore is a small string key/value store persisted as one JSON
// file. Writes go through a temp file and rename; unchanged content is never
// rewritten.
package datastore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("datastore is closed")

// Config holds configuration options for the DataStore
type Config struct {
	FilePath    string
	BackupCount int // Number of backup files to keep
	Logger      zerolog.Logger
}

// DefaultConfig returns a default configuration
func DefaultConfig(filePath string) Config {
	return Config{
		FilePath:    filePath,
		BackupCount: 3,
		Logger:      zerolog.Nop(),
	}
}

type DataStore struct {
	mu           sync.RWMutex
	data         map[string]string
	cfg          Config
	lastChecksum string // checksum of last written payload
	closed       bool
}

// New opens the store at filePath with default configuration.
func New(filePath string) (*DataStore, error) {
	return NewWithConfig(DefaultConfig(filePath))
}

// NewWithConfig opens the store described by cfg, creating the file and its
// directory when missing. A file that does not parse is moved aside with a
// .corrupt suffix and the store starts empty.
func NewWithConfig(cfg Config) (*DataStore, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	ds := &DataStore{data: make(map[string]string), cfg: cfg}

	raw, err := os.ReadFile(cfg.FilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := ds.writeFileAtomic([]byte("{}")); err != nil {
			return nil, fmt.Errorf("failed to create empty JSON file: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", cfg.FilePath, err)
	default:
		if err := json.Unmarshal(raw, &ds.data); err != nil {
			ds.quarantine(err)
			ds.data = make(map[string]string)
		} else {
			ds.lastChecksum = checksum(raw)
		}
	}
	return ds, nil
}

func (ds *DataStore) quarantine(cause error) {
	dst := fmt.Sprintf("%s.corrupt.%s", ds.cfg.FilePath, time.Now().Format("20060102_150405"))
	if err := os.Rename(ds.cfg.FilePath, dst); err != nil {
		ds.cfg.Logger.Warn().Err(err).Str("file", ds.cfg.FilePath).Msg("could not move corrupt file aside")
		return
	}
	ds.cfg.Logger.Warn().Err(cause).Str("moved_to", dst).Msg("corrupt store file, starting empty")
}

// Get retrieves a value by key
func (ds *DataStore) Get(key string) (string, bool) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	if ds.closed {
		return "", false
	}
	v, ok := ds.data[key]
	return v, ok
}

// Set stores value under key in memory. Call SaveToFile to persist.
func (ds *DataStore) Set(key, value string) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.closed {
		return ErrClosed
	}
	ds.data[key] = value
	return nil
}

// Delete removes a key-value pair
func (ds *DataStore) Delete(key string) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.closed {
		return ErrClosed
	}
	delete(ds.data, key)
	return nil
}

// Keys returns the stored keys in sorted order.
func (ds *DataStore) Keys() []string {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	keys := make([]string, 0, len(ds.data))
	for k := range ds.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SaveToFile writes the current contents to disk. It is a no-op when the
// serialized payload matches the last one written.
func (ds *DataStore) SaveToFile() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.closed {
		return ErrClosed
	}
	return ds.save()
}

// Close flushes pending changes and rejects further use.
func (ds *DataStore) Close() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.closed {
		return nil
	}
	ds.closed = true
	return ds.save()
}

func (ds *DataStore) save() error {
	// encoding/json sorts map keys, so equal contents give equal bytes.
	payload, err := json.MarshalIndent(ds.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	sum := checksum(payload)
	if sum == ds.lastChecksum {
		return nil
	}

	if ds.cfg.BackupCount > 0 {
		if err := ds.createBackup(); err != nil {
			ds.cfg.Logger.Warn().Err(err).Msg("failed to create backup")
		}
	}
	if err := ds.writeFileAtomic(payload); err != nil {
		return err
	}
	ds.lastChecksum = sum
	return nil
}

// writeFileAtomic writes data to a temp file, syncs it and renames it over
// the target.
func (ds *DataStore) writeFileAtomic(data []byte) error {
	tmp := ds.cfg.FilePath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp, ds.cfg.FilePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func (ds *DataStore) createBackup() error {
	src, err := os.Open(ds.cfg.FilePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer src.Close()

	name := fmt.Sprintf("%s.backup.%s", ds.cfg.FilePath, time.Now().Format("20060102_150405.000000000"))
	dst, err := os.Create(name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	ds.pruneBackups()
	return nil
}

// pruneBackups keeps the newest BackupCount backups. Backup names embed a
// sortable timestamp, so lexical order is age order.
func (ds *DataStore) pruneBackups() {
	matches, err := filepath.Glob(ds.cfg.FilePath + ".backup.*")
	if err != nil || len(matches) <= ds.cfg.BackupCount {
		return
	}
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-ds.cfg.BackupCount] {
		if err := os.Remove(old); err != nil {
			ds.cfg.Logger.Debug().Err(err).Str("file", old).Msg("failed to remove old backup")
		}
	}
}

// Backups lists existing backup files, oldest first.
func (ds *DataStore) Backups() []string {
	matches, _ := filepath.Glob(ds.cfg.FilePath + ".backup.*")
	sort.Strings(matches)
	return matches
}

func checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
