package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/JHils/phile-gate-whispers-sub003/datastore"
)

// ErrUnknownBackend is returned by Open for an unrecognized backend kind.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Backend is a string key/value store. Get reports absence with ok=false
// and a nil error.
type Backend interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Kind        string // memory, file, sqlite, redis
	Path        string // file and sqlite
	BackupCount int    // file
	RedisAddr   string
	RedisPass   string
	RedisDB     int
	Prefix      string // redis key namespace
}

// Open builds the backend described by opts.
func Open(opts Options, log zerolog.Logger) (Backend, error) {
	switch strings.ToLower(opts.Kind) {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		cfg := datastore.DefaultConfig(opts.Path)
		if opts.BackupCount > 0 {
			cfg.BackupCount = opts.BackupCount
		}
		cfg.Logger = log.With().Str("component", "datastore").Logger()
		return NewFile(cfg)
	case "sqlite":
		return NewSQLite(opts.Path)
	case "redis":
		return NewRedis(context.Background(), opts.RedisAddr, opts.RedisPass, opts.RedisDB, opts.Prefix)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Kind)
	}
}

// Memory keeps values in a map. Nothing survives the process.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }

// File persists through a datastore JSON file. Every write is flushed
// before returning.
type File struct {
	ds *datastore.DataStore
}

func NewFile(cfg datastore.Config) (*File, error) {
	ds, err := datastore.NewWithConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("open file backend: %w", err)
	}
	return &File{ds: ds}, nil
}

func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := f.ds.Get(key)
	return v, ok, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	if err := f.ds.Set(key, value); err != nil {
		return err
	}
	return f.ds.SaveToFile()
}

func (f *File) Delete(_ context.Context, key string) error {
	if err := f.ds.Delete(key); err != nil {
		return err
	}
	return f.ds.SaveToFile()
}

func (f *File) Close() error { return f.ds.Close() }
