// Package cache memoizes extraction and source lookups with per-entry expiry.
package cache

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/metafates/gache"
	"github.com/samber/mo"
	"github.com/spf13/afero"

	"media-resolver-go/pkg/interfaces"
)

const fileName = "media-resolver-cache.json"

// fileLifetime bounds the whole backing file; entries carry their own expiry.
const fileLifetime = 24 * time.Hour

type entry struct {
	Value   []byte    `json:"value"`
	Expires time.Time `json:"expires"`
}

type table map[string]entry

// Store is a gache-backed key-value cache on an afero filesystem.
type Store struct {
	internal *gache.Cache[table]
	mu       sync.Mutex
	now      func() time.Time
}

var _ interfaces.Cache = (*Store)(nil)

// gacheFs adapts an afero filesystem to gache.
type gacheFs struct {
	fs afero.Fs
}

func (g gacheFs) OpenFile(name string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	return g.fs.OpenFile(name, flag, perm)
}

func (g gacheFs) MkdirAll(path string, perm os.FileMode) error {
	return g.fs.MkdirAll(path, perm)
}

// New creates a store persisted under dir on fs.
func New(fs afero.Fs, dir string) *Store {
	return &Store{
		internal: gache.New[table](&gache.Options{
			Path:       filepath.Join(dir, fileName),
			Lifetime:   fileLifetime,
			FileSystem: gacheFs{fs: fs},
		}),
		now: time.Now,
	}
}

// NewMemory creates a store that never touches the disk.
func NewMemory() *Store {
	return New(afero.NewMemMapFs(), "/cache")
}

// Open returns a disk-backed store when dir is set, otherwise an in-memory one.
func Open(dir string) *Store {
	if dir == "" {
		return NewMemory()
	}
	return New(afero.NewOsFs(), dir)
}

// Get returns the live value for key.
func (s *Store) Get(key string) mo.Option[[]byte] {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, expired, err := s.internal.Get()
	if err != nil || expired || data == nil {
		return mo.None[[]byte]()
	}

	e, ok := data[key]
	if !ok || !s.now().Before(e.Expires) {
		return mo.None[[]byte]()
	}
	return mo.Some(e.Value)
}

// Set stores value under key for ttl. A non-positive ttl is a no-op.
func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, expired, err := s.internal.Get()
	if err != nil {
		return err
	}
	if expired || data == nil {
		data = make(table)
	}

	now := s.now()
	for k, e := range data {
		if !now.Before(e.Expires) {
			delete(data, k)
		}
	}
	data[key] = entry{Value: value, Expires: now.Add(ttl)}
	return s.internal.Set(data)
}

// Delete removes key.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, expired, err := s.internal.Get()
	if err != nil || expired || data == nil {
		return err
	}
	if _, ok := data[key]; !ok {
		return nil
	}
	delete(data, key)
	return s.internal.Set(data)
}

// GetJSON decodes a cached JSON value.
func GetJSON[T any](c interfaces.Cache, key string) mo.Option[T] {
	raw, ok := c.Get(key).Get()
	if !ok {
		return mo.None[T]()
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return mo.None[T]()
	}
	return mo.Some(v)
}

// SetJSON stores v as JSON.
func SetJSON[T any](c interfaces.Cache, key string, v T, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(key, raw, ttl)
}
