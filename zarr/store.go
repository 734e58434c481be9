package zarr

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Store abstracts the byte-blob storage under a Zarr hierarchy.
//
// Implementations may target filesystems, S3, or other object stores. Keys
// are slash-separated relative paths. Unlike an immutable snapshot store,
// Put replaces any existing object: Zarr attribute documents are rewritten
// in place on every metadata flush.
type Store interface {
	// Put writes data to the given key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader) error

	// Get retrieves data from the given key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks whether a key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the key if it exists.
	Delete(ctx context.Context, key string) error
}

// -----------------------------------------------------------------------------
// Filesystem Store
// -----------------------------------------------------------------------------

// fsStore implements Store using the local filesystem.
type fsStore struct {
	root string
}

// NewFS creates a filesystem-backed Store rooted at the given directory,
// creating it if absent.
//
// Consistency: immediate read-after-write on local filesystems.
func NewFS(root string) (Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &fsStore{root: root}, nil
}

func (f *fsStore) Put(_ context.Context, key string, r io.Reader) error {
	fullPath, err := f.safePath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return err
	}
	file, err := os.Create(fullPath)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	_, err = io.Copy(file, r)
	return err
}

func (f *fsStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := f.safePath(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return file, nil
}

func (f *fsStore) Exists(_ context.Context, key string) (bool, error) {
	fullPath, err := f.safePath(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(fullPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (f *fsStore) List(_ context.Context, prefix string) ([]string, error) {
	searchPath := f.root
	if prefix != "" {
		p, err := f.safePath(prefix)
		if err != nil {
			return nil, err
		}
		searchPath = p
	}
	var keys []string
	err := filepath.Walk(searchPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			rel, err := filepath.Rel(f.root, path)
			if err != nil {
				return err
			}
			keys = append(keys, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *fsStore) Delete(_ context.Context, key string) error {
	fullPath, err := f.safePath(key)
	if err != nil {
		return err
	}
	err = os.Remove(fullPath)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *fsStore) safePath(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if key == "" || cleaned == "." {
		return "", ErrInvalidKey
	}
	if filepath.IsAbs(cleaned) {
		return "", ErrInvalidKey
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return filepath.Join(f.root, cleaned), nil
}

// -----------------------------------------------------------------------------
// Memory Store
// -----------------------------------------------------------------------------

// memoryStore implements Store using an in-memory map.
type memoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an in-memory Store.
//
// Consistency: immediate. Memory is safe for concurrent use.
func NewMemory() Store {
	return &memoryStore{data: make(map[string][]byte)}
}

func (m *memoryStore) Put(_ context.Context, key string, r io.Reader) error {
	normalized, ok := normalizeKey(key)
	if !ok {
		return ErrInvalidKey
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[normalized] = data
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	normalized, ok := normalizeKey(key)
	if !ok {
		return nil, ErrInvalidKey
	}
	m.mu.RLock()
	data, exists := m.data[normalized]
	m.mu.RUnlock()
	if !exists {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return io.NopCloser(bytes.NewReader(cp)), nil
}

func (m *memoryStore) Exists(_ context.Context, key string) (bool, error) {
	normalized, ok := normalizeKey(key)
	if !ok {
		return false, ErrInvalidKey
	}
	m.mu.RLock()
	_, exists := m.data[normalized]
	m.mu.RUnlock()
	return exists, nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]string, error) {
	normalized := ""
	if prefix != "" {
		n, ok := normalizeKey(prefix)
		if !ok {
			return nil, ErrInvalidKey
		}
		normalized = n
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key := range m.data {
		if normalized == "" || key == normalized || strings.HasPrefix(key, normalized+"/") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	normalized, ok := normalizeKey(key)
	if !ok {
		return ErrInvalidKey
	}
	m.mu.Lock()
	delete(m.data, normalized)
	m.mu.Unlock()
	return nil
}

func normalizeKey(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	cleaned := strings.TrimPrefix(filepath.ToSlash(filepath.Clean(filepath.FromSlash(key))), "/")
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}
