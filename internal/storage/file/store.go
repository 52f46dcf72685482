// Package file is a storage provider that keeps each namespace as a JSON
// object in <dir>/<namespace>.json.
package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/julianstephens/chime/internal/logger"
)

type Store struct {
	mu  sync.Mutex
	fs  afero.Fs
	dir string
}

// New returns a store rooted at dir on the OS filesystem.
func New(dir string) *Store {
	return NewWithFs(afero.NewOsFs(), dir)
}

// NewWithFs returns a store on an arbitrary afero filesystem.
func NewWithFs(fsys afero.Fs, dir string) *Store {
	return &Store{fs: fsys, dir: dir}
}

func (s *Store) Init() error {
	if err := s.fs.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

func (s *Store) Load() error {
	info, err := s.fs.Stat(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("storage not initialized, run 'chime init' first")
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("data path %s is not a directory", s.dir)
	}
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) GetConfigPath() string { return s.dir }

func (s *Store) path(namespace string) (string, error) {
	if namespace == "" || strings.ContainsAny(namespace, `/\`) || namespace == "." || namespace == ".." {
		return "", fmt.Errorf("namespace %q cannot be used as a file name", namespace)
	}
	return filepath.Join(s.dir, namespace+".json"), nil
}

func (s *Store) read(path string) (map[string]string, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	entries := map[string]string{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("corrupt namespace file %s: %w", path, err)
	}
	return entries, nil
}

func (s *Store) Get(namespace, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path(namespace)
	if err != nil {
		return "", false, err
	}
	entries, err := s.read(path)
	if err != nil {
		return "", false, err
	}
	v, ok := entries[key]
	return v, ok, nil
}

// Put rewrites the namespace file through a temp file and rename.
func (s *Store) Put(namespace string, entries map[string]string, erase bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path(namespace)
	if err != nil {
		return err
	}

	current := map[string]string{}
	if !erase {
		if current, err = s.read(path); err != nil {
			return err
		}
	}
	maps.Copy(current, entries)

	data, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := afero.TempFile(s.fs, s.dir, "."+namespace+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer s.fs.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := s.fs.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	if err := s.fs.Rename(tmpName, path); err != nil {
		return err
	}

	logger.Debug("Committed key-value entries", "backend", "file", "namespace", namespace, "keys", len(entries), "erase", erase)
	return nil
}
