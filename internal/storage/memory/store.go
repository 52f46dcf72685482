// Package memory is a volatile storage provider. Tests use its failure
// injection to exercise io error paths.
package memory

import (
	"maps"
	"sync"
)

type Store struct {
	mu      sync.Mutex
	data    map[string]map[string]string
	commits map[string]int

	loadErr error
	getErr  error
	putErr  error
}

func New() *Store {
	return &Store{
		data:    make(map[string]map[string]string),
		commits: make(map[string]int),
	}
}

func (s *Store) Init() error { return nil }

func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

func (s *Store) Close() error { return nil }

func (s *Store) GetConfigPath() string { return "memory" }

func (s *Store) Get(namespace, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.data[namespace][key]
	return v, ok, nil
}

func (s *Store) Put(namespace string, entries map[string]string, erase bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.putErr != nil {
		return s.putErr
	}
	ns := s.data[namespace]
	if ns == nil || erase {
		ns = make(map[string]string, len(entries))
		s.data[namespace] = ns
	}
	maps.Copy(ns, entries)
	s.commits[namespace]++
	return nil
}

// FailLoad makes Load return err. A nil err clears the failure.
func (s *Store) FailLoad(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}

// FailGet makes Get return err. A nil err clears the failure.
func (s *Store) FailGet(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getErr = err
}

// FailPut makes Put return err. A nil err clears the failure.
func (s *Store) FailPut(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putErr = err
}

// Value reads a committed value directly.
func (s *Store) Value(namespace, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[namespace][key]
	return v, ok
}

// Seed writes a committed value directly, bypassing the commit counter.
func (s *Store) Seed(namespace, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[namespace] == nil {
		s.data[namespace] = make(map[string]string)
	}
	s.data[namespace][key] = value
}

// Keys returns the number of committed keys in namespace.
func (s *Store) Keys(namespace string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data[namespace])
}

// Commits returns how many successful Puts namespace has received.
func (s *Store) Commits(namespace string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits[namespace]
}
