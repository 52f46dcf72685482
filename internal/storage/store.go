package storage

import (
	"sync"

	apperrors "github.com/julianstephens/chime/internal/errors"
	"github.com/julianstephens/chime/internal/logger"
)

// Store adapts a Provider to KeyValueStore, loading it on first Open.
type Store struct {
	mu       sync.Mutex
	provider Provider
	loaded   bool
}

func NewStore(p Provider) *Store {
	return &Store{provider: p}
}

func (s *Store) Open(namespace string) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		if err := s.provider.Load(); err != nil {
			logger.Error("Failed to open storage", "path", s.provider.GetConfigPath(), "error", err)
			return nil, apperrors.E(apperrors.KindIO, "storage.Open", err)
		}
		s.loaded = true
	}
	h, err := NewHandle(namespace, s.provider)
	if err != nil {
		return nil, apperrors.E(apperrors.KindIO, "storage.Open", err)
	}
	return h, nil
}

// Provider returns the underlying provider.
func (s *Store) Provider() Provider {
	return s.provider
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loaded = false
	return s.provider.Close()
}
