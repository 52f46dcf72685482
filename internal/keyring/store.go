package keyring

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/julianstephens/chime/internal/constants"
)

// Store is a storage provider that keeps each namespace as a keyring
// service ("chime/<namespace>") with one account per key. Commits are not
// atomic across keys; the alarm collection is a single key so this only
// matters for multi-key namespaces.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func service(namespace string) string {
	return constants.AppName + "/" + namespace
}

func (s *Store) Init() error {
	if !IsAvailable() {
		return ErrKeyringUnavailable
	}
	return nil
}

func (s *Store) Load() error {
	return s.Init()
}

func (s *Store) Close() error { return nil }

func (s *Store) GetConfigPath() string {
	return "keyring:" + constants.AppName
}

func (s *Store) Get(namespace, key string) (string, bool, error) {
	value, err := get(service(namespace), key)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Put(namespace string, entries map[string]string, erase bool) error {
	svc := service(namespace)
	if erase {
		if err := keyring.DeleteAll(svc); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to erase %s: %w", svc, err)
		}
	}
	for key, value := range entries {
		if err := keyring.Set(svc, key, value); err != nil {
			return fmt.Errorf("failed to store %s/%s in keyring: %w", svc, key, err)
		}
	}
	return nil
}
