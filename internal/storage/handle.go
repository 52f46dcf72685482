package storage

import (
	"strings"
	"sync"

	apperrors "github.com/julianstephens/chime/internal/errors"
)

// MaxNameLen bounds namespace and key names.
const MaxNameLen = 64

// StagedHandle buffers writes in memory and flushes them to its Backend in a
// single Put on Commit.
type StagedHandle struct {
	mu        sync.Mutex
	namespace string
	backend   Backend
	staged    map[string]string
	erase     bool
	closed    bool
}

// NewHandle returns a staged handle for namespace on b.
func NewHandle(namespace string, b Backend) (*StagedHandle, error) {
	if err := validName("storage.Open", "namespace", namespace); err != nil {
		return nil, err
	}
	return &StagedHandle{
		namespace: namespace,
		backend:   b,
		staged:    make(map[string]string),
	}, nil
}

func validName(op, what, name string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.Errorf(apperrors.KindInvalid, op, "%s must not be empty", what)
	}
	if len(name) > MaxNameLen {
		return apperrors.Errorf(apperrors.KindInvalid, op, "%s %q exceeds %d bytes", what, name, MaxNameLen)
	}
	return nil
}

func (h *StagedHandle) Namespace() string {
	return h.namespace
}

func (h *StagedHandle) GetString(key string) (string, bool, error) {
	const op = "storage.GetString"
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return "", false, apperrors.Errorf(apperrors.KindIO, op, "handle for %q is closed", h.namespace)
	}
	if v, ok := h.staged[key]; ok {
		return v, true, nil
	}
	if h.erase {
		return "", false, nil
	}
	v, found, err := h.backend.Get(h.namespace, key)
	if err != nil {
		return "", false, apperrors.E(apperrors.KindIO, op, err)
	}
	return v, found, nil
}

func (h *StagedHandle) SetString(key, value string) error {
	const op = "storage.SetString"
	if err := validName(op, "key", key); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return apperrors.Errorf(apperrors.KindIO, op, "handle for %q is closed", h.namespace)
	}
	h.staged[key] = value
	return nil
}

// EraseAll stages removal of every key in the namespace, including keys
// staged before the call.
func (h *StagedHandle) EraseAll() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return apperrors.Errorf(apperrors.KindIO, "storage.EraseAll", "handle for %q is closed", h.namespace)
	}
	h.staged = make(map[string]string)
	h.erase = true
	return nil
}

// Commit flushes staged changes. On failure the staged changes are kept so
// a later Commit can retry them.
func (h *StagedHandle) Commit() error {
	const op = "storage.Commit"
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return apperrors.Errorf(apperrors.KindIO, op, "handle for %q is closed", h.namespace)
	}
	if len(h.staged) == 0 && !h.erase {
		return nil
	}
	if err := h.backend.Put(h.namespace, h.staged, h.erase); err != nil {
		return apperrors.E(apperrors.KindIO, op, err)
	}
	h.staged = make(map[string]string)
	h.erase = false
	return nil
}

// Close discards uncommitted changes.
func (h *StagedHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.staged = nil
	return nil
}
