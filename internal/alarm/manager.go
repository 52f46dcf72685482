// Package alarm owns the alarm collection. A Manager allocates IDs, keeps
// next trigger times current, detects due alarms and writes the whole
// collection through to a key-value store after every change.
package alarm

import (
	"slices"
	"sync"
	"time"

	"github.com/julianstephens/chime/internal/codec"
	"github.com/julianstephens/chime/internal/constants"
	apperrors "github.com/julianstephens/chime/internal/errors"
	"github.com/julianstephens/chime/internal/logger"
	"github.com/julianstephens/chime/internal/models"
	"github.com/julianstephens/chime/internal/scheduler"
	"github.com/julianstephens/chime/internal/storage"
)

// TriggerHook receives copies of the alarms fired by one check, as they
// were before being rescheduled. Hooks run after the manager lock is
// released and may call back into the manager.
type TriggerHook func(fired []models.Alarm)

// Observer is notified of check and persistence outcomes.
type Observer interface {
	AlarmsFired(n int)
	Persisted(err error)
}

type Option func(*Manager)

// WithNamespace overrides the store namespace ("alarms").
func WithNamespace(ns string) Option {
	return func(m *Manager) { m.namespace = ns }
}

// WithKey overrides the key the collection blob is stored under ("alarms_data").
func WithKey(key string) Option {
	return func(m *Manager) { m.key = key }
}

func WithCodec(c codec.Codec) Option {
	return func(m *Manager) { m.codec = c }
}

// WithClock sets the time source used when CRUD operations recompute
// trigger times and by CheckNow. Its location drives calendar arithmetic.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithTriggerHook(h TriggerHook) Option {
	return func(m *Manager) { m.hooks = append(m.hooks, h) }
}

func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithDisableExpiredOnce makes a Once alarm that can no longer fire switch
// itself off instead of staying enabled with no trigger time.
func WithDisableExpiredOnce(disable bool) Option {
	return func(m *Manager) { m.disableExpiredOnce = disable }
}

type Manager struct {
	mu     sync.Mutex
	store  storage.KeyValueStore
	handle storage.Handle
	alarms []models.Alarm

	// loadErr is the read or decode failure from the last Initialize.
	loadErr error

	namespace          string
	key                string
	codec              codec.Codec
	now                func() time.Time
	hooks              []TriggerHook
	observer           Observer
	disableExpiredOnce bool
}

func NewManager(store storage.KeyValueStore, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		namespace: constants.AlarmNamespace,
		key:       constants.AlarmDataKey,
		codec:     codec.JSON{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize opens the namespace and loads the persisted collection. Only a
// failure to open the store is returned. Missing data yields an empty
// collection; unreadable or undecodable data also yields an empty collection
// and is reported through LoadError.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle != nil {
		_ = m.handle.Close()
		m.handle = nil
	}

	h, err := m.store.Open(m.namespace)
	if err != nil {
		logger.Error("Failed to open alarm store", "namespace", m.namespace, "error", err)
		return apperrors.E(apperrors.KindIO, "alarm.Initialize", err)
	}
	m.handle = h
	m.alarms = nil
	m.loadErr = m.load()
	return nil
}

func (m *Manager) load() error {
	blob, found, err := m.handle.GetString(m.key)
	if err != nil {
		logger.Error("Failed to read alarms", "namespace", m.namespace, "key", m.key, "error", err)
		return apperrors.E(apperrors.KindIO, "alarm.load", err)
	}
	if !found {
		logger.Info("No alarms data found", "namespace", m.namespace)
		return nil
	}

	alarms, err := m.codec.Decode(blob)
	if err != nil {
		logger.Error("Failed to decode alarms, starting empty", "codec", m.codec.Name(), "error", err)
		return err
	}
	m.alarms = alarms
	logger.Info("Loaded alarms", "count", len(alarms), "codec", m.codec.Name())
	return nil
}

// LoadError returns the read or decode error swallowed by the last
// Initialize, or nil.
func (m *Manager) LoadError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadErr
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil {
		return nil
	}
	err := m.handle.Close()
	m.handle = nil
	return err
}

// AddAlarm stores a copy of a under a freshly allocated ID and returns it.
// The caller's ID is ignored. A persistence error is returned alongside the
// added alarm; the in-memory collection keeps it either way.
func (m *Manager) AddAlarm(a models.Alarm) (models.Alarm, error) {
	const op = "alarm.AddAlarm"
	if err := a.Validate(); err != nil {
		return models.Alarm{}, apperrors.E(apperrors.KindInvalid, op, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ready(op); err != nil {
		return models.Alarm{}, err
	}

	a.ID = m.generateUniqueID()
	m.recompute(&a, m.now())
	m.alarms = append(m.alarms, a)

	logger.Info("Added alarm", "id", a.ID, "time", a.TimeOfDay(), "repeat", a.RepeatMode, "next", a.NextTriggerTime)
	return a, m.persist(op)
}

// UpdateAlarm replaces the alarm with a.ID wholesale and reschedules it.
func (m *Manager) UpdateAlarm(a models.Alarm) error {
	const op = "alarm.UpdateAlarm"
	if err := a.Validate(); err != nil {
		return apperrors.E(apperrors.KindInvalid, op, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ready(op); err != nil {
		return err
	}
	i := m.indexOf(a.ID)
	if i < 0 {
		logger.Warn("Alarm not found for update", "id", a.ID)
		return notFound(op, a.ID)
	}
	return m.replace(op, i, a)
}

// UpdateFunc applies fn to a copy of the alarm with id and stores the
// result, all under the manager lock. An error from fn is returned as is
// and leaves the alarm untouched. The ID cannot be changed.
func (m *Manager) UpdateFunc(id uint32, fn func(a *models.Alarm) error) (models.Alarm, error) {
	const op = "alarm.UpdateFunc"

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ready(op); err != nil {
		return models.Alarm{}, err
	}
	i := m.indexOf(id)
	if i < 0 {
		logger.Warn("Alarm not found for update", "id", id)
		return models.Alarm{}, notFound(op, id)
	}

	a := m.alarms[i]
	if err := fn(&a); err != nil {
		return models.Alarm{}, err
	}
	a.ID = id
	if err := a.Validate(); err != nil {
		return models.Alarm{}, apperrors.E(apperrors.KindInvalid, op, err)
	}
	err := m.replace(op, i, a)
	return m.alarms[i], err
}

// replace stores a at index i with a fresh trigger time and persists.
func (m *Manager) replace(op string, i int, a models.Alarm) error {
	m.recompute(&a, m.now())
	m.alarms[i] = a

	logger.Info("Updated alarm", "id", a.ID, "next", a.NextTriggerTime)
	return m.persist(op)
}

func (m *Manager) DeleteAlarm(id uint32) error {
	const op = "alarm.DeleteAlarm"

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ready(op); err != nil {
		return err
	}
	i := m.indexOf(id)
	if i < 0 {
		logger.Warn("Alarm not found for deletion", "id", id)
		return notFound(op, id)
	}

	m.alarms = slices.Delete(m.alarms, i, i+1)

	logger.Info("Deleted alarm", "id", id)
	return m.persist(op)
}

// EnableAlarm switches an alarm on (rescheduling it) or off (clearing its
// trigger time).
func (m *Manager) EnableAlarm(id uint32, enable bool) error {
	const op = "alarm.EnableAlarm"

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ready(op); err != nil {
		return err
	}
	i := m.indexOf(id)
	if i < 0 {
		logger.Warn("Alarm not found for enabling/disabling", "id", id)
		return notFound(op, id)
	}

	a := &m.alarms[i]
	a.Enabled = enable
	if enable {
		m.recompute(a, m.now())
	} else {
		a.NextTriggerTime = 0
	}

	logger.Info("Set alarm enabled", "id", id, "enabled", enable, "next", a.NextTriggerTime)
	return m.persist(op)
}

// GetAlarmByID returns a copy of the alarm with id.
func (m *Manager) GetAlarmByID(id uint32) (models.Alarm, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return models.Alarm{}, false
	}
	return m.alarms[i], true
}

// GetAlarms returns a copy of the collection in storage order.
func (m *Manager) GetAlarms() []models.Alarm {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.alarms)
}

// Check fires every enabled alarm with 0 < next_trigger_time <= now,
// reschedules each against the same now and persists once if anything
// fired. Calling it again with the same or a later now never fires an
// alarm twice for one scheduled time.
func (m *Manager) Check(now time.Time) ([]models.Alarm, error) {
	const op = "alarm.Check"

	fired, err := func() ([]models.Alarm, error) {
		m.mu.Lock()
		defer m.mu.Unlock()

		var fired []models.Alarm
		ts := now.Unix()
		for i := range m.alarms {
			a := &m.alarms[i]
			if !a.Enabled || a.NextTriggerTime <= 0 || ts < a.NextTriggerTime {
				continue
			}
			logger.Info("Alarm triggered", "id", a.ID, "label", a.Label)
			fired = append(fired, *a)
			m.recompute(a, now)
		}
		if len(fired) == 0 {
			return nil, nil
		}
		if m.observer != nil {
			m.observer.AlarmsFired(len(fired))
		}
		if err := m.ready(op); err != nil {
			return fired, err
		}
		return fired, m.persist(op)
	}()

	if len(fired) > 0 {
		for _, h := range m.hooks {
			h(slices.Clone(fired))
		}
	}
	return fired, err
}

// CheckAlarms reports whether any alarm fired at now. Persistence failures
// are logged.
func (m *Manager) CheckAlarms(now time.Time) bool {
	fired, err := m.Check(now)
	if err != nil {
		logger.Error("Failed to save alarms after check", "error", err)
	}
	return len(fired) > 0
}

// CheckNow runs CheckAlarms against the manager's clock.
func (m *Manager) CheckNow() bool {
	return m.CheckAlarms(m.now())
}

// GetAlarmsAsJSON encodes the collection with the persistence codec, so
// the result matches the stored blob byte for byte.
func (m *Manager) GetAlarmsAsJSON() (string, error) {
	alarms := m.GetAlarms()
	return m.codec.Encode(alarms)
}

// recompute keeps NextTriggerTime in step with a's fields.
func (m *Manager) recompute(a *models.Alarm, now time.Time) {
	a.NextTriggerTime = scheduler.NextTrigger(*a, now)
	if m.disableExpiredOnce && a.Enabled && a.RepeatMode == models.RepeatOnce && a.NextTriggerTime == 0 {
		a.Enabled = false
		logger.Info("Disabled expired one-time alarm", "id", a.ID)
	}
}

// generateUniqueID returns the smallest positive ID not in use.
func (m *Manager) generateUniqueID() uint32 {
	id := uint32(1)
	for {
		if m.indexOf(id) < 0 {
			return id
		}
		id++
	}
}

func (m *Manager) indexOf(id uint32) int {
	return slices.IndexFunc(m.alarms, func(a models.Alarm) bool { return a.ID == id })
}

func (m *Manager) ready(op string) error {
	if m.handle == nil {
		return apperrors.Errorf(apperrors.KindInternal, op, "alarm manager is not initialized")
	}
	return nil
}

// persist writes the whole collection and commits. Memory is never rolled
// back on failure.
func (m *Manager) persist(op string) (err error) {
	defer func() {
		if m.observer != nil {
			m.observer.Persisted(err)
		}
	}()

	blob, err := m.codec.Encode(m.alarms)
	if err != nil {
		logger.Error("Failed to encode alarms", "codec", m.codec.Name(), "error", err)
		return apperrors.E(apperrors.KindInternal, op, err)
	}
	if err := m.handle.SetString(m.key, blob); err != nil {
		logger.Error("Failed to save alarms", "error", err)
		return apperrors.E(apperrors.KindIO, op, err)
	}
	if err := m.handle.Commit(); err != nil {
		logger.Error("Failed to commit alarms", "error", err)
		return apperrors.E(apperrors.KindIO, op, err)
	}
	logger.Debug("Saved alarms", "count", len(m.alarms), "bytes", len(blob))
	return nil
}

func notFound(op string, id uint32) error {
	return apperrors.Errorf(apperrors.KindNotFound, op, "alarm %d not found", id)
}
