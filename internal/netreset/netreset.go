// Package netreset clears the stored network configuration and restarts
// into setup mode.
package netreset

import (
	"context"
	"time"

	"github.com/julianstephens/chime/internal/constants"
	apperrors "github.com/julianstephens/chime/internal/errors"
	"github.com/julianstephens/chime/internal/logger"
	"github.com/julianstephens/chime/internal/storage"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultMaxBusyWait  = 5 * time.Second
	DefaultSettleDelay  = time.Second
)

// Rebooter restarts the process or device after a reset.
type Rebooter interface {
	Reboot(ctx context.Context) error
}

// RebootFunc adapts a function to Rebooter.
type RebootFunc func(ctx context.Context) error

func (f RebootFunc) Reboot(ctx context.Context) error { return f(ctx) }

type Option func(*Resetter)

// WithBusy sets a check for in-progress output (an announcement being spoken,
// for example). Reset waits for it to clear, up to the max busy wait.
func WithBusy(busy func() bool) Option {
	return func(r *Resetter) { r.busy = busy }
}

func WithTiming(poll, maxBusyWait, settle time.Duration) Option {
	return func(r *Resetter) {
		r.poll = poll
		r.maxBusyWait = maxBusyWait
		r.settle = settle
	}
}

type Resetter struct {
	store    storage.KeyValueStore
	rebooter Rebooter
	busy     func() bool

	poll        time.Duration
	maxBusyWait time.Duration
	settle      time.Duration
}

func New(store storage.KeyValueStore, rebooter Rebooter, opts ...Option) *Resetter {
	r := &Resetter{
		store:       store,
		rebooter:    rebooter,
		busy:        func() bool { return false },
		poll:        DefaultPollInterval,
		maxBusyWait: DefaultMaxBusyWait,
		settle:      DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reset erases the network namespace, sets the force-AP flag and reboots.
// Nothing is rebooted if either store step fails.
func (r *Resetter) Reset(ctx context.Context) error {
	const op = "netreset.Reset"
	logger.Info("Resetting network configuration and rebooting")

	if err := r.eraseNetworkConfig(op); err != nil {
		return err
	}
	if err := r.setForceAP(op); err != nil {
		return err
	}

	r.waitIdle(ctx)
	if err := sleep(ctx, r.settle); err != nil {
		return err
	}
	return r.rebooter.Reboot(ctx)
}

func (r *Resetter) eraseNetworkConfig(op string) error {
	h, err := r.store.Open(constants.WifiConfigNamespace)
	if err != nil {
		logger.Error("Failed to open network config namespace", "error", err)
		return apperrors.E(apperrors.KindIO, op, err)
	}
	defer h.Close()

	eraser, ok := h.(storage.Eraser)
	if !ok {
		return apperrors.Errorf(apperrors.KindInternal, op, "store handle cannot erase namespaces")
	}
	if err := eraser.EraseAll(); err != nil {
		return apperrors.E(apperrors.KindIO, op, err)
	}
	if err := h.Commit(); err != nil {
		return apperrors.E(apperrors.KindIO, op, err)
	}
	logger.Info("Erased network configuration", "namespace", constants.WifiConfigNamespace)
	return nil
}

func (r *Resetter) setForceAP(op string) error {
	h, err := r.store.Open(constants.WifiSettingsNamespace)
	if err != nil {
		logger.Error("Failed to open settings namespace", "error", err)
		return apperrors.E(apperrors.KindIO, op, err)
	}
	defer h.Close()

	if err := h.SetString(constants.WifiForceAPKey, "1"); err != nil {
		logger.Error("Failed to set force_ap flag", "error", err)
		return apperrors.E(apperrors.KindIO, op, err)
	}
	if err := h.Commit(); err != nil {
		return apperrors.E(apperrors.KindIO, op, err)
	}
	logger.Info("Set force_ap flag", "value", "1")
	return nil
}

func (r *Resetter) waitIdle(ctx context.Context) {
	poll := max(r.poll, time.Millisecond)
	var waited time.Duration
	for r.busy() && waited < r.maxBusyWait {
		if sleep(ctx, poll) != nil {
			return
		}
		waited += poll
	}
	if waited > 0 && waited >= r.maxBusyWait {
		logger.Warn("Timed out waiting for output to finish, rebooting anyway", "waited", waited)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
