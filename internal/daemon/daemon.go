// Package daemon runs the long-lived alarm service: periodic trigger checks
// on a cron schedule and the RPC bridge, under an exclusive store lock.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/julianstephens/chime/internal/alarm"
	"github.com/julianstephens/chime/internal/codec"
	"github.com/julianstephens/chime/internal/config"
	"github.com/julianstephens/chime/internal/constants"
	"github.com/julianstephens/chime/internal/lockfile"
	"github.com/julianstephens/chime/internal/logger"
	"github.com/julianstephens/chime/internal/metrics"
	"github.com/julianstephens/chime/internal/models"
	"github.com/julianstephens/chime/internal/netreset"
	"github.com/julianstephens/chime/internal/rpc"
	"github.com/julianstephens/chime/internal/storage"
)

// ErrRestartRequested is returned by Run after a network reset asked for a
// restart. The supervisor (systemd, a shell loop) is expected to start the
// process again.
var ErrRestartRequested = errors.New("restart requested after network reset")

type Option func(*Daemon)

// WithResetOptions tunes the network reset, mainly its delays.
func WithResetOptions(opts ...netreset.Option) Option {
	return func(d *Daemon) { d.resetOpts = append(d.resetOpts, opts...) }
}

// WithTriggerHook adds a hook called with every batch of fired alarms.
func WithTriggerHook(h alarm.TriggerHook) Option {
	return func(d *Daemon) { d.hooks = append(d.hooks, h) }
}

type Daemon struct {
	cfg     *config.Config
	store   storage.KeyValueStore
	secret  string
	version string

	resetOpts []netreset.Option
	hooks     []alarm.TriggerHook

	manager *alarm.Manager
	metrics *metrics.Metrics

	ready       chan struct{}
	addr        net.Addr
	restart     chan struct{}
	restartOnce sync.Once
}

// New prepares a daemon over store. secret is the RPC bearer token; an empty
// secret leaves /jsonrpc disabled.
func New(cfg *config.Config, store storage.KeyValueStore, secret string, opts ...Option) *Daemon {
	d := &Daemon{
		cfg:     cfg,
		store:   store,
		secret:  secret,
		version: constants.Version,
		metrics: metrics.New(),
		ready:   make(chan struct{}),
		restart: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Ready is closed once the RPC listener is bound.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Addr returns the bound RPC address. It is nil before Ready is closed.
func (d *Daemon) Addr() net.Addr {
	return d.addr
}

// Manager returns the alarm manager. It is nil before Run initializes it.
func (d *Daemon) Manager() *alarm.Manager {
	return d.manager
}

// Run serves until ctx is cancelled or a network reset requests a restart.
func (d *Daemon) Run(ctx context.Context) error {
	loc, err := d.cfg.Location()
	if err != nil {
		return err
	}
	lockDir, err := config.ExpandPath(d.cfg.LockDir)
	if err != nil {
		return err
	}

	lock, err := lockfile.Acquire(lockDir, d.cfg.RPC.Listen)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("Failed to release lockfile", "error", err)
		}
	}()

	if err := d.initManager(loc); err != nil {
		return err
	}
	defer d.manager.Close()

	resetter := netreset.New(d.store, netreset.RebootFunc(d.requestRestart), d.resetOpts...)
	server := rpc.NewServer(
		rpc.Config{Secret: d.secret, Version: d.version},
		d.manager,
		rpc.WithLocation(loc),
		rpc.WithNetworkReset(resetter),
		rpc.WithMetrics(d.metrics.Handler()),
	)
	defer server.Close()

	if d.secret == "" {
		logger.Warn("No RPC secret configured; /jsonrpc is disabled")
	}

	ln, err := net.Listen("tcp", d.cfg.RPC.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.cfg.RPC.Listen, err)
	}
	httpServer := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	cl := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(d.cfg.CheckSchedule, func() { d.manager.CheckNow() }); err != nil {
		ln.Close()
		return fmt.Errorf("invalid check schedule %q: %w", d.cfg.CheckSchedule, err)
	}

	// Fire anything that came due while the daemon was down
	d.manager.CheckNow()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Serving RPC", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		c.Start()
		<-gctx.Done()
		<-c.Stop().Done()
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-d.restart:
			return ErrRestartRequested
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownGracePeriod)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	d.addr = ln.Addr()
	close(d.ready)
	logger.Info("Daemon started", "schedule", d.cfg.CheckSchedule, "timezone", loc.String(), "alarms", len(d.manager.GetAlarms()))

	err = g.Wait()
	logger.Info("Daemon stopped", "error", err)
	return err
}

func (d *Daemon) initManager(loc *time.Location) error {
	c, err := codec.ByName(d.cfg.Codec)
	if err != nil {
		return err
	}

	opts := []alarm.Option{
		alarm.WithNamespace(d.cfg.Store.Namespace),
		alarm.WithCodec(c),
		alarm.WithClock(func() time.Time { return time.Now().In(loc) }),
		alarm.WithObserver(d.metrics),
		alarm.WithDisableExpiredOnce(d.cfg.DisableExpiredOnce),
		alarm.WithTriggerHook(logFired),
	}
	for _, h := range d.hooks {
		opts = append(opts, alarm.WithTriggerHook(h))
	}

	d.manager = alarm.NewManager(d.store, opts...)
	if err := d.manager.Initialize(); err != nil {
		return err
	}
	if err := d.manager.LoadError(); err != nil {
		logger.Warn("Persisted alarms could not be loaded; starting with an empty collection", "error", err)
	}
	d.metrics.Watch(d.manager)
	return nil
}

func (d *Daemon) requestRestart(_ context.Context) error {
	d.restartOnce.Do(func() {
		logger.Info("Restart requested")
		close(d.restart)
	})
	return nil
}

func logFired(fired []models.Alarm) {
	for _, a := range fired {
		logger.Info("ALARM", "id", a.ID, "label", a.Label, "time", a.TimeOfDay(), "repeat", a.FormatRepeat())
	}
}

// cronLogger routes cron's logging into the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
