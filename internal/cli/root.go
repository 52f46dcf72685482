package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/julianstephens/chime/internal/alarm"
	"github.com/julianstephens/chime/internal/codec"
	"github.com/julianstephens/chime/internal/config"
	"github.com/julianstephens/chime/internal/constants"
	"github.com/julianstephens/chime/internal/keyring"
	"github.com/julianstephens/chime/internal/lockfile"
	"github.com/julianstephens/chime/internal/logger"
	"github.com/julianstephens/chime/internal/models"
	"github.com/julianstephens/chime/internal/storage"
	"github.com/julianstephens/chime/internal/storage/file"
	"github.com/julianstephens/chime/internal/storage/memory"
	"github.com/julianstephens/chime/internal/storage/postgres"
	"github.com/julianstephens/chime/internal/storage/sqlite"
)

// Context is shared by every command. The store and manager are opened on
// first use so commands like keyring set work before storage is reachable.
type Context struct {
	Config     *config.Config
	ConfigPath string

	// Provider overrides the backend selected by Config.
	Provider storage.Provider
	// Now overrides the wall clock.
	Now func() time.Time

	store   *storage.Store
	manager *alarm.Manager
}

// Location returns the configured timezone.
func (c *Context) Location() (*time.Location, error) {
	return c.Config.Location()
}

// Clock returns the current time in the configured timezone.
func (c *Context) Clock() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc, err := c.Location()
	if err != nil {
		return now()
	}
	return now().In(loc)
}

// Store returns the key-value store over the configured backend.
func (c *Context) Store() (*storage.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	if c.Provider == nil {
		p, err := NewProvider(c.Config)
		if err != nil {
			return nil, err
		}
		c.Provider = p
	}
	c.store = storage.NewStore(c.Provider)
	return c.store, nil
}

// Manager returns an initialized alarm manager over Store.
func (c *Context) Manager() (*alarm.Manager, error) {
	if c.manager != nil {
		return c.manager, nil
	}
	store, err := c.Store()
	if err != nil {
		return nil, err
	}
	opts, err := ManagerOptions(c.Config, c.Clock)
	if err != nil {
		return nil, err
	}

	m := alarm.NewManager(store, opts...)
	if err := m.Initialize(); err != nil {
		return nil, err
	}
	if err := m.LoadError(); err != nil {
		logger.Warn("Stored alarms could not be read, starting empty", "error", err)
		fmt.Fprintf(os.Stderr, "⚠ Stored alarms could not be read: %v\n", err)
	}
	c.manager = m
	return m, nil
}

// Close releases the manager and the store.
func (c *Context) Close() error {
	var errs []error
	if c.manager != nil {
		errs = append(errs, c.manager.Close())
		c.manager = nil
	}
	if c.store != nil {
		errs = append(errs, c.store.Close())
		c.store = nil
	}
	return errors.Join(errs...)
}

// LockDir returns the expanded lockfile directory.
func (c *Context) LockDir() (string, error) {
	return config.ExpandPath(c.Config.LockDir)
}

// EnsureNoDaemon fails when a running chime process owns the alarm store.
// Writes from a second process would be overwritten by the owner's next
// commit.
func (c *Context) EnsureNoDaemon() error {
	dir, err := c.LockDir()
	if err != nil {
		return err
	}
	owner, err := lockfile.Check(dir)
	if err != nil {
		return nil
	}
	if owner.Addr != "" {
		return fmt.Errorf("%w (pid %d, rpc %s); use the JSON-RPC interface or stop it first", lockfile.ErrLocked, owner.PID, owner.Addr)
	}
	return fmt.Errorf("%w (pid %d); close it first", lockfile.ErrLocked, owner.PID)
}

// ManagerOptions builds alarm manager options from cfg. now supplies the
// manager's clock.
func ManagerOptions(cfg *config.Config, now func() time.Time) ([]alarm.Option, error) {
	c, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	return []alarm.Option{
		alarm.WithNamespace(cfg.Store.Namespace),
		alarm.WithCodec(c),
		alarm.WithClock(now),
		alarm.WithDisableExpiredOnce(cfg.DisableExpiredOnce),
	}, nil
}

// NewProvider returns the storage provider selected by cfg.Store.Backend.
func NewProvider(cfg *config.Config) (storage.Provider, error) {
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		path, err := config.ExpandPath(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		return sqlite.NewStore(path), nil
	case config.BackendPostgres:
		connStr, err := ResolveConnString(cfg)
		if err != nil {
			return nil, err
		}
		return postgres.New(connStr), nil
	case config.BackendKeyring:
		return keyring.NewStore(), nil
	case config.BackendFile:
		dir, err := config.ExpandPath(cfg.Store.Dir)
		if err != nil {
			return nil, err
		}
		return file.New(dir), nil
	case config.BackendMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// ResolveConnString finds the PostgreSQL connection string. store.dsn is
// checked first and must not carry a password; CHIME_DB_CONNECTION and the
// OS keyring may.
func ResolveConnString(cfg *config.Config) (string, error) {
	if dsn := strings.TrimSpace(cfg.Store.DSN); dsn != "" {
		if _, err := postgres.ValidateConnString(dsn); err != nil {
			if errors.Is(err, postgres.ErrEmbeddedCredentials) {
				return "", fmt.Errorf("store.dsn must not embed a password; use %s, .pgpass, or 'chime keyring set' instead", constants.EnvDBConnection)
			}
			return "", err
		}
		return dsn, nil
	}

	if env := strings.TrimSpace(os.Getenv(constants.EnvDBConnection)); env != "" {
		return env, nil
	}

	connStr, err := keyring.GetConnectionString()
	if err == nil {
		return connStr, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		logger.Warn("Failed to read connection string from keyring", "error", err)
	}
	return "", fmt.Errorf("no PostgreSQL connection string configured; set store.dsn, %s, or run 'chime keyring set'", constants.EnvDBConnection)
}

// ResolveRPCSecret returns rpc.secret from the config, falling back to the
// OS keyring. An empty result disables /jsonrpc.
func ResolveRPCSecret(cfg *config.Config) string {
	if cfg.RPC.Secret != "" {
		return cfg.RPC.Secret
	}
	secret, err := keyring.GetRPCSecret()
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			logger.Warn("Failed to read RPC secret from keyring", "error", err)
		}
		return ""
	}
	return secret
}

// AlarmName returns the label, or "Alarm <id>" for unlabeled alarms.
func AlarmName(a models.Alarm) string {
	if a.Label != "" {
		return a.Label
	}
	return fmt.Sprintf("Alarm %d", a.ID)
}

// FormatNext renders the next trigger in loc, or "-" when unscheduled.
func FormatNext(a models.Alarm, loc *time.Location) string {
	next := a.NextTrigger(loc)
	if next.IsZero() {
		return "-"
	}
	return next.Format("Mon " + constants.DateFormat + " " + constants.TimeFormat)
}
