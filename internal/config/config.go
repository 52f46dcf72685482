package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/julianstephens/chime/internal/constants"
)

// Backend names accepted in store.backend.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendKeyring  = "keyring"
	BackendFile     = "file"
	BackendMemory   = "memory"
)

// StoreConfig selects and parameterizes the key-value backend.
type StoreConfig struct {
	// Backend is one of sqlite, postgres, keyring, file, memory.
	Backend string `yaml:"backend" json:"backend"`
	// Path is the sqlite database file.
	Path string `yaml:"path" json:"path"`
	// Dir is the data directory of the file backend.
	Dir string `yaml:"dir" json:"dir"`
	// DSN is a postgres connection string without a password. When empty the
	// connection string comes from CHIME_DB_CONNECTION or the OS keyring.
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	// Namespace overrides the namespace alarms are stored under.
	Namespace string `yaml:"namespace" json:"namespace"`
}

// RPCConfig configures the JSON-RPC bridge served by the daemon.
type RPCConfig struct {
	Listen string `yaml:"listen" json:"listen"`
	// Secret is the bearer token clients must present. An empty secret
	// disables /jsonrpc.
	Secret string `yaml:"secret" json:"secret"`
}

type LogConfig struct {
	Debug bool   `yaml:"debug" json:"debug"`
	Dir   string `yaml:"dir" json:"dir"`
}

// Config is the top-level application configuration.
type Config struct {
	Store StoreConfig `yaml:"store" json:"store"`

	// Codec is the persistence encoding, "json" or "yaml".
	Codec string `yaml:"codec" json:"codec"`

	// Timezone is an IANA zone used for trigger arithmetic. Empty means the
	// host's local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// CheckSchedule is a cron spec (robfig/cron syntax, descriptors allowed)
	// for the daemon's trigger polling.
	CheckSchedule string `yaml:"check_schedule" json:"check_schedule"`

	// DisableExpiredOnce turns a Once alarm off once it has no next trigger.
	DisableExpiredOnce bool `yaml:"disable_expired_once" json:"disable_expired_once"`

	RPC RPCConfig `yaml:"rpc" json:"rpc"`

	// LockDir holds the daemon lockfile.
	LockDir string `yaml:"lock_dir" json:"lock_dir"`

	Log LogConfig `yaml:"log" json:"log"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing values with defaults so that partially-filled
// configs still behave correctly.
func (c *Config) Normalize() {
	if c.Store.Backend == "" {
		c.Store.Backend = BackendSQLite
	}
	c.Store.Backend = strings.ToLower(c.Store.Backend)
	if c.Store.Path == "" {
		c.Store.Path = constants.DefaultDBPath
	}
	if c.Store.Dir == "" {
		c.Store.Dir = constants.DefaultDataDir
	}
	if c.Store.Namespace == "" {
		c.Store.Namespace = constants.AlarmNamespace
	}
	if c.Codec == "" {
		c.Codec = "json"
	}
	c.Codec = strings.ToLower(c.Codec)
	if c.CheckSchedule == "" {
		c.CheckSchedule = constants.DefaultCheckSchedule
	}
	if c.RPC.Listen == "" {
		c.RPC.Listen = constants.DefaultRPCListen
	}
	if c.LockDir == "" {
		c.LockDir = constants.DefaultLockDir
	}
	if c.Log.Dir == "" {
		c.Log.Dir = filepath.Dir(constants.DefaultConfigPath)
	}
}

// Validate reports configuration values that cannot be used.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite, BackendPostgres, BackendKeyring, BackendFile, BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Codec {
	case "json", "yaml":
	default:
		return fmt.Errorf("unknown codec %q (must be json or yaml)", c.Codec)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone, defaulting to the host's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ExpandPath replaces a leading "~" with the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Load loads configuration from the given YAML path.
//
// A missing file is created with defaults (0600) and the defaults are
// returned. An existing file is unmarshaled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	path, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Callers may still run with the defaults
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically via a temp file and rename, with 0600
// permissions on the final file.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	path, err := ExpandPath(path)
	if err != nil {
		return err
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".chime-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

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
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
