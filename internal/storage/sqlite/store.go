package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/chime/internal/logger"
	"github.com/julianstephens/chime/internal/migration"
	"github.com/julianstephens/chime/migrations"
)

// Store keeps namespaced key-value pairs in a single SQLite table.
type Store struct {
	path string
	db   *sql.DB
}

func NewStore(path string) *Store {
	return &Store{
		path: path,
	}
}

func (s *Store) Init() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if s.db == nil {
		db, err := sql.Open("sqlite", s.path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		s.db = db
	}

	if err := s.runMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *Store) Load() error {
	if s.db != nil {
		return nil
	}

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return fmt.Errorf("storage not initialized, run 'chime init' first")
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db

	if err := s.validateSchemaVersion(); err != nil {
		s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func (s *Store) GetConfigPath() string {
	return s.path
}

func (s *Store) runner() (*migration.Runner, error) {
	subFS, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to access sqlite migrations: %w", err)
	}
	return migration.NewRunner(s.db, subFS, migration.DriverSQLite)
}

func (s *Store) runMigrations() error {
	runner, err := s.runner()
	if err != nil {
		return err
	}
	_, err = runner.ApplyMigrations(nil)
	return err
}

func (s *Store) validateSchemaVersion() error {
	runner, err := s.runner()
	if err != nil {
		return err
	}
	return runner.ValidateVersion()
}

// SchemaStatus reports the current and latest schema versions.
func (s *Store) SchemaStatus() (current, latest int, err error) {
	if s.db == nil {
		return 0, 0, errors.New("database not open")
	}
	runner, err := s.runner()
	if err != nil {
		return 0, 0, err
	}
	return runner.Status()
}

func (s *Store) Get(namespace, key string) (string, bool, error) {
	if s.db == nil {
		return "", false, errors.New("database not open")
	}
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE namespace = ? AND key = ?", namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s/%s: %w", namespace, key, err)
	}
	return value, true, nil
}

func (s *Store) Put(namespace string, entries map[string]string, erase bool) error {
	if s.db == nil {
		return errors.New("database not open")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if erase {
		if _, err := tx.Exec("DELETE FROM kv WHERE namespace = ?", namespace); err != nil {
			return fmt.Errorf("failed to erase namespace %s: %w", namespace, err)
		}
	}
	for key, value := range entries {
		_, err := tx.Exec(`
			INSERT INTO kv (namespace, key, value, updated_at)
			VALUES (?, ?, ?, strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
			ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, namespace, key, value)
		if err != nil {
			return fmt.Errorf("failed to write %s/%s: %w", namespace, key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	logger.Debug("Committed key-value entries", "backend", "sqlite", "namespace", namespace, "keys", len(entries), "erase", erase)
	return nil
}
