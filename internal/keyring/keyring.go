package keyring

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/julianstephens/chime/internal/constants"
)

var (
	// ErrNotFound is returned when no credentials are found in the keyring
	ErrNotFound = errors.New("credentials not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring is not available
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// RPCSecretUser is the keyring account holding the daemon's bearer token.
const RPCSecretUser = "rpc-secret"

func get(service, user string) (string, error) {
	value, err := keyring.Get(service, user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return value, nil
}

func del(service, user string) error {
	err := keyring.Delete(service, user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete credentials from keyring: %w", err)
	}
	return nil
}

// GetConnectionString retrieves the database connection string from the OS keyring.
// Returns ErrNotFound if no credentials are stored.
func GetConnectionString() (string, error) {
	return get(constants.AppName, constants.DefaultKeyringUser)
}

// SetConnectionString stores the database connection string in the OS keyring.
func SetConnectionString(connStr string) error {
	if connStr == "" {
		return errors.New("connection string cannot be empty")
	}
	if err := keyring.Set(constants.AppName, constants.DefaultKeyringUser, connStr); err != nil {
		return fmt.Errorf("failed to store credentials in keyring: %w", err)
	}
	return nil
}

// DeleteConnectionString removes the database connection string from the OS keyring.
func DeleteConnectionString() error {
	return del(constants.AppName, constants.DefaultKeyringUser)
}

// GetRPCSecret returns the bearer token stored by SetRPCSecret.
func GetRPCSecret() (string, error) {
	return get(constants.AppName, RPCSecretUser)
}

func SetRPCSecret(secret string) error {
	if secret == "" {
		return errors.New("rpc secret cannot be empty")
	}
	if err := keyring.Set(constants.AppName, RPCSecretUser, secret); err != nil {
		return fmt.Errorf("failed to store rpc secret in keyring: %w", err)
	}
	return nil
}

func DeleteRPCSecret() error {
	return del(constants.AppName, RPCSecretUser)
}

// IsAvailable checks if the OS keyring is available on the current system.
// This is a best-effort check and may not catch all failure scenarios.
func IsAvailable() bool {
	_, err := keyring.Get(constants.AppName, "test-availability")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
