// Package keyring keeps the PostgreSQL connection string in the OS keyring
// so that it never has to be written to the config file.
package keyring

import (
	stderrors "errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/julianstephens/horizon/internal/constants"
	"github.com/julianstephens/horizon/internal/errors"
	"github.com/julianstephens/horizon/internal/storage/postgres"
)

var (
	// ErrNotFound is returned when no credentials are stored.
	ErrNotFound = fmt.Errorf("%w: credentials not found in keyring", errors.ErrNotFound)
	// ErrKeyringUnavailable is returned when the OS keyring cannot be reached.
	ErrKeyringUnavailable = stderrors.New("OS keyring is not available")
)

// GetConnectionString retrieves the database connection string.
func GetConnectionString() (string, error) {
	connStr, err := keyring.Get(constants.AppName, constants.DefaultKeyringUser)
	if err != nil {
		if stderrors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return connStr, nil
}

// SetConnectionString validates connStr and stores it. Unlike the config
// file, the keyring may hold a password.
func SetConnectionString(connStr string) error {
	if err := postgres.ValidateConnString(connStr, true); err != nil {
		return errors.InvalidArgument("%v", err)
	}
	if err := keyring.Set(constants.AppName, constants.DefaultKeyringUser, connStr); err != nil {
		return fmt.Errorf("failed to store credentials in keyring: %w", err)
	}
	return nil
}

// DeleteConnectionString removes the stored connection string.
func DeleteConnectionString() error {
	err := keyring.Delete(constants.AppName, constants.DefaultKeyringUser)
	if err != nil {
		if stderrors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete credentials from keyring: %w", err)
	}
	return nil
}

// IsAvailable is a best-effort probe of the OS keyring.
func IsAvailable() bool {
	_, err := keyring.Get(constants.AppName, "test-availability")
	return err == nil || stderrors.Is(err, keyring.ErrNotFound)
}
