package errors

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/julianstephens/horizon/internal/logger"
)

// Error kinds. Every error produced by the progress engine or its storage
// collaborators wraps exactly one of these.
var (
	ErrInvalidArgument = stderrors.New("invalid argument")
	ErrNotFound        = stderrors.New("not found")
	ErrStorageFailure  = stderrors.New("storage failure")
)

// InvalidArgument builds an error of kind ErrInvalidArgument
func InvalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// NotFound builds an error of kind ErrNotFound
func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// StorageFailure wraps a persistence error. Errors that already carry a kind
// are returned unchanged so that callers see the original classification.
func StorageFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if HasKind(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}

// HasKind reports whether err is classified as one of the error kinds.
func HasKind(err error) bool {
	return stderrors.Is(err, ErrInvalidArgument) ||
		stderrors.Is(err, ErrNotFound) ||
		stderrors.Is(err, ErrStorageFailure)
}

// ExitCode maps an error to the process exit status used by the CLI.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case stderrors.Is(err, ErrInvalidArgument):
		return 2
	case stderrors.Is(err, ErrNotFound):
		return 3
	case stderrors.Is(err, ErrStorageFailure):
		return 4
	default:
		return 1
	}
}

// Format formats an error message with a consistent "Error: " prefix
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %v", err)
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// Fatal logs an error and exits the program with a status derived from its kind
func Fatal(err error) {
	if err != nil {
		logger.Error("Command execution failed", "error", err)
		fmt.Fprintf(os.Stderr, "%s\n", Format(err))
		os.Exit(ExitCode(err))
	}
}

// Fatalf logs and formats an error message, then exits the program with exit code 1
func Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Error("Command execution failed", "error", msg)
	fmt.Fprintf(os.Stderr, "%s\n", Formatf(format, args...))
	os.Exit(1)
}
