package errors

import (
	"errors"
	"fmt"
)

// ErrVersionConflict is the sentinel returned by a conditional store write
// when the record changed since it was read. The engine retries on it.
var ErrVersionConflict = errors.New("usage record version conflict")

// Config errors

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Err error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse YAML: %v", e.Err)
}

func (e *ErrConfigParse) Unwrap() error {
	return e.Err
}

type ErrConfigValidation struct {
	Err error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ErrConfigValidation) Unwrap() error {
	return e.Err
}

// Database errors

type ErrDatabaseOpen struct {
	Path string
	Err  error
}

func (e *ErrDatabaseOpen) Error() string {
	return fmt.Sprintf("failed to open database %s: %v", e.Path, e.Err)
}

func (e *ErrDatabaseOpen) Unwrap() error {
	return e.Err
}

type ErrDatabaseMigration struct {
	Version int
	Err     error
}

func (e *ErrDatabaseMigration) Error() string {
	return fmt.Sprintf("database migration %d failed: %v", e.Version, e.Err)
}

func (e *ErrDatabaseMigration) Unwrap() error {
	return e.Err
}

type ErrDatabaseQuery struct {
	Operation string
	Err       error
}

func (e *ErrDatabaseQuery) Error() string {
	return fmt.Sprintf("database query failed for operation %s: %v", e.Operation, e.Err)
}

func (e *ErrDatabaseQuery) Unwrap() error {
	return e.Err
}

// Store errors

// ErrStoreUnavailable wraps a failed read or write against the record store.
// Callers treat the metered operation as not attempted and may retry.
type ErrStoreUnavailable struct {
	Operation string
	Err       error
}

func (e *ErrStoreUnavailable) Error() string {
	return fmt.Sprintf("record store unavailable during %s: %v", e.Operation, e.Err)
}

func (e *ErrStoreUnavailable) Unwrap() error {
	return e.Err
}

// Engine errors

// ErrRetriesExhausted reports that the conditional-write loop did not
// converge within its bound. It signals contention, not outage, and is logged
// distinctly, but callers handle it like a transient store failure.
type ErrRetriesExhausted struct {
	UserID   string
	Attempts int
}

func (e *ErrRetriesExhausted) Error() string {
	return fmt.Sprintf("consume for user %s did not converge after %d attempts", e.UserID, e.Attempts)
}

// Record errors

// ErrInvalidRecord reports corrupt stored usage state (negative counts,
// non-positive limits). Quota checks fail closed on it.
type ErrInvalidRecord struct {
	UserID string
	Err    error
}

func (e *ErrInvalidRecord) Error() string {
	return fmt.Sprintf("invalid usage record for user %s: %v", e.UserID, e.Err)
}

func (e *ErrInvalidRecord) Unwrap() error {
	return e.Err
}

// ErrRecordNotFound reports a lookup for a user that has no stored record.
type ErrRecordNotFound struct {
	UserID string
}

func (e *ErrRecordNotFound) Error() string {
	return fmt.Sprintf("no usage record for user %s", e.UserID)
}

// Filesystem errors

type ErrDirectoryCreate struct {
	Path string
	Err  error
}

func (e *ErrDirectoryCreate) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *ErrDirectoryCreate) Unwrap() error {
	return e.Err
}

type ErrFileRead struct {
	Path string
	Err  error
}

func (e *ErrFileRead) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *ErrFileRead) Unwrap() error {
	return e.Err
}

// Server errors

type ErrServerStart struct {
	Addr string
	Err  error
}

func (e *ErrServerStart) Error() string {
	return fmt.Sprintf("failed to start server on %s: %v", e.Addr, e.Err)
}

func (e *ErrServerStart) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a store or contention failure the caller
// may retry at a higher level. Quota-exceeded outcomes are data, never errors,
// so they are not represented here.
func IsTransient(err error) bool {
	var unavailable *ErrStoreUnavailable
	var exhausted *ErrRetriesExhausted
	return errors.As(err, &unavailable) || errors.As(err, &exhausted)
}
