// Package errors provides the coded error taxonomy for kinmigrate.
// Every failure the keystore, account clients and migration engine can
// report is a sentinel *KinError; wrapping keeps the code so callers can
// branch with errors.Is.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess    = 0 // Successful execution
	ExitGeneral    = 1 // General/unknown error
	ExitInput      = 2 // Invalid input
	ExitAuth       = 3 // Authentication failed
	ExitNotFound   = 4 // Resource not found
	ExitPermission = 5 // Insufficient funds or rejected by the ledger
)

// KinError is the structured error type used across the module.
type KinError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *KinError) Error() string {
	msg := e.Message

	// Include details in error message (sorted for deterministic output)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *KinError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for KinError.
func (e *KinError) Is(target error) bool {
	var t *KinError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Generic errors.
var (
	ErrGeneral = &KinError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &KinError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	ErrNotFound = &KinError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	ErrNotSupported = &KinError{
		Code:     "NOT_SUPPORTED",
		Message:  "operation not supported for this blockchain version",
		ExitCode: ExitInput,
	}

	ErrNetworkError = &KinError{
		Code:     "NETWORK_ERROR",
		Message:  "network communication failed",
		ExitCode: ExitGeneral,
	}
)

// Keystore errors.
var (
	ErrStoreFailed = &KinError{
		Code:     "STORE_FAILED",
		Message:  "failed to store account record",
		ExitCode: ExitGeneral,
	}

	ErrLoadFailed = &KinError{
		Code:     "LOAD_FAILED",
		Message:  "failed to load account record",
		ExitCode: ExitGeneral,
	}

	ErrMissingSalt = &KinError{
		Code:     "MISSING_SALT",
		Message:  "account record has no salt",
		ExitCode: ExitInput,
	}

	ErrMissingSeed = &KinError{
		Code:     "MISSING_SEED",
		Message:  "account record has no encrypted seed",
		ExitCode: ExitInput,
	}

	ErrMissingSecretKey = &KinError{
		Code:     "MISSING_SECRET_KEY",
		Message:  "secret key could not be recovered from the record",
		ExitCode: ExitAuth,
	}

	ErrNoSeed = &KinError{
		Code:     "NO_SEED",
		Message:  "failed to generate a random seed",
		ExitCode: ExitGeneral,
	}

	ErrKeypairGenerationFailed = &KinError{
		Code:     "KEYPAIR_GENERATION_FAILED",
		Message:  "failed to derive keypair from seed",
		ExitCode: ExitGeneral,
	}

	ErrEncryptionFailed = &KinError{
		Code:     "ENCRYPTION_FAILED",
		Message:  "failed to encrypt seed",
		ExitCode: ExitGeneral,
	}

	ErrDecryptionFailed = &KinError{
		Code:     "DECRYPTION_FAILED",
		Message:  "decryption failed - wrong passphrase or corrupted record",
		ExitCode: ExitAuth,
	}

	ErrInvalidSeed = &KinError{
		Code:     "INVALID_SEED",
		Message:  "invalid secret seed",
		ExitCode: ExitInput,
	}
)

// Account errors.
var (
	ErrAccountDeleted = &KinError{
		Code:     "ACCOUNT_DELETED",
		Message:  "account has been deleted",
		ExitCode: ExitInput,
	}

	ErrInvalidAmount = &KinError{
		Code:     "INVALID_AMOUNT",
		Message:  "invalid amount",
		ExitCode: ExitInput,
	}

	ErrInsufficientFunds = &KinError{
		Code:     "INSUFFICIENT_FUNDS",
		Message:  "insufficient funds for transaction",
		ExitCode: ExitPermission,
	}

	ErrInternalInconsistency = &KinError{
		Code:     "INTERNAL_INCONSISTENCY",
		Message:  "internal inconsistency",
		ExitCode: ExitGeneral,
	}
)

// Chain errors.
var (
	ErrMissingAccount = &KinError{
		Code:     "MISSING_ACCOUNT",
		Message:  "account not found on the ledger",
		ExitCode: ExitNotFound,
	}

	ErrMissingBalance = &KinError{
		Code:     "MISSING_BALANCE",
		Message:  "account has no Kin trustline",
		ExitCode: ExitNotFound,
	}

	ErrPaymentFailed = &KinError{
		Code:     "PAYMENT_FAILED",
		Message:  "payment failed",
		ExitCode: ExitPermission,
	}

	ErrBalanceQueryFailed = &KinError{
		Code:     "BALANCE_QUERY_FAILED",
		Message:  "balance query failed",
		ExitCode: ExitGeneral,
	}

	ErrTransactionCreationFailed = &KinError{
		Code:     "TRANSACTION_CREATION_FAILED",
		Message:  "failed to build transaction",
		ExitCode: ExitGeneral,
	}

	ErrMemoTooLong = &KinError{
		Code:     "MEMO_TOO_LONG",
		Message:  "memo exceeds maximum length",
		ExitCode: ExitInput,
	}

	ErrInvalidAppID = &KinError{
		Code:     "INVALID_APP_ID",
		Message:  "app id must be 3 or 4 alphanumeric characters",
		ExitCode: ExitInput,
	}

	ErrInvalidAddress = &KinError{
		Code:     "INVALID_ADDRESS",
		Message:  "invalid public address",
		ExitCode: ExitInput,
	}

	ErrWhitelistFailed = &KinError{
		Code:     "WHITELIST_FAILED",
		Message:  "transaction whitelisting failed",
		ExitCode: ExitGeneral,
	}
)

// Migration errors.
var (
	ErrInvalidNetwork = &KinError{
		Code:     "INVALID_NETWORK",
		Message:  "invalid network",
		ExitCode: ExitInput,
	}

	ErrInvalidMigrationURL = &KinError{
		Code:     "INVALID_MIGRATION_URL",
		Message:  "invalid migration service URL",
		ExitCode: ExitInput,
	}

	ErrMissingDelegate = &KinError{
		Code:     "MISSING_DELEGATE",
		Message:  "migration delegate is not set",
		ExitCode: ExitGeneral,
	}

	ErrMigrationInProgress = &KinError{
		Code:     "MIGRATION_IN_PROGRESS",
		Message:  "a migration is already in progress",
		ExitCode: ExitGeneral,
	}

	ErrResponseEmpty = &KinError{
		Code:     "RESPONSE_EMPTY",
		Message:  "migration service returned an empty response",
		ExitCode: ExitGeneral,
	}

	ErrResponseFailed = &KinError{
		Code:     "RESPONSE_FAILED",
		Message:  "migration service request failed",
		ExitCode: ExitGeneral,
	}

	ErrResponseDecodingFailed = &KinError{
		Code:     "RESPONSE_DECODING_FAILED",
		Message:  "migration service response could not be decoded",
		ExitCode: ExitGeneral,
	}

	ErrInvalidPublicAddress = &KinError{
		Code:     "INVALID_PUBLIC_ADDRESS",
		Message:  "public address not found in the legacy keystore",
		ExitCode: ExitNotFound,
	}

	ErrMigrationFailed = &KinError{
		Code:     "MIGRATION_FAILED",
		Message:  "migration failed",
		ExitCode: ExitGeneral,
	}

	ErrMigrationNeeded = &KinError{
		Code:     "MIGRATION_NEEDED",
		Message:  "account was burned and must be migrated",
		ExitCode: ExitPermission,
	}

	ErrUnexpectedCondition = &KinError{
		Code:     "UNEXPECTED_CONDITION",
		Message:  "unexpected condition",
		ExitCode: ExitGeneral,
	}
)

// Config and backup errors.
var (
	ErrConfigInvalid = &KinError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration file is invalid",
		ExitCode: ExitInput,
	}

	ErrBackupNotFound = &KinError{
		Code:     "BACKUP_NOT_FOUND",
		Message:  "backup file not found",
		ExitCode: ExitNotFound,
	}

	ErrBackupCorrupted = &KinError{
		Code:     "BACKUP_CORRUPTED",
		Message:  "backup payload is not a valid account export",
		ExitCode: ExitInput,
	}

	ErrWeakPassphrase = &KinError{
		Code:     "WEAK_PASSPHRASE",
		Message:  "backup passphrase does not meet the strength rules",
		ExitCode: ExitInput,
	}
)

// New creates a new KinError with the given code and message.
func New(code, message string) *KinError {
	return &KinError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var se *KinError
	if errors.As(err, &se) {
		return &KinError{
			Code:       se.Code,
			Message:    fmt.Sprintf("%s: %s", msg, se.Message),
			Details:    se.Details,
			Suggestion: se.Suggestion,
			Cause:      err,
			ExitCode:   se.ExitCode,
		}
	}

	return &KinError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var se *KinError
	if errors.As(err, &se) {
		return &KinError{
			Code:       se.Code,
			Message:    se.Message,
			Details:    details,
			Suggestion: se.Suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &KinError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var se *KinError
	if errors.As(err, &se) {
		return &KinError{
			Code:       se.Code,
			Message:    se.Message,
			Details:    se.Details,
			Suggestion: suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &KinError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// WithCause returns a copy of kind whose cause is cause, so both
// Is(err, kind) and errors.As on the cause's type hold.
func WithCause(kind *KinError, cause error, details map[string]string) error {
	if cause == nil {
		return nil
	}
	return &KinError{
		Code:       kind.Code,
		Message:    kind.Message,
		Details:    details,
		Suggestion: kind.Suggestion,
		Cause:      cause,
		ExitCode:   kind.ExitCode,
	}
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var se *KinError
	if errors.As(err, &se) {
		return se.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var se *KinError
	if errors.As(err, &se) {
		return se.Code
	}
	return "GENERAL_ERROR"
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Detail returns the value stored under key in the error's details, or "".
func Detail(err error, key string) string {
	var ke *KinError
	if errors.As(err, &ke) {
		return ke.Details[key]
	}
	return ""
}
