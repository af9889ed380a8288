package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is expected and benign: the ledger is skipped.
	ErrNotConfigured = errors.New("ledger not configured")
	// ErrSubmission means a configured ledger rejected or lost the write.
	ErrSubmission = errors.New("ledger submission failed")
	// ErrRecordNotFound means the ledger answered and has no such record.
	ErrRecordNotFound = errors.New("record not found on ledger")
	// ErrUnavailable means the ledger could not be asked.
	ErrUnavailable = errors.New("ledger unavailable")
	// ErrTimeout means the per-ledger time budget ran out.
	ErrTimeout = errors.New("ledger call timed out")
)

// NotConfiguredError names the configuration value that is missing or invalid.
type NotConfiguredError struct {
	Ledger  string
	Missing string
	Detail  string
}

func (e *NotConfiguredError) Error() string {
	msg := fmt.Sprintf("ledger %s not configured: %s", e.Ledger, e.Missing)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *NotConfiguredError) Is(target error) bool { return target == ErrNotConfigured }
