package manager

import (
	"errors"
	"fmt"
)

// Kind classifies orchestrator errors.
type Kind string

// Error kinds.
const (
	KindValidation          Kind = "validation"
	KindConflict            Kind = "conflict"
	KindQuotaExceeded       Kind = "quota_exceeded"
	KindConcurrencyLimit    Kind = "concurrency_limit"
	KindNotFound            Kind = "not_found"
	KindProvisioningTimeout Kind = "provisioning_timeout"
	KindExternalTool        Kind = "external_tool"
)

var (
	// ErrValidation indicates a user-fixable request problem.
	ErrValidation = &Error{Kind: KindValidation}
	// ErrConflict indicates a duplicate name or a status that forbids the request.
	ErrConflict = &Error{Kind: KindConflict}
	// ErrQuotaExceeded indicates the global store quota is reached.
	ErrQuotaExceeded = &Error{Kind: KindQuotaExceeded}
	// ErrConcurrencyLimit indicates no provisioning slot is free.
	ErrConcurrencyLimit = &Error{Kind: KindConcurrencyLimit}
	// ErrNotFound indicates the store does not exist or is deleted.
	ErrNotFound = &Error{Kind: KindNotFound}
	// ErrProvisioningTimeout indicates workloads did not become ready in time.
	ErrProvisioningTimeout = &Error{Kind: KindProvisioningTimeout}
	// ErrExternalTool indicates a cluster or deployment tool failure.
	ErrExternalTool = &Error{Kind: KindExternalTool}
)

// Error is a classified orchestrator error. Message is safe to show callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the package sentinels work with
// errors.Is.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind, true
	}
	return "", false
}
