package workflow

import (
	"errors"
	"fmt"
)

// ResolutionError means a device/port pair could not be mapped to an ONU
// serial number. Terminal for the event: a stale topology lookup will not
// self-correct before the event expires, so the caller logs and drops.
type ResolutionError struct {
	DeviceID   string
	PortNumber uint32
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve ONU serial number for device %s port %d", e.DeviceID, e.PortNumber)
}

// NotFoundError means a record that must already exist is absent.
// Terminal for the event unless the handler is allowed to create it.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

// DeferredError means a precondition is not met yet (record not synced, ONU
// not in inventory). The caller must retry later with the same input; it is
// never a terminal failure and never logged at error level. SerialNumber
// identifies the service instance whose reconciliation should be retried.
type DeferredError struct {
	SerialNumber string
	Reason       string
}

func (e *DeferredError) Error() string {
	return "deferred: " + e.Reason
}

// deferredf builds a DeferredError for a serial with a formatted reason.
func deferredf(serial, format string, args ...interface{}) *DeferredError {
	return &DeferredError{SerialNumber: serial, Reason: fmt.Sprintf(format, args...)}
}

// IsDeferred reports whether err (or anything it wraps) is a DeferredError.
func IsDeferred(err error) bool {
	var de *DeferredError
	return errors.As(err, &de)
}

// AmbiguousWhitelistError means more than one whitelist entry matches the
// same (owner, serial) pair. The whitelist is supposed to be keyed on that
// pair, so this is an operator error, not a tie to break silently.
type AmbiguousWhitelistError struct {
	SerialNumber string
	Count        int
}

func (e *AmbiguousWhitelistError) Error() string {
	return fmt.Sprintf("whitelist is ambiguous: %d entries match serial number %s", e.Count, e.SerialNumber)
}
