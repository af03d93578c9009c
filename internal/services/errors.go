// Package services holds the fulfillment pipeline and the download gate.
// This file collects the error values and types returned by service
// methods. Handlers translate these into HTTP statuses; services never
// decide status codes.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthorizationDenied is matched by every *DeniedError.
	ErrAuthorizationDenied = errors.New("download not authorized")

	// ErrNotifier wraps notifier failures. They are logged and counted, and
	// never change the order state.
	ErrNotifier = errors.New("notification failed")

	// ErrGenerator wraps generator failures recorded as the failure reason.
	ErrGenerator = errors.New("artifact generation failed")
)

// ValidationError reports a malformed order-paid event. No record is
// created when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DenyReason says why the gate refused a download. It is for logs and
// metrics only; callers outside the service must not reveal it.
type DenyReason string

const (
	DenyNotFound      DenyReason = "not_found"
	DenyNotReady      DenyReason = "not_ready"
	DenyEmailMismatch DenyReason = "email_mismatch"
)

// DeniedError is returned by DownloadGate.Authorize for every refusal.
type DeniedError struct {
	Reason DenyReason
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrAuthorizationDenied, e.Reason)
}

// Is makes errors.Is(err, ErrAuthorizationDenied) hold for any denial.
func (e *DeniedError) Is(target error) bool {
	return target == ErrAuthorizationDenied
}
