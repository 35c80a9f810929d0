package usecase

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindConflict           ErrorKind = "CONFLICT"
	KindStale              ErrorKind = "STALE"
	KindVoucherRejected    ErrorKind = "VOUCHER_REJECTED"
	KindGatewayUnavailable ErrorKind = "GATEWAY_UNAVAILABLE"
	KindInvalidState       ErrorKind = "INVALID_STATE"
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindValidation         ErrorKind = "VALIDATION"
)

// Voucher rejection reasons
const (
	ReasonVoucherNotFound     = "NotFound"
	ReasonVoucherExpired      = "Expired"
	ReasonVoucherNotYetActive = "NotYetActive"
	ReasonUsageLimitReached   = "UsageLimitReached"
	ReasonVoucherInactive     = "Inactive"
	ReasonNotApplicable       = "NotApplicable"
)

// Error is the tagged failure every service returns for expected outcomes.
// Anything else is an internal error.
type Error struct {
	Kind    ErrorKind
	Reason  string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so callers can write
// errors.Is(err, usecase.ErrConflict).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

var (
	ErrConflict           = &Error{Kind: KindConflict}
	ErrStale              = &Error{Kind: KindStale}
	ErrVoucherRejected    = &Error{Kind: KindVoucherRejected}
	ErrGatewayUnavailable = &Error{Kind: KindGatewayUnavailable}
	ErrInvalidState       = &Error{Kind: KindInvalidState}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrValidation         = &Error{Kind: KindValidation}
)

// KindOf returns the tag of err, or "" for internal errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func conflictError(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

func staleError(msg string) error {
	return &Error{Kind: KindStale, Message: msg}
}

func voucherRejected(code, reason string) error {
	return &Error{
		Kind:    KindVoucherRejected,
		Reason:  reason,
		Message: fmt.Sprintf("voucher %s rejected", code),
	}
}

func gatewayUnavailable(err error) error {
	return &Error{Kind: KindGatewayUnavailable, Message: "payment gateway unavailable", Err: err}
}

func invalidState(msg string) error {
	return &Error{Kind: KindInvalidState, Message: msg}
}

func notFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func validationError(fields map[string]string) error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}
