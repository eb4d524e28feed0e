// Package saleerr classifies sale failures so callers can map them to
// responses without string matching.
package saleerr

import (
	"errors"
	"fmt"
)

// Kind classifies a sale error.
type Kind int

const (
	// KindUnknown is an unclassified error.
	KindUnknown Kind = iota
	// KindValidation indicates bad construction or stage parameters.
	KindValidation
	// KindAuthorization indicates a non-admin calling a privileged operation.
	KindAuthorization
	// KindState indicates the operation is invalid for the current lifecycle state.
	KindState
	// KindArithmetic indicates an overflow or underflow.
	KindArithmetic
	// KindNotFound indicates an unknown channel, grant or referral.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindArithmetic:
		return "arithmetic"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String. Unrecognized names are KindUnknown.
func ParseKind(s string) Kind {
	for _, k := range []Kind{KindValidation, KindAuthorization, KindState, KindArithmetic, KindNotFound} {
		if k.String() == s {
			return k
		}
	}
	return KindUnknown
}

// Error is a classified sale error.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind when the target carries no message, so
// errors.Is(err, saleerr.State) style checks work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Msg == "" && t.Op == "" && t.Err == nil {
		return t.Kind == e.Kind
	}
	return false
}

// Kind markers for errors.Is.
var (
	Validation    = &Error{Kind: KindValidation}
	Authorization = &Error{Kind: KindAuthorization}
	State         = &Error{Kind: KindState}
	Arithmetic    = &Error{Kind: KindArithmetic}
	NotFound      = &Error{Kind: KindNotFound}
)

// Recurring conditions.
var (
	ErrNotAdmin         = errors.New("caller is not the admin")
	ErrOwnershipLocked  = errors.New("admin control cannot be relinquished")
	ErrCampaignClosed   = errors.New("campaign has closed")
	ErrCampaignNotOpen  = errors.New("campaign is not open")
	ErrCampaignNotOver  = errors.New("campaign has not closed")
	ErrAlreadyFinalized = errors.New("campaign already finalized")
	ErrNotFinalized     = errors.New("campaign not finalized")
	ErrGoalReached      = errors.New("funding goal reached")
	ErrGoalNotReached   = errors.New("funding goal not reached")
	ErrVaultClaimed     = errors.New("vault already claimed")
	ErrStageClosed      = errors.New("stage window is not open")
	ErrAllowance        = errors.New("contribution exceeds stage allowance")
	ErrCapExceeded      = errors.New("purchase exceeds remaining tokens")
	ErrSelfReferral     = errors.New("beneficiary is the channel advertiser")
	ErrChannelDisabled  = errors.New("channel is disabled")
	ErrReferralExists   = errors.New("advertiser already has an active channel")
	ErrNoReferral       = errors.New("no active referral")
	ErrOverflow         = errors.New("arithmetic overflow")
	ErrUnderflow        = errors.New("arithmetic underflow")
	ErrInsufficient     = errors.New("insufficient balance")
	ErrPaused           = errors.New("ledger is paused")
	ErrZeroAddress      = errors.New("zero address")
	ErrZeroAmount       = errors.New("zero amount")
	ErrNotReleasable    = errors.New("release time not reached")
	ErrNothingToRelease = errors.New("nothing to release")
	ErrEscrowState      = errors.New("escrow is in the wrong state")
)

func newError(kind Kind, op string, err error, format string, args ...any) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// Validationf returns a validation error.
func Validationf(op, format string, args ...any) error {
	return newError(KindValidation, op, nil, format, args...)
}

// Invalid wraps a sentinel as a validation error.
func Invalid(op string, err error) error {
	return newError(KindValidation, op, err, "")
}

// Unauthorized returns an authorization error for op.
func Unauthorized(op string) error {
	return newError(KindAuthorization, op, ErrNotAdmin, "")
}

// StateErr wraps a lifecycle sentinel as a state error.
func StateErr(op string, err error) error {
	return newError(KindState, op, err, "")
}

// Statef returns a state error with detail.
func Statef(op string, err error, format string, args ...any) error {
	return newError(KindState, op, err, format, args...)
}

// ArithmeticErr wraps an arithmetic sentinel.
func ArithmeticErr(op string, err error) error {
	return newError(KindArithmetic, op, err, "")
}

// NotFoundf returns a not-found error.
func NotFoundf(op, format string, args ...any) error {
	return newError(KindNotFound, op, nil, format, args...)
}

// WithOp stamps op onto a classified error that lacks one. Other errors are
// returned unchanged.
func WithOp(op string, err error) error {
	var e *Error
	if errors.As(err, &e) && e.Op == "" {
		c := *e
		c.Op = op
		return &c
	}
	return err
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
