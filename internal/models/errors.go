package models

import (
	"errors"
)

var (
	ErrNoRecord             = errors.New("models: no matching record found")
	ErrPropertyNotFound     = errors.New("property not found")
	ErrAgentNotFound        = errors.New("agent not found")
	ErrClientNotFound       = errors.New("client not found")
	ErrAgentAlreadyUnlocked = errors.New("agent already unlocked")
	ErrReferenceUsed        = errors.New("payment reference already used")
	ErrInvalidReference     = errors.New("invalid payment reference")
	ErrMissingField         = errors.New("missing required field")
	ErrPaymentNotConfirmed  = errors.New("payment not confirmed")
	ErrForbidden            = errors.New("forbidden")
)

// ErrorKind groups domain errors into the categories callers react to.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindConflict
	KindInvalid
	KindUpstreamUnconfirmed
	KindForbidden
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalid:
		return "invalid"
	case KindUpstreamUnconfirmed:
		return "upstream_unconfirmed"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Kind classifies err. Anything that is not a known domain error is internal.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrPropertyNotFound),
		errors.Is(err, ErrAgentNotFound),
		errors.Is(err, ErrClientNotFound),
		errors.Is(err, ErrNoRecord):
		return KindNotFound
	case errors.Is(err, ErrAgentAlreadyUnlocked),
		errors.Is(err, ErrReferenceUsed):
		return KindConflict
	case errors.Is(err, ErrInvalidReference),
		errors.Is(err, ErrMissingField):
		return KindInvalid
	case errors.Is(err, ErrPaymentNotConfirmed):
		return KindUpstreamUnconfirmed
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	default:
		return KindInternal
	}
}
