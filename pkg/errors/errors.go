package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Machine readable reasons attached to conflicts so callers can branch
// without parsing messages.
const (
	ReasonOfferNotPending  = "offer_not_pending"
	ReasonOfferExpired     = "offer_expired"
	ReasonOrderStatus      = "invalid_order_status"
	ReasonOrderChanged     = "order_changed"
	ReasonOrderAssigned    = "order_already_assigned"
	ReasonAgentUnavailable = "agent_unavailable"
	ReasonAgentAtCapacity  = "agent_at_capacity"
	ReasonNotAssignedAgent = "not_assigned_agent"
	ReasonMilestoneLocked  = "milestone_not_completed"
	ReasonAlreadyPaid      = "already_paid"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

// Client facing codes echo their own message; server side ones do not.
var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, false, "validation failed", true},
	CodeNotFound:      {http.StatusNotFound, false, "resource not found", false},
	CodeConflict:      {http.StatusConflict, false, "conflict detected", false},
	CodeStateConflict: {http.StatusUnprocessableEntity, false, "state transition disallowed", true},
	CodeInternal:      {http.StatusInternalServerError, true, "internal server error", false},
	CodeDependency:    {http.StatusServiceUnavailable, true, "dependency unavailable", true},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error every service returns across package boundaries.
type Error struct {
	code    Code
	message string
	reason  string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Reason() string {
	if e == nil {
		return ""
	}
	return e.reason
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithReason(reason string) *Error {
	if e != nil {
		e.reason = reason
	}
	return e
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.code))
	if e.reason != "" {
		b.WriteString("[" + e.reason + "]")
	}
	b.WriteString(": ")
	b.WriteString(e.message)
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// ReasonOf returns the reason of the outermost typed error, or "".
func ReasonOf(err error) string {
	return As(err).Reason()
}
