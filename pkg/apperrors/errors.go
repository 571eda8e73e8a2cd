// Package apperrors holds the typed failures returned by the service layer.
//
// Every error built here wraps one of the kind sentinels below, so callers can
// branch with errors.Is(err, apperrors.ErrInsufficientStock) and still read the
// structured detail through errors.As.
package apperrors

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrConflictRetryable  = errors.New("conflict, retry the operation")
	ErrValidation         = errors.New("validation failed")
)

// Error is a service failure with enough context to render a precise message.
type Error struct {
	Kind      error
	Message   string
	Entity    string
	EntityID  string
	State     string
	Attempted string
	Legal     []string
	Available *int
	Requested *int
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Details flattens the structured fields for API responses.
func (e *Error) Details() map[string]string {
	d := map[string]string{}
	if e.Entity != "" {
		d["entity"] = e.Entity
	}
	if e.EntityID != "" {
		d["entity_id"] = e.EntityID
	}
	if e.State != "" {
		d["current_state"] = e.State
	}
	if e.Attempted != "" {
		d["attempted_state"] = e.Attempted
	}
	if e.Kind == ErrInvalidTransition {
		d["legal_destinations"] = legalList(e.Legal)
	}
	if e.Available != nil {
		d["available"] = strconv.Itoa(*e.Available)
	}
	if e.Requested != nil {
		d["requested"] = strconv.Itoa(*e.Requested)
	}
	return d
}

// WithCause attaches an underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

func legalList(legal []string) string {
	if len(legal) == 0 {
		return "none (terminal)"
	}
	return strings.Join(legal, ", ")
}

func NotFound(entity string, id any) *Error {
	return &Error{
		Kind:     ErrNotFound,
		Message:  fmt.Sprintf("%s %v does not exist", entity, id),
		Entity:   entity,
		EntityID: fmt.Sprint(id),
	}
}

// InvalidTransition reports a workflow move that the transition table rejects.
func InvalidTransition(entity string, id any, from, to string, legal []string) *Error {
	return &Error{
		Kind:      ErrInvalidTransition,
		Message:   fmt.Sprintf("cannot change %s %v from %s to %s; allowed from %s: %s", entity, id, from, to, from, legalList(legal)),
		Entity:    entity,
		EntityID:  fmt.Sprint(id),
		State:     from,
		Attempted: to,
		Legal:     legal,
	}
}

func Precondition(entity string, id any, format string, args ...any) *Error {
	return &Error{
		Kind:     ErrPreconditionFailed,
		Message:  fmt.Sprintf(format, args...),
		Entity:   entity,
		EntityID: fmt.Sprint(id),
	}
}

// PreconditionInState is a precondition failure that also records the state it was checked in.
func PreconditionInState(entity string, id any, state string, format string, args ...any) *Error {
	e := Precondition(entity, id, format, args...)
	e.State = state
	return e
}

func InsufficientStock(partID int64, partCode string, available, requested int) *Error {
	return &Error{
		Kind:      ErrInsufficientStock,
		Message:   fmt.Sprintf("part %s: available %d, requested %d", partCode, available, requested),
		Entity:    "part",
		EntityID:  strconv.FormatInt(partID, 10),
		Available: &available,
		Requested: &requested,
	}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: ErrConflictRetryable, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// As returns the *Error inside err, if any.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
