package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure that reaches the engagement flow is one of these.
var (
	ErrValidation = errors.New("invalid selection")
	ErrConflict   = errors.New("conflicting state")
	ErrNotFound   = errors.New("resource not found")
	ErrTransient  = errors.New("temporary failure")
	ErrCancelled  = errors.New("action cancelled")

	ErrSubmitInFlight = errors.New("vote submission already in progress")
	ErrShareInFlight  = errors.New("share already in progress for this vote")
	ErrNoActiveVote   = errors.New("no vote to share")
	ErrUnauthorized   = errors.New("unauthorized")
)

// FlowError carries the kind of a failure together with the message shown to
// the user.
type FlowError struct {
	Op      string
	Kind    error
	Message string
	Err     error
}

func NewFlowError(op string, kind error, message string, err error) *FlowError {
	return &FlowError{Op: op, Kind: kind, Message: message, Err: err}
}

func (e *FlowError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err == nil {
		return e.Op + ": " + msg
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
}

func (e *FlowError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// UserMessage returns the text safe to render for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *FlowError
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	switch {
	case errors.Is(err, ErrValidation):
		return "Please pick three different brands."
	case errors.Is(err, ErrConflict):
		return "You already voted today."
	case errors.Is(err, ErrNotFound):
		return "No vote found for this date."
	case errors.Is(err, ErrCancelled):
		return "Share was cancelled. You can try again or skip."
	default:
		return "Something went wrong. Please try again."
	}
}

type Affordance string

const (
	AffordanceRetry    Affordance = "retry"
	AffordanceSkip     Affordance = "skip"
	AffordanceNavigate Affordance = "navigate"
)

// AffordanceFor returns the single way out the user is offered for err.
func AffordanceFor(err error) Affordance {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound), errors.Is(err, ErrUnauthorized):
		return AffordanceNavigate
	case errors.Is(err, ErrCancelled):
		return AffordanceSkip
	default:
		return AffordanceRetry
	}
}
