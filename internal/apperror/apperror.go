// Package apperror classifies failures so callers can decide between retrying,
// showing a message and dropping the error.
package apperror

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindPersistence
	KindNotFound
	KindNetwork
	KindTimeout
	KindAssistant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPersistence:
		return "persistence"
	case KindNotFound:
		return "not found"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindAssistant:
		return "assistant"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Op names the operation that failed,
// Message is safe to show to a user, Err is the cause if any.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}

	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(op, message string) error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

func Persistence(op string, err error) error {
	return &Error{Kind: KindPersistence, Op: op, Message: "persistence failed", Err: err}
}

func NotFound(op, what, id string) error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf("%s not found (id: %s)", what, id)}
}

func Network(op string, err error) error {
	return &Error{Kind: KindNetwork, Op: op, Message: "network request failed", Err: err}
}

func Timeout(op string, err error) error {
	return &Error{Kind: KindTimeout, Op: op, Message: "request timed out", Err: err}
}

func Assistant(op string, err error) error {
	return &Error{Kind: KindAssistant, Op: op, Message: "assistant is unavailable", Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether trying the same operation again may succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindPersistence, KindNetwork, KindTimeout, KindAssistant:
		return true
	default:
		return false
	}
}

// UserMessage renders err for a notification.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		if msg := err.Error(); msg != "" {
			return msg
		}
		return "Operation failed, please try again later"
	}

	switch e.Kind {
	case KindValidation, KindNotFound:
		return e.Message
	case KindPersistence:
		return "Failed to save data, please check available storage and try again"
	case KindNetwork:
		return "Network connection failed, please check your network settings"
	case KindTimeout:
		return "The request timed out, please try again later"
	case KindAssistant:
		return "The assistant is temporarily unavailable, please try again later"
	default:
		return "Operation failed, please try again later"
	}
}
