package game

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error. The transport maps kinds to HTTP statuses
// and to the kind field of websocket error messages.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindUnauthorized     Kind = "unauthorized"
	KindPrecondition     Kind = "precondition"
	KindDuplicateName    Kind = "duplicate_name"
	KindGameFull         Kind = "game_full"
	KindAlreadyCompleted Kind = "already_completed"
	KindCreation         Kind = "creation"
	KindPersistence      Kind = "persistence"
	KindConflict         Kind = "conflict"
	KindInvalid          Kind = "invalid"
)

// Error is the domain error type. Message is safe to show to players.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is.
var (
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "not found"}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized, Message: "only the host can do that"}
	ErrPrecondition     = &Error{Kind: KindPrecondition, Message: "not allowed right now"}
	ErrDuplicateName    = &Error{Kind: KindDuplicateName, Message: "that name is already taken"}
	ErrGameFull         = &Error{Kind: KindGameFull, Message: "this game is full"}
	ErrAlreadyCompleted = &Error{Kind: KindAlreadyCompleted, Message: "you already completed this challenge"}
	ErrCreation         = &Error{Kind: KindCreation, Message: "could not create game"}
	ErrPersistence      = &Error{Kind: KindPersistence, Message: "could not save game"}
	ErrConflict         = &Error{Kind: KindConflict, Message: "game already exists"}
	ErrInvalid          = &Error{Kind: KindInvalid, Message: "invalid request"}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of err, or "" when err is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

var errEnded = newError(KindPrecondition, "the game has ended")
