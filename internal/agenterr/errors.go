// Package agenterr defines the agent's error taxonomy: a single Kind-tagged
// error type rather than one Go type per kind, so callers match with
// agenterr.IsKind against a Kind constant instead of a type switch.
package agenterr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into the taxonomy used across every subsystem.
type Kind string

const (
	KindConfig         Kind = "config"
	KindNetwork        Kind = "network"
	KindSecurity       Kind = "security"
	KindPlatform       Kind = "platform"
	KindCommand        Kind = "command"
	KindDataPlane      Kind = "data_plane"
	KindControlPlane   Kind = "control_plane"
	KindHealthCheck    Kind = "health_check"
	KindServer         Kind = "server"
	KindValidation     Kind = "validation"
	KindTimeout        Kind = "timeout"
	KindAuthentication Kind = "authentication"
	KindPermission     Kind = "permission"
	KindResource       Kind = "resource"
)

// Error is the agent's single error type. Kind sorts it into the taxonomy
// above; Cause, when present, is preserved for errors.Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsKind reports whether err (or any error it wraps) carries the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
