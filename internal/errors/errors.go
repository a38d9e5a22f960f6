// Package errors provides the error definitions used across vimbot. It
// defines the failure kinds a caller can distinguish, typed errors carrying
// the context needed to format a message, and classification helpers.
//
// # Error Kinds
//
// Every vimbot failure maps to one [Kind]:
//   - KindIncompatibleBinary: an explicitly requested binary lacks client-server support
//   - KindNoCompatibleBinary: none of the default candidates support it
//   - KindInvalidInput: a remote-send produced output on stderr
//   - KindInvalidExpression: a remote-expr produced output on stderr
//   - KindTimeout: a server did not become reachable in time
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewBinaryError("vim-tiny")
//	err := errors.NewRemoteError(errors.KindInvalidExpression, "VIMBOT_1", "1 + []", stderr)
//	err := errors.NewTimeoutError("waiting for vim server VIMBOT_1", 30*time.Second)
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrInvalidExpression) { ... }
//
//	switch errors.KindOf(err) {
//	case errors.KindIncompatibleBinary:
//	    ...
//	}
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Kind identifies the category of a vimbot failure.
type Kind int

const (
	// KindUnknown is reported for errors that did not originate in vimbot.
	KindUnknown Kind = iota
	// KindIncompatibleBinary means an explicit binary has no client-server mode.
	KindIncompatibleBinary
	// KindNoCompatibleBinary means no default candidate has client-server mode.
	KindNoCompatibleBinary
	// KindInvalidInput means the server rejected a remote-send.
	KindInvalidInput
	// KindInvalidExpression means the server rejected a remote-expr.
	KindInvalidExpression
	// KindTimeout means a server never became reachable.
	KindTimeout
)

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindIncompatibleBinary:
		return "incompatible_binary"
	case KindNoCompatibleBinary:
		return "no_compatible_binary"
	case KindInvalidInput:
		return "invalid_input"
	case KindInvalidExpression:
		return "invalid_expression"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of [Kind.String]. It returns KindUnknown and
// false for unrecognized names.
func ParseKind(s string) (Kind, bool) {
	for _, k := range []Kind{
		KindIncompatibleBinary,
		KindNoCompatibleBinary,
		KindInvalidInput,
		KindInvalidExpression,
		KindTimeout,
	} {
		if strings.EqualFold(s, k.String()) {
			return k, true
		}
	}
	return KindUnknown, false
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Sentinels matched by the typed errors below through errors.Is.
var (
	// ErrIncompatibleBinary indicates that a requested binary lacks client-server mode.
	ErrIncompatibleBinary = New("binary does not support client-server mode")
	// ErrNoCompatibleBinary indicates that no candidate binary supports client-server mode.
	ErrNoCompatibleBinary = New("no binary supports client-server mode")
	// ErrInvalidInput indicates that keystrokes were rejected by the server.
	ErrInvalidInput = New("invalid input")
	// ErrInvalidExpression indicates that an expression was rejected by the server.
	ErrInvalidExpression = New("invalid expression")
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindIncompatibleBinary:
		return ErrIncompatibleBinary
	case KindNoCompatibleBinary:
		return ErrNoCompatibleBinary
	case KindInvalidInput:
		return ErrInvalidInput
	case KindInvalidExpression:
		return ErrInvalidExpression
	case KindTimeout:
		return ErrTimeout
	default:
		return nil
	}
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// VimbotError is implemented by every typed error in this package.
type VimbotError interface {
	error

	// Kind returns the failure category.
	Kind() Kind

	// Unwrap returns the underlying error, if any.
	Unwrap() error
}

// baseError provides common functionality for all error types.
type baseError struct {
	kind  Kind
	cause error
}

// Kind returns the failure category.
func (e *baseError) Kind() Kind {
	return e.kind
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is matches the sentinel for the error's kind, then the cause chain.
func (e *baseError) Is(target error) bool {
	if s := sentinelFor(e.kind); s != nil && target == s {
		return true
	}
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// -----------------------------------------------------------------------------
// Binary Errors
// -----------------------------------------------------------------------------

// BinaryError reports that no usable editor binary could be selected.
// Binary is empty for KindNoCompatibleBinary.
//
// Example:
//
//	err := errors.NewBinaryError("/usr/bin/vi")
//	fmt.Println(err) // "vim binary '/usr/bin/vi' does not support client-server mode"
type BinaryError struct {
	baseError
	Binary     string
	Candidates []string
}

// NewBinaryError creates a KindIncompatibleBinary error for the given binary.
func NewBinaryError(binary string) *BinaryError {
	return &BinaryError{
		baseError: baseError{kind: KindIncompatibleBinary},
		Binary:    binary,
	}
}

// NewNoCompatibleBinaryError creates a KindNoCompatibleBinary error listing
// the candidates that were probed.
func NewNoCompatibleBinaryError(candidates []string) *BinaryError {
	return &BinaryError{
		baseError:  baseError{kind: KindNoCompatibleBinary},
		Candidates: candidates,
	}
}

// Error returns the formatted error message.
func (e *BinaryError) Error() string {
	if e.kind == KindNoCompatibleBinary {
		msg := "couldn't find a vim binary that supports client-server mode"
		if len(e.Candidates) > 0 {
			msg = fmt.Sprintf("%s (tried: %s)", msg, strings.Join(e.Candidates, ", "))
		}
		return msg
	}
	return fmt.Sprintf("vim binary '%s' does not support client-server mode", e.Binary)
}

// -----------------------------------------------------------------------------
// Remote Errors
// -----------------------------------------------------------------------------

// RemoteError reports that a server rejected a remote command. Stderr holds
// what the client wrote to its error stream.
//
// Example:
//
//	err := errors.NewRemoteError(errors.KindInvalidInput, "VIMBOT_3", "<Esc", "E...")
type RemoteError struct {
	baseError
	Server string
	Input  string
	Stderr string
}

// NewRemoteError creates a RemoteError of the given kind. The kind should be
// KindInvalidInput or KindInvalidExpression.
func NewRemoteError(kind Kind, server, input, stderr string) *RemoteError {
	return &RemoteError{
		baseError: baseError{kind: kind},
		Server:    server,
		Input:     input,
		Stderr:    stderr,
	}
}

// Error returns the formatted error message.
func (e *RemoteError) Error() string {
	what := "invalid input"
	if e.kind == KindInvalidExpression {
		what = "invalid expression"
	}

	prefix := what
	if e.Server != "" {
		prefix = fmt.Sprintf("%s [server=%s]", what, e.Server)
	}

	msg := fmt.Sprintf("%s: %q", prefix, e.Input)
	if detail := strings.TrimSpace(e.Stderr); detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, detail)
	}
	return msg
}

// -----------------------------------------------------------------------------
// Timeout Errors
// -----------------------------------------------------------------------------

// TimeoutError represents an operation that exceeded its time limit.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for vim server VIMBOT_1", 30*time.Second)
//	fmt.Println(err) // "timeout error: waiting for vim server VIMBOT_1 (timeout: 30s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{kind: KindTimeout},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// KindOf returns the kind of the first VimbotError in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ve VimbotError
	if As(err, &ve) {
		return ve.Kind()
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	return k != KindUnknown && KindOf(err) == k
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this returns nil for a nil error.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to start server")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to evaluate on %s", name)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Compile-time interface checks.
var (
	_ VimbotError = (*BinaryError)(nil)
	_ VimbotError = (*RemoteError)(nil)
	_ VimbotError = (*TimeoutError)(nil)
)
