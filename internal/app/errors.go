package app

import (
	"fmt"

	"github.com/huahua9185/auto-study-advanced/internal/ports"
)

var ErrNotFound = ports.ErrNotFound

type AuthErrorKind string

const (
	AuthInvalidCredentials AuthErrorKind = "invalid_credentials"
	AuthCaptchaRejected    AuthErrorKind = "captcha_rejected"
	AuthSessionExpired     AuthErrorKind = "session_expired"
)

// AuthError is a terminal outcome of the login or session lifecycle. The
// captcha-retry loop is internal to the session manager; by the time a
// captcha_rejected error surfaces the attempt ceiling is already spent.
type AuthError struct {
	Kind    AuthErrorKind
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return "auth: " + string(e.Kind)
	}
	return "auth: " + string(e.Kind) + ": " + e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

type TransportErrorKind string

const (
	TransportTimeout          TransportErrorKind = "timeout"
	TransportConnectionReset  TransportErrorKind = "connection_reset"
	TransportUnexpectedStatus TransportErrorKind = "unexpected_status"
)

// TransportError wraps HTTP-level failures. Status is only set for
// unexpected_status.
type TransportError struct {
	Kind   TransportErrorKind
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Kind == TransportUnexpectedStatus {
		return fmt.Sprintf("transport: unexpected status %d", e.Status)
	}
	if e.Err != nil {
		return "transport: " + string(e.Kind) + ": " + e.Err.Error()
	}
	return "transport: " + string(e.Kind)
}

func (e *TransportError) Unwrap() error { return e.Err }

type ProtocolErrorKind string

const (
	ProtocolMalformedResponse ProtocolErrorKind = "malformed_response"
	ProtocolRejectedByServer  ProtocolErrorKind = "rejected_by_server"
)

// ProtocolError is a well-formed HTTP exchange the remote service refused.
// Code preserves the raw rejection code for the caller; the codec never
// decides retry policy itself.
type ProtocolError struct {
	Kind    ProtocolErrorKind
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Kind == ProtocolRejectedByServer {
		return fmt.Sprintf("protocol: rejected by server (code %d)", e.Code)
	}
	if e.Message != "" {
		return "protocol: malformed response: " + e.Message
	}
	return "protocol: malformed response"
}

type SchedulingErrorKind string

const (
	SchedulingQueueFull          SchedulingErrorKind = "queue_full"
	SchedulingShutdownInProgress SchedulingErrorKind = "shutdown_in_progress"
)

type SchedulingError struct {
	Kind SchedulingErrorKind
}

func (e *SchedulingError) Error() string { return "scheduling: " + string(e.Kind) }

// errorCode yields a stable code for failure events, persisted with the
// terminal report of a failed task.
func errorCode(err error) string {
	switch e := err.(type) {
	case *AuthError:
		return string(e.Kind)
	case *TransportError:
		return string(e.Kind)
	case *ProtocolError:
		return string(e.Kind)
	case *SchedulingError:
		return string(e.Kind)
	}
	return "internal_error"
}
