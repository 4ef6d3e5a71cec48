// Package wserr defines the error kinds surfaced by connection
// establishment, pooling and stream decoding.
package wserr

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an Error.
type Kind int

const (
	// KindTransportUnavailable indicates no transport constructor is
	// available in the running environment. This is a configuration
	// error, not a connection-time failure.
	KindTransportUnavailable Kind = iota
	// KindConnect indicates the connection attempt failed before the
	// transport opened.
	KindConnect
	// KindPrematureClose indicates the transport closed before it
	// opened, or closed mid-stream before a completion marker.
	KindPrematureClose
	// KindSocket indicates a transport-level error event.
	KindSocket
	// KindAborted indicates the external cancellation signal fired.
	KindAborted
	// KindEndedEarly indicates the stream ended cleanly without a
	// completion marker having been observed.
	KindEndedEarly
)

func (k Kind) String() string {
	switch k {
	case KindTransportUnavailable:
		return "transport-unavailable"
	case KindConnect:
		return "connect"
	case KindPrematureClose:
		return "premature-close"
	case KindSocket:
		return "socket"
	case KindAborted:
		return "aborted"
	case KindEndedEarly:
		return "ended-early"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "transport-unavailable":
		*k = KindTransportUnavailable
	case "connect":
		*k = KindConnect
	case "premature-close":
		*k = KindPrematureClose
	case "socket":
		*k = KindSocket
	case "aborted":
		*k = KindAborted
	case "ended-early":
		*k = KindEndedEarly
	default:
		return errors.New("unknown value")
	}
	return nil
}

// Error is a classified connection or streaming error. Code and
// Reason are populated for KindPrematureClose when the close event
// carried them.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`

	cause error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Kind == KindPrematureClose && e.Code != 0 {
		msg = fmt.Sprintf("%s (code=%d reason=%q)", msg, e.Code, e.Reason)
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// IsKind reports whether err is (or wraps) an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind == k
	}
	return false
}

// TransportUnavailable reports a missing transport constructor.
func TransportUnavailable() error {
	return errors.WithStack(&Error{Kind: KindTransportUnavailable, Message: "no websocket transport available"})
}

// Connect reports a failed connection attempt. The message is the
// best-effort text extracted from the error event.
func Connect(msg string) error {
	return errors.WithStack(&Error{Kind: KindConnect, Message: msg})
}

// PrematureClose reports a close observed before open, or before a
// completion marker while streaming.
func PrematureClose(code int, reason string) error {
	return errors.WithStack(&Error{Kind: KindPrematureClose, Code: code, Reason: reason})
}

// Socket reports a transport-level error event.
func Socket(cause error) error {
	return errors.WithStack(&Error{Kind: KindSocket, cause: cause})
}

// Aborted reports that the cancellation signal fired.
func Aborted(cause error) error {
	return errors.WithStack(&Error{Kind: KindAborted, cause: cause})
}

// EndedEarly reports a stream that ended without completion.
func EndedEarly() error {
	return errors.WithStack(&Error{Kind: KindEndedEarly, Message: "stream ended before completion"})
}
