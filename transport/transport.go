package transport

import "net/http"

// EventKind identifies one of the four event sources a Transport
// publishes.
type EventKind int

const (
	// EventOpen fires once when the connection becomes usable.
	EventOpen EventKind = iota
	// EventMessage fires for each inbound frame.
	EventMessage
	// EventError fires on a transport-level failure.
	EventError
	// EventClose fires once when the connection is closed, locally
	// or by the peer.
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	default:
		return "EventKind(?)"
	}
}

// Event is a single occurrence on a Transport. Only the fields
// relevant to its Kind are populated: Data for EventMessage, Err for
// EventError, Code and Reason for EventClose.
type Event struct {
	Kind   EventKind
	Data   []byte
	Err    error
	Code   int
	Reason string
}

// Listener receives events of the kind it was subscribed for.
type Listener func(Event)

// Transport is the minimal connection capability surface. All other
// packages in this module operate against this interface.
type Transport interface {
	// Send transmits one text payload.
	Send(text string) error
	// Close closes the connection with a status code and reason.
	// Close must be safe to call more than once.
	Close(code int, reason string) error
	// Subscribe registers fn for events of the given kind and
	// returns a function releasing the registration. The cancel
	// function must be safe to call more than once.
	Subscribe(kind EventKind, fn Listener) (cancel func())
}

// State is a transport readiness value, following the conventional
// websocket numbering.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

// StateReporter is implemented by transports able to report their
// readiness state. Transports without it are assumed open.
type StateReporter interface {
	ReadyState() State
}

// Reusable reports whether t may be handed out again from a cache.
// A transport that does not report state is assumed open; any reported
// state other than StateOpen marks it unreusable.
func Reusable(t Transport) bool {
	sr, ok := t.(StateReporter)
	if !ok {
		return true
	}
	return sr.ReadyState() == StateOpen
}

// Opener starts connection attempts. Open returns promptly with a
// half-open Transport which later publishes EventOpen on success, or
// EventError/EventClose on failure; it returns an error only when the
// attempt cannot be started at all.
type Opener interface {
	Open(url string, header http.Header) (Transport, error)
}
