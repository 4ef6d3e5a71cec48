// Package stream decodes a transport's inbound frames into an
// ordered, cancellable sequence of protocol messages, terminating at a
// completion marker or a terminal transport failure.
package stream

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/wirefern/wspool/transport"
	"github.com/wirefern/wspool/wserr"
)

// Message is one decoded inbound frame: a JSON object keyed by string.
type Message map[string]any

// Type returns the message's type discriminant, or "" when absent.
func (m Message) Type() string {
	s, _ := m["type"].(string)
	return s
}

// Reserved type values signalling the end of a logical response
// stream.
const (
	TypeResult = "result"
	TypeError  = "error"
)

func isCompletion(t string) bool {
	return t == TypeResult || t == TypeError
}

// Decoder turns one transport's message, error and close events into a
// finite, non-restartable sequence of Messages. A Decoder must only be
// drained by a single goroutine.
type Decoder struct {
	mu            sync.Mutex
	buf           []Message
	done          bool
	failure       error
	sawCompletion bool

	wake     chan struct{}
	teardown func()
}

// NewDecoder subscribes to t's events and returns a Decoder ready to
// drain. The subscriptions are released when the sequence ends, fails,
// or the consumer calls Close.
func NewDecoder(t transport.Transport) *Decoder {
	d := &Decoder{wake: make(chan struct{}, 1)}
	cancelMsg := t.Subscribe(transport.EventMessage, d.onMessage)
	cancelErr := t.Subscribe(transport.EventError, d.onError)
	cancelClose := t.Subscribe(transport.EventClose, d.onClose)

	var once sync.Once
	d.teardown = func() {
		once.Do(func() {
			cancelMsg()
			cancelErr()
			cancelClose()
		})
	}
	return d
}

// Next returns the next decoded message in frame-arrival order,
// suspending until one is available. At the end of the sequence it
// returns io.EOF after a completion marker, the captured failure after
// a terminal error, or a KindEndedEarly error when the stream ended
// cleanly without completion. Cancellation is checked before anything
// else and surfaces as a KindAborted failure.
func (d *Decoder) Next(ctx context.Context) (Message, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, d.abort(ctx.Err())
		default:
		}

		d.mu.Lock()
		if len(d.buf) > 0 {
			msg := d.buf[0]
			d.buf = d.buf[1:]
			d.mu.Unlock()
			return msg, nil
		}
		if d.done {
			failure, saw := d.failure, d.sawCompletion
			d.mu.Unlock()
			d.teardown()
			switch {
			case failure != nil:
				return nil, failure
			case !saw:
				return nil, wserr.EndedEarly()
			default:
				return nil, io.EOF
			}
		}
		d.mu.Unlock()

		select {
		case <-d.wake:
		case <-ctx.Done():
			return nil, d.abort(ctx.Err())
		}
	}
}

// Close ends the sequence early and releases all subscriptions. It is
// safe to call at any point, any number of times.
func (d *Decoder) Close() {
	d.teardown()
	d.mu.Lock()
	d.done = true
	d.mu.Unlock()
	d.notify()
}

func (d *Decoder) abort(cause error) error {
	d.mu.Lock()
	if d.failure == nil {
		d.failure = wserr.Aborted(cause)
	}
	failure := d.failure
	d.done = true
	d.mu.Unlock()
	d.teardown()
	return failure
}

func (d *Decoder) onMessage(ev transport.Event) {
	var msg Message
	if err := json.Unmarshal(ev.Data, &msg); err != nil || msg == nil {
		// malformed frames are dropped, never terminal
		return
	}
	d.mu.Lock()
	if d.done {
		d.mu.Unlock()
		return
	}
	d.buf = append(d.buf, msg)
	if isCompletion(msg.Type()) {
		d.sawCompletion = true
		d.done = true
	}
	d.mu.Unlock()
	d.notify()
}

func (d *Decoder) onError(ev transport.Event) {
	d.mu.Lock()
	if !d.done && d.failure == nil {
		d.failure = wserr.Socket(ev.Err)
	}
	d.done = true
	d.mu.Unlock()
	d.notify()
}

func (d *Decoder) onClose(ev transport.Event) {
	d.mu.Lock()
	// a close on the heels of completion is the expected shutdown,
	// not a failure
	if !d.sawCompletion && d.failure == nil {
		d.failure = wserr.PrematureClose(ev.Code, ev.Reason)
	}
	d.done = true
	d.mu.Unlock()
	d.notify()
}

func (d *Decoder) notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}
