// Package dial establishes single websocket connections, racing the
// open, error, close and cancellation signals so that exactly one
// outcome settles each attempt.
package dial

import (
	"context"
	"net/http"

	"github.com/wirefern/wspool/transport"
	"github.com/wirefern/wspool/wserr"
)

// Protocol capability header merged into every outgoing handshake.
const (
	ProtocolHeader  = "X-Stream-Protocol-Version"
	ProtocolVersion = "1"
)

// Close code and reason used when an attempt is cancelled while the
// transport is still half-open.
const (
	abortCode   = 1000
	abortReason = "aborted"
)

type outcome struct {
	t   transport.Transport
	err error
}

// Establish opens one connection to url via opener and waits for the
// first of four signals: open, error, close, or ctx cancellation.
// Whichever fires first wins; the losing listeners are always
// deregistered. A nil opener is a configuration error and fails with
// KindTransportUnavailable before any connection attempt.
func Establish(ctx context.Context, opener transport.Opener, url string, header http.Header) (transport.Transport, error) {
	if opener == nil {
		return nil, wserr.TransportUnavailable()
	}

	hdr := make(http.Header, len(header)+1)
	for k, vs := range header {
		hdr[k] = append([]string(nil), vs...)
	}
	hdr.Set(ProtocolHeader, ProtocolVersion)

	t, err := opener.Open(url, hdr)
	if err != nil {
		return nil, wserr.Connect(err.Error())
	}

	// Buffered so the first listener to settle never blocks; later
	// signals fall through the default arm and are discarded.
	settled := make(chan outcome, 1)
	settle := func(o outcome) {
		select {
		case settled <- o:
		default:
		}
	}

	cancelOpen := t.Subscribe(transport.EventOpen, func(transport.Event) {
		settle(outcome{t: t})
	})
	cancelErr := t.Subscribe(transport.EventError, func(ev transport.Event) {
		settle(outcome{err: wserr.Connect(errText(ev))})
	})
	cancelClose := t.Subscribe(transport.EventClose, func(ev transport.Event) {
		settle(outcome{err: wserr.PrematureClose(ev.Code, ev.Reason)})
	})
	defer func() {
		cancelOpen()
		cancelErr()
		cancelClose()
	}()

	// The transport may have opened, or already failed, between Open
	// returning and the listeners attaching; in either case no further
	// event is coming, so settle from the reported state.
	if sr, ok := t.(transport.StateReporter); ok {
		switch sr.ReadyState() {
		case transport.StateOpen:
			settle(outcome{t: t})
		case transport.StateClosing, transport.StateClosed:
			settle(outcome{err: wserr.PrematureClose(0, "")})
		}
	}

	select {
	case o := <-settled:
		return o.t, o.err
	case <-ctx.Done():
		_ = t.Close(abortCode, abortReason)
		return nil, wserr.Aborted(ctx.Err())
	}
}

func errText(ev transport.Event) string {
	if ev.Err != nil {
		return ev.Err.Error()
	}
	return "connection error"
}
