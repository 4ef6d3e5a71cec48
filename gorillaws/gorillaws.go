// Package gorillaws implements the transport capability surface on
// top of github.com/gorilla/websocket.
package gorillaws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/wirefern/wspool/transport"
)

// DefaultHandshakeTimeout bounds the websocket handshake when no
// dialer is supplied.
const DefaultHandshakeTimeout = 10 * time.Second

// writeWait bounds the close control frame write during shutdown.
const writeWait = 5 * time.Second

// Opener opens websocket connections. The zero value is usable: it
// dials with a default handshake timeout and discards logs.
type Opener struct {
	// Dialer, when non-nil, replaces the default dialer.
	Dialer *websocket.Dialer
	// Log receives connection lifecycle events at debug level.
	Log zerolog.Logger
}

// Open starts a connection attempt and returns immediately with a
// half-open transport. The open, error and close events fire as the
// attempt progresses.
func (o *Opener) Open(url string, header http.Header) (transport.Transport, error) {
	d := o.Dialer
	if d == nil {
		d = &websocket.Dialer{HandshakeTimeout: DefaultHandshakeTimeout}
	}
	c := &Conn{state: transport.StateConnecting, log: o.Log}
	go c.connect(d, url, header)
	return c, nil
}

// Conn is one websocket connection implementing transport.Transport
// and transport.StateReporter.
type Conn struct {
	transport.Hub

	mu    sync.Mutex // guards ws and state
	ws    *websocket.Conn
	state transport.State

	wmu sync.Mutex // serializes frame writes
	log zerolog.Logger
}

func (c *Conn) connect(d *websocket.Dialer, url string, header http.Header) {
	ws, resp, err := d.Dial(url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.mu.Lock()
		closed := c.state == transport.StateClosed
		c.state = transport.StateClosed
		c.mu.Unlock()
		c.log.Debug().Str("url", url).Err(err).Msg("websocket dial failed")
		c.Dispatch(transport.Event{Kind: transport.EventError, Err: err})
		if !closed {
			c.Dispatch(transport.Event{Kind: transport.EventClose, Code: websocket.CloseAbnormalClosure})
		}
		return
	}

	c.mu.Lock()
	if c.state == transport.StateClosed {
		// closed while the dial was in flight
		c.mu.Unlock()
		_ = ws.Close()
		return
	}
	c.ws = ws
	c.state = transport.StateOpen
	c.mu.Unlock()

	c.log.Debug().Str("url", url).Msg("websocket open")
	c.Dispatch(transport.Event{Kind: transport.EventOpen})
	c.readLoop(ws)
}

// readLoop dispatches every inbound frame, text or binary, as a
// message event, then maps the terminating read error to close or
// error+close events. A read failure caused by a local Close dispatches
// nothing; Close already did.
func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err == nil {
			c.Dispatch(transport.Event{Kind: transport.EventMessage, Data: data})
			continue
		}

		c.mu.Lock()
		closedLocally := c.state == transport.StateClosed
		c.state = transport.StateClosed
		c.mu.Unlock()
		if closedLocally {
			return
		}

		if ce, ok := err.(*websocket.CloseError); ok {
			c.log.Debug().Int("code", ce.Code).Str("reason", ce.Text).Msg("websocket closed by peer")
			c.Dispatch(transport.Event{Kind: transport.EventClose, Code: ce.Code, Reason: ce.Text})
		} else {
			c.log.Debug().Err(err).Msg("websocket read failed")
			c.Dispatch(transport.Event{Kind: transport.EventError, Err: err})
			c.Dispatch(transport.Event{Kind: transport.EventClose, Code: websocket.CloseAbnormalClosure})
		}
		return
	}
}

// Send writes one text frame. It fails when the connection is not
// open.
func (c *Conn) Send(text string) error {
	c.mu.Lock()
	ws, state := c.ws, c.state
	c.mu.Unlock()
	if state != transport.StateOpen {
		return errors.New("gorillaws: connection not open")
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return errors.WithStack(ws.WriteMessage(websocket.TextMessage, []byte(text)))
}

// Close sends a best-effort close frame, closes the underlying
// connection and dispatches the close event. Calling Close again, or
// closing a connection still mid-handshake, is safe.
func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.state == transport.StateClosed {
		c.mu.Unlock()
		return nil
	}
	ws := c.ws
	c.state = transport.StateClosed
	c.mu.Unlock()

	var err error
	if ws != nil {
		c.wmu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		c.wmu.Unlock()
		err = ws.Close()
	}
	c.Dispatch(transport.Event{Kind: transport.EventClose, Code: code, Reason: reason})
	return errors.WithStack(err)
}

// ReadyState implements transport.StateReporter.
func (c *Conn) ReadyState() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
