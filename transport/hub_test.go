package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHubDispatchOrder(t *testing.T) {
	a := assert.New(t)
	var h Hub
	var got []string
	h.Subscribe(EventMessage, func(ev Event) { got = append(got, "a:"+string(ev.Data)) })
	h.Subscribe(EventMessage, func(ev Event) { got = append(got, "b:"+string(ev.Data)) })
	h.Subscribe(EventClose, func(Event) { got = append(got, "close") })

	h.Dispatch(Event{Kind: EventMessage, Data: []byte("1")})
	h.Dispatch(Event{Kind: EventClose})
	a.Equal([]string{"a:1", "b:1", "close"}, got)
}

func TestHubCancel(t *testing.T) {
	a := assert.New(t)
	var h Hub
	var n int
	cancel := h.Subscribe(EventError, func(Event) { n++ })
	a.Equal(1, h.Subscribers())

	h.Dispatch(Event{Kind: EventError})
	cancel()
	cancel() // safe to call twice
	h.Dispatch(Event{Kind: EventError})

	a.Equal(1, n)
	a.Equal(0, h.Subscribers())
}

func TestHubCancelFromListener(t *testing.T) {
	a := assert.New(t)
	var h Hub
	var n int
	var cancel func()
	cancel = h.Subscribe(EventMessage, func(Event) {
		n++
		cancel()
	})
	h.Dispatch(Event{Kind: EventMessage})
	h.Dispatch(Event{Kind: EventMessage})
	a.Equal(1, n)
}

type stateConn struct {
	Hub
	state State
}

func (c *stateConn) Send(string) error       { return nil }
func (c *stateConn) Close(int, string) error { return nil }
func (c *stateConn) ReadyState() State       { return c.state }

type statelessConn struct {
	Hub
}

func (c *statelessConn) Send(string) error       { return nil }
func (c *statelessConn) Close(int, string) error { return nil }

func TestReusable(t *testing.T) {
	a := assert.New(t)
	// unknown readiness is assumed open
	a.True(Reusable(&statelessConn{}))
	a.True(Reusable(&stateConn{state: StateOpen}))
	a.False(Reusable(&stateConn{state: StateConnecting}))
	a.False(Reusable(&stateConn{state: StateClosing}))
	a.False(Reusable(&stateConn{state: StateClosed}))
}
