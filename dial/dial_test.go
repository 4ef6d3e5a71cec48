package dial

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirefern/wspool/transport"
	"github.com/wirefern/wspool/wserr"
)

// fakeConn is a scriptable transport. Tests dispatch events on it once
// Establish has attached its listeners.
type fakeConn struct {
	transport.Hub

	mu          sync.Mutex
	state       transport.State
	closeCode   int
	closeReason string
	closeCalls  int
}

func (c *fakeConn) Send(string) error { return nil }

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = transport.StateClosed
	c.closeCode, c.closeReason = code, reason
	c.closeCalls++
	return nil
}

func (c *fakeConn) ReadyState() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

type fakeOpener struct {
	conn   *fakeConn
	header http.Header
	url    string
	err    error
}

func (o *fakeOpener) Open(url string, header http.Header) (transport.Transport, error) {
	o.url, o.header = url, header
	if o.err != nil {
		return nil, o.err
	}
	return o.conn, nil
}

// whenSubscribed runs fn once Establish has attached its three
// listeners to c.
func whenSubscribed(c *fakeConn, fn func()) {
	go func() {
		for c.Subscribers() < 3 {
			time.Sleep(time.Millisecond)
		}
		fn()
	}()
}

func TestEstablishNilOpener(t *testing.T) {
	_, err := Establish(context.Background(), nil, "wss://example.test/ws", nil)
	assert.True(t, wserr.IsKind(err, wserr.KindTransportUnavailable))
}

func TestEstablishOpen(t *testing.T) {
	a := assert.New(t)
	conn := &fakeConn{state: transport.StateConnecting}
	op := &fakeOpener{conn: conn}
	whenSubscribed(conn, func() {
		conn.mu.Lock()
		conn.state = transport.StateOpen
		conn.mu.Unlock()
		conn.Dispatch(transport.Event{Kind: transport.EventOpen})
	})

	got, err := Establish(context.Background(), op, "wss://example.test/ws", nil)
	require.NoError(t, err)
	a.Same(conn, got)
	a.Equal("wss://example.test/ws", op.url)
	// all listeners deregistered on settlement
	a.Equal(0, conn.Subscribers())
}

func TestEstablishAlreadyOpen(t *testing.T) {
	// the transport opened between Open returning and the listeners
	// attaching; readiness state must settle the attempt
	conn := &fakeConn{state: transport.StateOpen}
	got, err := Establish(context.Background(), &fakeOpener{conn: conn}, "wss://example.test/ws", nil)
	require.NoError(t, err)
	assert.Same(t, conn, got)
}

func TestEstablishErrorBeforeOpen(t *testing.T) {
	a := assert.New(t)
	conn := &fakeConn{state: transport.StateConnecting}
	whenSubscribed(conn, func() {
		conn.Dispatch(transport.Event{Kind: transport.EventError, Err: errors.New("handshake refused")})
	})

	_, err := Establish(context.Background(), &fakeOpener{conn: conn}, "wss://example.test/ws", nil)
	a.True(wserr.IsKind(err, wserr.KindConnect))
	a.Contains(err.Error(), "handshake refused")
	a.Equal(0, conn.Subscribers())
}

func TestEstablishCloseBeforeOpen(t *testing.T) {
	a := assert.New(t)
	conn := &fakeConn{state: transport.StateConnecting}
	whenSubscribed(conn, func() {
		conn.Dispatch(transport.Event{Kind: transport.EventClose, Code: 1013, Reason: "try again later"})
	})

	_, err := Establish(context.Background(), &fakeOpener{conn: conn}, "wss://example.test/ws", nil)
	require.True(t, wserr.IsKind(err, wserr.KindPrematureClose))
	var we *wserr.Error
	require.True(t, errors.As(err, &we))
	a.Equal(1013, we.Code)
	a.Equal("try again later", we.Reason)
	a.Equal(0, conn.Subscribers())
}

func TestEstablishAborted(t *testing.T) {
	a := assert.New(t)
	conn := &fakeConn{state: transport.StateConnecting}
	ctx, cancel := context.WithCancel(context.Background())
	whenSubscribed(conn, cancel)

	_, err := Establish(ctx, &fakeOpener{conn: conn}, "wss://example.test/ws", nil)
	a.True(wserr.IsKind(err, wserr.KindAborted))
	// the half-open transport is closed immediately
	a.Equal(1, conn.closeCalls)
	a.Equal(1000, conn.closeCode)
	a.Equal("aborted", conn.closeReason)
	a.Equal(0, conn.Subscribers())
}

// failFastOpener collapses the attempt before Open even returns, so
// the error and close events fire while nobody is subscribed.
type failFastOpener struct {
	conn *fakeConn
}

func (o *failFastOpener) Open(url string, header http.Header) (transport.Transport, error) {
	o.conn.Dispatch(transport.Event{Kind: transport.EventError, Err: errors.New("connection refused")})
	o.conn.Dispatch(transport.Event{Kind: transport.EventClose, Code: 1006})
	o.conn.mu.Lock()
	o.conn.state = transport.StateClosed
	o.conn.mu.Unlock()
	return o.conn, nil
}

func TestEstablishFailedBeforeSubscribe(t *testing.T) {
	a := assert.New(t)
	conn := &fakeConn{state: transport.StateConnecting}

	// no deadline: a missed failure would block forever rather than
	// surface as an abort
	_, err := Establish(context.Background(), &failFastOpener{conn: conn}, "wss://example.test/ws", nil)
	a.True(wserr.IsKind(err, wserr.KindPrematureClose))
	a.Equal(0, conn.Subscribers())
}

func TestEstablishOpenError(t *testing.T) {
	op := &fakeOpener{err: errors.New("no dialer")}
	_, err := Establish(context.Background(), op, "wss://example.test/ws", nil)
	assert.True(t, wserr.IsKind(err, wserr.KindConnect))
}

func TestEstablishHeaderMerge(t *testing.T) {
	a := assert.New(t)
	conn := &fakeConn{state: transport.StateOpen}
	op := &fakeOpener{conn: conn}

	in := http.Header{}
	in.Set("Authorization", "Bearer tok")

	_, err := Establish(context.Background(), op, "wss://example.test/ws", in)
	require.NoError(t, err)

	a.Equal("Bearer tok", op.header.Get("Authorization"))
	a.Equal(ProtocolVersion, op.header.Get(ProtocolHeader))
	// the caller's header set is not mutated
	a.Empty(in.Get(ProtocolHeader))
}
