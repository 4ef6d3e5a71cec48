// Package pool hands out websocket connections keyed by session
// identifier, keeping at most one reusable connection per session
// alive between calls.
//
// A cached connection has a single permitted holder at a time. A call
// arriving while the session's connection is busy receives an
// independent, unpooled connection instead of queueing: latency
// predictability is favored over maximal reuse. Idle connections are
// closed after a fixed TTL.
package pool

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wirefern/wspool/dial"
	"github.com/wirefern/wspool/transport"
)

// DefaultIdleTTL is how long an idle cached connection is kept before
// eviction.
const DefaultIdleTTL = 5 * time.Minute

// Pool acquires and caches connections. Construct with New; the zero
// value is not usable.
type Pool struct {
	opener transport.Opener
	cache  *Cache
	ttl    time.Duration
	log    zerolog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithCache uses c instead of a fresh private cache, letting several
// pools (or tests) share or isolate entries explicitly.
func WithCache(c *Cache) Option { return func(p *Pool) { p.cache = c } }

// WithTTL overrides the idle expiry TTL.
func WithTTL(d time.Duration) Option { return func(p *Pool) { p.ttl = d } }

// WithLogger attaches a logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option { return func(p *Pool) { p.log = log } }

// New returns a Pool opening connections through opener. A nil opener
// is tolerated at construction and reported as KindTransportUnavailable
// on first acquisition.
func New(opener transport.Opener, opts ...Option) *Pool {
	p := &Pool{
		opener: opener,
		cache:  NewCache(),
		ttl:    DefaultIdleTTL,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Lease is one checked-out connection. Conn is live until Release is
// called. ID identifies this checkout in logs; it is unique per
// acquisition, not per underlying connection.
type Lease struct {
	Conn transport.Transport
	ID   string

	once    sync.Once
	release func(keep bool)
}

// Release returns the connection. With keep true a pooled, still-open
// connection goes back to the cache and its idle timer is armed; in
// every other case the connection is closed and, if cached, evicted.
// Release never fails and is idempotent; close errors are swallowed.
func (l *Lease) Release(keep bool) {
	l.once.Do(func() { l.release(keep) })
}

// Acquire returns a connection for the given session, reusing the
// cached one when it is idle and still open, and opening a fresh
// connection otherwise. An empty sessionID always yields an unpooled
// connection whose Release closes it unconditionally.
func (p *Pool) Acquire(ctx context.Context, url string, header http.Header, sessionID string) (*Lease, error) {
	if sessionID == "" {
		return p.acquireUnpooled(ctx, url, header, "")
	}

	c := p.cache
	c.mu.Lock()
	if e, ok := c.get(sessionID); ok {
		// the entry is under active consideration; a pending idle
		// timer must not fire underneath us
		stopIdleTimer(e)

		switch {
		case !e.busy && transport.Reusable(e.conn):
			e.busy = true
			conn := e.conn
			c.mu.Unlock()
			lease := &Lease{Conn: conn, ID: uuid.NewString()}
			lease.release = p.pooledRelease(sessionID, e)
			p.log.Debug().Str("session", sessionID).Str("lease", lease.ID).
				Msg("reusing cached connection")
			return lease, nil

		case e.busy:
			c.mu.Unlock()
			p.log.Debug().Str("session", sessionID).
				Msg("session busy, opening unpooled connection")
			return p.acquireUnpooled(ctx, url, header, sessionID)

		default:
			// idle but no longer open: evict the stale entry and
			// fall through to a fresh pooled connection
			c.remove(sessionID, e)
			stale := e.conn
			c.mu.Unlock()
			closeQuiet(stale)
			p.log.Debug().Str("session", sessionID).Msg("evicted stale connection")
		}
	} else {
		c.mu.Unlock()
	}

	conn, err := dial.Establish(ctx, p.opener, url, header)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if _, exists := c.get(sessionID); exists {
		// another caller cached this session while we were dialing;
		// hand ours out unpooled to keep one entry per session
		c.mu.Unlock()
		return p.unpooledLease(conn, sessionID), nil
	}
	e := &entry{conn: conn, busy: true}
	c.set(sessionID, e)
	c.mu.Unlock()

	lease := &Lease{Conn: conn, ID: uuid.NewString()}
	lease.release = p.pooledRelease(sessionID, e)
	p.log.Debug().Str("session", sessionID).Str("lease", lease.ID).
		Msg("opened pooled connection")
	return lease, nil
}

// CloseIdle closes and evicts every idle cached connection. Busy
// connections are left to their current holders, whose Release will
// find the entry gone and close them.
func (p *Pool) CloseIdle() {
	c := p.cache
	c.mu.Lock()
	var idle []transport.Transport
	for id, e := range c.entries {
		if e.busy {
			continue
		}
		stopIdleTimer(e)
		delete(c.entries, id)
		idle = append(idle, e.conn)
	}
	c.mu.Unlock()

	for _, conn := range idle {
		closeQuiet(conn)
	}
	if len(idle) > 0 {
		p.log.Debug().Int("closed", len(idle)).Msg("closed idle connections")
	}
}

func (p *Pool) acquireUnpooled(ctx context.Context, url string, header http.Header, sessionID string) (*Lease, error) {
	conn, err := dial.Establish(ctx, p.opener, url, header)
	if err != nil {
		return nil, err
	}
	return p.unpooledLease(conn, sessionID), nil
}

func (p *Pool) unpooledLease(conn transport.Transport, sessionID string) *Lease {
	lease := &Lease{Conn: conn, ID: uuid.NewString()}
	lease.release = func(bool) {
		closeQuiet(conn)
		p.log.Debug().Str("lease", lease.ID).Msg("closed unpooled connection")
	}
	p.log.Debug().Str("session", sessionID).Str("lease", lease.ID).
		Msg("opened unpooled connection")
	return lease
}

// pooledRelease returns the release function for a checked-out cache
// entry: keep a reusable connection and re-arm its idle timer, or
// close and evict.
func (p *Pool) pooledRelease(sessionID string, e *entry) func(keep bool) {
	return func(keep bool) {
		c := p.cache
		c.mu.Lock()
		if !keep || !transport.Reusable(e.conn) {
			c.remove(sessionID, e)
			c.mu.Unlock()
			closeQuiet(e.conn)
			p.log.Debug().Str("session", sessionID).Bool("keep", keep).
				Msg("closed and evicted connection")
			return
		}
		e.busy = false
		p.armIdleLocked(sessionID, e)
		c.mu.Unlock()
		p.log.Debug().Str("session", sessionID).Msg("returned connection to pool")
	}
}

// armIdleLocked schedules idle expiry for e. Any previously armed
// timer is cancelled first so an entry never has two pending timers.
// Caller holds the cache mutex.
func (p *Pool) armIdleLocked(sessionID string, e *entry) {
	stopIdleTimer(e)
	e.idle = time.AfterFunc(p.ttl, func() {
		c := p.cache
		c.mu.Lock()
		cur, ok := c.get(sessionID)
		if !ok || cur != e || e.busy {
			c.mu.Unlock()
			return
		}
		c.remove(sessionID, e)
		conn := e.conn
		c.mu.Unlock()
		closeQuiet(conn)
		p.log.Debug().Str("session", sessionID).Msg("idle connection expired")
	})
}

func stopIdleTimer(e *entry) {
	if e.idle != nil {
		e.idle.Stop()
		e.idle = nil
	}
}

// closeQuiet closes a connection during cleanup. Cleanup closes must
// never fail the caller, so the error is discarded.
func closeQuiet(t transport.Transport) {
	_ = t.Close(closeCodeNormal, "")
}

const closeCodeNormal = 1000
