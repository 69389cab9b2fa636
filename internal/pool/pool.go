package pool

import (
	"container/list"
	"errors"
	"io"
	"sync"
	"time"
)

// DefaultMaxIdlePerKey is the default value of Config.MaxIdlePerKey.
const DefaultMaxIdlePerKey = 2

var (
	ErrPoolClosed         = errors.New("pool: closed")
	ErrKeepAlivesDisabled = errors.New("pool: keep-alives disabled")
	ErrTooManyIdlePerKey  = errors.New("pool: too many idle connections for key")
	ErrDuplicateIdle      = errors.New("pool: connection is already idle")
)

// Conn is the constraint on pooled connections.
type Conn interface {
	comparable
	io.Closer
}

// Config controls pool limits.
type Config struct {
	// MaxIdlePerKey caps idle connections per key. Zero means
	// DefaultMaxIdlePerKey; negative disables keep-alive entirely.
	MaxIdlePerKey int
	// MaxIdle caps idle connections across all keys. Zero means no limit.
	MaxIdle int
	// IdleTimeout is how long a connection may stay idle before it is
	// closed instead of leased. Zero means no limit.
	IdleTimeout time.Duration
}

type idleConn[C Conn] struct {
	key    Key
	conn   C
	idleAt time.Time
	elem   *list.Element
}

// Pool holds idle connections per Key.
//
// Lease and ReturnIdle are atomic with respect to each other: a connection
// handed out by Lease is no longer in any idle list, so it cannot be leased
// twice. The lock is never held during connection I/O; connections closed
// by the pool are closed after it is released.
type Pool[C Conn] struct {
	cfg Config
	now func() time.Time

	mu     sync.Mutex
	idle   map[Key][]*idleConn[C] // most recently used at the tail
	lru    *list.List             // *idleConn, most recently used at the front
	where  map[C]*idleConn[C]
	closed bool
}

// New returns an empty pool.
func New[C Conn](cfg Config) *Pool[C] {
	return &Pool[C]{
		cfg:   cfg,
		now:   time.Now,
		idle:  make(map[Key][]*idleConn[C]),
		lru:   list.New(),
		where: make(map[C]*idleConn[C]),
	}
}

// p.mu must be held.
func (p *Pool[C]) maxIdlePerKey() int {
	if v := p.cfg.MaxIdlePerKey; v != 0 {
		return v
	}
	return DefaultMaxIdlePerKey
}

// Lease removes and returns the most recently returned idle connection for
// key. It reports false when there is none, which tells the caller to
// establish a new connection. Connections idle for longer than IdleTimeout,
// or that report they cannot take a request, are closed and skipped.
func (p *Pool[C]) Lease(key Key) (c C, ok bool) {
	var stale []C

	p.mu.Lock()
	conns := p.idle[key]
	var oldTime time.Time
	if p.cfg.IdleTimeout > 0 {
		oldTime = p.now().Add(-p.cfg.IdleTimeout)
	}
	for len(conns) > 0 {
		ic := conns[len(conns)-1]
		conns[len(conns)-1] = nil
		conns = conns[:len(conns)-1]
		p.unlinkLocked(ic)
		// Round(0) strips the monotonic reading so a host waking from
		// suspend sees wall-clock age.
		tooOld := !oldTime.IsZero() && ic.idleAt.Round(0).Before(oldTime)
		if tooOld || !canTakeRequest(ic.conn) {
			stale = append(stale, ic.conn)
			continue
		}
		c, ok = ic.conn, true
		break
	}
	if len(conns) > 0 {
		p.idle[key] = conns
	} else {
		delete(p.idle, key)
	}
	p.mu.Unlock()

	for _, sc := range stale {
		sc.Close()
	}
	return c, ok
}

// ReturnIdle makes c available to later Lease calls for key. If c cannot be
// kept, it is closed and the reason is returned. Callers must not return a
// connection whose exchange decided it has to close.
func (p *Pool[C]) ReturnIdle(key Key, c C) error {
	err := p.Offer(key, c)
	if err != nil && err != ErrDuplicateIdle {
		c.Close()
	}
	return err
}

// Offer is ReturnIdle without closing c when it is rejected. It serves
// multiplexed connections, which stay in use by streams still in flight
// after they are made available again.
func (p *Pool[C]) Offer(key Key, c C) error {
	p.mu.Lock()
	if p.maxIdlePerKey() < 0 {
		p.mu.Unlock()
		return ErrKeepAlivesDisabled
	}
	if _, dup := p.where[c]; dup {
		p.mu.Unlock()
		return ErrDuplicateIdle
	}
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	conns := p.idle[key]
	if len(conns) >= p.maxIdlePerKey() {
		p.mu.Unlock()
		return ErrTooManyIdlePerKey
	}
	ic := &idleConn[C]{key: key, conn: c, idleAt: p.now()}
	ic.elem = p.lru.PushFront(ic)
	p.where[c] = ic
	p.idle[key] = append(conns, ic)

	var evicted []C
	for p.cfg.MaxIdle > 0 && p.lru.Len() > p.cfg.MaxIdle {
		oldest := p.lru.Back().Value.(*idleConn[C])
		p.removeLocked(oldest)
		evicted = append(evicted, oldest.conn)
	}
	p.mu.Unlock()

	for _, ec := range evicted {
		ec.Close()
	}
	return nil
}

// SetConfig replaces the pool limits. They apply from the next call on;
// idle connections over a lowered limit are left until leased or evicted.
func (p *Pool[C]) SetConfig(cfg Config) {
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

// Discard closes c without making it available for reuse. If c is idle it
// is removed from its idle list first.
func (p *Pool[C]) Discard(c C) error {
	p.mu.Lock()
	if ic, ok := p.where[c]; ok {
		p.removeLocked(ic)
	}
	p.mu.Unlock()
	return c.Close()
}

// Close closes every idle connection. Connections returned afterwards are
// closed instead of kept.
func (p *Pool[C]) Close() error {
	p.mu.Lock()
	p.closed = true
	conns := make([]C, 0, len(p.where))
	for c := range p.where {
		conns = append(conns, c)
	}
	p.idle = make(map[Key][]*idleConn[C])
	p.where = make(map[C]*idleConn[C])
	p.lru.Init()
	p.mu.Unlock()

	var err error
	for _, c := range conns {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Len returns the number of idle connections.
func (p *Pool[C]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lru.Len()
}

// LenKey returns the number of idle connections for key.
func (p *Pool[C]) LenKey(key Key) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle[key])
}

// unlinkLocked drops ic from the LRU and the membership set. The caller
// fixes the per-key slice. p.mu must be held.
func (p *Pool[C]) unlinkLocked(ic *idleConn[C]) {
	p.lru.Remove(ic.elem)
	delete(p.where, ic.conn)
}

// p.mu must be held.
func (p *Pool[C]) removeLocked(ic *idleConn[C]) {
	p.unlinkLocked(ic)
	conns := p.idle[ic.key]
	for i, v := range conns {
		if v != ic {
			continue
		}
		// Slide down, keeping most recently-used
		// conns at the end.
		copy(conns[i:], conns[i+1:])
		conns = conns[:len(conns)-1]
		break
	}
	if len(conns) > 0 {
		p.idle[ic.key] = conns
	} else {
		delete(p.idle, ic.key)
	}
}

func canTakeRequest(c any) bool {
	if r, ok := c.(interface{ CanTakeRequest() bool }); ok {
		return r.CanTakeRequest()
	}
	return true
}
