package pool

import (
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hwire/hconn/internal/netutil"
	"github.com/hwire/hconn/internal/tests"
)

type fakeConn struct {
	id       int
	closed   atomic.Int32
	draining bool
}

func (c *fakeConn) Close() error {
	c.closed.Add(1)
	return nil
}

func (c *fakeConn) CanTakeRequest() bool { return !c.draining }

func (c *fakeConn) isClosed() bool { return c.closed.Load() > 0 }

func target(t *testing.T, raw, socket string) netutil.Target {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	tg, err := netutil.ParseTarget(u, socket)
	if err != nil {
		t.Fatal(err)
	}
	return tg
}

func TestKeyFor(t *testing.T) {
	key := func(raw string) Key { return KeyFor(target(t, raw, "")) }
	unixKey := func(raw, sock string) Key { return KeyFor(target(t, raw, sock)) }

	tests.AssertEqual(t, key("http://example.com/a"), key("http://example.com:80/b"))
	tests.AssertEqual(t, key("http://EXAMPLE.com"), key("http://example.com"))
	tests.AssertEqual(t, key("https://example.com"), key("https://example.com:443/x?y"))

	if key("http://example.com") == key("https://example.com") {
		t.Error("plain and encrypted targets must not share a key")
	}
	if key("http://example.com:443") == key("https://example.com") {
		t.Error("cross-scheme reuse on the same port")
	}
	if key("http://example.com") == key("http://example.org") {
		t.Error("distinct hosts share a key")
	}
	if key("http://example.com:8080") == key("http://example.com") {
		t.Error("distinct ports share a key")
	}

	tests.AssertEqual(t, unixKey("unix:///v1/info", "/s.sock"), unixKey("unix://label/v1/info", "/s.sock"))
	if unixKey("unix:///v1/info", "/s.sock") == unixKey("unix:///v1/other", "/s.sock") {
		t.Error("local socket paths must be part of the key")
	}
	if unixKey("unix:///v1/info", "/s.sock") == unixKey("unix:///v1//info", "/s.sock") {
		t.Error("paths are compared without normalisation")
	}
	if unixKey("unix:///v1/info", "/a.sock") == unixKey("unix:///v1/info", "/b.sock") {
		t.Error("distinct sockets share a key")
	}

	// equal keys hash equally: they address the same map slot
	m := map[Key]int{key("http://example.com"): 1}
	tests.AssertEqual(t, 1, m[key("http://example.com:80/other")])

	tests.AssertEqual(t, "http|example.com:80", key("http://example.com").String())
	tests.AssertEqual(t, "unix|/s.sock|/p", unixKey("unix:///p", "/s.sock").String())
}

func TestLeaseMiss(t *testing.T) {
	p := New[*fakeConn](Config{})
	_, ok := p.Lease(Key{Authority: "a:80"})
	tests.AssertEqual(t, false, ok)
}

func TestLeaseReturnRoundTrip(t *testing.T) {
	p := New[*fakeConn](Config{})
	k := Key{Authority: "a:80"}
	c := &fakeConn{id: 1}

	tests.AssertNoError(t, p.ReturnIdle(k, c))
	tests.AssertEqual(t, 1, p.LenKey(k))

	got, ok := p.Lease(k)
	tests.AssertEqual(t, true, ok)
	tests.AssertEqual(t, true, got == c)
	tests.AssertEqual(t, 0, p.LenKey(k))
	tests.AssertEqual(t, 0, p.Len())
	tests.AssertEqual(t, false, c.isClosed())

	_, ok = p.Lease(k)
	tests.AssertEqual(t, false, ok)
}

func TestLeaseMostRecentlyUsed(t *testing.T) {
	p := New[*fakeConn](Config{MaxIdlePerKey: 3})
	k := Key{Authority: "a:80"}
	c1, c2, c3 := &fakeConn{id: 1}, &fakeConn{id: 2}, &fakeConn{id: 3}
	p.ReturnIdle(k, c1)
	p.ReturnIdle(k, c2)
	p.ReturnIdle(k, c3)

	for _, want := range []int{3, 2, 1} {
		got, ok := p.Lease(k)
		tests.AssertEqual(t, true, ok)
		tests.AssertEqual(t, want, got.id)
	}
}

func TestKeysAreIsolated(t *testing.T) {
	p := New[*fakeConn](Config{})
	k1, k2 := Key{Authority: "a:80"}, Key{Authority: "b:80"}
	p.ReturnIdle(k1, &fakeConn{id: 1})
	_, ok := p.Lease(k2)
	tests.AssertEqual(t, false, ok)
	tests.AssertEqual(t, 1, p.LenKey(k1))
}

func TestReturnIdleLimits(t *testing.T) {
	p := New[*fakeConn](Config{MaxIdlePerKey: 1})
	k := Key{Authority: "a:80"}
	c1, c2 := &fakeConn{id: 1}, &fakeConn{id: 2}
	tests.AssertNoError(t, p.ReturnIdle(k, c1))
	tests.AssertErrorIs(t, p.ReturnIdle(k, c2), ErrTooManyIdlePerKey)
	tests.AssertEqual(t, true, c2.isClosed())
	tests.AssertEqual(t, false, c1.isClosed())

	tests.AssertErrorIs(t, p.ReturnIdle(k, c1), ErrDuplicateIdle)
	tests.AssertEqual(t, false, c1.isClosed())
	tests.AssertEqual(t, 1, p.Len())
}

func TestReturnIdleKeepAlivesDisabled(t *testing.T) {
	p := New[*fakeConn](Config{MaxIdlePerKey: -1})
	c := &fakeConn{}
	tests.AssertErrorIs(t, p.ReturnIdle(Key{}, c), ErrKeepAlivesDisabled)
	tests.AssertEqual(t, true, c.isClosed())
	tests.AssertEqual(t, 0, p.Len())
}

func TestGlobalIdleCapEvictsOldest(t *testing.T) {
	p := New[*fakeConn](Config{MaxIdle: 2})
	c1, c2, c3 := &fakeConn{id: 1}, &fakeConn{id: 2}, &fakeConn{id: 3}
	p.ReturnIdle(Key{Authority: "a:80"}, c1)
	p.ReturnIdle(Key{Authority: "b:80"}, c2)
	p.ReturnIdle(Key{Authority: "c:80"}, c3)

	tests.AssertEqual(t, 2, p.Len())
	tests.AssertEqual(t, true, c1.isClosed())
	tests.AssertEqual(t, 0, p.LenKey(Key{Authority: "a:80"}))
	tests.AssertEqual(t, false, c3.isClosed())
}

func TestIdleTimeoutSkipsStale(t *testing.T) {
	p := New[*fakeConn](Config{IdleTimeout: time.Minute})
	now := time.Now()
	p.now = func() time.Time { return now }
	k := Key{Authority: "a:80"}
	old, fresh := &fakeConn{id: 1}, &fakeConn{id: 2}

	p.ReturnIdle(k, old)
	now = now.Add(50 * time.Second)
	p.ReturnIdle(k, fresh)
	now = now.Add(20 * time.Second)

	got, ok := p.Lease(k)
	tests.AssertEqual(t, true, ok)
	tests.AssertEqual(t, 2, got.id)

	_, ok = p.Lease(k)
	tests.AssertEqual(t, false, ok)
	tests.AssertEqual(t, true, old.isClosed())
	tests.AssertEqual(t, false, fresh.isClosed())
	tests.AssertEqual(t, 0, p.Len())
}

func TestLeaseSkipsDrainingConn(t *testing.T) {
	p := New[*fakeConn](Config{})
	k := Key{Authority: "a:443"}
	good, draining := &fakeConn{id: 1}, &fakeConn{id: 2, draining: true}
	p.ReturnIdle(k, good)
	p.ReturnIdle(k, draining)

	got, ok := p.Lease(k)
	tests.AssertEqual(t, true, ok)
	tests.AssertEqual(t, 1, got.id)
	tests.AssertEqual(t, true, draining.isClosed())
}

func TestDiscard(t *testing.T) {
	p := New[*fakeConn](Config{})
	k := Key{Authority: "a:80"}
	c := &fakeConn{}
	p.ReturnIdle(k, c)
	tests.AssertNoError(t, p.Discard(c))
	tests.AssertEqual(t, true, c.isClosed())
	tests.AssertEqual(t, 0, p.Len())

	leased := &fakeConn{}
	tests.AssertNoError(t, p.Discard(leased))
	tests.AssertEqual(t, true, leased.isClosed())
}

func TestClose(t *testing.T) {
	p := New[*fakeConn](Config{MaxIdlePerKey: 4})
	k := Key{Authority: "a:80"}
	c1, c2 := &fakeConn{}, &fakeConn{}
	p.ReturnIdle(k, c1)
	p.ReturnIdle(Key{Authority: "b:80"}, c2)
	tests.AssertNoError(t, p.Close())
	tests.AssertEqual(t, true, c1.isClosed())
	tests.AssertEqual(t, true, c2.isClosed())
	tests.AssertEqual(t, 0, p.Len())

	late := &fakeConn{}
	tests.AssertErrorIs(t, p.ReturnIdle(k, late), ErrPoolClosed)
	tests.AssertEqual(t, true, late.isClosed())
}

// Many goroutines lease and return a small set of connections. A
// connection must never be held by two goroutines at once, nor be idle
// while leased.
func TestConcurrentExclusivity(t *testing.T) {
	const (
		workers = 16
		rounds  = 500
		nconns  = 4
	)
	p := New[*fakeConn](Config{MaxIdlePerKey: nconns})
	k := Key{Authority: "a:80"}
	for i := 0; i < nconns; i++ {
		p.ReturnIdle(k, &fakeConn{id: i})
	}

	var inUse [nconns]atomic.Int32
	var violations atomic.Int32
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				c, ok := p.Lease(k)
				if !ok {
					continue
				}
				if inUse[c.id].Add(1) != 1 {
					violations.Add(1)
				}
				inUse[c.id].Add(-1)
				if err := p.ReturnIdle(k, c); err != nil {
					violations.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	tests.AssertEqual(t, int32(0), violations.Load())
	tests.AssertEqual(t, nconns, p.Len())
	seen := map[int]bool{}
	for i := 0; i < nconns; i++ {
		c, ok := p.Lease(k)
		tests.AssertEqual(t, true, ok)
		if seen[c.id] {
			t.Fatalf("conn %d idle twice", c.id)
		}
		seen[c.id] = true
		tests.AssertEqual(t, false, c.isClosed())
	}
}

func TestOfferKeepsRejectedConnOpen(t *testing.T) {
	p := New[*fakeConn](Config{MaxIdlePerKey: 1})
	k := Key{Authority: "a:443"}
	c1, c2 := &fakeConn{id: 1}, &fakeConn{id: 2}
	tests.AssertNoError(t, p.Offer(k, c1))
	tests.AssertErrorIs(t, p.Offer(k, c2), ErrTooManyIdlePerKey)
	tests.AssertEqual(t, false, c2.isClosed())

	p.SetConfig(Config{MaxIdlePerKey: -1})
	tests.AssertErrorIs(t, p.Offer(Key{Authority: "b:443"}, c2), ErrKeepAlivesDisabled)
	tests.AssertEqual(t, false, c2.isClosed())
}
