package hconn

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	urlpkg "net/url"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/hwire/hconn/internal/compress"
	"github.com/hwire/hconn/internal/dump"
	"github.com/hwire/hconn/internal/header"
	"github.com/hwire/hconn/internal/http1"
	"github.com/hwire/hconn/internal/netutil"
	"github.com/hwire/hconn/internal/pool"
	"github.com/hwire/hconn/internal/transport"
	"github.com/hwire/hconn/pkg/body"
)

// Client sends requests over pooled connections. It is safe for concurrent
// use; its setters are meant to be called before the first request.
type Client struct {
	log Logger

	dialCfg         transport.DialConfig
	poolCfg         pool.Config
	maxHeadBytes    int
	maxHeaders      int
	autoDecode      bool
	keepAlive       bool
	userAgent       string
	dumpOptions     *DumpOptions
	dumper          *dump.Dumper
	meterProvider   metric.MeterProvider
	onInformational func(*Response)

	mu      sync.Mutex
	pool    *pool.Pool[*transport.Conn]
	dialer  *transport.Dialer
	metrics *metrics
	closed  bool
}

// NewClient returns a Client with the DefaultConfig settings.
func NewClient() *Client {
	c, _ := NewClientFromConfig(DefaultConfig())
	return c
}

// NewClientFromConfig returns a Client configured by cfg.
func NewClientFromConfig(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		log:          createLogger(),
		maxHeadBytes: cfg.MaxResponseHeaderBytes,
		maxHeaders:   cfg.MaxResponseHeaders,
		autoDecode:   cfg.AutoDecode,
		keepAlive:    !cfg.DisableKeepAlives,
		userAgent:    cfg.UserAgent,
		dialCfg: transport.DialConfig{
			DialTimeout:         cfg.DialTimeout,
			KeepAlive:           30 * time.Second,
			TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
			ForceHTTP1:          cfg.ForceHTTP1,
		},
		poolCfg: pool.Config{
			MaxIdle:       cfg.MaxIdleConns,
			MaxIdlePerKey: cfg.MaxIdleConnsPerHost,
			IdleTimeout:   cfg.IdleConnTimeout,
		},
	}
	if cfg.Debug {
		c.log = NewLogger(os.Stderr, true)
	}
	if cfg.InsecureSkipVerify {
		c.EnableInsecureSkipVerify()
	}
	if cfg.ProxyURL != "" {
		c.SetProxyURL(cfg.ProxyURL)
	}
	if cfg.TLSFingerprint != "" {
		c.SetTLSFingerprint(cfg.TLSFingerprint)
	}
	if c.userAgent == "" {
		c.userAgent = header.DefaultUserAgent
	}
	return c, nil
}

// SetLogger set the customized logger for client, will disable log if set to nil.
func (c *Client) SetLogger(log Logger) *Client {
	if log == nil {
		c.log = &disableLogger{}
		return c
	}
	c.log = log
	return c
}

// SetTLSClientConfig set the TLS client config. NextProtos is managed by
// the client and only honoured when it lists "http/1.1" alone.
func (c *Client) SetTLSClientConfig(conf *tls.Config) *Client {
	c.dialCfg.TLSClientConfig = conf
	return c.reset()
}

// GetTLSClientConfig return the underlying tls.Config.
func (c *Client) GetTLSClientConfig() *tls.Config {
	if c.dialCfg.TLSClientConfig == nil {
		c.dialCfg.TLSClientConfig = &tls.Config{}
	}
	return c.dialCfg.TLSClientConfig
}

// EnableInsecureSkipVerify enable send https without verifing
// the server's certificates (disabled by default).
func (c *Client) EnableInsecureSkipVerify() *Client {
	c.GetTLSClientConfig().InsecureSkipVerify = true
	return c.reset()
}

// SetTLSFingerprint makes TLS handshakes mimic a browser: one of chrome,
// firefox, safari, ios, edge or randomized.
func (c *Client) SetTLSFingerprint(name string) *Client {
	id, err := transport.ParseFingerprint(name)
	if err != nil {
		c.log.Errorf("failed to set tls fingerprint: %v", err)
		return c
	}
	c.dialCfg.TLSFingerprint = id
	return c.reset()
}

// SetProxyURL set a SOCKS5 proxy for TCP targets, e.g.
// socks5://127.0.0.1:1080.
func (c *Client) SetProxyURL(proxyUrl string) *Client {
	u, err := urlpkg.Parse(proxyUrl)
	if err != nil {
		c.log.Errorf("failed to parse proxy url %s: %v", proxyUrl, err)
		return c
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		c.log.Errorf("unsupported proxy scheme %q in %s", u.Scheme, proxyUrl)
		return c
	}
	c.dialCfg.ProxyURL = u
	return c.reset()
}

// SetDial set the customized dial function used for TCP and unix targets.
func (c *Client) SetDial(fn func(ctx context.Context, network, addr string) (net.Conn, error)) *Client {
	c.dialCfg.DialContext = fn
	return c.reset()
}

// SetDialTimeout set the timeout for establishing a connection.
func (c *Client) SetDialTimeout(d time.Duration) *Client {
	c.dialCfg.DialTimeout = d
	return c.reset()
}

// SetTLSHandshakeTimeout set the TLS handshake timeout.
func (c *Client) SetTLSHandshakeTimeout(timeout time.Duration) *Client {
	c.dialCfg.TLSHandshakeTimeout = timeout
	return c.reset()
}

// EnableForceHTTP1 disable HTTP/2 negotiation.
func (c *Client) EnableForceHTTP1() *Client {
	c.dialCfg.ForceHTTP1 = true
	return c.reset()
}

// SetMaxIdleConns controls the maximum number of idle (keep-alive)
// connections across all hosts. Zero means no limit.
func (c *Client) SetMaxIdleConns(max int) *Client {
	c.poolCfg.MaxIdle = max
	return c.reset()
}

// SetMaxIdleConnsPerHost controls the maximum idle (keep-alive)
// connections to keep per connection identity.
func (c *Client) SetMaxIdleConnsPerHost(max int) *Client {
	c.poolCfg.MaxIdlePerKey = max
	return c.reset()
}

// SetIdleConnTimeout set the maximum amount of time an idle (keep-alive)
// connection will remain idle before closing itself. Zero means no limit.
func (c *Client) SetIdleConnTimeout(timeout time.Duration) *Client {
	c.poolCfg.IdleTimeout = timeout
	return c.reset()
}

// DisableKeepAlives disable the HTTP keep-alives (enabled by default)
// and will only use the connection to the server for a single
// HTTP request.
func (c *Client) DisableKeepAlives() *Client {
	c.keepAlive = false
	return c.reset()
}

// SetMaxResponseHeaderBytes set the limit on the size of a response head.
func (c *Client) SetMaxResponseHeaderBytes(max int) *Client {
	c.maxHeadBytes = max
	return c
}

// SetUserAgent set the User-Agent header sent when a request has none.
func (c *Client) SetUserAgent(userAgent string) *Client {
	c.userAgent = userAgent
	return c
}

// EnableAutoDecode asks for compressed responses and transparently decodes
// gzip, deflate, br and zstd bodies (enabled by default). Requests that set
// their own Accept-Encoding are left alone.
func (c *Client) EnableAutoDecode() *Client {
	c.autoDecode = true
	return c
}

// DisableAutoDecode disable transparent response decoding.
func (c *Client) DisableAutoDecode() *Client {
	c.autoDecode = false
	return c
}

// OnInformational registers fn to receive interim 1xx responses of
// HTTP/1 exchanges, other than 100 Continue.
func (c *Client) OnInformational(fn func(*Response)) *Client {
	c.onInformational = fn
	return c
}

// SetMeterProvider set the provider of the client's metric instruments.
// The global provider is used by default.
func (c *Client) SetMeterProvider(mp metric.MeterProvider) *Client {
	c.meterProvider = mp
	return c.reset()
}

func (c *Client) getDumpOptions() *DumpOptions {
	if c.dumpOptions == nil {
		c.dumpOptions = newDefaultDumpOptions()
	}
	return c.dumpOptions
}

// EnableDumpAll enable dump for all HTTP/1 exchanges, including all
// content for the request and response by default.
func (c *Client) EnableDumpAll() *Client {
	if c.dumper != nil {
		c.dumper.Stop()
	}
	c.dumper = newDumper(c.getDumpOptions())
	if c.dumpOptions.Async {
		go c.dumper.Start()
	}
	return c
}

// EnableDumpAllTo enable dump for all exchanges and output to
// the specified io.Writer.
func (c *Client) EnableDumpAllTo(output io.Writer) *Client {
	c.getDumpOptions().Output = output
	return c.EnableDumpAll()
}

// SetDumpOptions configures the underlying Transport's DumpOptions.
func (c *Client) SetDumpOptions(opt *DumpOptions) *Client {
	if opt == nil {
		return c
	}
	c.dumpOptions = opt.Clone()
	if c.dumper != nil {
		c.EnableDumpAll()
	}
	return c
}

// DisableDumpAll disable dump for all exchanges.
func (c *Client) DisableDumpAll() *Client {
	if c.dumper != nil {
		c.dumper.Stop()
		c.dumper = nil
	}
	return c
}

// reset drops the dialer so the next request picks up changed settings.
// Pool limits are applied in place.
func (c *Client) reset() *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialer = nil
	c.metrics = nil
	if c.pool != nil {
		c.pool.SetConfig(c.effectivePoolConfig())
	}
	return c
}

func (c *Client) effectivePoolConfig() pool.Config {
	cfg := c.poolCfg
	if !c.keepAlive {
		cfg.MaxIdlePerKey = -1
	}
	return cfg
}

// state returns the pool, dialer and instruments, creating them on first use.
func (c *Client) state() (*pool.Pool[*transport.Conn], *transport.Dialer, *metrics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, nil, ErrClientClosed
	}
	if c.pool == nil {
		c.pool = pool.New[*transport.Conn](c.effectivePoolConfig())
	}
	if c.dialer == nil {
		c.dialer = transport.NewDialer(c.dialCfg)
	}
	if c.metrics == nil {
		m, err := newMetrics(c.meterProvider)
		if err != nil {
			c.log.Warnf("metrics disabled: %v", err)
		}
		c.metrics = m
	}
	return c.pool, c.dialer, c.metrics, nil
}

// Close closes every idle connection. Requests made afterwards fail with
// ErrClientClosed; bodies of responses still being read finish normally and
// close their connection.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	p := c.pool
	c.mu.Unlock()
	c.DisableDumpAll()
	if p == nil {
		return nil
	}
	return p.Close()
}

// Get sends a GET request to url.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.send(ctx, http.MethodGet, url, nil, "")
}

// Head sends a HEAD request to url.
func (c *Client) Head(ctx context.Context, url string) (*Response, error) {
	return c.send(ctx, http.MethodHead, url, nil, "")
}

// Post sends a POST request with body b to url.
func (c *Client) Post(ctx context.Context, url, contentType string, b *body.Body) (*Response, error) {
	return c.send(ctx, http.MethodPost, url, b, contentType)
}

func (c *Client) send(ctx context.Context, method, url string, b *body.Body, contentType string) (*Response, error) {
	r, err := NewRequest(method, url, b)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		r.SetHeader("Content-Type", contentType)
	}
	return c.Do(ctx, r)
}

// exchange is the per-request state of Do.
type exchange struct {
	ctx     context.Context
	id      string
	log     Logger
	key     pool.Key
	target  netutil.Target
	conn    *transport.Conn
	pool    *pool.Pool[*transport.Conn]
	metrics *metrics
	decode  bool
}

// Do sends r and returns the response once its head has arrived.
//
// A connection to r's target is leased from the pool, or dialed on a miss.
// HTTP/1 connections go back to the pool when the response body has been
// read to its end and the exchange allows reuse; any failure, cancellation
// of ctx or early Close of the body closes them instead. An HTTP/2
// connection is shared: it goes back to the pool before the request is
// sent, and a canceled exchange on it leaves it open for the others.
//
// Nothing is retried: a reused connection that turns out to be dead is
// reported as the exchange's error.
func (c *Client) Do(ctx context.Context, r *Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if r == nil || r.URL == nil {
		return nil, ErrNilRequest
	}
	p, d, m, err := c.state()
	if err != nil {
		return nil, err
	}
	target, err := netutil.ParseTarget(r.URL, r.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("hconn: %w", err)
	}

	ex := &exchange{
		ctx:     ctx,
		id:      uuid.NewString(),
		key:     pool.KeyFor(target),
		target:  target,
		pool:    p,
		metrics: m,
	}
	ex.log = exchangeLogger{Logger: c.log, id: ex.id}

	conn, reused := p.Lease(ex.key)
	m.recordLease(ctx, reused)
	if reused {
		ex.log.Debugf("reusing idle %s connection for %s", conn.Kind(), ex.key)
	} else {
		conn, err = d.Dial(ctx, target)
		if err != nil {
			ex.log.Debugf("dial %s failed: %v", ex.key, err)
			return nil, &DialError{Network: target.Network(), Addr: target.Addr(), Err: err}
		}
		m.recordDial(ctx, conn.Kind().String())
		ex.log.Debugf("dialed %s connection for %s", conn.Kind(), ex.key)
	}
	ex.conn = conn

	hdr := c.prepareHeader(r, ex)
	if conn.IsMultiplexed() {
		m.recordExchange(ctx, "h2")
		// The handle is shared: put it back before the round trip so
		// concurrent requests to the same key use it instead of dialing.
		err := p.Offer(ex.key, conn)
		pooled := err == nil || errors.Is(err, pool.ErrDuplicateIdle)
		return c.doMultiplexed(ex, r, hdr, pooled)
	}
	m.recordExchange(ctx, "http/1.1")
	return c.doHTTP1(ex, r, hdr)
}

func (c *Client) prepareHeader(r *Request, ex *exchange) http.Header {
	hdr := r.Header.Clone()
	if hdr == nil {
		hdr = make(http.Header)
	}
	if hdr.Get(header.UserAgent) == "" && c.userAgent != "" {
		hdr.Set(header.UserAgent, c.userAgent)
	}
	if c.autoDecode && r.Method != http.MethodHead && hdr.Get(header.AcceptEncoding) == "" {
		hdr.Set(header.AcceptEncoding, compress.AcceptEncoding)
		ex.decode = true
	}
	if ex.target.Class == netutil.ClassLocal && hdr.Get(header.Host) == "" {
		hdr.Set(header.Host, ex.target.Host)
	}
	if !c.keepAlive && !ex.conn.IsMultiplexed() {
		hdr.Set(header.Connection, "close")
	}
	return hdr
}

// discard closes the exchange's connection instead of pooling it.
func (ex *exchange) discard(reason string) {
	ex.metrics.recordDiscard(ex.ctx, reason)
	ex.log.Debugf("closing connection to %s: %s", ex.key, reason)
	ex.pool.Discard(ex.conn)
}

func (c *Client) doHTTP1(ex *exchange, r *Request, hdr http.Header) (*Response, error) {
	ctx := ex.ctx
	stop := ex.conn.Watch(ctx)
	defer r.Body.Close()

	opts := http1.Options{
		MaxHeadBytes: c.maxHeadBytes,
		MaxHeaders:   c.maxHeaders,
		Dumper:       c.dumper,
	}
	if fn := c.onInformational; fn != nil {
		opts.OnInformational = func(h *http1.ResponseHead) {
			if h.StatusCode == http.StatusContinue {
				return
			}
			fn(&Response{StatusCode: h.StatusCode, Reason: h.Reason, Proto: h.Proto, Header: h.Header, Request: r, ExchangeID: ex.id})
		}
	}
	res, err := http1.Send(ctx, ex.conn, &http1.Request{
		Method: r.Method,
		URL:    r.URL,
		Header: hdr,
		Body:   r.Body,
		Target: ex.target.Path,
	}, opts)
	if err != nil {
		stop()
		if phase, ok := PhaseOf(err); ok {
			ex.metrics.recordError(ctx, phase.String())
		}
		ex.log.Debugf("exchange failed: %v", err)
		ex.discard("exchange error")
		return nil, err
	}
	if res.BodyErr != nil {
		ex.log.Warnf("request body not fully sent, connection will close: %v", res.BodyErr)
	}

	br := http1.NewBodyReader(ex.conn, res, c.dumper)
	src := &connSource{src: br}
	src.done = func(err error) {
		armed := stop()
		switch {
		case err == errClosedEarly:
			ex.discard("body closed early")
		case err != nil:
			if phase, ok := PhaseOf(err); ok {
				ex.metrics.recordError(ctx, phase.String())
			}
			ex.discard("body error")
		case !armed || ctx.Err() != nil:
			ex.discard("canceled")
		case res.Close || !br.Reusable():
			ex.discard("connection close")
		default:
			if err := ex.pool.ReturnIdle(ex.key, ex.conn); err != nil {
				ex.metrics.recordDiscard(ctx, "pool rejected")
				ex.log.Debugf("connection to %s not kept: %v", ex.key, err)
			}
		}
	}

	resp := &Response{
		StatusCode: res.Head.StatusCode,
		Reason:     res.Head.Reason,
		Proto:      res.Head.Proto,
		Header:     res.Head.Header,
		Request:    r,
		ExchangeID: ex.id,
		receivedAt: time.Now(),
	}
	if res.Coding.IsEOF() {
		// Nothing to read: settle the connection now.
		src.Next(ctx)
	}
	resp.Body = c.responseBody(ex, resp, src)
	return resp, nil
}

// doMultiplexed runs one exchange on a shared HTTP/2 connection. pooled
// reports whether the pool holds the handle; if not, this exchange owns it
// and closes it when done.
func (c *Client) doMultiplexed(ex *exchange, r *Request, hdr http.Header, pooled bool) (*Response, error) {
	ctx := ex.ctx
	var reqBody io.ReadCloser = http.NoBody
	if !r.Body.IsEmpty() {
		reqBody = body.NewReader(ctx, r.Body)
	} else {
		r.Body.Close()
	}
	hreq, err := http.NewRequestWithContext(ctx, r.Method, r.URL.String(), reqBody)
	if err != nil {
		if !pooled {
			ex.discard("pool rejected")
		}
		return nil, fmt.Errorf("hconn: %w", err)
	}
	if size := r.Body.SizeHint(); size.Kind == body.SizeSized {
		hreq.ContentLength = size.N
	} else if size.Kind == body.SizeStream {
		hreq.ContentLength = -1
	}
	if host := hdr.Get(header.Host); host != "" {
		hreq.Host = host
		hdr.Del(header.Host)
	}
	delete(hdr, header.HeaderOrderKey)
	hreq.Header = hdr

	hres, err := ex.conn.RoundTrip(hreq)
	if err != nil {
		ex.metrics.recordError(ctx, "h2 round trip")
		ex.log.Debugf("h2 round trip failed: %v", err)
		// A canceled stream leaves the connection usable by the others.
		if !pooled || !ex.conn.CanTakeRequest() || !isContextErr(ctx, err) {
			ex.discard("exchange error")
		}
		return nil, fmt.Errorf("hconn: h2 round trip: %w", err)
	}

	src := &connSource{src: body.Reader(hres.Body, hres.ContentLength)}
	src.done = func(err error) {
		if !pooled {
			ex.discard("pool rejected")
		}
	}

	resp := &Response{
		StatusCode: hres.StatusCode,
		Reason:     reasonFromStatus(hres.Status),
		Proto:      hres.Proto,
		Header:     hres.Header,
		Request:    r,
		ExchangeID: ex.id,
		receivedAt: time.Now(),
	}
	if r.Method == http.MethodHead || hres.ContentLength == 0 {
		src.Next(ctx)
	}
	resp.Body = c.responseBody(ex, resp, src)
	return resp, nil
}

func isContextErr(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// responseBody wraps src, decoding its Content-Encoding when the client
// asked for compression.
func (c *Client) responseBody(ex *exchange, resp *Response, src *connSource) *ResponseBody {
	raw := body.New(src)
	enc := resp.Header.Get(header.ContentEncoding)
	if !ex.decode || enc == "" || raw.IsEmpty() {
		return newResponseBody(ex.ctx, raw)
	}
	cr := compress.NewCompressReader(body.NewReader(ex.ctx, raw), enc)
	if cr == nil {
		ex.log.Debugf("leaving body with unsupported content encoding %q as is", enc)
		return newResponseBody(ex.ctx, raw)
	}
	resp.Header.Del(header.ContentEncoding)
	resp.Header.Del(header.ContentLength)
	return newResponseBody(ex.ctx, body.Reader(cr, -1))
}

// IsClosed reports whether Close was called.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
