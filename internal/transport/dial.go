package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"

	"github.com/hwire/hconn/internal/netutil"
	reqtls "github.com/hwire/hconn/pkg/tls"
)

const nextProtoH2 = "h2"

// DialConfig controls how a Dialer establishes connections.
type DialConfig struct {
	DialTimeout         time.Duration
	KeepAlive           time.Duration
	TLSHandshakeTimeout time.Duration
	TLSClientConfig     *tls.Config
	// TLSFingerprint, if set, performs the handshake with utls using this
	// client hello instead of crypto/tls.
	TLSFingerprint *utls.ClientHelloID
	// ProxyURL is a socks5:// or socks5h:// proxy for TCP targets.
	ProxyURL *url.URL
	// ForceHTTP1 disables HTTP/2 negotiation.
	ForceHTTP1 bool
	// DialContext replaces the net.Dialer when set.
	DialContext func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Dialer establishes Conns of every kind.
type Dialer struct {
	cfg DialConfig
	h2  *http2.Transport
}

// NewDialer returns a Dialer using cfg.
func NewDialer(cfg DialConfig) *Dialer {
	return &Dialer{cfg: cfg, h2: &http2.Transport{}}
}

// Dial connects to t. Encrypted targets whose peer negotiates h2 come back as
// a multiplexed handle.
func (d *Dialer) Dial(ctx context.Context, t netutil.Target) (*Conn, error) {
	switch t.Class {
	case netutil.ClassLocal:
		nc, err := d.dial(ctx, "unix", t.SocketPath)
		if err != nil {
			return nil, err
		}
		return NewLocalSocket(nc), nil
	case netutil.ClassPlain:
		nc, err := d.dialTCP(ctx, t.Authority)
		if err != nil {
			return nil, err
		}
		return NewPlain(nc), nil
	case netutil.ClassEncrypted:
		nc, err := d.dialTCP(ctx, t.Authority)
		if err != nil {
			return nil, err
		}
		tc, err := d.handshake(ctx, nc, t.Host)
		if err != nil {
			nc.Close()
			return nil, err
		}
		if tc.ConnectionState().NegotiatedProtocol == nextProtoH2 {
			if d.cfg.ForceHTTP1 {
				tc.Close()
				return nil, errors.New("server negotiated h2 while HTTP/1 is forced")
			}
			cc, err := d.h2.NewClientConn(tc)
			if err != nil {
				tc.Close()
				return nil, err
			}
			return NewMultiplexed(cc, tc), nil
		}
		return NewEncrypted(tc), nil
	}
	return nil, fmt.Errorf("unknown scheme class %v", t.Class)
}

func (d *Dialer) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	if d.cfg.DialContext != nil {
		return d.cfg.DialContext(ctx, network, addr)
	}
	return d.netDialer().DialContext(ctx, network, addr)
}

func (d *Dialer) netDialer() *net.Dialer {
	return &net.Dialer{Timeout: d.cfg.DialTimeout, KeepAlive: d.cfg.KeepAlive}
}

func (d *Dialer) dialTCP(ctx context.Context, addr string) (net.Conn, error) {
	if d.cfg.ProxyURL == nil {
		return d.dial(ctx, "tcp", addr)
	}
	pd, err := proxy.FromURL(d.cfg.ProxyURL, d.netDialer())
	if err != nil {
		return nil, err
	}
	if cd, ok := pd.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, "tcp", addr)
	}
	return pd.Dial("tcp", addr)
}

func (d *Dialer) handshake(ctx context.Context, nc net.Conn, host string) (reqtls.Conn, error) {
	if d.cfg.TLSHandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.TLSHandshakeTimeout)
		defer cancel()
	}
	cfg := cloneTLSConfig(d.cfg.TLSClientConfig)
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	if d.cfg.ForceHTTP1 {
		cfg.NextProtos = []string{"http/1.1"}
	} else if len(cfg.NextProtos) == 0 {
		cfg.NextProtos = []string{nextProtoH2, "http/1.1"}
	}

	var tc reqtls.Conn
	if d.cfg.TLSFingerprint != nil {
		tc = newUConn(nc, cfg, *d.cfg.TLSFingerprint)
	} else {
		tc = tls.Client(nc, cfg)
	}
	if err := tc.HandshakeContext(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			return nil, tlsHandshakeTimeoutError{}
		}
		return nil, err
	}
	return tc, nil
}

type tlsHandshakeTimeoutError struct{}

func (tlsHandshakeTimeoutError) Timeout() bool   { return true }
func (tlsHandshakeTimeoutError) Temporary() bool { return true }
func (tlsHandshakeTimeoutError) Error() string   { return "transport: TLS handshake timeout" }

// cloneTLSConfig returns a shallow clone of cfg, or a new zero tls.Config if
// cfg is nil.
func cloneTLSConfig(cfg *tls.Config) *tls.Config {
	if cfg == nil {
		return &tls.Config{}
	}
	return cfg.Clone()
}

// uConn adapts a utls connection to the crypto/tls shaped reqtls.Conn.
type uConn struct {
	*utls.UConn
}

func newUConn(nc net.Conn, cfg *tls.Config, id utls.ClientHelloID) *uConn {
	ucfg := &utls.Config{
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		RootCAs:            cfg.RootCAs,
		NextProtos:         cfg.NextProtos,
	}
	return &uConn{utls.UClient(nc, ucfg, id)}
}

func (c *uConn) ConnectionState() tls.ConnectionState {
	cs := c.UConn.ConnectionState()
	return tls.ConnectionState{
		Version:                    cs.Version,
		HandshakeComplete:          cs.HandshakeComplete,
		DidResume:                  cs.DidResume,
		CipherSuite:                cs.CipherSuite,
		NegotiatedProtocol:         cs.NegotiatedProtocol,
		NegotiatedProtocolIsMutual: cs.NegotiatedProtocolIsMutual,
		ServerName:                 cs.ServerName,
		PeerCertificates:           cs.PeerCertificates,
		VerifiedChains:             cs.VerifiedChains,
	}
}

// ParseFingerprint maps a browser name to a utls client hello.
func ParseFingerprint(name string) (*utls.ClientHelloID, error) {
	var id utls.ClientHelloID
	switch strings.ToLower(name) {
	case "chrome":
		id = utls.HelloChrome_Auto
	case "firefox":
		id = utls.HelloFirefox_Auto
	case "safari":
		id = utls.HelloSafari_Auto
	case "ios":
		id = utls.HelloIOS_Auto
	case "edge":
		id = utls.HelloEdge_Auto
	case "randomized":
		id = utls.HelloRandomized
	default:
		return nil, fmt.Errorf("unknown TLS fingerprint %q", name)
	}
	return &id, nil
}
