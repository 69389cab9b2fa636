package netutil

import (
	"errors"
	"fmt"
	"net/url"
)

// SchemeClass groups schemes that may share connections.
type SchemeClass uint8

const (
	ClassPlain SchemeClass = iota
	ClassEncrypted
	ClassLocal
)

func (c SchemeClass) String() string {
	switch c {
	case ClassPlain:
		return "http"
	case ClassEncrypted:
		return "https"
	case ClassLocal:
		return "unix"
	}
	return fmt.Sprintf("SchemeClass(%d)", uint8(c))
}

var (
	errMissingHost   = errors.New("missing host in request URL")
	errMissingSocket = errors.New("unix scheme requires a socket path")
)

// UnsupportedSchemeError is returned for schemes other than http, https
// and unix.
type UnsupportedSchemeError struct {
	Scheme string
}

func (e *UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("unsupported protocol scheme %q", e.Scheme)
}

// Target is where a request goes: the scheme class, the connection
// authority and, for local sockets, the socket file and request path.
type Target struct {
	Class SchemeClass
	// Authority is host:port with the default port made explicit. For
	// local sockets it is the socket path.
	Authority string
	// Host is the ASCII host name used for TLS server name checks.
	Host string
	// SocketPath is the unix socket file, empty for TCP targets.
	SocketPath string
	// Path is the request path and query in the exact form sent on the wire.
	Path string
}

// Addr returns the dial address of t.
func (t Target) Addr() string {
	if t.Class == ClassLocal {
		return t.SocketPath
	}
	return t.Authority
}

// Network returns the dial network of t.
func (t Target) Network() string {
	if t.Class == ClassLocal {
		return "unix"
	}
	return "tcp"
}

// ParseTarget resolves u. socketPath is only consulted for the unix scheme.
func ParseTarget(u *url.URL, socketPath string) (Target, error) {
	if u == nil {
		return Target{}, errMissingHost
	}
	path := u.RequestURI()
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return Target{}, errMissingHost
		}
		class := ClassPlain
		if u.Scheme == "https" {
			class = ClassEncrypted
		}
		host, _ := AuthorityHostPort(u.Scheme, u.Host)
		return Target{
			Class:     class,
			Authority: AuthorityAddr(u.Scheme, u.Host),
			Host:      trimBrackets(host),
			Path:      path,
		}, nil
	case "unix":
		if socketPath == "" {
			return Target{}, errMissingSocket
		}
		host := u.Hostname()
		if host == "" {
			host = "localhost"
		}
		return Target{
			Class:      ClassLocal,
			Authority:  socketPath,
			Host:       host,
			SocketPath: socketPath,
			Path:       path,
		}, nil
	}
	return Target{}, &UnsupportedSchemeError{Scheme: u.Scheme}
}

func trimBrackets(host string) string {
	if len(host) > 1 && host[0] == '[' && host[len(host)-1] == ']' {
		return host[1 : len(host)-1]
	}
	return host
}
