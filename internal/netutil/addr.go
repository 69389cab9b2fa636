package netutil

import (
	"net"
	"strings"

	"golang.org/x/net/idna"
)

// DefaultPort returns the default port of scheme, or "" when it has none.
func DefaultPort(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}

// AuthorityAddr returns a given authority (a host/IP, or host:port / ip:port)
// as a host:port. The scheme's default port is added if needed.
func AuthorityAddr(scheme, authority string) (addr string) {
	host, port := AuthorityHostPort(scheme, authority)
	// IPv6 address literal, without a port:
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		return host + ":" + port
	}
	addr = net.JoinHostPort(host, port)
	return
}

// AuthorityHostPort splits authority into a lower-cased ASCII host and a
// port, defaulting the port from scheme.
func AuthorityHostPort(scheme, authority string) (host, port string) {
	host, port, err := net.SplitHostPort(authority)
	if err != nil { // authority didn't have a port
		port = DefaultPort(scheme)
		host = authority
	}
	if port == "" {
		port = DefaultPort(scheme)
	}
	if a, err := idna.ToASCII(host); err == nil {
		host = a
	}
	host = strings.ToLower(host)
	return
}
