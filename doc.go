/*
Package hconn is an HTTP client built around an explicit connection pool.

Every exchange runs on a connection leased from the pool by its identity:
scheme class and authority, plus the request path for unix sockets. A miss
dials a new connection, which is plain TCP, TLS (optionally with a browser
fingerprint), a unix socket, or an HTTP/2 connection negotiated with ALPN.
HTTP/1 connections return to the pool once their response body has been
read to the end and both sides agreed to keep them open. Any failure,
cancellation or early Close takes the connection down instead.

	c := hconn.NewClient()
	defer c.Close()

	resp, err := c.Get(ctx, "https://example.com/")
	if err != nil {
		return err
	}
	s, err := resp.ToString()

Requests to a unix socket name the socket file separately:

	r, _ := hconn.NewRequest("GET", "unix:///v1/info", nil)
	resp, err := c.Do(ctx, r.SetSocketPath("/run/app.sock"))

Errors of HTTP/1 exchanges carry the phase they happened in; see PhaseOf,
IsProtocolError, IsIOError, IsEOFError and IsCanceled.
*/
package hconn
