package header

const (
	DefaultUserAgent = "hconn/1 (https://github.com/hwire/hconn)"
	UserAgent        = "User-Agent"
	Host             = "Host"
	Expect           = "Expect"
	Connection       = "Connection"
	ContentLength    = "Content-Length"
	TransferEncoding = "Transfer-Encoding"
	ContentEncoding  = "Content-Encoding"
	AcceptEncoding   = "Accept-Encoding"
	// HeaderOrderKey is a pseudo header whose values list header names in
	// the order they must be written. It is never sent.
	HeaderOrderKey = "__Header_Order__"
)
