package hconn

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
)

// Response is the response of an exchange. Its Body must be read to the end
// or closed; only then is the connection released.
type Response struct {
	StatusCode int
	Reason     string
	Proto      string
	Header     http.Header
	Body       *ResponseBody
	Request    *Request
	// ExchangeID correlates the exchange with log lines.
	ExchangeID string
	receivedAt time.Time
}

// Status returns the status line form, e.g. "200 OK".
func (r *Response) Status() string {
	reason := r.Reason
	if reason == "" {
		reason = http.StatusText(r.StatusCode)
	}
	return strconv.Itoa(r.StatusCode) + " " + reason
}

// IsSuccessState return true if status code is 2xx.
func (r *Response) IsSuccessState() bool {
	return r.StatusCode > 199 && r.StatusCode < 300
}

// IsErrorState return true if status code is 4xx or 5xx.
func (r *Response) IsErrorState() bool {
	return r.StatusCode > 399
}

// GetContentType return the `Content-Type` header value.
func (r *Response) GetContentType() string {
	return r.Header.Get("Content-Type")
}

// ReceivedAt returns when the response head was received.
func (r *Response) ReceivedAt() time.Time {
	return r.receivedAt
}

// ToBytes reads the whole body and closes it.
func (r *Response) ToBytes() ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

// ToString reads the whole body as a string and closes it.
func (r *Response) ToString() (string, error) {
	b, err := r.ToBytes()
	return string(b), err
}

// ToUTF8String reads the whole body and converts it to UTF-8. The charset
// is taken from a BOM, the Content-Type header or an HTML meta tag. Bodies
// that are valid UTF-8 and declare nothing are returned as is.
func (r *Response) ToUTF8String() (string, error) {
	b, err := r.ToBytes()
	if err != nil {
		return "", err
	}
	enc, name, certain := charset.DetermineEncoding(b, r.GetContentType())
	if strings.EqualFold(name, "utf-8") || (!certain && utf8.Valid(b)) {
		return string(b), nil
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return string(b), fmt.Errorf("hconn: decoding %s body: %w", name, err)
	}
	return string(out), nil
}

// UnmarshalJson unmarshals the JSON body into v.
func (r *Response) UnmarshalJson(v interface{}) error {
	b, err := r.ToBytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Save copies the body to dst and closes it.
func (r *Response) Save(dst io.Writer) error {
	defer r.Body.Close()
	_, err := io.Copy(dst, r.Body)
	return err
}

func reasonFromStatus(status string) string {
	if _, reason, ok := strings.Cut(status, " "); ok {
		return reason
	}
	return ""
}
