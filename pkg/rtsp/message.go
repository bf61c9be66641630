package rtsp

import (
	"fmt"
	"net/textproto"
	"sort"
	"strconv"
	"strings"
)

// Request represents an RTSP request
type Request struct {
	Method  string
	URI     string
	Version string
	Headers map[string]string
	CSeq    int
}

// Response represents an RTSP response. Header lookups are
// case-insensitive.
type Response struct {
	Version    string
	StatusCode int
	StatusText string
	Header     textproto.MIMEHeader
	Body       []byte
}

// NewRequest creates a new RTSP request
func NewRequest(method, uri string) *Request {
	return &Request{
		Method:  method,
		URI:     uri,
		Version: RTSPVersion,
		Headers: make(map[string]string),
	}
}

// NewResponse creates a new RTSP response
func NewResponse(statusCode int, statusText string) *Response {
	return &Response{
		Version:    RTSPVersion,
		StatusCode: statusCode,
		StatusText: statusText,
		Header:     make(textproto.MIMEHeader),
	}
}

// SetHeader sets a header value
func (r *Request) SetHeader(key, value string) {
	r.Headers[key] = value
}

// GetHeader gets a header value
func (r *Request) GetHeader(key string) string {
	return r.Headers[key]
}

// SetCSeq sets the CSeq header and field
func (r *Request) SetCSeq(cseq int) {
	r.CSeq = cseq
	r.Headers[HeaderCSeq] = strconv.Itoa(cseq)
}

// String returns the wire form of the request. CSeq is written first and
// the remaining headers in sorted order.
func (r *Request) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s %s %s\r\n", r.Method, r.URI, r.Version)

	if cseq, ok := r.Headers[HeaderCSeq]; ok {
		fmt.Fprintf(&sb, "%s: %s\r\n", HeaderCSeq, cseq)
	}
	keys := make([]string, 0, len(r.Headers))
	for key := range r.Headers {
		if key != HeaderCSeq {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&sb, "%s: %s\r\n", key, r.Headers[key])
	}

	sb.WriteString("\r\n")
	return sb.String()
}

// Bytes returns the byte representation of the request
func (r *Request) Bytes() []byte {
	return []byte(r.String())
}

// Get returns the first value of a header, or "".
func (r *Response) Get(key string) string {
	return r.Header.Get(key)
}

// CSeq returns the response's sequence number, if present and numeric.
func (r *Response) CSeq() (int, bool) {
	v := r.Header.Get(HeaderCSeq)
	if v == "" {
		return 0, false
	}
	cseq, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return cseq, true
}

// String returns the wire form of the response
func (r *Response) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s %d %s\r\n", r.Version, r.StatusCode, r.StatusText)

	keys := make([]string, 0, len(r.Header))
	for key := range r.Header {
		if key != textproto.CanonicalMIMEHeaderKey(HeaderContentLength) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		for _, value := range r.Header[key] {
			fmt.Fprintf(&sb, "%s: %s\r\n", key, value)
		}
	}
	if len(r.Body) > 0 {
		fmt.Fprintf(&sb, "%s: %d\r\n", HeaderContentLength, len(r.Body))
	}

	sb.WriteString("\r\n")
	sb.Write(r.Body)
	return sb.String()
}

// Bytes returns the byte representation of the response
func (r *Response) Bytes() []byte {
	return []byte(r.String())
}

func (*Response) streamEvent() {}
