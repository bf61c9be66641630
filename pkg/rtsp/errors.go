package rtsp

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL indicates the RTSP URL is invalid
	ErrInvalidURL = errors.New("invalid RTSP URL")
	// ErrNotConnected indicates an operation needs an open connection
	ErrNotConnected = errors.New("RTSP client not connected")
	// ErrConnectionFailed indicates the TCP/TLS connection could not be
	// established or broke mid-session
	ErrConnectionFailed = errors.New("RTSP connection failed")
	// ErrConnectionClosed fails requests outstanding when the client stops
	ErrConnectionClosed = errors.New("RTSP connection closed")
	// ErrInvalidResponse indicates a response body could not be parsed
	ErrInvalidResponse = errors.New("invalid RTSP response")
	// ErrUntrustedPeer is returned by the TLS handshake when the trust
	// evaluator denies the peer certificate
	ErrUntrustedPeer = errors.New("RTSP peer certificate not trusted")
)

// RequestError reports a non-2xx reply, after any authentication retry.
type RequestError struct {
	Method     string
	StatusCode int
	Reason     string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("RTSP %s failed: %d %s", e.Method, e.StatusCode, e.Reason)
}

func checkResponse(method string, resp *Response) error {
	if resp.StatusCode != StatusOK {
		return &RequestError{Method: method, StatusCode: resp.StatusCode, Reason: resp.StatusText}
	}
	return nil
}
