package rtsp

import "time"

// RTSP Methods
const (
	MethodOptions  = "OPTIONS"
	MethodDescribe = "DESCRIBE"
	MethodSetup    = "SETUP"
	MethodPlay     = "PLAY"
	MethodTeardown = "TEARDOWN"
)

// RTSP Status Codes
const (
	StatusOK                   = 200
	StatusBadRequest           = 400
	StatusUnauthorized         = 401
	StatusForbidden            = 403
	StatusNotFound             = 404
	StatusSessionNotFound      = 454
	StatusUnsupportedTransport = 461
	StatusInternalServerError  = 500
)

// RTSP Headers
const (
	HeaderAccept          = "Accept"
	HeaderAuthorization   = "Authorization"
	HeaderContentBase     = "Content-Base"
	HeaderContentLength   = "Content-Length"
	HeaderContentLocation = "Content-Location"
	HeaderContentType     = "Content-Type"
	HeaderCSeq            = "CSeq"
	HeaderPublic          = "Public"
	HeaderRange           = "Range"
	HeaderSession         = "Session"
	HeaderTransport       = "Transport"
	HeaderUserAgent       = "User-Agent"
	HeaderWWWAuthenticate = "WWW-Authenticate"
)

// RTSP Version
const RTSPVersion = "RTSP/1.0"

// Interleaved framing
const (
	InterleavedMarker   = 0x24
	InterleavedHeader   = 4
	DefaultRTPChannel   = 0
	DefaultRTCPChannel  = 1
	TransportInterleave = "RTP/AVP/TCP;unicast;interleaved=0-1"
)

// Default Values
const (
	DefaultRTSPPort    = 554
	DefaultRTSPSPort   = 322
	DefaultUserAgent   = "lanview/1.0"
	DefaultKeepalive   = 5 * time.Second
	DefaultDialTimeout = 10 * time.Second
	// teardownTimeout bounds the best-effort TEARDOWN in Stop.
	teardownTimeout = 2 * time.Second
	maxAttempts     = 2
	maxHeaderSize   = 64 * 1024
	readBufferSize  = 16 * 1024
)
