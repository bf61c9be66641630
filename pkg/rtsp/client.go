package rtsp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"lanview/pkg/sdp"
)

// State represents the connection state of a Client
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StatePlaying
	StateStopped
	StateFailed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StatePlaying:
		return "Playing"
	case StateStopped:
		return "Stopped"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ClientConfig configures a Client
type ClientConfig struct {
	// Credentials override any user information in the URL.
	Credentials *Credentials
	// Trust decides rtsps handshakes. Nil means standard verification.
	Trust       TrustEvaluator
	UserAgent   string
	DialTimeout time.Duration
	// EventBuffer is the capacity of the Events channel.
	EventBuffer int
}

// SessionInfo describes a playing session
type SessionInfo struct {
	Description *sdp.Description
	RTPChannel  uint8
	RTCPChannel uint8
	SetupURL    string
	PlayURL     string
	SessionID   string
	Timeout     time.Duration
}

// Client plays the H.264 video track of one RTSP camera over TCP
// interleaved transport. Events must be drained by the caller while the
// client is running.
type Client struct {
	config ClientConfig
	events chan interface{}

	mu      sync.Mutex
	conn    *clientConn
	playURL string
	state   State
	// failing is a detached connection still reporting its failure.
	failing *clientConn
}

// NewClient creates a new RTSP client
func NewClient(config ClientConfig) *Client {
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultDialTimeout
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = 64
	}

	return &Client{
		config: config,
		events: make(chan interface{}, config.EventBuffer),
		state:  StateIdle,
	}
}

// Events returns the channel carrying ParameterSetsReceived, FrameReceived,
// StateChanged and ErrorOccurred values.
func (c *Client) Events() <-chan interface{} {
	return c.events
}

// State returns the current connection state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start connects if needed, then runs DESCRIBE, SETUP and PLAY for the
// video track of rawURL and starts the keepalive timer. The context bounds
// the whole exchange. On failure the connection is closed. Start does not
// need a concurrent consumer of Events: parameter sets from the session
// description are queued and delivered ahead of the first frame.
func (c *Client) Start(ctx context.Context, rawURL string) (*SessionInfo, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}

	conn, err := c.connect(ctx, u)
	if err != nil {
		return nil, err
	}

	info, err := c.play(ctx, conn, requestURL(u))
	if err != nil {
		slog.Warn("RTSP session setup failed", "url", requestURL(u).String(), "err", err)
		c.detach(conn)
		conn.close(ErrConnectionClosed)
		if !errors.Is(err, ErrConnectionClosed) {
			c.setState(StateFailed)
		}
		return nil, err
	}

	c.mu.Lock()
	c.playURL = info.PlayURL
	c.mu.Unlock()

	if err := conn.startKeepalive(ctx, info.PlayURL); err != nil {
		c.detach(conn)
		conn.close(ErrConnectionClosed)
		return nil, err
	}
	c.setState(StatePlaying)
	slog.Info("RTSP session playing", "url", info.PlayURL, "sessionId", info.SessionID, "rtpChannel", info.RTPChannel)
	return info, nil
}

// Stop cancels the keepalive, sends TEARDOWN on a best-effort basis and
// closes the connection. Outstanding requests fail with
// ErrConnectionClosed. Stop on an idle client is a no-op.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	playURL := c.playURL
	c.conn = nil
	c.playURL = ""
	c.mu.Unlock()

	c.releaseFailing()
	if conn == nil {
		if c.State() != StateIdle {
			c.setState(StateStopped)
		}
		return nil
	}

	conn.beginStop()
	if playURL != "" && conn.alive() {
		teardownCtx, cancel := context.WithTimeout(ctx, teardownTimeout)
		if _, err := conn.request(teardownCtx, MethodTeardown, playURL, nil); err != nil {
			slog.Debug("RTSP TEARDOWN failed", "url", playURL, "err", err)
		}
		cancel()
	}
	conn.close(ErrConnectionClosed)

	c.setState(StateStopped)
	slog.Info("RTSP session stopped", "url", playURL)
	return nil
}

// Options sends an OPTIONS request to the play URL of the current session.
func (c *Client) Options(ctx context.Context) (*Response, error) {
	c.mu.Lock()
	conn := c.conn
	uri := c.playURL
	c.mu.Unlock()

	if conn == nil || !conn.alive() || uri == "" {
		return nil, ErrNotConnected
	}
	resp, err := conn.request(ctx, MethodOptions, uri, nil)
	if err != nil {
		return nil, err
	}
	return resp, checkResponse(MethodOptions, resp)
}

func (c *Client) connect(ctx context.Context, u *url.URL) (*clientConn, error) {
	c.mu.Lock()
	if c.conn != nil && c.conn.alive() {
		conn := c.conn
		c.mu.Unlock()
		return conn, nil
	}
	c.mu.Unlock()
	c.releaseFailing()

	c.setState(StateConnecting)

	netConn, err := c.dial(ctx, u)
	if err != nil {
		c.setState(StateFailed)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	credentials := c.config.Credentials
	if credentials == nil && u.User != nil {
		password, _ := u.User.Password()
		credentials = &Credentials{Username: u.User.Username(), Password: password}
	}

	conn := newClientConn(c, netConn, credentials)
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.setState(StateConnected)
	slog.Info("RTSP connected", "addr", netConn.RemoteAddr().String(), "scheme", u.Scheme)
	return conn, nil
}

func (c *Client) dial(ctx context.Context, u *url.URL) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.config.DialTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", dialAddress(u))
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(u.Scheme, "rtsps") {
		return netConn, nil
	}

	tlsConn := tls.Client(netConn, tlsConfig(u.Hostname(), c.config.Trust))
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		netConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

func (c *Client) play(ctx context.Context, conn *clientConn, u *url.URL) (*SessionInfo, error) {
	describe, err := conn.request(ctx, MethodDescribe, u.String(), map[string]string{
		HeaderAccept: "application/sdp",
	})
	if err != nil {
		return nil, err
	}
	if err := checkResponse(MethodDescribe, describe); err != nil {
		return nil, err
	}

	desc, err := sdp.Parse(describe.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	base := baseURL(describe, u)

	info := &SessionInfo{
		Description: desc,
		SetupURL:    desc.VideoControlURL(base),
		PlayURL:     desc.PlayURL(base),
		RTPChannel:  DefaultRTPChannel,
		RTCPChannel: DefaultRTCPChannel,
	}

	setup, err := conn.request(ctx, MethodSetup, info.SetupURL, map[string]string{
		HeaderTransport: TransportInterleave,
	})
	if err != nil {
		return nil, err
	}
	if err := checkResponse(MethodSetup, setup); err != nil {
		return nil, err
	}
	if rtpCh, rtcpCh, ok := ParseInterleaved(setup.Get(HeaderTransport)); ok {
		info.RTPChannel, info.RTCPChannel = rtpCh, rtcpCh
	}
	info.SessionID, info.Timeout, _ = ParseSession(setup.Get(HeaderSession))

	err = conn.configureMedia(ctx, mediaConfig{
		rtpChannel:  info.RTPChannel,
		payloadType: desc.PayloadType,
		sps:         desc.SPS,
		pps:         desc.PPS,
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("RTSP control urls", "base", base.String(), "setup", info.SetupURL, "play", info.PlayURL)

	play, err := conn.request(ctx, MethodPlay, info.PlayURL, map[string]string{
		HeaderRange: "npt=0-",
	})
	if err != nil {
		return nil, err
	}
	if err := checkResponse(MethodPlay, play); err != nil {
		return nil, err
	}
	if id, timeout, ok := ParseSession(play.Get(HeaderSession)); ok {
		info.SessionID = id
		if timeout > 0 {
			info.Timeout = timeout
		}
	}

	return info, nil
}

// detach forgets conn if it is still the current connection. Stop and the
// next connect can still release it while it reports its failure.
func (c *Client) detach(conn *clientConn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.playURL = ""
		c.failing = conn
	}
	c.mu.Unlock()
}

// forget drops conn once its event loop has exited.
func (c *Client) forget(conn *clientConn) {
	c.mu.Lock()
	if c.failing == conn {
		c.failing = nil
	}
	c.mu.Unlock()
}

// releaseFailing stops a detached connection from blocking on event
// delivery.
func (c *Client) releaseFailing() {
	c.mu.Lock()
	conn := c.failing
	c.failing = nil
	c.mu.Unlock()

	if conn != nil {
		conn.beginStop()
	}
}

func (c *Client) setState(state State) {
	if c.updateState(state) {
		c.publish(StateChanged{State: state})
	}
}

// updateState records state and reports whether it changed.
func (c *Client) updateState(state State) bool {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()

	if changed {
		slog.Debug("RTSP state changed", "state", state.String())
	}
	return changed
}

// publish delivers transitional events without blocking; they are dropped
// when the consumer has fallen behind. Connection failures go through the
// connection's blocking delivery instead.
func (c *Client) publish(event interface{}) {
	select {
	case c.events <- event:
	default:
		slog.Warn("RTSP event dropped", "eventType", fmt.Sprintf("%T", event))
	}
}
