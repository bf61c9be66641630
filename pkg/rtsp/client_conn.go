package rtsp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lanview/pkg/h264"
	"lanview/pkg/rtp"
)

const writeTimeout = 10 * time.Second

// Messages delivered to the connection's event loop.
type (
	dataReceived struct {
		data []byte
	}

	readFailed struct {
		err error
	}

	requestCmd struct {
		method  string
		uri     string
		headers map[string]string
		reply   chan roundTripResult
	}

	keepaliveCmd struct {
		// uri is empty to stop the keepalive.
		uri string
	}

	keepaliveDone struct {
		err error
	}
)

type mediaConfig struct {
	rtpChannel  uint8
	payloadType *uint8
	sps         []byte
	pps         []byte
}

type roundTripResult struct {
	response          *Response
	challengeAccepted bool
	err               error
}

// clientConn owns one TCP or TLS connection. A reader goroutine forwards
// raw bytes to the event loop, which alone touches the parser, the pending
// table, session state and the depacketizer.
type clientConn struct {
	client  *Client
	netConn net.Conn
	writer  *MessageWriter
	inbox   chan interface{}
	ctx     context.Context
	cancel  context.CancelFunc
	group   errgroup.Group
	done    chan struct{}
	// stopping is closed when the owner begins an orderly stop.
	stopping     chan struct{}
	stoppingOnce sync.Once

	mu          sync.Mutex
	closeReason error
	// err is written by the event loop before done is closed.
	err error

	// Owned by the event loop.
	parser         *StreamParser
	cseq           int
	pending        map[int]chan roundTripResult
	sessionID      string
	sessionTimeout time.Duration
	auth           *Authenticator
	media          *mediaConfig
	depacketizer   *h264.Depacketizer
	timeMapper     rtp.TimeMapper
	lastSPS        []byte
	lastPPS        []byte
	// queuedParams holds description parameter sets until the first frame.
	queuedParams  *ParameterSetsReceived
	keepalive     *time.Ticker
	keepaliveURI  string
	keepaliveBusy bool
}

func newClientConn(client *Client, netConn net.Conn, credentials *Credentials) *clientConn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &clientConn{
		client:       client,
		netConn:      netConn,
		writer:       NewMessageWriter(netConn),
		inbox:        make(chan interface{}, 64),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		stopping:     make(chan struct{}),
		parser:       NewStreamParser(),
		cseq:         1,
		pending:      make(map[int]chan roundTripResult),
		depacketizer: h264.NewDepacketizer(),
	}
	if credentials != nil {
		c.auth = NewAuthenticator(*credentials)
	}
	c.depacketizer.OnParameterSets = c.handleParameterSets

	c.group.Go(c.readLoop)
	c.group.Go(c.eventLoop)
	return c
}

// alive reports whether the event loop is still running.
func (c *clientConn) alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// close stops both goroutines and fails outstanding requests with reason.
func (c *clientConn) close(reason error) {
	c.mu.Lock()
	if c.closeReason == nil {
		c.closeReason = reason
	}
	c.mu.Unlock()

	c.cancel()
	c.netConn.Close()
	c.group.Wait()
}

// request sends one request and waits for its response. A 401 carrying a
// usable Digest challenge is retried once with fresh credentials.
func (c *clientConn) request(ctx context.Context, method, uri string, headers map[string]string) (*Response, error) {
	var resp *Response
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := c.roundTrip(ctx, method, uri, headers)
		if err != nil {
			return nil, err
		}
		resp = result.response
		if resp.StatusCode != StatusUnauthorized || !result.challengeAccepted {
			break
		}
		slog.Debug("RTSP authentication challenge accepted, retrying", "method", method, "uri", uri)
	}
	return resp, nil
}

func (c *clientConn) roundTrip(ctx context.Context, method, uri string, headers map[string]string) (roundTripResult, error) {
	reply := make(chan roundTripResult, 1)
	cmd := requestCmd{method: method, uri: uri, headers: headers, reply: reply}

	if err := c.send(ctx, cmd); err != nil {
		return roundTripResult{}, err
	}

	select {
	case result := <-reply:
		return result, result.err
	case <-c.done:
		select {
		case result := <-reply:
			return result, result.err
		default:
			return roundTripResult{}, c.err
		}
	case <-ctx.Done():
		return roundTripResult{}, ctx.Err()
	}
}

// send posts a command to the event loop.
func (c *clientConn) send(ctx context.Context, msg interface{}) error {
	select {
	case c.inbox <- msg:
		return nil
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *clientConn) configureMedia(ctx context.Context, media mediaConfig) error {
	return c.send(ctx, media)
}

func (c *clientConn) startKeepalive(ctx context.Context, uri string) error {
	return c.send(ctx, keepaliveCmd{uri: uri})
}

// beginStop cancels the keepalive and stops blocking on frame delivery so
// a TEARDOWN can still get through while the consumer is not draining.
func (c *clientConn) beginStop() {
	c.stoppingOnce.Do(func() {
		close(c.stopping)
	})
}

func (c *clientConn) isStopping() bool {
	if c.ctx.Err() != nil {
		return true
	}
	select {
	case <-c.stopping:
		return true
	default:
		return false
	}
}

func (c *clientConn) readLoop() error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.netConn.Read(buf)
		if n > 0 {
			select {
			case c.inbox <- dataReceived{data: bytes.Clone(buf[:n])}:
			case <-c.ctx.Done():
				return nil
			}
		}
		if err != nil {
			select {
			case c.inbox <- readFailed{err: err}:
			case <-c.ctx.Done():
			}
			return nil
		}
	}
}

func (c *clientConn) eventLoop() error {
	defer c.shutdown()

	stopping := c.stopping
	for {
		var tick <-chan time.Time
		if c.keepalive != nil {
			tick = c.keepalive.C
		}

		select {
		case msg := <-c.inbox:
			if stop := c.handleMessage(msg); stop {
				return nil
			}
		case <-stopping:
			c.handleKeepalive(keepaliveCmd{})
			stopping = nil
		case <-tick:
			c.sendKeepalive()
		case <-c.ctx.Done():
			return nil
		}
	}
}

// handleMessage processes one inbox message and reports whether the loop
// must stop.
func (c *clientConn) handleMessage(msg interface{}) bool {
	switch m := msg.(type) {
	case dataReceived:
		c.handleData(m.data)
	case readFailed:
		c.handleReadFailure(m.err)
		return true
	case requestCmd:
		c.handleRequest(m)
	case mediaConfig:
		c.handleMedia(m)
	case keepaliveCmd:
		c.handleKeepalive(m)
	case keepaliveDone:
		c.keepaliveBusy = false
		if m.err != nil && !c.isStopping() {
			slog.Warn("RTSP keepalive failed", "uri", c.keepaliveURI, "err", m.err)
			c.client.publish(ErrorOccurred{Err: fmt.Errorf("keepalive: %w", m.err)})
		}
	default:
		slog.Warn("Unknown connection message", "type", fmt.Sprintf("%T", msg))
	}
	return false
}

func (c *clientConn) handleData(data []byte) {
	for _, ev := range c.parser.Append(data) {
		switch e := ev.(type) {
		case *Response:
			c.handleResponse(e)
		case InterleavedFrame:
			c.handleFrame(e)
		}
	}
}

func (c *clientConn) handleResponse(resp *Response) {
	if v := resp.Get(HeaderSession); v != "" {
		if id, timeout, ok := ParseSession(v); ok {
			c.sessionID = id
			if timeout > 0 {
				c.sessionTimeout = timeout
			}
		}
	}

	accepted := false
	if resp.StatusCode == StatusUnauthorized && c.auth != nil {
		accepted = c.auth.UpdateChallenge(resp)
	}

	cseq, ok := resp.CSeq()
	if !ok {
		slog.Debug("RTSP response without CSeq ignored", "status", resp.StatusCode)
		return
	}
	reply, ok := c.pending[cseq]
	if !ok {
		slog.Debug("RTSP response for unknown request ignored", "cseq", cseq, "status", resp.StatusCode)
		return
	}
	delete(c.pending, cseq)
	reply <- roundTripResult{response: resp, challengeAccepted: accepted}
}

func (c *clientConn) handleFrame(frame InterleavedFrame) {
	if c.media == nil || frame.Channel != c.media.rtpChannel {
		return
	}
	packet, ok := rtp.Parse(frame.Payload)
	if !ok {
		return
	}
	if pt := c.media.payloadType; pt != nil && packet.PayloadType != *pt {
		return
	}
	if c.queuedParams != nil {
		c.deliver(*c.queuedParams)
		c.queuedParams = nil
	}

	for _, au := range c.depacketizer.Push(packet) {
		c.deliver(FrameReceived{
			AccessUnit: au,
			PTS:        c.timeMapper.PTS(au.Timestamp),
		})
	}
}

// handleParameterSets emits a pair only when it differs from the last one.
func (c *clientConn) handleParameterSets(sps, pps []byte) {
	if bytes.Equal(sps, c.lastSPS) && bytes.Equal(pps, c.lastPPS) {
		return
	}
	c.lastSPS = bytes.Clone(sps)
	c.lastPPS = bytes.Clone(pps)
	c.deliver(ParameterSetsReceived{SPS: c.lastSPS, PPS: c.lastPPS})
}

// deliver blocks until the consumer takes the event, which holds back the
// reader when frames are not drained.
func (c *clientConn) deliver(event interface{}) {
	select {
	case c.client.events <- event:
	case <-c.stopping:
	case <-c.ctx.Done():
	}
}

func (c *clientConn) handleRequest(cmd requestCmd) {
	req := NewRequest(cmd.method, cmd.uri)
	for key, value := range cmd.headers {
		req.SetHeader(key, value)
	}
	req.SetCSeq(c.cseq)
	c.cseq++
	req.SetHeader(HeaderUserAgent, c.client.config.UserAgent)
	if c.sessionID != "" && cmd.method != MethodDescribe {
		req.SetHeader(HeaderSession, c.sessionID)
	}
	if c.auth != nil {
		if value, ok := c.auth.Authorization(cmd.method, cmd.uri); ok {
			req.SetHeader(HeaderAuthorization, value)
		}
	}

	c.pending[req.CSeq] = cmd.reply
	c.netConn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.writer.WriteRequest(req); err != nil {
		delete(c.pending, req.CSeq)
		cmd.reply <- roundTripResult{err: fmt.Errorf("%w: %v", ErrConnectionFailed, err)}
		return
	}
	slog.Debug("RTSP request sent", "method", cmd.method, "uri", cmd.uri, "cseq", req.CSeq)
}

func (c *clientConn) handleMedia(media mediaConfig) {
	c.media = &media
	c.depacketizer.Reset()
	c.timeMapper.Reset()
	c.queuedParams = nil
	if media.sps != nil && media.pps != nil {
		// Delivered with the first frame so SETUP and PLAY never wait on
		// the consumer.
		c.lastSPS = bytes.Clone(media.sps)
		c.lastPPS = bytes.Clone(media.pps)
		c.queuedParams = &ParameterSetsReceived{SPS: c.lastSPS, PPS: c.lastPPS}
	}
}

func (c *clientConn) handleKeepalive(cmd keepaliveCmd) {
	if c.keepalive != nil {
		c.keepalive.Stop()
		c.keepalive = nil
	}
	c.keepaliveURI = cmd.uri
	if cmd.uri == "" {
		return
	}
	interval := KeepaliveInterval(c.sessionTimeout)
	c.keepalive = time.NewTicker(interval)
	slog.Debug("RTSP keepalive started", "uri", cmd.uri, "interval", interval)
}

// sendKeepalive issues OPTIONS from a helper goroutine; the loop must stay
// free to route the response back.
func (c *clientConn) sendKeepalive() {
	if c.keepaliveBusy || c.keepaliveURI == "" {
		return
	}
	c.keepaliveBusy = true
	uri := c.keepaliveURI

	c.group.Go(func() error {
		resp, err := c.request(c.ctx, MethodOptions, uri, nil)
		if err == nil {
			err = checkResponse(MethodOptions, resp)
		}
		select {
		case c.inbox <- keepaliveDone{err: err}:
		case <-c.ctx.Done():
		}
		return nil
	})
}

func (c *clientConn) handleReadFailure(err error) {
	if c.isStopping() {
		return
	}
	if errors.Is(err, io.EOF) {
		err = errors.New("connection closed by peer")
	}
	failure := fmt.Errorf("%w: %v", ErrConnectionFailed, err)

	c.mu.Lock()
	if c.closeReason == nil {
		c.closeReason = failure
	}
	c.mu.Unlock()

	slog.Error("RTSP connection lost", "addr", c.netConn.RemoteAddr().String(), "err", err)
	c.failPending(failure)

	// The failure is reported exactly once and is never dropped; only Stop
	// or close can cut the wait short.
	c.deliver(ErrorOccurred{Err: failure})
	if c.isStopping() {
		return
	}
	changed := c.client.updateState(StateFailed)
	c.client.detach(c)
	if changed {
		c.deliver(StateChanged{State: StateFailed})
	}
}

func (c *clientConn) failPending(reason error) {
	for cseq, reply := range c.pending {
		reply <- roundTripResult{err: reason}
		delete(c.pending, cseq)
	}
}

// shutdown runs once when the event loop exits.
func (c *clientConn) shutdown() {
	c.mu.Lock()
	reason := c.closeReason
	c.mu.Unlock()
	if reason == nil {
		reason = ErrConnectionClosed
	}

	c.cancel()
	c.netConn.Close()
	if c.keepalive != nil {
		c.keepalive.Stop()
		c.keepalive = nil
	}

	c.failPending(reason)
	c.client.forget(c)
	c.sessionID = ""
	c.sessionTimeout = 0
	c.parser.Reset()
	c.depacketizer.Reset()
	c.timeMapper.Reset()

	c.err = reason
	close(c.done)
}
