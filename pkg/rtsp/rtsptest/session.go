package rtsptest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lanview/pkg/h264"
	"lanview/pkg/rtp"
	"lanview/pkg/rtsp"
)

type session struct {
	server    *Server
	conn      net.Conn
	reader    *rtsp.MessageReader
	writer    *rtsp.MessageWriter
	sessionID string
	nonce     string
	done      chan struct{}
	stopOnce  sync.Once
	streaming bool
}

func newSession(server *Server, conn net.Conn) *session {
	id := uuid.New()
	return &session{
		server:    server,
		conn:      conn,
		reader:    rtsp.NewMessageReader(conn),
		writer:    rtsp.NewMessageWriter(conn),
		sessionID: strings.ReplaceAll(id.String(), "-", "")[:16],
		nonce:     hex.EncodeToString(id[:]),
		done:      make(chan struct{}),
	}
}

func (s *session) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *session) handleRequests() {
	defer s.stop()

	for {
		req, err := s.reader.ReadRequest()
		if err != nil {
			slog.Debug("Test camera session closed", "sessionId", s.sessionID, "err", err)
			return
		}
		s.server.record(req)
		slog.Debug("Test camera request", "method", req.Method, "uri", req.URI, "cseq", req.CSeq)

		if err := s.handleRequest(req); err != nil {
			slog.Debug("Test camera write failed", "err", err)
			return
		}
	}
}

func (s *session) handleRequest(req *rtsp.Request) error {
	config := &s.server.config
	if config.Username != "" && !s.authorized(req) {
		return s.sendChallenge(req)
	}
	if slices.Contains(config.Unanswered, req.Method) {
		return nil
	}
	if code, ok := config.Status[req.Method]; ok && code != rtsp.StatusOK {
		return s.sendError(req.CSeq, code, "Scripted Failure")
	}

	switch req.Method {
	case rtsp.MethodOptions:
		return s.handleOptions(req)
	case rtsp.MethodDescribe:
		return s.handleDescribe(req)
	case rtsp.MethodSetup:
		return s.handleSetup(req)
	case rtsp.MethodPlay:
		return s.handlePlay(req)
	case rtsp.MethodTeardown:
		return s.handleTeardown(req)
	default:
		return s.sendError(req.CSeq, rtsp.StatusBadRequest, "Bad Request")
	}
}

func (s *session) handleOptions(req *rtsp.Request) error {
	resp := s.newResponse(req)
	resp.Header.Set(rtsp.HeaderPublic, "OPTIONS, DESCRIBE, SETUP, PLAY, TEARDOWN")
	return s.writer.WriteResponse(resp)
}

func (s *session) handleDescribe(req *rtsp.Request) error {
	config := &s.server.config
	var sps, pps []byte
	if !config.OmitParameterSets {
		sps, pps = SPS, PPS
	}

	resp := s.newResponse(req)
	resp.Header.Set(rtsp.HeaderContentType, "application/sdp")
	if config.ContentBase != "" {
		resp.Header.Set(rtsp.HeaderContentBase, config.ContentBase)
	}
	resp.Body = []byte(SessionDescription(config.PayloadType, "trackID=1", sps, pps))
	return s.writer.WriteResponse(resp)
}

func (s *session) handleSetup(req *rtsp.Request) error {
	transport := req.GetHeader(rtsp.HeaderTransport)
	if transport == "" {
		return s.sendError(req.CSeq, rtsp.StatusBadRequest, "Bad Request")
	}
	if !strings.Contains(transport, "RTP/AVP/TCP") {
		return s.sendError(req.CSeq, rtsp.StatusUnsupportedTransport, "Unsupported Transport")
	}

	resp := s.newResponse(req)
	if s.server.config.Transport != "" {
		resp.Header.Set(rtsp.HeaderTransport, s.server.config.Transport)
	} else {
		resp.Header.Set(rtsp.HeaderTransport, transport)
	}
	s.setSessionHeader(resp)
	return s.writer.WriteResponse(resp)
}

func (s *session) handlePlay(req *rtsp.Request) error {
	if req.GetHeader(rtsp.HeaderSession) != s.sessionID {
		return s.sendError(req.CSeq, rtsp.StatusSessionNotFound, "Session Not Found")
	}

	resp := s.newResponse(req)
	s.setSessionHeader(resp)
	if err := s.writer.WriteResponse(resp); err != nil {
		return err
	}

	if !s.streaming {
		s.streaming = true
		rtpChannel := uint8(rtsp.DefaultRTPChannel)
		if ch, _, ok := rtsp.ParseInterleaved(s.server.config.Transport); ok {
			rtpChannel = ch
		}
		s.server.wg.Add(1)
		go s.stream(rtpChannel)
	}
	return nil
}

func (s *session) handleTeardown(req *rtsp.Request) error {
	resp := s.newResponse(req)
	s.setSessionHeader(resp)
	err := s.writer.WriteResponse(resp)
	s.stop()
	return err
}

// stream sends generated access units as interleaved RTP until the frame
// budget is spent or the session ends. A short RTCP-channel frame goes first
// so clients exercise channel filtering.
func (s *session) stream(channel uint8) {
	defer s.server.wg.Done()
	config := &s.server.config

	if err := s.writer.WriteInterleaved(channel+1, []byte{0x80, 0xc8, 0x00, 0x06}); err != nil {
		return
	}

	sender := rtp.NewSender(s.writer, channel, 0x4c414e56, config.PayloadType, 1000)
	rtcpChannel := rtp.NewSender(s.writer, channel+1, 0x52544350, config.PayloadType, 1)
	foreign := rtp.NewSender(s.writer, channel, 0x464f5247, config.PayloadType+1, 1)
	packetizer := h264.Packetizer{MTU: config.MTU, Aggregate: true}
	ticker := time.NewTicker(config.FrameInterval)
	defer ticker.Stop()

	timestamp := uint32(90000)
	for i := 0; config.Frames <= 0 || i < config.Frames; i++ {
		if config.StrayPackets {
			stray := slice(h264.NALTypeSlice, 0x41, 64, i+1000)
			if err := rtcpChannel.Send(stray, timestamp, false); err != nil {
				return
			}
			if err := foreign.Send(stray, timestamp, false); err != nil {
				return
			}
		}

		payloads := packetizer.Packetize(AccessUnit(i, config.KeyframeInterval))
		for j, payload := range payloads {
			if err := sender.Send(payload, timestamp, j == len(payloads)-1); err != nil {
				return
			}
		}
		timestamp += FrameDuration

		select {
		case <-ticker.C:
		case <-s.done:
			return
		case <-s.server.ctx.Done():
			return
		}
	}

	if config.CloseAfterFrames {
		s.stop()
	}
}

func (s *session) newResponse(req *rtsp.Request) *rtsp.Response {
	resp := rtsp.NewResponse(rtsp.StatusOK, "OK")
	resp.Header.Set(rtsp.HeaderCSeq, fmt.Sprint(req.CSeq))
	resp.Header.Set("Server", "lanview test camera")
	return resp
}

func (s *session) setSessionHeader(resp *rtsp.Response) {
	value := s.sessionID
	if timeout := s.server.config.SessionTimeout; timeout > 0 {
		value = fmt.Sprintf("%s;timeout=%d", s.sessionID, int(timeout.Seconds()))
	}
	resp.Header.Set(rtsp.HeaderSession, value)
}

func (s *session) sendError(cseq, code int, reason string) error {
	resp := rtsp.NewResponse(code, reason)
	resp.Header.Set(rtsp.HeaderCSeq, fmt.Sprint(cseq))
	return s.writer.WriteResponse(resp)
}

func (s *session) sendChallenge(req *rtsp.Request) error {
	config := &s.server.config
	challenge := fmt.Sprintf(`Digest realm="%s", nonce="%s"`, config.Realm, s.nonce)
	if config.Qop {
		challenge += `, qop="auth"`
	}

	resp := rtsp.NewResponse(rtsp.StatusUnauthorized, "Unauthorized")
	resp.Header.Set(rtsp.HeaderCSeq, fmt.Sprint(req.CSeq))
	resp.Header.Add(rtsp.HeaderWWWAuthenticate, `Basic realm="`+config.Realm+`"`)
	resp.Header.Add(rtsp.HeaderWWWAuthenticate, challenge)
	return s.writer.WriteResponse(resp)
}

// authorized checks a Digest Authorization header against the configured
// credentials and this session's nonce.
func (s *session) authorized(req *rtsp.Request) bool {
	value := req.GetHeader(rtsp.HeaderAuthorization)
	rest, ok := strings.CutPrefix(value, "Digest ")
	if !ok {
		return false
	}

	params := make(map[string]string)
	for _, part := range strings.Split(rest, ",") {
		key, val, found := strings.Cut(strings.TrimSpace(part), "=")
		if found {
			params[key] = strings.Trim(val, `"`)
		}
	}

	config := &s.server.config
	if params["username"] != config.Username || params["nonce"] != s.nonce || params["uri"] != req.URI {
		return false
	}

	ha1 := md5Hex(config.Username + ":" + config.Realm + ":" + config.Password)
	ha2 := md5Hex(req.Method + ":" + req.URI)
	var want string
	if params["qop"] != "" {
		want = md5Hex(ha1 + ":" + s.nonce + ":" + params["nc"] + ":" + params["cnonce"] + ":" + params["qop"] + ":" + ha2)
	} else {
		want = md5Hex(ha1 + ":" + s.nonce + ":" + ha2)
	}
	return params["response"] == want
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
