// Package rtsptest provides a scripted RTSP camera on the loopback
// interface. It answers OPTIONS, DESCRIBE, SETUP, PLAY and TEARDOWN over
// TCP or TLS and streams generated H.264 over interleaved RTP.
package rtsptest

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"lanview/pkg/rtsp"
)

// Config scripts the camera's behavior.
type Config struct {
	// TLS serves rtsps with a freshly generated self-signed certificate.
	TLS bool

	// Username and Password, when set, make every request without a valid
	// Digest Authorization fail with 401.
	Username string
	Password string
	Realm    string
	// Qop adds qop="auth" to the challenge.
	Qop bool

	// SessionTimeout is advertised as ;timeout= in the Session header
	// when positive.
	SessionTimeout time.Duration
	// Transport overrides the SETUP response Transport header.
	Transport string
	// ContentBase is sent with the DESCRIBE response when set.
	ContentBase string
	// Status forces a status code for a method.
	Status map[string]int
	// Unanswered lists methods the camera reads but never replies to.
	Unanswered []string

	PayloadType uint8
	// OmitParameterSets leaves sprop-parameter-sets out of the SDP.
	OmitParameterSets bool

	// Frames is the number of access units streamed after PLAY. Zero
	// streams until the connection closes.
	Frames           int
	FrameInterval    time.Duration
	KeyframeInterval int
	MTU              int
	// CloseAfterFrames drops the connection once Frames have been sent.
	CloseAfterFrames bool
	// StrayPackets adds, per frame, a valid RTP packet on the RTCP channel
	// and one with a foreign payload type on the RTP channel. Both share
	// the frame's timestamp.
	StrayPackets bool
}

// Server is a scripted RTSP camera.
type Server struct {
	config   Config
	listener net.Listener
	cert     *x509.Certificate
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu       sync.Mutex
	requests []*rtsp.Request
	conns    map[net.Conn]struct{}
}

// NewServer starts a camera listening on 127.0.0.1 with an ephemeral port.
func NewServer(config Config) (*Server, error) {
	if config.PayloadType == 0 {
		config.PayloadType = 96
	}
	if config.Realm == "" {
		config.Realm = "lanview"
	}
	if config.FrameInterval <= 0 {
		config.FrameInterval = 33 * time.Millisecond
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config: config,
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[net.Conn]struct{}),
	}

	if config.TLS {
		cert, leaf, err := generateCertificate()
		if err != nil {
			cancel()
			ln.Close()
			return nil, err
		}
		s.cert = leaf
		ln = tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{cert}})
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptConnections()

	slog.Debug("Test camera listening", "addr", ln.Addr().String(), "tls", config.TLS)
	return s, nil
}

// URL returns the camera URL for path.
func (s *Server) URL(path string) string {
	scheme := "rtsp"
	if s.config.TLS {
		scheme = "rtsps"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, s.listener.Addr().String(), path)
}

// Certificate returns the self-signed leaf, or nil without TLS.
func (s *Server) Certificate() *x509.Certificate {
	return s.cert
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []*rtsp.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*rtsp.Request(nil), s.requests...)
}

// Methods returns the method of every request received so far.
func (s *Server) Methods() []string {
	requests := s.Requests()
	methods := make([]string, len(requests))
	for i, req := range requests {
		methods[i] = req.Method
	}
	return methods
}

// DropConnections closes every open client connection.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

// Close stops the listener and all sessions
func (s *Server) Close() {
	s.cancel()
	s.listener.Close()
	s.DropConnections()
	s.wg.Wait()
}

func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.ctx.Err() != nil {
				return
			}
			slog.Error("Test camera accept failed", "err", err)
			return
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			newSession(s, conn).handleRequests()

			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}
}

func (s *Server) record(req *rtsp.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
}
