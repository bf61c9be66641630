package rtsp_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/url"
	"slices"
	"testing"
	"time"

	"lanview/pkg/h264"
	"lanview/pkg/rtsp"
	"lanview/pkg/rtsp/rtsptest"
)

const waitTimeout = 5 * time.Second

func newCamera(t *testing.T, config rtsptest.Config) *rtsptest.Server {
	t.Helper()
	server, err := rtsptest.NewServer(config)
	if err != nil {
		t.Fatalf("Failed to start test camera: %v", err)
	}
	t.Cleanup(server.Close)
	return server
}

func newClient(t *testing.T, config rtsp.ClientConfig) *rtsp.Client {
	t.Helper()
	if config.EventBuffer == 0 {
		config.EventBuffer = 512
	}
	client := rtsp.NewClient(config)
	t.Cleanup(func() { client.Stop(context.Background()) })
	return client
}

func startContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	t.Cleanup(cancel)
	return ctx
}

// nextEvent returns the next event of type T, skipping others.
func nextEvent[T any](t *testing.T, events <-chan interface{}) T {
	t.Helper()
	timer := time.NewTimer(waitTimeout)
	defer timer.Stop()

	for {
		select {
		case ev := <-events:
			if v, ok := ev.(T); ok {
				return v
			}
		case <-timer.C:
			var zero T
			t.Fatalf("Timed out waiting for %T", zero)
			return zero
		}
	}
}

func waitForState(t *testing.T, events <-chan interface{}, want rtsp.State) {
	t.Helper()
	for {
		if ev := nextEvent[rtsp.StateChanged](t, events); ev.State == want {
			return
		}
	}
}

func TestClientPlaysStream(t *testing.T) {
	camera := newCamera(t, rtsptest.Config{Frames: 10, KeyframeInterval: 5})
	client := newClient(t, rtsp.ClientConfig{})

	info, err := client.Start(startContext(t), camera.URL("stream"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if info.RTPChannel != 0 || info.RTCPChannel != 1 {
		t.Errorf("Expected default channels 0/1, got %d/%d", info.RTPChannel, info.RTCPChannel)
	}
	if info.PlayURL != camera.URL("stream") {
		t.Errorf("Expected play URL %s, got %s", camera.URL("stream"), info.PlayURL)
	}
	if info.SessionID == "" {
		t.Error("Expected a session id")
	}
	if info.Description.PayloadType == nil || *info.Description.PayloadType != 96 {
		t.Errorf("Unexpected payload type %v", info.Description.PayloadType)
	}
	if client.State() != rtsp.StatePlaying {
		t.Errorf("Expected Playing, got %s", client.State())
	}

	events := client.Events()
	params := nextEvent[rtsp.ParameterSetsReceived](t, events)
	if !bytes.Equal(params.SPS, rtsptest.SPS) || !bytes.Equal(params.PPS, rtsptest.PPS) {
		t.Error("Expected SDP parameter sets first")
	}

	var frames []rtsp.FrameReceived
	for len(frames) < 10 {
		select {
		case ev := <-events:
			switch e := ev.(type) {
			case rtsp.FrameReceived:
				frames = append(frames, e)
			case rtsp.ParameterSetsReceived:
				t.Error("Expected identical in-band parameter sets to be suppressed")
			}
		case <-time.After(waitTimeout):
			t.Fatalf("Timed out after %d frames", len(frames))
		}
	}

	first := frames[0]
	if !first.AccessUnit.IDR || first.PTS != 0 {
		t.Errorf("Expected first frame to be an IDR at PTS 0, got IDR=%t PTS=%v", first.AccessUnit.IDR, first.PTS)
	}
	if len(first.AccessUnit.NALUs) != 3 {
		t.Fatalf("Expected SPS, PPS and IDR in the first frame, got %d NALUs", len(first.AccessUnit.NALUs))
	}
	if !bytes.Equal(first.AccessUnit.NALUs[2], rtsptest.AccessUnit(0, 5)[2]) {
		t.Error("Expected the fragmented IDR to be reassembled exactly")
	}

	for i, frame := range frames {
		want := time.Duration(i*rtsptest.FrameDuration) * time.Second / 90000
		if frame.PTS != want {
			t.Errorf("Frame %d: expected PTS %v, got %v", i, want, frame.PTS)
		}
		if frame.AccessUnit.IDR != (i%5 == 0) {
			t.Errorf("Frame %d: unexpected IDR flag %t", i, frame.AccessUnit.IDR)
		}
	}

	if err := client.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if client.State() != rtsp.StateStopped {
		t.Errorf("Expected Stopped, got %s", client.State())
	}

	want := []string{rtsp.MethodDescribe, rtsp.MethodSetup, rtsp.MethodPlay, rtsp.MethodTeardown}
	if got := camera.Methods(); !slices.Equal(got, want) {
		t.Errorf("Expected requests %v, got %v", want, got)
	}
}

func TestClientRequestHeaders(t *testing.T) {
	camera := newCamera(t, rtsptest.Config{Frames: 1, SessionTimeout: 60 * time.Second})
	client := newClient(t, rtsp.ClientConfig{UserAgent: "cam-test/2.0"})

	info, err := client.Start(startContext(t), camera.URL("live"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if info.Timeout != 60*time.Second {
		t.Errorf("Expected 60s timeout, got %v", info.Timeout)
	}

	requests := camera.Requests()
	if len(requests) != 3 {
		t.Fatalf("Expected 3 requests, got %d", len(requests))
	}
	for i, req := range requests {
		if req.CSeq != i+1 {
			t.Errorf("Request %d: expected CSeq %d, got %d", i, i+1, req.CSeq)
		}
		if req.GetHeader(rtsp.HeaderUserAgent) != "cam-test/2.0" {
			t.Errorf("Request %d: unexpected User-Agent %q", i, req.GetHeader(rtsp.HeaderUserAgent))
		}
	}

	describe, setup, play := requests[0], requests[1], requests[2]
	if describe.GetHeader(rtsp.HeaderAccept) != "application/sdp" {
		t.Error("Expected DESCRIBE to accept application/sdp")
	}
	if describe.GetHeader(rtsp.HeaderSession) != "" {
		t.Error("Expected no Session header on DESCRIBE")
	}
	if setup.GetHeader(rtsp.HeaderTransport) != rtsp.TransportInterleave {
		t.Errorf("Unexpected Transport %q", setup.GetHeader(rtsp.HeaderTransport))
	}
	if play.GetHeader(rtsp.HeaderRange) != "npt=0-" {
		t.Errorf("Unexpected Range %q", play.GetHeader(rtsp.HeaderRange))
	}
	if play.GetHeader(rtsp.HeaderSession) != info.SessionID {
		t.Errorf("Expected Session %q on PLAY, got %q", info.SessionID, play.GetHeader(rtsp.HeaderSession))
	}

	// Relative control resolves against the request URL's directory.
	base, _ := url.Parse(camera.URL("live"))
	if want := "rtsp://" + base.Host + "/trackID=1"; info.SetupURL != want {
		t.Errorf("Expected setup URL %s, got %s", want, info.SetupURL)
	}
}

func TestClientContentBase(t *testing.T) {
	camera := newCamera(t, rtsptest.Config{Frames: 1, ContentBase: "rtsp://127.0.0.1/stream/"})
	client := newClient(t, rtsp.ClientConfig{})

	info, err := client.Start(startContext(t), camera.URL("stream"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Content-Base has no port; the request URL's port fills it in.
	u, _ := url.Parse(camera.URL("stream"))
	if want := "rtsp://127.0.0.1:" + u.Port() + "/stream/trackID=1"; info.SetupURL != want {
		t.Errorf("Expected setup URL %s, got %s", want, info.SetupURL)
	}
	if want := "rtsp://127.0.0.1:" + u.Port() + "/stream/"; info.PlayURL != want {
		t.Errorf("Expected play URL %s, got %s", want, info.PlayURL)
	}
}

func TestClientDigestAuth(t *testing.T) {
	for _, qop := range []bool{false, true} {
		camera := newCamera(t, rtsptest.Config{Username: "admin", Password: "s3cret", Qop: qop, Frames: 1})
		client := newClient(t, rtsp.ClientConfig{})

		u, _ := url.Parse(camera.URL("stream"))
		u.User = url.UserPassword("admin", "s3cret")

		info, err := client.Start(startContext(t), u.String())
		if err != nil {
			t.Fatalf("qop=%t: Start failed: %v", qop, err)
		}
		if info.PlayURL != camera.URL("stream") {
			t.Errorf("qop=%t: expected userinfo stripped from %s", qop, info.PlayURL)
		}

		want := []string{rtsp.MethodDescribe, rtsp.MethodDescribe, rtsp.MethodSetup, rtsp.MethodPlay}
		if got := camera.Methods(); !slices.Equal(got, want) {
			t.Errorf("qop=%t: expected requests %v, got %v", qop, want, got)
		}

		requests := camera.Requests()
		if requests[1].CSeq == requests[0].CSeq {
			t.Errorf("qop=%t: expected a fresh CSeq on the retry", qop)
		}
	}
}

func TestClientCredentialsOverrideURL(t *testing.T) {
	camera := newCamera(t, rtsptest.Config{Username: "admin", Password: "right", Frames: 1})
	client := newClient(t, rtsp.ClientConfig{
		Credentials: &rtsp.Credentials{Username: "admin", Password: "right"},
	})

	u, _ := url.Parse(camera.URL("stream"))
	u.User = url.UserPassword("admin", "wrong")

	if _, err := client.Start(startContext(t), u.String()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
}

func TestClientAuthFailure(t *testing.T) {
	camera := newCamera(t, rtsptest.Config{Username: "admin", Password: "right"})
	client := newClient(t, rtsp.ClientConfig{
		Credentials: &rtsp.Credentials{Username: "admin", Password: "wrong"},
	})

	_, err := client.Start(startContext(t), camera.URL("stream"))
	var reqErr *rtsp.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Expected RequestError, got %v", err)
	}
	if reqErr.Method != rtsp.MethodDescribe || reqErr.StatusCode != rtsp.StatusUnauthorized {
		t.Errorf("Unexpected error %+v", reqErr)
	}

	// One original attempt plus exactly one retry.
	if got := camera.Methods(); len(got) != 2 {
		t.Errorf("Expected 2 DESCRIBE attempts, got %v", got)
	}
	if client.State() != rtsp.StateFailed {
		t.Errorf("Expected Failed, got %s", client.State())
	}
}

func TestClientNoCredentials401(t *testing.T) {
	camera := newCamera(t, rtsptest.Config{Username: "admin", Password: "right"})
	client := newClient(t, rtsp.ClientConfig{})

	_, err := client.Start(startContext(t), camera.URL("stream"))
	var reqErr *rtsp.RequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != rtsp.StatusUnauthorized {
		t.Fatalf("Expected 401 RequestError, got %v", err)
	}
	if got := camera.Methods(); len(got) != 1 {
		t.Errorf("Expected no retry without credentials, got %v", got)
	}
}

func TestClientSetupFailure(t *testing.T) {
	camera := newCamera(t, rtsptest.Config{Status: map[string]int{rtsp.MethodSetup: rtsp.StatusUnsupportedTransport}})
	client := newClient(t, rtsp.ClientConfig{})

	_, err := client.Start(startContext(t), camera.URL("stream"))
	var reqErr *rtsp.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Expected RequestError, got %v", err)
	}
	if reqErr.Method != rtsp.MethodSetup || reqErr.StatusCode != 461 {
		t.Errorf("Unexpected error %+v", reqErr)
	}
}

func TestClientCustomChannels(t *testing.T) {
	camera := newCamera(t, rtsptest.Config{
		Transport: "RTP/AVP/TCP;unicast;interleaved=2-3",
		Frames:    3,
	})
	client := newClient(t, rtsp.ClientConfig{})

	info, err := client.Start(startContext(t), camera.URL("stream"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if info.RTPChannel != 2 || info.RTCPChannel != 3 {
		t.Errorf("Expected channels 2/3, got %d/%d", info.RTPChannel, info.RTCPChannel)
	}

	for i := 0; i < 3; i++ {
		frame := nextEvent[rtsp.FrameReceived](t, client.Events())
		if frame.AccessUnit.Size() == 0 {
			t.Errorf("Frame %d is empty", i)
		}
	}
}

func TestClientInBandParameterSets(t *testing.T) {
	camera := newCamera(t, rtsptest.Config{OmitParameterSets: true, Frames: 2, KeyframeInterval: 1})
	client := newClient(t, rtsp.ClientConfig{})

	info, err := client.Start(startContext(t), camera.URL("stream"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if info.Description.SPS != nil {
		t.Error("Expected no SDP parameter sets")
	}

	params := nextEvent[rtsp.ParameterSetsReceived](t, client.Events())
	if !bytes.Equal(params.SPS, rtsptest.SPS) || !bytes.Equal(params.PPS, rtsptest.PPS) {
		t.Error("Expected in-band parameter sets")
	}
	frame := nextEvent[rtsp.FrameReceived](t, client.Events())
	if h264.NALType(frame.AccessUnit.NALUs[0]) != h264.NALTypeSPS {
		t.Error("Expected the access unit to carry its parameter sets")
	}
}

func TestClientTLS(t *testing.T) {
	camera := newCamera(t, rtsptest.Config{TLS: true, Frames: 1})

	t.Run("trust all", func(t *testing.T) {
		client := newClient(t, rtsp.ClientConfig{Trust: rtsp.TrustAll})
		if _, err := client.Start(startContext(t), camera.URL("stream")); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
	})

	t.Run("pinned", func(t *testing.T) {
		pin := rtsp.Fingerprint(camera.Certificate())
		client := newClient(t, rtsp.ClientConfig{Trust: rtsp.PinSHA256(pin)})
		if _, err := client.Start(startContext(t), camera.URL("stream")); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
	})

	t.Run("denied", func(t *testing.T) {
		client := newClient(t, rtsp.ClientConfig{Trust: rtsp.PinSHA256("00")})
		_, err := client.Start(startContext(t), camera.URL("stream"))
		if !errors.Is(err, rtsp.ErrConnectionFailed) {
			t.Fatalf("Expected ErrConnectionFailed, got %v", err)
		}
		if client.State() != rtsp.StateFailed {
			t.Errorf("Expected Failed, got %s", client.State())
		}
	})

	t.Run("system roots", func(t *testing.T) {
		client := newClient(t, rtsp.ClientConfig{})
		if _, err := client.Start(startContext(t), camera.URL("stream")); !errors.Is(err, rtsp.ErrConnectionFailed) {
			t.Fatalf("Expected self-signed certificate to fail verification, got %v", err)
		}
	})
}

func TestClientKeepalive(t *testing.T) {
	camera := newCamera(t, rtsptest.Config{SessionTimeout: 2 * time.Second, Frames: 1})
	client := newClient(t, rtsp.ClientConfig{})

	if _, err := client.Start(startContext(t), camera.URL("stream")); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if slices.Contains(camera.Methods(), rtsp.MethodOptions) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	requests := camera.Requests()
	last := requests[len(requests)-1]
	if last.Method != rtsp.MethodOptions {
		t.Fatalf("Expected a keepalive OPTIONS, got %v", camera.Methods())
	}
	if last.GetHeader(rtsp.HeaderSession) == "" {
		t.Error("Expected the keepalive to carry the session id")
	}
}

func TestClientOptions(t *testing.T) {
	camera := newCamera(t, rtsptest.Config{Frames: 1})
	client := newClient(t, rtsp.ClientConfig{})

	if _, err := client.Options(context.Background()); !errors.Is(err, rtsp.ErrNotConnected) {
		t.Fatalf("Expected ErrNotConnected before Start, got %v", err)
	}

	if _, err := client.Start(startContext(t), camera.URL("stream")); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	resp, err := client.Options(startContext(t))
	if err != nil {
		t.Fatalf("Options failed: %v", err)
	}
	if resp.Get(rtsp.HeaderPublic) == "" {
		t.Error("Expected a Public header")
	}

	client.Stop(context.Background())
	if _, err := client.Options(context.Background()); !errors.Is(err, rtsp.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected after Stop, got %v", err)
	}
}

func TestClientConnectionLost(t *testing.T) {
	camera := newCamera(t, rtsptest.Config{Frames: 2, CloseAfterFrames: true})
	client := newClient(t, rtsp.ClientConfig{})

	if _, err := client.Start(startContext(t), camera.URL("stream")); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	failure := nextEvent[rtsp.ErrorOccurred](t, client.Events())
	if !errors.Is(failure.Err, rtsp.ErrConnectionFailed) {
		t.Errorf("Expected ErrConnectionFailed, got %v", failure.Err)
	}
	waitForState(t, client.Events(), rtsp.StateFailed)

	if _, err := client.Options(context.Background()); !errors.Is(err, rtsp.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected after failure, got %v", err)
	}
}

func TestClientStopFailsPendingRequest(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer ln.Close()

	received := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 1024)
		if _, err := conn.Read(buf); err == nil {
			close(received)
		}
		// Never answer.
		conn.Read(buf)
	}()

	client := newClient(t, rtsp.ClientConfig{})
	result := make(chan error, 1)
	go func() {
		_, err := client.Start(context.Background(), "rtsp://"+ln.Addr().String()+"/stream")
		result <- err
	}()

	select {
	case <-received:
	case <-time.After(waitTimeout):
		t.Fatal("Timed out waiting for DESCRIBE")
	}

	client.Stop(context.Background())

	select {
	case err := <-result:
		if !errors.Is(err, rtsp.ErrConnectionClosed) {
			t.Errorf("Expected ErrConnectionClosed, got %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Start did not return after Stop")
	}
	if client.State() != rtsp.StateStopped {
		t.Errorf("Expected Stopped, got %s", client.State())
	}
}

func TestClientStartErrors(t *testing.T) {
	client := newClient(t, rtsp.ClientConfig{DialTimeout: time.Second})

	if _, err := client.Start(context.Background(), "http://cam/stream"); !errors.Is(err, rtsp.ErrInvalidURL) {
		t.Errorf("Expected ErrInvalidURL, got %v", err)
	}

	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	addr := ln.Addr().String()
	ln.Close()

	if _, err := client.Start(context.Background(), "rtsp://"+addr+"/stream"); !errors.Is(err, rtsp.ErrConnectionFailed) {
		t.Errorf("Expected ErrConnectionFailed, got %v", err)
	}
	if client.State() != rtsp.StateFailed {
		t.Errorf("Expected Failed, got %s", client.State())
	}
}

func TestClientReportsFailureToSlowConsumer(t *testing.T) {
	camera := newCamera(t, rtsptest.Config{
		Frames:           20,
		FrameInterval:    2 * time.Millisecond,
		CloseAfterFrames: true,
	})
	client := newClient(t, rtsp.ClientConfig{EventBuffer: 4})

	type summary struct {
		frames   int
		failures int
		failed   bool
		ordered  bool
	}
	result := make(chan summary, 1)
	go func() {
		var s summary
		deadline := time.After(10 * time.Second)
		for {
			select {
			case ev := <-client.Events():
				switch e := ev.(type) {
				case rtsp.FrameReceived:
					s.frames++
				case rtsp.ErrorOccurred:
					if errors.Is(e.Err, rtsp.ErrConnectionFailed) {
						s.failures++
					}
				case rtsp.StateChanged:
					if e.State == rtsp.StateFailed {
						s.failed = true
						s.ordered = s.failures == 1
						result <- s
						return
					}
				}
			case <-deadline:
				result <- s
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
	}()

	if _, err := client.Start(startContext(t), camera.URL("stream")); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	s := <-result
	if s.frames != 20 {
		t.Errorf("Expected 20 frames, got %d", s.frames)
	}
	if s.failures != 1 {
		t.Errorf("Expected the connection failure exactly once, got %d", s.failures)
	}
	if !s.failed || !s.ordered {
		t.Errorf("Expected StateChanged{Failed} after the error, got failed=%t ordered=%t", s.failed, s.ordered)
	}
	if client.State() != rtsp.StateFailed {
		t.Errorf("Expected Failed, got %s", client.State())
	}
}

func TestClientStopWhileFailureUndelivered(t *testing.T) {
	camera := newCamera(t, rtsptest.Config{Frames: 5, CloseAfterFrames: true})
	client := newClient(t, rtsp.ClientConfig{EventBuffer: 1})

	if _, err := client.Start(startContext(t), camera.URL("stream")); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// Nobody drains, so the connection blocks on frame delivery and then on
	// reporting its failure.
	time.Sleep(300 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		client.Stop(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("Stop blocked on an undrained event channel")
	}
	if client.State() != rtsp.StateStopped {
		t.Errorf("Expected Stopped, got %s", client.State())
	}
}

func TestClientStartWithoutConsumer(t *testing.T) {
	camera := newCamera(t, rtsptest.Config{Frames: 3})
	client := newClient(t, rtsp.ClientConfig{EventBuffer: 1})

	if _, err := client.Start(startContext(t), camera.URL("stream")); err != nil {
		t.Fatalf("Start failed without a concurrent consumer: %v", err)
	}

	var first interface{}
	for first == nil {
		select {
		case ev := <-client.Events():
			if _, ok := ev.(rtsp.StateChanged); !ok {
				first = ev
			}
		case <-time.After(waitTimeout):
			t.Fatal("Timed out waiting for media events")
		}
	}
	params, ok := first.(rtsp.ParameterSetsReceived)
	if !ok {
		t.Fatalf("Expected parameter sets before any frame, got %T", first)
	}
	if !bytes.Equal(params.SPS, rtsptest.SPS) || !bytes.Equal(params.PPS, rtsptest.PPS) {
		t.Error("Expected the parameter sets from the session description")
	}
	nextEvent[rtsp.FrameReceived](t, client.Events())
}

func TestClientStopBoundsTeardown(t *testing.T) {
	camera := newCamera(t, rtsptest.Config{Unanswered: []string{rtsp.MethodTeardown}})
	client := newClient(t, rtsp.ClientConfig{})

	if _, err := client.Start(startContext(t), camera.URL("stream")); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := make(chan error, 1)
	started := time.Now()
	go func() { done <- client.Stop(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Stop waited on an unanswered TEARDOWN")
	}
	if elapsed := time.Since(started); elapsed > 4*time.Second {
		t.Errorf("Stop took %v", elapsed)
	}
	if client.State() != rtsp.StateStopped {
		t.Errorf("Expected Stopped, got %s", client.State())
	}
	if !slices.Contains(camera.Methods(), rtsp.MethodTeardown) {
		t.Error("Expected TEARDOWN to be sent")
	}
}

func TestClientIgnoresForeignPackets(t *testing.T) {
	camera := newCamera(t, rtsptest.Config{Frames: 6, KeyframeInterval: 3, StrayPackets: true})
	client := newClient(t, rtsp.ClientConfig{})

	if _, err := client.Start(startContext(t), camera.URL("stream")); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 6; i++ {
		frame := nextEvent[rtsp.FrameReceived](t, client.Events())
		want := rtsptest.AccessUnit(i, 3)
		if !slices.EqualFunc(frame.AccessUnit.NALUs, want, bytes.Equal) {
			t.Errorf("Frame %d: expected %d NALUs from the video track only, got %d",
				i, len(want), len(frame.AccessUnit.NALUs))
		}
	}
}
