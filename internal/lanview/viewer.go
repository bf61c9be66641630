package lanview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"lanview/pkg/rtsp"
)

const stopTimeout = 5 * time.Second

// Stats counts what the viewer has consumed.
type Stats struct {
	Sessions   int
	Reconnects int
	Frames     int
	Keyframes  int
	Bytes      int64
	LastPTS    time.Duration
}

// Viewer keeps one camera session playing: it starts the RTSP client,
// feeds its events to a sink and reconnects after connection failures.
type Viewer struct {
	config *Config
	client *rtsp.Client
	sink   FrameSink
	ticker *time.Ticker
	// failed is signalled by the event loop when the connection drops.
	failed chan error

	mu    sync.Mutex
	stats Stats
	runID string
}

// NewViewer creates a viewer. sink may be nil.
func NewViewer(config *Config, sink FrameSink) *Viewer {
	return &Viewer{
		config: config,
		client: rtsp.NewClient(config.ClientConfig()),
		sink:   sink,
		failed: make(chan error, 1),
	}
}

// Run plays the camera until ctx is cancelled.
func (v *Viewer) Run(ctx context.Context) error {
	v.ticker = time.NewTicker(30 * time.Second)
	defer v.ticker.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return v.eventLoop(ctx) })
	g.Go(func() error { return v.superviseLoop(ctx) })
	return g.Wait()
}

// Stats returns a snapshot of the counters
func (v *Viewer) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

// Client returns the underlying RTSP client
func (v *Viewer) Client() *rtsp.Client {
	return v.client
}

func (v *Viewer) superviseLoop(ctx context.Context) error {
	defer v.stopClient()

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			v.mu.Lock()
			v.stats.Reconnects++
			v.mu.Unlock()

			select {
			case <-time.After(v.config.Viewer.ReconnectDelay):
			case <-ctx.Done():
				return nil
			}
		}

		// Discard a failure left over from the previous session.
		select {
		case <-v.failed:
		default:
		}

		if err := v.startSession(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("Camera session failed to start", "runId", v.currentRunID(), "attempt", attempt+1, "err", err)
			v.stopClient()
			continue
		}

		select {
		case err := <-v.failed:
			slog.Warn("Camera session lost, reconnecting", "runId", v.currentRunID(), "err", err,
				"delay", v.config.Viewer.ReconnectDelay)
			v.stopClient()
		case <-ctx.Done():
			return nil
		}
	}
}

func (v *Viewer) startSession(ctx context.Context) error {
	runID := uuid.NewString()
	v.mu.Lock()
	v.runID = runID
	v.mu.Unlock()

	startCtx, cancel := context.WithTimeout(ctx, v.config.Viewer.StartTimeout)
	defer cancel()

	info, err := v.client.Start(startCtx, v.config.Camera.URL)
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.stats.Sessions++
	v.mu.Unlock()

	slog.Info("Camera session started", "runId", runID, "playUrl", info.PlayURL,
		"sessionId", info.SessionID, "timeout", info.Timeout, "rtpChannel", info.RTPChannel)
	return nil
}

func (v *Viewer) stopClient() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := v.client.Stop(ctx); err != nil {
		slog.Warn("Failed to stop camera session", "err", err)
	}
}

func (v *Viewer) eventLoop(ctx context.Context) error {
	for {
		select {
		case event := <-v.client.Events():
			if err := v.handleEvent(event); err != nil {
				return err
			}
		case <-v.ticker.C:
			stats := v.Stats()
			slog.Info("Viewer stats", "runId", v.currentRunID(), "frames", stats.Frames,
				"keyframes", stats.Keyframes, "bytes", stats.Bytes, "reconnects", stats.Reconnects)
		case <-ctx.Done():
			return nil
		}
	}
}

func (v *Viewer) handleEvent(event interface{}) error {
	switch e := event.(type) {
	case rtsp.ParameterSetsReceived:
		slog.Info("Parameter sets received", "spsSize", len(e.SPS), "ppsSize", len(e.PPS))
		if v.sink != nil {
			v.sink.SetParameterSets(e.SPS, e.PPS)
		}
	case rtsp.FrameReceived:
		return v.handleFrame(e)
	case rtsp.StateChanged:
		slog.Debug("Camera state changed", "runId", v.currentRunID(), "state", e.State.String())
	case rtsp.ErrorOccurred:
		v.handleError(e.Err)
	default:
		slog.Warn("Unknown viewer event type", "eventType", fmt.Sprintf("%T", e))
	}
	return nil
}

func (v *Viewer) handleFrame(frame rtsp.FrameReceived) error {
	au := frame.AccessUnit

	v.mu.Lock()
	v.stats.Frames++
	if au.IDR {
		v.stats.Keyframes++
	}
	v.stats.Bytes += int64(au.Size())
	v.stats.LastPTS = frame.PTS
	v.mu.Unlock()

	if v.sink == nil {
		return nil
	}
	if err := v.sink.WriteAccessUnit(au); err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	return nil
}

func (v *Viewer) handleError(err error) {
	if !errors.Is(err, rtsp.ErrConnectionFailed) {
		// Keepalive failures leave the session up.
		slog.Warn("Camera session error", "runId", v.currentRunID(), "err", err)
		return
	}
	select {
	case v.failed <- err:
	default:
	}
}

func (v *Viewer) currentRunID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.runID
}
