package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"lanview/internal/lanview"
	"lanview/pkg/rtsp"
	"lanview/pkg/rtsp/rtsptest"
)

func main() {
	configPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to the config file")
	simulate := flag.Bool("simulate", false, "play from a built-in loopback camera instead of camera.url")
	flag.Parse()

	if err := run(context.Background(), *configPath, *simulate); err != nil {
		fmt.Fprintf(os.Stderr, "lanview: %v\n", err)
		os.Exit(1)
	}
}

// run plays the configured camera until ctx is cancelled or a signal
// arrives.
func run(ctx context.Context, configPath string, simulate bool) error {
	config, err := lanview.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	lanview.InitLogger(config)

	if simulate {
		camera, err := rtsptest.NewServer(rtsptest.Config{
			TLS:            true,
			SessionTimeout: 60 * time.Second,
			Username:       "viewer",
			Password:       "simulated",
		})
		if err != nil {
			return fmt.Errorf("failed to start simulated camera: %w", err)
		}
		defer camera.Close()

		config.Camera.URL = camera.URL("live")
		config.Camera.Username = "viewer"
		config.Camera.Password = "simulated"
		config.Camera.TLSInsecure = false
		config.Camera.TLSFingerprint = rtsp.Fingerprint(camera.Certificate())
		slog.Info("Simulated camera started", "url", config.Camera.URL)
	}

	var sink lanview.FrameSink
	if path := config.Viewer.Output; path != "" {
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		sink = lanview.NewAnnexBWriter(file)
	}

	viewer := lanview.NewViewer(config, sink)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return viewer.Run(ctx)
	})
	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			slog.Info("Received signal, shutting down viewer", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		return nil
	})

	slog.Info("Viewer started", "url", config.Camera.URL, "output", config.Viewer.Output)
	if err := g.Wait(); err != nil {
		return fmt.Errorf("viewer stopped: %w", err)
	}

	stats := viewer.Stats()
	slog.Info("Viewer shutdown complete", "frames", stats.Frames, "keyframes", stats.Keyframes,
		"reconnects", stats.Reconnects)
	return nil
}
