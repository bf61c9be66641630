package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRunSimulatedCamera(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.h264")
	configPath := filepath.Join(dir, "config.yaml")
	config := "camera:\n  url: rtsps://127.0.0.1/live\nviewer:\n  output: " + output + "\nlogging:\n  level: warn\n"
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := run(ctx, configPath, true); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte{0x00, 0x00, 0x00, 0x01, 0x67}) {
		t.Errorf("Expected the output to start with an SPS, got %d bytes", len(data))
	}
}

func TestRunWithoutOutput(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("camera:\n  url: rtsp://127.0.0.1/live\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := run(ctx, configPath, true); err != nil {
		t.Errorf("run failed: %v", err)
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	if err := run(context.Background(), filepath.Join(dir, "missing.yaml"), false); err == nil {
		t.Error("Expected an error for a missing config")
	}

	configPath := filepath.Join(dir, "config.yaml")
	config := "camera:\n  url: rtsp://127.0.0.1/live\nviewer:\n  output: " + filepath.Join(dir, "no", "such", "dir.h264") + "\n"
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := run(context.Background(), configPath, true); err == nil {
		t.Error("Expected an error for an uncreatable output file")
	}
}
