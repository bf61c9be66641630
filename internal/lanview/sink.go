package lanview

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"lanview/pkg/h264"
)

// FrameSink receives decoded-order access units, standing in for the
// hardware decoder.
type FrameSink interface {
	SetParameterSets(sps, pps []byte)
	WriteAccessUnit(au *h264.AccessUnit) error
}

// AnnexBWriter writes an elementary H.264 stream playable by ffplay or
// any decoder that accepts Annex-B input. Output starts at the first IDR
// and every IDR is preceded by the current SPS and PPS.
type AnnexBWriter struct {
	w       io.Writer
	mu      sync.Mutex
	sps     []byte
	pps     []byte
	started bool
	written int64
}

// NewAnnexBWriter creates a sink writing to w
func NewAnnexBWriter(w io.Writer) *AnnexBWriter {
	return &AnnexBWriter{w: w}
}

// SetParameterSets records the parameter sets written ahead of IDRs.
func (s *AnnexBWriter) SetParameterSets(sps, pps []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started && (!bytes.Equal(sps, s.sps) || !bytes.Equal(pps, s.pps)) {
		// New parameters mean a new decoder session; wait for its IDR.
		slog.Info("Parameter sets changed, waiting for keyframe", "spsSize", len(sps), "ppsSize", len(pps))
		s.started = false
	}
	s.sps = bytes.Clone(sps)
	s.pps = bytes.Clone(pps)
}

// WriteAccessUnit writes au, or drops it while no IDR has been seen.
func (s *AnnexBWriter) WriteAccessUnit(au *h264.AccessUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		if !au.IDR {
			return nil
		}
		s.started = true
	}

	var out []byte
	if au.IDR && s.sps != nil && s.pps != nil && !hasParameterSets(au) {
		out = h264.AnnexB(s.sps, s.pps)
	}
	out = append(out, au.AnnexB()...)

	n, err := s.w.Write(out)
	s.written += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write access unit: %w", err)
	}
	return nil
}

// Written returns the number of bytes written so far.
func (s *AnnexBWriter) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

func hasParameterSets(au *h264.AccessUnit) bool {
	for _, nal := range au.NALUs {
		if h264.NALType(nal) == h264.NALTypeSPS {
			return true
		}
	}
	return false
}
