package rtp

import "time"

// ClockRateH264 is the RTP clock rate for H.264 video.
const ClockRateH264 = 90000

// TimeMapper converts 90 kHz RTP timestamps into presentation times
// relative to the first timestamp it observes.
type TimeMapper struct {
	anchor   uint32
	anchored bool
}

// Ticks returns the wraparound-safe distance from the anchor in 90 kHz
// ticks, anchoring on the first call.
func (m *TimeMapper) Ticks(timestamp uint32) uint32 {
	if !m.anchored {
		m.anchor = timestamp
		m.anchored = true
	}
	return timestamp - m.anchor
}

// PTS returns the presentation time of timestamp.
func (m *TimeMapper) PTS(timestamp uint32) time.Duration {
	return time.Duration(m.Ticks(timestamp)) * time.Second / ClockRateH264
}

// Seconds is PTS expressed in seconds.
func (m *TimeMapper) Seconds(timestamp uint32) float64 {
	return float64(m.Ticks(timestamp)) / ClockRateH264
}

// Reset forgets the anchor so the next timestamp restarts near zero.
func (m *TimeMapper) Reset() {
	m.anchor = 0
	m.anchored = false
}
