package rtp

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// InterleavedMarker prefixes every RTP/RTCP frame carried inside an RTSP
// TCP connection.
const InterleavedMarker = 0x24

// Sender writes RTP packets for one SSRC as interleaved frames.
type Sender struct {
	SSRC           uint32
	channel        uint8
	payloadType    uint8
	sequenceNumber uint16
	w              io.Writer
	mu             sync.Mutex
}

// NewSender creates a sender that starts numbering at firstSequence.
func NewSender(w io.Writer, channel uint8, ssrc uint32, payloadType uint8, firstSequence uint16) *Sender {
	return &Sender{
		SSRC:           ssrc,
		channel:        channel,
		payloadType:    payloadType,
		sequenceNumber: firstSequence,
		w:              w,
	}
}

// Send writes one packet and advances the sequence number.
func (s *Sender) Send(payload []byte, timestamp uint32, marker bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	packet := Packet{
		PayloadType:    s.payloadType,
		Marker:         marker,
		SequenceNumber: s.sequenceNumber,
		Timestamp:      timestamp,
		SSRC:           s.SSRC,
		Payload:        payload,
	}
	data, err := packet.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal RTP packet: %w", err)
	}

	if err := WriteInterleaved(s.w, s.channel, data); err != nil {
		return fmt.Errorf("failed to send RTP packet: %w", err)
	}

	slog.Debug("RTP packet sent", "ssrc", s.SSRC, "seq", s.sequenceNumber, "ts", timestamp, "size", len(data))
	s.sequenceNumber++
	return nil
}

// Skip advances the sequence number without sending, which produces a
// gap on the receiving side.
func (s *Sender) Skip(n uint16) {
	s.mu.Lock()
	s.sequenceNumber += n
	s.mu.Unlock()
}

// WriteInterleaved frames payload as $<channel><length><payload>.
func WriteInterleaved(w io.Writer, channel uint8, payload []byte) error {
	if len(payload) > MaxRTPPacketSize {
		return fmt.Errorf("interleaved payload too large: %d bytes", len(payload))
	}
	frame := make([]byte, 4+len(payload))
	frame[0] = InterleavedMarker
	frame[1] = channel
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(payload)))
	copy(frame[4:], payload)
	_, err := w.Write(frame)
	return err
}
