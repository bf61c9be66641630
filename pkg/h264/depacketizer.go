package h264

import (
	"bytes"
	"encoding/binary"
	"log/slog"

	"lanview/pkg/rtp"
)

const (
	// MaxAccessUnitSize forces a flush of an access unit that grows past it.
	MaxAccessUnitSize = 8 * 1024 * 1024
	// MaxFragmentSize drops an FU-A reassembly that grows past it.
	MaxFragmentSize = 4 * 1024 * 1024
)

// Depacketizer turns RTP packets of a single H.264 stream into access
// units. It is not safe for concurrent use.
type Depacketizer struct {
	// OnParameterSets is called every time an SPS or PPS NAL is appended
	// while both are known. Deduplication is left to the callee.
	OnParameterSets func(sps, pps []byte)

	nalus        [][]byte
	size         int
	timestamp    uint32
	hasTimestamp bool

	fragment    []byte
	fragmentSeq uint16
	fragmenting bool

	sps []byte
	pps []byte
}

// NewDepacketizer creates an empty depacketizer
func NewDepacketizer() *Depacketizer {
	return &Depacketizer{}
}

// Push consumes one packet and returns the access units it completed, in
// order. A timestamp change flushes the pending unit before the packet's
// NALs are appended; a marker bit flushes after.
func (d *Depacketizer) Push(packet rtp.Packet) []*AccessUnit {
	var out []*AccessUnit

	if d.hasTimestamp && d.timestamp != packet.Timestamp && len(d.nalus) > 0 {
		out = append(out, d.flush())
	}

	for _, nal := range d.extract(packet) {
		d.append(nal, packet.Timestamp)
		if d.size >= MaxAccessUnitSize {
			slog.Warn("H.264 access unit exceeded size limit, forcing flush", "bytes", d.size)
			out = append(out, d.flush())
		}
	}

	if packet.Marker && len(d.nalus) > 0 {
		out = append(out, d.flush())
	}

	return out
}

// ParameterSets returns the most recent SPS and PPS, either of which may
// be nil.
func (d *Depacketizer) ParameterSets() (sps, pps []byte) {
	return d.sps, d.pps
}

// Reset clears the pending access unit, fragment and parameter sets.
func (d *Depacketizer) Reset() {
	d.nalus = nil
	d.size = 0
	d.timestamp = 0
	d.hasTimestamp = false
	d.dropFragment()
	d.sps = nil
	d.pps = nil
}

func (d *Depacketizer) flush() *AccessUnit {
	au := &AccessUnit{
		NALUs:     d.nalus,
		Timestamp: d.timestamp,
	}
	for _, nal := range au.NALUs {
		if NALType(nal) == NALTypeIDR {
			au.IDR = true
			break
		}
	}

	d.nalus = nil
	d.size = 0
	d.hasTimestamp = false
	return au
}

func (d *Depacketizer) append(nal []byte, timestamp uint32) {
	if !d.hasTimestamp {
		d.timestamp = timestamp
		d.hasTimestamp = true
	}

	switch NALType(nal) {
	case NALTypeSPS:
		d.sps = nal
		d.notifyParameterSets()
	case NALTypePPS:
		d.pps = nal
		d.notifyParameterSets()
	}

	d.nalus = append(d.nalus, nal)
	d.size += len(nal)
}

func (d *Depacketizer) notifyParameterSets() {
	if d.sps != nil && d.pps != nil && d.OnParameterSets != nil {
		d.OnParameterSets(d.sps, d.pps)
	}
}

func (d *Depacketizer) extract(packet rtp.Packet) [][]byte {
	payload := packet.Payload
	if len(payload) == 0 {
		return nil
	}

	switch t := NALType(payload); {
	case t >= 1 && t <= 23:
		return [][]byte{bytes.Clone(payload)}
	case t == NALTypeSTAPA:
		return extractSTAPA(payload)
	case t == NALTypeFUA:
		if nal := d.extractFUA(payload, packet.SequenceNumber); nal != nil {
			return [][]byte{nal}
		}
	}
	return nil
}

// extractSTAPA splits an aggregation packet. Trailing data too short for
// its declared size is dropped.
func extractSTAPA(payload []byte) [][]byte {
	var nalus [][]byte
	i := 1
	for i+2 <= len(payload) {
		size := int(binary.BigEndian.Uint16(payload[i : i+2]))
		i += 2
		if i+size > len(payload) {
			break
		}
		nalus = append(nalus, bytes.Clone(payload[i:i+size]))
		i += size
	}
	return nalus
}

// extractFUA feeds one fragment into the reassembly buffer and returns the
// NAL once its end fragment arrives. Any sequence gap discards the
// partial NAL.
func (d *Depacketizer) extractFUA(payload []byte, seq uint16) []byte {
	if len(payload) <= 2 {
		return nil
	}
	indicator := payload[0]
	header := payload[1]
	start := header&0x80 != 0
	end := header&0x40 != 0

	if start {
		d.fragment = make([]byte, 0, len(payload)-1)
		d.fragment = append(d.fragment, indicator&0xE0|header&0x1F)
		d.fragment = append(d.fragment, payload[2:]...)
		d.fragmentSeq = seq
		d.fragmenting = true
		return nil
	}

	if !d.fragmenting {
		return nil
	}
	if seq != d.fragmentSeq+1 {
		slog.Debug("FU-A sequence gap, dropping fragment", "expected", d.fragmentSeq+1, "got", seq)
		d.dropFragment()
		return nil
	}

	d.fragment = append(d.fragment, payload[2:]...)
	d.fragmentSeq = seq
	if len(d.fragment) > MaxFragmentSize {
		slog.Warn("FU-A fragment exceeded size limit, dropping", "bytes", len(d.fragment))
		d.dropFragment()
		return nil
	}

	if end {
		nal := d.fragment
		d.dropFragment()
		return nal
	}
	return nil
}

func (d *Depacketizer) dropFragment() {
	d.fragment = nil
	d.fragmentSeq = 0
	d.fragmenting = false
}
