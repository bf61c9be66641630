package rtp

import (
	"encoding/binary"
	"fmt"
)

// Constants for RTP
const (
	Version          = 2
	MinRTPHeaderSize = 12     // Minimum RTP header size in bytes
	MaxRTPPacketSize = 0xFFFF // Largest packet an interleaved frame can carry
)

// Common payload types
const (
	PayloadTypeH264 = 96 // H.264 (dynamic)
)

// Packet represents a parsed RTP packet. Payload has CSRCs, header
// extension and padding removed.
type Packet struct {
	PayloadType    uint8
	Marker         bool
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	Payload        []byte
}

// Parse decodes one RTP packet from data. It returns false when the data is
// too short, the version is not 2, or any length field underflows.
// The returned payload aliases data.
func Parse(data []byte) (Packet, bool) {
	if len(data) < MinRTPHeaderSize {
		return Packet{}, false
	}

	// First byte: V(2) + P(1) + X(1) + CC(4)
	firstByte := data[0]
	if firstByte>>6 != Version {
		return Packet{}, false
	}
	padding := firstByte&0x20 != 0
	extension := firstByte&0x10 != 0
	csrcCount := int(firstByte & 0x0F)

	// Second byte: M(1) + PT(7)
	secondByte := data[1]

	p := Packet{
		Marker:         secondByte&0x80 != 0,
		PayloadType:    secondByte & 0x7F,
		SequenceNumber: binary.BigEndian.Uint16(data[2:4]),
		Timestamp:      binary.BigEndian.Uint32(data[4:8]),
		SSRC:           binary.BigEndian.Uint32(data[8:12]),
	}

	offset := MinRTPHeaderSize + 4*csrcCount
	if extension {
		if len(data) < offset+4 {
			return Packet{}, false
		}
		extensionLength := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		offset += 4 + 4*extensionLength
	}
	if len(data) < offset {
		return Packet{}, false
	}

	end := len(data)
	if padding && end > offset {
		end -= int(data[end-1])
		if end < offset {
			end = offset
		}
	}

	p.Payload = data[offset:end]
	return p, true
}

// Marshal serializes the packet with a fixed 12-byte header
func (p Packet) Marshal() ([]byte, error) {
	totalSize := MinRTPHeaderSize + len(p.Payload)
	if totalSize > MaxRTPPacketSize {
		return nil, fmt.Errorf("RTP packet too large: %d bytes (max: %d)", totalSize, MaxRTPPacketSize)
	}

	buf := make([]byte, totalSize)
	buf[0] = Version << 6
	buf[1] = (boolToBit(p.Marker) << 7) | (p.PayloadType & 0x7F)
	binary.BigEndian.PutUint16(buf[2:4], p.SequenceNumber)
	binary.BigEndian.PutUint32(buf[4:8], p.Timestamp)
	binary.BigEndian.PutUint32(buf[8:12], p.SSRC)
	copy(buf[MinRTPHeaderSize:], p.Payload)

	return buf, nil
}

// String returns a string representation of the RTP packet
func (p Packet) String() string {
	return fmt.Sprintf("RTP{PT:%d M:%t Seq:%d TS:%d SSRC:%d PayloadLen:%d}",
		p.PayloadType,
		p.Marker,
		p.SequenceNumber,
		p.Timestamp,
		p.SSRC,
		len(p.Payload))
}

// boolToBit converts boolean to bit (0 or 1)
func boolToBit(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
