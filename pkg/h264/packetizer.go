package h264

import "encoding/binary"

// DefaultMTU is the largest RTP payload the packetizer produces by default.
const DefaultMTU = 1400

// Packetizer splits access units into RTP payloads: NALs that fit go out
// as single NAL packets, larger ones as FU-A fragments. With Aggregate set,
// runs of small NALs are combined into STAP-A packets.
type Packetizer struct {
	MTU       int
	Aggregate bool
}

// Packetize returns the RTP payloads for one access unit in send order.
// The marker bit belongs on the last one.
func (p *Packetizer) Packetize(nalus [][]byte) [][]byte {
	mtu := p.MTU
	if mtu <= 2 {
		mtu = DefaultMTU
	}

	var payloads [][]byte
	var stap [][]byte
	stapSize := 1

	flushSTAP := func() {
		switch len(stap) {
		case 0:
		case 1:
			payloads = append(payloads, stap[0])
		default:
			payloads = append(payloads, buildSTAPA(stap))
		}
		stap = nil
		stapSize = 1
	}

	for _, nal := range nalus {
		if len(nal) == 0 {
			continue
		}
		if len(nal) > mtu {
			flushSTAP()
			payloads = append(payloads, fragment(nal, mtu)...)
			continue
		}
		if !p.Aggregate {
			payloads = append(payloads, nal)
			continue
		}
		if stapSize+2+len(nal) > mtu {
			flushSTAP()
		}
		stap = append(stap, nal)
		stapSize += 2 + len(nal)
	}
	flushSTAP()

	return payloads
}

func buildSTAPA(nalus [][]byte) []byte {
	var nri byte
	out := []byte{0}
	for _, nal := range nalus {
		if n := nal[0] & 0x60; n > nri {
			nri = n
		}
		out = binary.BigEndian.AppendUint16(out, uint16(len(nal)))
		out = append(out, nal...)
	}
	out[0] = nri | NALTypeSTAPA
	return out
}

func fragment(nal []byte, mtu int) [][]byte {
	indicator := nal[0]&0xE0 | NALTypeFUA
	nalType := nal[0] & 0x1F
	data := nal[1:]
	chunk := mtu - 2

	var out [][]byte
	for first := true; len(data) > 0; first = false {
		n := min(chunk, len(data))
		header := nalType
		if first {
			header |= 0x80
		}
		if n == len(data) {
			header |= 0x40
		}
		payload := make([]byte, 0, 2+n)
		payload = append(payload, indicator, header)
		payload = append(payload, data[:n]...)
		out = append(out, payload)
		data = data[n:]
	}
	return out
}
