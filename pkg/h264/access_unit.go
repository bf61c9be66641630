package h264

var startCode = []byte{0x00, 0x00, 0x00, 0x01}

// AccessUnit is the set of NAL units sharing one RTP timestamp.
type AccessUnit struct {
	NALUs     [][]byte
	Timestamp uint32
	IDR       bool
}

// Size returns the total number of NAL bytes.
func (au *AccessUnit) Size() int {
	n := 0
	for _, nal := range au.NALUs {
		n += len(nal)
	}
	return n
}

// AnnexB renders the NAL units with 4-byte start codes.
func (au *AccessUnit) AnnexB() []byte {
	return AnnexB(au.NALUs...)
}

// AnnexB joins NAL units into a start-code delimited byte stream.
func AnnexB(nalus ...[]byte) []byte {
	n := 0
	for _, nal := range nalus {
		n += len(startCode) + len(nal)
	}
	out := make([]byte, 0, n)
	for _, nal := range nalus {
		out = append(out, startCode...)
		out = append(out, nal...)
	}
	return out
}
