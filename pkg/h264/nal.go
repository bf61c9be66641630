// Package h264 reassembles H.264 access units from RTP payloads
// packetized per RFC 6184, and produces such payloads.
package h264

// NAL unit types as defined in ITU-T H.264 Table 7-1, plus the RFC 6184
// aggregation and fragmentation types.
const (
	NALTypeSlice = 1
	NALTypeIDR   = 5
	NALTypeSEI   = 6
	NALTypeSPS   = 7
	NALTypePPS   = 8
	NALTypeAUD   = 9
	NALTypeSTAPA = 24
	NALTypeFUA   = 28
)

// NALType returns the low five bits of the NAL header byte.
func NALType(nal []byte) uint8 {
	if len(nal) == 0 {
		return 0
	}
	return nal[0] & 0x1F
}
