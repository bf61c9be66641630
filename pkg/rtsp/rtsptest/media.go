package rtsptest

import (
	"encoding/base64"
	"fmt"
	"strings"

	"lanview/pkg/h264"
)

// Fixed parameter sets for a 640x480 baseline stream.
var (
	SPS = []byte{0x67, 0x42, 0xc0, 0x1e, 0xd9, 0x00, 0xa0, 0x3d, 0xa1, 0x00, 0x00, 0x03, 0x00, 0x01, 0x00, 0x00, 0x03, 0x00, 0x3c, 0x8f, 0x16, 0x2e, 0x48}
	PPS = []byte{0x68, 0xcb, 0x83, 0xcb, 0x20}
)

// FrameDuration is the RTP timestamp step between generated frames, 30 fps
// on the 90 kHz clock.
const FrameDuration = 3000

// AccessUnit returns the NAL units of generated frame i. Every
// keyframeInterval-th frame is an IDR preceded by SPS and PPS; the IDR is
// large enough to need FU-A fragmentation.
func AccessUnit(i, keyframeInterval int) [][]byte {
	if keyframeInterval <= 0 {
		keyframeInterval = 30
	}
	if i%keyframeInterval == 0 {
		return [][]byte{SPS, PPS, slice(h264.NALTypeIDR, 0x65, 4000, i)}
	}
	return [][]byte{slice(h264.NALTypeSlice, 0x41, 600, i)}
}

func slice(nalType uint8, header byte, size, seed int) []byte {
	nal := make([]byte, size)
	nal[0] = header&0xE0 | nalType
	for j := 1; j < size; j++ {
		nal[j] = byte(seed + j)
	}
	return nal
}

// SessionDescription builds the DESCRIBE body for one H.264 video track.
func SessionDescription(payloadType uint8, control string, sps, pps []byte) string {
	lines := []string{
		"v=0",
		"o=- 0 0 IN IP4 127.0.0.1",
		"s=lanview test camera",
		"c=IN IP4 0.0.0.0",
		"t=0 0",
		"a=control:*",
		fmt.Sprintf("m=video 0 RTP/AVP %d", payloadType),
		fmt.Sprintf("a=rtpmap:%d H264/90000", payloadType),
	}
	if sps != nil && pps != nil {
		lines = append(lines, fmt.Sprintf("a=fmtp:%d packetization-mode=1;sprop-parameter-sets=%s,%s",
			payloadType,
			base64.StdEncoding.EncodeToString(sps),
			base64.StdEncoding.EncodeToString(pps)))
	}
	lines = append(lines, "a=control:"+control)
	return strings.Join(lines, "\r\n") + "\r\n"
}
