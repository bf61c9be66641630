// Package sdp extracts the parts of a session description an H.264 RTSP
// client needs: control URLs, payload type and sprop parameter sets.
package sdp

import (
	"encoding/base64"
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// ErrEmptyDescription is returned for a body with no SDP lines.
var ErrEmptyDescription = errors.New("sdp: empty session description")

// Description is the subset of a session description used to set up and
// play the video track. Optional values are nil when absent.
type Description struct {
	VideoControl   *string
	SessionControl *string
	PayloadType    *uint8
	SPS            []byte
	PPS            []byte
}

// Parse reads a session description body. Lines may end in \n or \r\n.
func Parse(body []byte) (*Description, error) {
	d := &Description{}
	inVideo := false
	lines := 0

	for _, raw := range strings.Split(string(body), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		lines++

		switch {
		case strings.HasPrefix(line, "m="):
			inVideo = hasPrefixFold(line, "m=video")
			if inVideo {
				fields := strings.Fields(line)
				if len(fields) >= 4 {
					d.PayloadType = parsePayloadType(fields[3])
				}
			}

		case strings.HasPrefix(line, "a=control:"):
			value := strings.TrimSpace(strings.TrimPrefix(line, "a=control:"))
			if inVideo {
				d.VideoControl = &value
			} else {
				d.SessionControl = &value
			}

		case inVideo && strings.HasPrefix(line, "a=rtpmap:"):
			fields := strings.Fields(strings.TrimPrefix(line, "a=rtpmap:"))
			if len(fields) >= 2 && hasPrefixFold(fields[1], "H264") {
				d.PayloadType = parsePayloadType(fields[0])
			}

		case inVideo && strings.HasPrefix(line, "a=fmtp:"):
			_, params, ok := strings.Cut(strings.TrimPrefix(line, "a=fmtp:"), " ")
			if !ok {
				continue
			}
			d.parseFormatParameters(params)
		}
	}

	if lines == 0 {
		return nil, ErrEmptyDescription
	}
	return d, nil
}

func (d *Description) parseFormatParameters(params string) {
	for _, param := range strings.Split(params, ";") {
		key, value, _ := strings.Cut(param, "=")
		if strings.TrimSpace(key) != "sprop-parameter-sets" {
			continue
		}
		sets := strings.Split(strings.TrimSpace(value), ",")
		if sps, err := base64.StdEncoding.DecodeString(sets[0]); err == nil {
			d.SPS = sps
		}
		if len(sets) > 1 {
			if pps, err := base64.StdEncoding.DecodeString(sets[1]); err == nil {
				d.PPS = pps
			}
		}
	}
}

// VideoControlURL returns the SETUP target for the video track.
func (d *Description) VideoControlURL(base *url.URL) string {
	if d.VideoControl == nil {
		return base.String()
	}
	return ResolveControl(*d.VideoControl, base)
}

// PlayURL returns the aggregate control URL used for PLAY, keepalives and
// TEARDOWN.
func (d *Description) PlayURL(base *url.URL) string {
	if d.SessionControl == nil {
		return base.String()
	}
	return ResolveControl(*d.SessionControl, base)
}

// ResolveControl resolves an a=control value against base. Absolute
// rtsp/rtsps URLs are returned as is and "*" means base itself.
func ResolveControl(control string, base *url.URL) string {
	if hasPrefixFold(control, "rtsp://") || hasPrefixFold(control, "rtsps://") {
		return control
	}
	if control == "*" {
		return base.String()
	}
	ref, err := url.Parse(control)
	if err != nil {
		return base.String()
	}
	return base.ResolveReference(ref).String()
}

func parsePayloadType(s string) *uint8 {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return nil
	}
	pt := uint8(v)
	return &pt
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
