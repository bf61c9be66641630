package rtsp

import (
	"time"

	"lanview/pkg/h264"
)

// ParameterSetsReceived carries a new SPS/PPS pair, from the session
// description or from the stream.
type ParameterSetsReceived struct {
	SPS []byte
	PPS []byte
}

// FrameReceived carries one access unit and its presentation time relative
// to the first frame of the session.
type FrameReceived struct {
	AccessUnit *h264.AccessUnit
	PTS        time.Duration
}

// StateChanged reports a connection state transition
type StateChanged struct {
	State State
}

// ErrorOccurred reports a connection failure or a failed keepalive.
type ErrorOccurred struct {
	Err error
}
