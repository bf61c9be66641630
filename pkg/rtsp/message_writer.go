package rtsp

import (
	"bufio"
	"io"
	"sync"

	"lanview/pkg/rtp"
)

// MessageWriter serializes RTSP messages and interleaved frames onto one
// connection. Writes are serialized so frames never split a message.
type MessageWriter struct {
	writer *bufio.Writer
	mu     sync.Mutex
}

// NewMessageWriter creates a new RTSP message writer
func NewMessageWriter(w io.Writer) *MessageWriter {
	return &MessageWriter{
		writer: bufio.NewWriter(w),
	}
}

// WriteRequest writes an RTSP request
func (mw *MessageWriter) WriteRequest(req *Request) error {
	return mw.write(req.Bytes())
}

// WriteResponse writes an RTSP response
func (mw *MessageWriter) WriteResponse(resp *Response) error {
	return mw.write(resp.Bytes())
}

// Write implements io.Writer so an rtp.Sender can share the connection.
func (mw *MessageWriter) Write(p []byte) (int, error) {
	if err := mw.write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteInterleaved writes one $-framed payload
func (mw *MessageWriter) WriteInterleaved(channel uint8, payload []byte) error {
	return rtp.WriteInterleaved(mw, channel, payload)
}

func (mw *MessageWriter) write(data []byte) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	if _, err := mw.writer.Write(data); err != nil {
		return err
	}
	return mw.writer.Flush()
}
