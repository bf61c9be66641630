package rtsp

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net/textproto"
	"strconv"
	"strings"
)

var headerTerminator = []byte("\r\n\r\n")

// Event is produced by StreamParser: either a *Response or an
// InterleavedFrame.
type Event interface {
	streamEvent()
}

// InterleavedFrame is one $-prefixed binary frame from the RTSP connection.
type InterleavedFrame struct {
	Channel uint8
	Payload []byte
}

func (InterleavedFrame) streamEvent() {}

// StreamParser splits the byte stream of an RTSP client connection into
// responses and interleaved frames. Data may be appended in chunks of any
// size; incomplete messages stay buffered until the rest arrives.
type StreamParser struct {
	buf []byte
}

// NewStreamParser creates an empty parser
func NewStreamParser() *StreamParser {
	return &StreamParser{}
}

// Append buffers data and returns every event that is now complete, in
// stream order.
func (p *StreamParser) Append(data []byte) []Event {
	p.buf = append(p.buf, data...)

	var events []Event
	for len(p.buf) > 0 {
		var ev Event
		var ok bool
		if p.buf[0] == InterleavedMarker {
			ev, ok = p.extractInterleaved()
		} else {
			ev, ok = p.extractResponse()
		}
		if !ok {
			break
		}
		if ev != nil {
			events = append(events, ev)
		}
	}

	if len(p.buf) == 0 {
		p.buf = nil
	}
	return events
}

// Buffered returns the number of bytes waiting for a complete message.
func (p *StreamParser) Buffered() int {
	return len(p.buf)
}

// Reset drops any buffered bytes
func (p *StreamParser) Reset() {
	p.buf = nil
}

func (p *StreamParser) extractInterleaved() (Event, bool) {
	if len(p.buf) < InterleavedHeader {
		return nil, false
	}
	length := int(binary.BigEndian.Uint16(p.buf[2:4]))
	total := InterleavedHeader + length
	if len(p.buf) < total {
		return nil, false
	}

	frame := InterleavedFrame{
		Channel: p.buf[1],
		Payload: bytes.Clone(p.buf[InterleavedHeader:total]),
	}
	p.consume(total)
	return frame, true
}

// extractResponse returns (nil, true) when it consumed a message that was
// not a valid response, so the caller keeps going.
func (p *StreamParser) extractResponse() (Event, bool) {
	headerEnd := bytes.Index(p.buf, headerTerminator)
	if headerEnd < 0 {
		if len(p.buf) > maxHeaderSize {
			slog.Warn("RTSP header exceeded size limit, dropping buffer", "bytes", len(p.buf))
			p.buf = nil
		}
		return nil, false
	}

	lines := strings.Split(string(p.buf[:headerEnd]), "\r\n")
	header := make(textproto.MIMEHeader)
	for _, line := range lines[1:] {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		header.Add(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	contentLength := 0
	if v := header.Get(HeaderContentLength); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			contentLength = n
		}
	}

	bodyStart := headerEnd + len(headerTerminator)
	total := bodyStart + contentLength
	if len(p.buf) < total {
		return nil, false
	}

	response, err := parseStatusLine(lines[0])
	if err != nil {
		slog.Debug("Skipping non-response RTSP message", "line", lines[0], "err", err)
		p.consume(total)
		return nil, true
	}
	response.Header = header
	response.Body = bytes.Clone(p.buf[bodyStart:total])
	p.consume(total)
	return response, true
}

func (p *StreamParser) consume(n int) {
	p.buf = p.buf[n:]
}

func parseStatusLine(line string) (*Response, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "RTSP/") {
		return nil, fmt.Errorf("invalid status line: %q", line)
	}

	statusCode, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid status code: %s", parts[1])
	}

	statusText := ""
	if len(parts) == 3 {
		statusText = parts[2]
	}

	return &Response{
		Version:    parts[0],
		StatusCode: statusCode,
		StatusText: statusText,
	}, nil
}

// MessageReader reads RTSP requests from a blocking stream; it is the
// server side counterpart of StreamParser.
type MessageReader struct {
	reader *bufio.Reader
}

// NewMessageReader creates a new RTSP message reader
func NewMessageReader(r io.Reader) *MessageReader {
	return &MessageReader{
		reader: bufio.NewReader(r),
	}
}

// ReadRequest reads and parses an RTSP request
func (mr *MessageReader) ReadRequest() (*Request, error) {
	line, err := mr.readLine()
	if err != nil {
		return nil, fmt.Errorf("failed to read request line: %w", err)
	}

	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid request line: %s", line)
	}

	request := &Request{
		Method:  parts[0],
		URI:     parts[1],
		Version: parts[2],
		Headers: make(map[string]string),
	}

	if err := mr.readHeaders(request.Headers); err != nil {
		return nil, fmt.Errorf("failed to read headers: %w", err)
	}

	if cseqStr := request.Headers[HeaderCSeq]; cseqStr != "" {
		if cseq, err := strconv.Atoi(cseqStr); err == nil {
			request.CSeq = cseq
		}
	}

	return request, nil
}

// readLine reads a line from the reader (removes \r\n)
func (mr *MessageReader) readLine() (string, error) {
	line, err := mr.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readHeaders reads headers until an empty line
func (mr *MessageReader) readHeaders(headers map[string]string) error {
	for {
		line, err := mr.readLine()
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			continue // Skip invalid header lines
		}
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
}
