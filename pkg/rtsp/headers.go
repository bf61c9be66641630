package rtsp

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ParseInterleaved finds interleaved=<rtp>-<rtcp> in a Transport header.
func ParseInterleaved(transport string) (rtpChannel, rtcpChannel uint8, ok bool) {
	for _, part := range strings.Split(transport, ";") {
		value, found := strings.CutPrefix(strings.TrimSpace(part), "interleaved=")
		if !found {
			continue
		}
		first, second, found := strings.Cut(value, "-")
		if !found {
			return 0, 0, false
		}
		rtpCh, err := strconv.ParseUint(first, 10, 8)
		if err != nil {
			return 0, 0, false
		}
		rtcpCh, err := strconv.ParseUint(second, 10, 8)
		if err != nil {
			return 0, 0, false
		}
		return uint8(rtpCh), uint8(rtcpCh), true
	}
	return 0, 0, false
}

// ParseSession splits a Session header into its id and optional timeout.
func ParseSession(value string) (id string, timeout time.Duration, ok bool) {
	parts := strings.Split(value, ";")
	id = strings.TrimSpace(parts[0])
	if id == "" {
		return "", 0, false
	}
	for _, part := range parts[1:] {
		v, found := strings.CutPrefix(strings.TrimSpace(part), "timeout=")
		if !found {
			continue
		}
		if seconds, err := strconv.ParseUint(v, 10, 32); err == nil {
			timeout = time.Duration(seconds) * time.Second
		}
	}
	return id, timeout, true
}

// KeepaliveInterval returns half the session timeout, kept between one
// second and one second short of the timeout. Without a timeout it returns
// DefaultKeepalive.
func KeepaliveInterval(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultKeepalive
	}
	secs := timeout.Seconds()
	upper := max(secs-1, 1)
	interval := min(max(secs*0.5, 1), upper)
	return time.Duration(interval * float64(time.Second))
}

// requestURL returns u without user information.
func requestURL(u *url.URL) *url.URL {
	clean := *u
	clean.User = nil
	return &clean
}

// dialAddress returns host:port, filling in the scheme's default port.
func dialAddress(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	port := DefaultRTSPPort
	if strings.EqualFold(u.Scheme, "rtsps") {
		port = DefaultRTSPSPort
	}
	return net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
}

// baseURL picks the URL control attributes resolve against: Content-Base,
// then Content-Location, then the request URL. Missing host, port or a
// differing scheme are taken from the request URL.
func baseURL(resp *Response, fallback *url.URL) *url.URL {
	for _, key := range []string{HeaderContentBase, HeaderContentLocation} {
		value := resp.Get(key)
		if value == "" {
			continue
		}
		u, err := url.Parse(value)
		if err != nil {
			continue
		}
		u.User = nil
		if u.Host == "" {
			u.Host = fallback.Host
		} else if u.Port() == "" && fallback.Port() != "" {
			u.Host = net.JoinHostPort(u.Hostname(), fallback.Port())
		}
		if !strings.EqualFold(u.Scheme, fallback.Scheme) {
			u.Scheme = fallback.Scheme
		}
		return u
	}
	return fallback
}

func parseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !strings.EqualFold(u.Scheme, "rtsp") && !strings.EqualFold(u.Scheme, "rtsps") {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}
