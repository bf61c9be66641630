package rtsp

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Credentials are the username and password for a camera.
type Credentials struct {
	Username string
	Password string
}

// Authenticator produces Authorization header values. It sends Basic
// credentials until a Digest challenge has been accepted, and Digest
// afterwards.
type Authenticator struct {
	credentials Credentials
	challenge   *digestChallenge
	nonceCount  int
	cnonce      string
}

type digestChallenge struct {
	realm     string
	nonce     string
	qop       string
	algorithm string
	opaque    string
}

// NewAuthenticator creates an authenticator for credentials
func NewAuthenticator(credentials Credentials) *Authenticator {
	a := &Authenticator{credentials: credentials}
	a.resetNonce()
	return a
}

// UpdateChallenge inspects a response for a Digest challenge. It returns
// true when a challenge was accepted, which resets the nonce count and
// client nonce.
func (a *Authenticator) UpdateChallenge(resp *Response) bool {
	if resp.StatusCode != StatusUnauthorized {
		return false
	}
	for _, value := range resp.Header.Values(HeaderWWWAuthenticate) {
		challenge, ok := parseDigestChallenge(value)
		if !ok {
			continue
		}
		a.challenge = challenge
		a.nonceCount = 0
		a.resetNonce()
		return true
	}
	return false
}

// Authorization returns the Authorization header value for a request. It
// returns false when the cached challenge uses an algorithm other than MD5.
func (a *Authenticator) Authorization(method, uri string) (string, bool) {
	if a.challenge == nil {
		raw := a.credentials.Username + ":" + a.credentials.Password
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw)), true
	}

	c := a.challenge
	if c.algorithm != "" && !strings.EqualFold(c.algorithm, "MD5") {
		return "", false
	}

	ha1 := md5Hex(a.credentials.Username + ":" + c.realm + ":" + a.credentials.Password)
	ha2 := md5Hex(method + ":" + uri)

	var sb strings.Builder
	if c.qop != "" {
		a.nonceCount++
		nc := fmt.Sprintf("%08x", a.nonceCount)
		response := md5Hex(ha1 + ":" + c.nonce + ":" + nc + ":" + a.cnonce + ":" + c.qop + ":" + ha2)
		fmt.Fprintf(&sb, `Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s", qop=%s, nc=%s, cnonce="%s"`,
			a.credentials.Username, c.realm, c.nonce, uri, response, c.qop, nc, a.cnonce)
	} else {
		response := md5Hex(ha1 + ":" + c.nonce + ":" + ha2)
		fmt.Fprintf(&sb, `Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
			a.credentials.Username, c.realm, c.nonce, uri, response)
	}
	if c.opaque != "" {
		fmt.Fprintf(&sb, `, opaque="%s"`, c.opaque)
	}
	if c.algorithm != "" {
		fmt.Fprintf(&sb, ", algorithm=%s", c.algorithm)
	}
	return sb.String(), true
}

func (a *Authenticator) resetNonce() {
	id := uuid.New()
	a.cnonce = hex.EncodeToString(id[:])
}

func parseDigestChallenge(value string) (*digestChallenge, bool) {
	if !hasPrefixFold(value, "Digest") {
		return nil, false
	}
	params := parseAuthParams(value[len("Digest"):])

	realm, ok := params["realm"]
	if !ok {
		return nil, false
	}
	nonce, ok := params["nonce"]
	if !ok {
		return nil, false
	}

	c := &digestChallenge{
		realm:     realm,
		nonce:     nonce,
		qop:       params["qop"],
		algorithm: params["algorithm"],
		opaque:    params["opaque"],
	}
	for _, token := range strings.Split(c.qop, ",") {
		if strings.TrimSpace(token) == "auth" {
			c.qop = "auth"
			break
		}
	}
	return c, true
}

// parseAuthParams splits a comma separated key=value list. Commas inside
// quoted values do not separate parameters. Keys are lowercased and quotes
// removed from values.
func parseAuthParams(s string) map[string]string {
	params := make(map[string]string)
	var current strings.Builder
	inQuotes := false

	consume := func() {
		item := strings.TrimSpace(current.String())
		current.Reset()
		key, value, _ := strings.Cut(item, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		if key != "" {
			params[key] = value
		}
	}

	for _, ch := range s {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
			current.WriteRune(ch)
		case ch == ',' && !inQuotes:
			consume()
		default:
			current.WriteRune(ch)
		}
	}
	consume()
	return params
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
