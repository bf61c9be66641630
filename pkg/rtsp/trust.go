package rtsp

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"strings"
)

// TrustEvaluator decides whether a TLS peer presenting certs is allowed.
// certs[0] is the leaf.
type TrustEvaluator func(certs []*x509.Certificate) bool

// TrustAll accepts any peer. Cameras on a LAN typically present
// self-signed certificates.
func TrustAll(certs []*x509.Certificate) bool {
	return true
}

// PinSHA256 accepts only a leaf whose SHA-256 fingerprint matches. The
// fingerprint is hex, with or without colons, in either case.
func PinSHA256(fingerprint string) TrustEvaluator {
	want := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(fingerprint), ":", ""))
	return func(certs []*x509.Certificate) bool {
		if len(certs) == 0 {
			return false
		}
		return Fingerprint(certs[0]) == want
	}
}

// Fingerprint returns the lowercase hex SHA-256 of a certificate.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// tlsConfig delegates verification to trust. Without an evaluator the
// standard chain verification against system roots applies.
func tlsConfig(serverName string, trust TrustEvaluator) *tls.Config {
	if trust == nil {
		return &tls.Config{ServerName: serverName}
	}
	return &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: true,
		VerifyConnection: func(cs tls.ConnectionState) error {
			if !trust(cs.PeerCertificates) {
				return ErrUntrustedPeer
			}
			return nil
		},
	}
}
