package probe

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"strings"
	"time"
)

// versionSSL30 is defined locally to avoid the deprecated tls.VersionSSL30.
const versionSSL30 uint16 = 0x0300

var weakCipherSuites = map[uint16]string{
	tls.TLS_RSA_WITH_RC4_128_SHA:                "TLS_RSA_WITH_RC4_128_SHA",
	tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA:           "TLS_RSA_WITH_3DES_EDE_CBC_SHA",
	tls.TLS_RSA_WITH_AES_128_CBC_SHA:            "TLS_RSA_WITH_AES_128_CBC_SHA",
	tls.TLS_RSA_WITH_AES_256_CBC_SHA:            "TLS_RSA_WITH_AES_256_CBC_SHA",
	tls.TLS_ECDHE_ECDSA_WITH_RC4_128_SHA:        "TLS_ECDHE_ECDSA_WITH_RC4_128_SHA",
	tls.TLS_ECDHE_RSA_WITH_RC4_128_SHA:          "TLS_ECDHE_RSA_WITH_RC4_128_SHA",
	tls.TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA:     "TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA",
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256: "TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256",
}

// tlsReport summarises one negotiated connection.
type tlsReport struct {
	version string
	cipher  string
	issues  []string
}

func (r tlsReport) weak() bool { return len(r.issues) > 0 }

func (r tlsReport) String() string {
	if r.weak() {
		return fmt.Sprintf("%s %s: %s", r.version, r.cipher, strings.Join(r.issues, "; "))
	}
	return fmt.Sprintf("%s %s", r.version, r.cipher)
}

// analyzeTLS grades the protocol version, cipher suite and leaf
// certificate of a completed handshake.
func analyzeTLS(state *tls.ConnectionState, now time.Time) *tlsReport {
	if state == nil {
		return nil
	}
	r := &tlsReport{
		version: tlsVersionString(state.Version),
		cipher:  cipherSuiteString(state.CipherSuite),
	}
	if state.Version < tls.VersionTLS12 {
		r.issues = append(r.issues, "protocol below TLS 1.2")
	}
	if _, weak := weakCipherSuites[state.CipherSuite]; weak {
		r.issues = append(r.issues, "weak cipher suite")
	}
	if state.Version < tls.VersionTLS13 && !strings.Contains(r.cipher, "ECDHE") && !strings.Contains(r.cipher, "DHE") {
		r.issues = append(r.issues, "no forward secrecy")
	}
	if len(state.PeerCertificates) > 0 {
		r.issues = append(r.issues, certificateIssues(state.PeerCertificates[0], now)...)
	}
	return r
}

func certificateIssues(cert *x509.Certificate, now time.Time) []string {
	var issues []string
	if now.After(cert.NotAfter) {
		issues = append(issues, "certificate expired")
	}
	alg := strings.ToLower(cert.SignatureAlgorithm.String())
	if strings.Contains(alg, "md5") || strings.Contains(alg, "sha1") {
		issues = append(issues, "weak signature algorithm "+cert.SignatureAlgorithm.String())
	}
	if key, ok := cert.PublicKey.(*rsa.PublicKey); ok && key.N.BitLen() < 2048 {
		issues = append(issues, fmt.Sprintf("RSA key %d bits", key.N.BitLen()))
	}
	return issues
}

func tlsVersionString(version uint16) string {
	switch version {
	case versionSSL30:
		return "SSL 3.0"
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("Unknown (0x%04x)", version)
	}
}

func cipherSuiteString(suite uint16) string {
	if name, ok := weakCipherSuites[suite]; ok {
		return name
	}
	if name := tls.CipherSuiteName(suite); name != "" {
		return name
	}
	return fmt.Sprintf("Unknown (0x%04x)", suite)
}
