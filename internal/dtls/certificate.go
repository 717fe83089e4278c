package dtls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Certificate is the gateway's self-signed DTLS identity. It is created
// once at startup and shared read-only by every session.
type Certificate struct {
	TLS         tls.Certificate
	Fingerprint string
}

// GenerateCertificate creates an ECDSA P-256 self-signed certificate valid
// for one year.
func GenerateCertificate() (*Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}

	notBefore := time.Now().Add(-1 * time.Hour)
	notAfter := notBefore.Add(365 * 24 * time.Hour)

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: "webrtc-gateway",
		},
		NotBefore: notBefore,
		NotAfter:  notAfter,

		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return nil, err
	}

	return &Certificate{
		TLS: tls.Certificate{
			Certificate: [][]byte{derBytes},
			PrivateKey:  priv,
		},
		Fingerprint: Fingerprint(derBytes),
	}, nil
}

// Fingerprint returns the SHA-256 digest of a DER certificate as colon
// separated uppercase hex, the form used in a=fingerprint lines.
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)

	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}
