// Package dtls runs the DTLS-SRTP handshake over a muxed endpoint and
// derives the SRTP master keys from it.
package dtls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"

	piondtls "github.com/pion/dtls/v3"
	"github.com/pion/logging"

	"github.com/mossy-p/webrtc-gateway/internal/observability"
)

// Role is the gateway's side of the DTLS handshake.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

var (
	errMissingCertificate  = errors.New("dtls: no certificate configured")
	errNoPeerCertificate   = errors.New("dtls: peer sent no certificate")
	errFingerprintMismatch = errors.New("dtls: peer certificate does not match the offered fingerprint")
)

// ConnectorConfig collects the arguments to NewConnector.
type ConnectorConfig struct {
	Role        Role
	Certificate *Certificate

	// RemoteFingerprint is the peer's sha-256 fingerprint from the offer.
	// When empty the peer certificate is not checked.
	RemoteFingerprint string

	LoggerFactory logging.LoggerFactory
}

// Connector performs one DTLS handshake.
type Connector struct {
	config ConnectorConfig
	log    logging.LeveledLogger
}

// Session is a completed handshake and the SRTP keys it produced.
type Session struct {
	Conn    *piondtls.Conn
	Profile *ProtectionProfile
}

// NewConnector creates a Connector.
func NewConnector(config ConnectorConfig) (*Connector, error) {
	if config.Certificate == nil {
		return nil, errMissingCertificate
	}
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &Connector{
		config: config,
		log:    config.LoggerFactory.NewLogger("dtls"),
	}, nil
}

// Profiles returns the SRTP profiles offered for role. Both roles offer
// AES128_CM_SHA1_80; the server also accepts AEAD_AES_128_GCM.
func Profiles(role Role) []piondtls.SRTPProtectionProfile {
	if role == RoleServer {
		return []piondtls.SRTPProtectionProfile{
			piondtls.SRTP_AES128_CM_HMAC_SHA1_80,
			piondtls.SRTP_AEAD_AES_128_GCM,
		}
	}
	return []piondtls.SRTPProtectionProfile{
		piondtls.SRTP_AES128_CM_HMAC_SHA1_80,
	}
}

func (c *Connector) dtlsConfig() *piondtls.Config {
	cfg := &piondtls.Config{
		Certificates:           []tls.Certificate{c.config.Certificate.TLS},
		SRTPProtectionProfiles: Profiles(c.config.Role),
		LoggerFactory:          c.config.LoggerFactory,

		// Self-signed on both ends; the signaled fingerprint is the only check.
		InsecureSkipVerify: true,
	}

	if c.config.RemoteFingerprint != "" {
		cfg.VerifyPeerCertificate = c.verifyPeerCertificate
		if c.config.Role == RoleServer {
			cfg.ClientAuth = piondtls.RequireAnyClientCert
		}
	}

	return cfg
}

func (c *Connector) verifyPeerCertificate(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	if len(rawCerts) == 0 {
		return errNoPeerCertificate
	}
	got := Fingerprint(rawCerts[0])
	if !strings.EqualFold(got, c.config.RemoteFingerprint) {
		c.log.Warnf("peer fingerprint %s, offer announced %s", got, c.config.RemoteFingerprint)
		return errFingerprintMismatch
	}
	return nil
}

// Connect runs the handshake over conn and exports the SRTP keys. conn is
// usually an adapter around the DTLS mux endpoint. The returned session's
// Conn owns conn.
func (c *Connector) Connect(ctx context.Context, conn net.PacketConn, remote net.Addr) (*Session, error) {
	role := c.config.Role.String()

	var (
		dtlsConn *piondtls.Conn
		err      error
	)
	if c.config.Role == RoleServer {
		dtlsConn, err = piondtls.Server(conn, remote, c.dtlsConfig())
	} else {
		dtlsConn, err = piondtls.Client(conn, remote, c.dtlsConfig())
	}
	if err != nil {
		observability.DTLSHandshakesTotal.WithLabelValues(role, "failure").Inc()
		return nil, fmt.Errorf("dtls: create %s: %w", role, err)
	}

	c.log.Infof("begin DTLS handshake as %s", role)
	if err := dtlsConn.HandshakeContext(ctx); err != nil {
		observability.DTLSHandshakesTotal.WithLabelValues(role, "failure").Inc()
		_ = dtlsConn.Close()
		return nil, fmt.Errorf("dtls: handshake: %w", err)
	}
	observability.DTLSHandshakesTotal.WithLabelValues(role, "success").Inc()

	profile, err := ExportProtectionProfile(dtlsConn)
	if err != nil {
		_ = dtlsConn.Close()
		return nil, err
	}
	c.log.Infof("DTLS handshake complete, profile %s", profile.Name())

	return &Session{Conn: dtlsConn, Profile: profile}, nil
}

// ExportProtectionProfile reads the negotiated SRTP profile off a finished
// handshake and derives both key blocks from the exported material.
func ExportProtectionProfile(conn *piondtls.Conn) (*ProtectionProfile, error) {
	kind, ok := conn.SelectedSRTPProtectionProfile()
	if !ok {
		return nil, ErrNoProtectionProfile
	}

	keyLen, saltLen, err := KeyLengths(kind)
	if err != nil {
		return nil, err
	}

	state, ok := conn.ConnectionState()
	if !ok {
		return nil, errors.New("dtls: connection state unavailable")
	}

	material, err := state.ExportKeyingMaterial(KeyingMaterialLabel, nil, 2*(keyLen+saltLen))
	if err != nil {
		return nil, fmt.Errorf("dtls: export keying material: %w", err)
	}

	return DeriveKeys(kind, material)
}
