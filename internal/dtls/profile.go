package dtls

import (
	"errors"
	"fmt"

	piondtls "github.com/pion/dtls/v3"
	"github.com/pion/srtp/v3"
)

// KeyingMaterialLabel is the RFC 5764 exporter label.
const KeyingMaterialLabel = "EXTRACTOR-dtls_srtp"

var (
	// ErrNoProtectionProfile is returned when the handshake negotiated no
	// SRTP profile.
	ErrNoProtectionProfile = errors.New("dtls: no SRTP protection profile negotiated")

	// ErrInvalidProtectionProfile is returned for a negotiated profile the
	// gateway cannot decrypt.
	ErrInvalidProtectionProfile = errors.New("dtls: unsupported SRTP protection profile")

	errKeyingMaterialLength = errors.New("dtls: keying material has the wrong length")
)

// ProtectionProfile is the negotiated SRTP profile and both master
// key||salt blocks. It is built once per session and never modified.
type ProtectionProfile struct {
	Kind      piondtls.SRTPProtectionProfile
	KeyLen    int
	SaltLen   int
	ClientKey []byte
	ServerKey []byte
}

// KeyLengths returns the master key and salt lengths of kind.
func KeyLengths(kind piondtls.SRTPProtectionProfile) (keyLen, saltLen int, err error) {
	switch kind {
	case piondtls.SRTP_AES128_CM_HMAC_SHA1_80:
		return 16, 14, nil
	case piondtls.SRTP_AEAD_AES_128_GCM:
		return 16, 12, nil
	default:
		return 0, 0, fmt.Errorf("%w: 0x%04x", ErrInvalidProtectionProfile, uint16(kind))
	}
}

// DeriveKeys splits exported keying material into client and server
// key||salt blocks.
//
// The exporter lays material out as
//
//	[client key][server key][client salt][server salt]
//
// Rotating the middle span left by the key length gives
//
//	[client key][client salt][server key][server salt]
//
// so each half is one contiguous block.
func DeriveKeys(kind piondtls.SRTPProtectionProfile, material []byte) (*ProtectionProfile, error) {
	keyLen, saltLen, err := KeyLengths(kind)
	if err != nil {
		return nil, err
	}

	masterLen := keyLen + saltLen
	if len(material) != 2*masterLen {
		return nil, fmt.Errorf("%w: got %d, want %d", errKeyingMaterialLength, len(material), 2*masterLen)
	}

	buf := append([]byte(nil), material...)
	rotateLeft(buf[keyLen:keyLen+masterLen], keyLen)

	return &ProtectionProfile{
		Kind:      kind,
		KeyLen:    keyLen,
		SaltLen:   saltLen,
		ClientKey: buf[:masterLen:masterLen],
		ServerKey: buf[masterLen:],
	}, nil
}

func rotateLeft(b []byte, n int) {
	if len(b) == 0 {
		return
	}
	n %= len(b)
	tmp := append([]byte(nil), b[:n]...)
	copy(b, b[n:])
	copy(b[len(b)-n:], tmp)
}

// SRTPProfile maps the DTLS profile to the srtp package's.
func (p *ProtectionProfile) SRTPProfile() (srtp.ProtectionProfile, error) {
	switch p.Kind {
	case piondtls.SRTP_AES128_CM_HMAC_SHA1_80:
		return srtp.ProtectionProfileAes128CmHmacSha1_80, nil
	case piondtls.SRTP_AEAD_AES_128_GCM:
		return srtp.ProtectionProfileAeadAes128Gcm, nil
	default:
		return 0, ErrInvalidProtectionProfile
	}
}

// ClientMaster returns the client's master key and salt.
func (p *ProtectionProfile) ClientMaster() (key, salt []byte) {
	return p.ClientKey[:p.KeyLen], p.ClientKey[p.KeyLen:]
}

// ServerMaster returns the server's master key and salt.
func (p *ProtectionProfile) ServerMaster() (key, salt []byte) {
	return p.ServerKey[:p.KeyLen], p.ServerKey[p.KeyLen:]
}

// Name is the IANA name of the profile, used in logs and the registry.
func (p *ProtectionProfile) Name() string {
	return ProfileName(p.Kind)
}

// ProfileName returns the IANA name of kind.
func ProfileName(kind piondtls.SRTPProtectionProfile) string {
	switch kind {
	case piondtls.SRTP_AES128_CM_HMAC_SHA1_80:
		return "SRTP_AES128_CM_SHA1_80"
	case piondtls.SRTP_AEAD_AES_128_GCM:
		return "SRTP_AEAD_AES_128_GCM"
	default:
		return fmt.Sprintf("0x%04x", uint16(kind))
	}
}

// RemoteMaster returns the key and salt the peer protects its packets
// with: the server block when local is the client and vice versa.
func (p *ProtectionProfile) RemoteMaster(local Role) (key, salt []byte) {
	if local == RoleClient {
		return p.ServerMaster()
	}
	return p.ClientMaster()
}
