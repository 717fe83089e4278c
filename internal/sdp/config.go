// Package sdp extracts the transport parameters of a browser offer and
// synthesizes the gateway's answer by rewriting a copy of that offer.
package sdp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/logging"
	pionsdp "github.com/pion/sdp/v3"
)

// SDP attribute keys the gateway reads or rewrites.
const (
	AttrICEUfrag        = "ice-ufrag"
	AttrICEPwd          = "ice-pwd"
	AttrSetup           = "setup"
	AttrFingerprint     = "fingerprint"
	AttrCandidate       = "candidate"
	AttrEndOfCandidates = "end-of-candidates"
	AttrSendOnly        = "sendonly"
	AttrSendRecv        = "sendrecv"
	AttrRecvOnly        = "recvonly"
)

const fingerprintAlgorithm = "sha-256"

var (
	ErrMissingICEUsername = errors.New("sdp: missing ice username")
	ErrMissingICEPassword = errors.New("sdp: missing ice password")
	ErrMissingSetup       = errors.New("sdp: no active mode found")
)

// ActiveMode is the offerer's a=setup role.
type ActiveMode int

const (
	ActivePassive ActiveMode = iota
	Active
	Passive
)

func (m ActiveMode) String() string {
	switch m {
	case Active:
		return "active"
	case Passive:
		return "passive"
	default:
		return "actpass"
	}
}

// AnswerSetup returns the complementary role advertised in the answer:
// active becomes passive, passive and actpass become active.
func (m ActiveMode) AnswerSetup() string {
	if m == Active {
		return Passive.String()
	}
	return Active.String()
}

// DialsICE reports whether the gateway dials (rather than accepts) the
// ICE connection.
func (m ActiveMode) DialsICE() bool {
	return m == Active
}

// DTLSClient reports whether the gateway is the DTLS client. It is exactly
// when the answer advertises a=setup:active.
func (m ActiveMode) DTLSClient() bool {
	return m.AnswerSetup() == Active.String()
}

// Config holds the transport parameters of an offer. It is never modified
// after ParseConfig returns.
type Config struct {
	RemoteICEUsername string
	RemoteICEPassword string

	// Fingerprint is the gateway's own certificate fingerprint.
	Fingerprint string

	// RemoteFingerprint is the offer's sha-256 fingerprint, empty when the
	// offer carries none.
	RemoteFingerprint string

	ActiveMode ActiveMode
}

// Parse unmarshals raw SDP text.
func Parse(raw string) (*pionsdp.SessionDescription, error) {
	desc := &pionsdp.SessionDescription{}
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return nil, err
	}
	return desc, nil
}

// ParseConfig scans the media sections of offer for ICE credentials, the
// DTLS setup role and the remote fingerprint. Session-level attributes are
// used for whatever no media section carries. An unrecognized a=setup
// value is logged and treated as actpass.
func ParseConfig(offer *pionsdp.SessionDescription, fingerprint string, log logging.LeveledLogger) (*Config, error) {
	params := &offerParams{log: log}
	for _, media := range offer.MediaDescriptions {
		params.scan(media.Attributes)
	}

	session := &offerParams{log: log}
	session.scan(offer.Attributes)
	params.fillFrom(session)

	if params.username == "" {
		return nil, ErrMissingICEUsername
	}
	if params.password == "" {
		return nil, ErrMissingICEPassword
	}
	if !params.haveMode {
		return nil, ErrMissingSetup
	}

	return &Config{
		RemoteICEUsername: params.username,
		RemoteICEPassword: params.password,
		Fingerprint:       fingerprint,
		RemoteFingerprint: params.remoteFingerprint,
		ActiveMode:        params.mode,
	}, nil
}

type offerParams struct {
	log logging.LeveledLogger

	username          string
	password          string
	remoteFingerprint string
	mode              ActiveMode
	haveMode          bool
}

// scan records every attribute it understands; later values win.
func (p *offerParams) scan(attrs []pionsdp.Attribute) {
	for _, attr := range attrs {
		if attr.Value == "" {
			continue
		}
		switch attr.Key {
		case AttrICEUfrag:
			p.username = attr.Value
		case AttrICEPwd:
			p.password = attr.Value
		case AttrSetup:
			p.mode, p.haveMode = parseSetup(attr.Value, p.log), true
		case AttrFingerprint:
			if value, ok := parseFingerprint(attr.Value); ok {
				p.remoteFingerprint = value
			}
		}
	}
}

func (p *offerParams) fillFrom(other *offerParams) {
	if p.username == "" {
		p.username = other.username
	}
	if p.password == "" {
		p.password = other.password
	}
	if p.remoteFingerprint == "" {
		p.remoteFingerprint = other.remoteFingerprint
	}
	if !p.haveMode {
		p.mode, p.haveMode = other.mode, other.haveMode
	}
}

func parseSetup(value string, log logging.LeveledLogger) ActiveMode {
	switch value {
	case "active":
		return Active
	case "passive":
		return Passive
	case "actpass":
		return ActivePassive
	default:
		if log != nil {
			log.Warnf("unknown a=setup value %q, assuming actpass", value)
		}
		return ActivePassive
	}
}

// parseFingerprint returns the uppercase digest of an
// "a=fingerprint:sha-256 AB:CD:..." value.
func parseFingerprint(value string) (string, bool) {
	fields := strings.Fields(value)
	if len(fields) != 2 || !strings.EqualFold(fields[0], fingerprintAlgorithm) {
		return "", false
	}
	return strings.ToUpper(fields[1]), true
}

func formatFingerprint(fingerprint string) string {
	return fmt.Sprintf("%s %s", fingerprintAlgorithm, fingerprint)
}
