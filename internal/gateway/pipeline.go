package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/mossy-p/webrtc-gateway/internal/adapter"
	"github.com/mossy-p/webrtc-gateway/internal/dtls"
	"github.com/mossy-p/webrtc-gateway/internal/media"
	"github.com/mossy-p/webrtc-gateway/internal/mux"
)

// runPipeline connects ICE, splits the connection into a DTLS and an SRTP
// endpoint, runs the handshake and then reads media until something fails.
// It never returns nil.
func (s *Session) runPipeline(ctx context.Context) error {
	config := s.sdpConfig

	var (
		conn net.Conn
		err  error
	)
	if config.ActiveMode.DialsICE() {
		s.log.Debugf("session %s: dialing ice", s.id)
		conn, err = s.agent.Dial(ctx, config.RemoteICEUsername, config.RemoteICEPassword)
	} else {
		s.log.Debugf("session %s: accepting ice", s.id)
		conn, err = s.agent.Accept(ctx, config.RemoteICEUsername, config.RemoteICEPassword)
	}
	if err != nil {
		return fmt.Errorf("%w: ice connect: %w", ErrInternal, err)
	}

	m := mux.NewMux(mux.Config{
		Conn:          conn,
		BufferSize:    mux.ReceiveMTU,
		LoggerFactory: s.loggerFactory,
	})
	s.setMux(m)
	defer m.Close()

	dtlsEndpoint := m.NewEndpoint(mux.MatchDTLS)
	srtpEndpoint := m.NewEndpoint(mux.MatchSRTPOrSRTCP)

	role := dtls.RoleServer
	if config.ActiveMode.DTLSClient() {
		role = dtls.RoleClient
	}

	connector, err := dtls.NewConnector(dtls.ConnectorConfig{
		Role:              role,
		Certificate:       s.cert,
		RemoteFingerprint: config.RemoteFingerprint,
		LoggerFactory:     s.loggerFactory,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInternal, err)
	}

	packetConn := adapter.New(dtlsEndpoint, mux.ReceiveMTU)
	session, err := connector.Connect(ctx, packetConn, packetConn.RemoteAddr())
	if err != nil {
		if errors.Is(err, ErrNoProtectionProfile) || errors.Is(err, ErrInvalidProtectionProfile) {
			return err
		}
		return fmt.Errorf("%w: dtls handshake: %w", ErrInternal, err)
	}
	defer session.Conn.Close()

	s.setProfile(session.Profile.Name())
	s.log.Infof("session %s: dtls connected as %s, profile %s", s.id, role, session.Profile.Name())

	srtpProfile, err := session.Profile.SRTPProfile()
	if err != nil {
		return err
	}
	key, salt := session.Profile.RemoteMaster(role)

	reader, err := media.NewReader(media.ReaderConfig{
		Conn:          srtpEndpoint,
		Profile:       srtpProfile,
		MasterKey:     key,
		MasterSalt:    salt,
		Handler:       s.handler,
		LoggerFactory: s.loggerFactory,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInternal, err)
	}

	return fmt.Errorf("%w: %w", ErrInternal, reader.Run(ctx))
}
