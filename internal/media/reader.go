// Package media decrypts the SRTP and SRTCP packets a browser sends once
// the DTLS-SRTP handshake has finished.
package media

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pion/logging"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/srtp/v3"

	"github.com/mossy-p/webrtc-gateway/internal/mux"
	"github.com/mossy-p/webrtc-gateway/internal/observability"
)

// Kind tells RTP and RTCP packets apart.
type Kind string

const (
	KindRTP  Kind = "rtp"
	KindRTCP Kind = "rtcp"
)

var (
	// ErrUnprotect wraps every SRTP/SRTCP authentication or decryption
	// failure. The read loop stops on the first one.
	ErrUnprotect = errors.New("media: unprotect failed")

	errMissingConn = errors.New("media: no connection configured")
)

// Packet is one decrypted packet. Payload is the full plaintext packet,
// header included, and is only valid during the handler call.
type Packet struct {
	Kind    Kind
	Payload []byte

	// Header is set for RTP packets.
	Header *rtp.Header

	// RTCP holds the parsed compound packet, nil if it did not parse.
	RTCP []rtcp.Packet
}

// PacketHandler receives every decrypted packet.
type PacketHandler func(*Packet)

// ReaderConfig collects the arguments to NewReader.
type ReaderConfig struct {
	// Conn delivers protected packets, one per Read. Usually the SRTP
	// endpoint of a mux.
	Conn net.Conn

	Profile    srtp.ProtectionProfile
	MasterKey  []byte
	MasterSalt []byte

	// Handler is optional.
	Handler PacketHandler

	LoggerFactory logging.LoggerFactory
}

// Reader is an inbound-only SRTP session. It is used by a single goroutine.
type Reader struct {
	conn    net.Conn
	ctx     *srtp.Context
	handler PacketHandler
	log     logging.LeveledLogger
}

// NewReader creates the decryption context from the remote master key.
func NewReader(config ReaderConfig) (*Reader, error) {
	if config.Conn == nil {
		return nil, errMissingConn
	}

	srtpCtx, err := srtp.CreateContext(config.MasterKey, config.MasterSalt, config.Profile)
	if err != nil {
		return nil, fmt.Errorf("media: create srtp context: %w", err)
	}

	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	return &Reader{
		conn:    config.Conn,
		ctx:     srtpCtx,
		handler: config.Handler,
		log:     loggerFactory.NewLogger("media"),
	}, nil
}

// Run reads and decrypts packets until the connection fails, a packet
// fails to unprotect, or ctx is done. It never returns nil.
func (r *Reader) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = r.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, mux.ReceiveMTU)
	for {
		n, err := r.conn.Read(buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("media: read: %w", err)
		}
		if n == 0 {
			continue
		}

		if err := r.handle(buf[:n]); err != nil {
			return err
		}
	}
}

func (r *Reader) handle(encrypted []byte) error {
	if mux.IsRTCP(encrypted) {
		return r.handleRTCP(encrypted)
	}
	return r.handleRTP(encrypted)
}

func (r *Reader) handleRTP(encrypted []byte) error {
	header := &rtp.Header{}
	decrypted, err := r.ctx.DecryptRTP(nil, encrypted, header)
	if err != nil {
		observability.SRTPUnprotectFailuresTotal.WithLabelValues(string(KindRTP)).Inc()
		return fmt.Errorf("%w: srtp: %v", ErrUnprotect, err)
	}

	observability.SRTPPacketsTotal.WithLabelValues(string(KindRTP)).Inc()
	observability.SRTPBytesTotal.WithLabelValues(string(KindRTP)).Add(float64(len(decrypted)))
	r.log.Tracef("rtp ssrc=%d seq=%d pt=%d len=%d", header.SSRC, header.SequenceNumber, header.PayloadType, len(decrypted))

	if r.handler != nil {
		r.handler(&Packet{Kind: KindRTP, Payload: decrypted, Header: header})
	}
	return nil
}

func (r *Reader) handleRTCP(encrypted []byte) error {
	decrypted, err := r.ctx.DecryptRTCP(nil, encrypted, nil)
	if err != nil {
		observability.SRTPUnprotectFailuresTotal.WithLabelValues(string(KindRTCP)).Inc()
		return fmt.Errorf("%w: srtcp: %v", ErrUnprotect, err)
	}

	observability.SRTPPacketsTotal.WithLabelValues(string(KindRTCP)).Inc()
	observability.SRTPBytesTotal.WithLabelValues(string(KindRTCP)).Add(float64(len(decrypted)))

	packets, err := rtcp.Unmarshal(decrypted)
	if err != nil {
		r.log.Debugf("rtcp parse: %v", err)
		packets = nil
	}
	r.log.Tracef("rtcp packets=%d len=%d", len(packets), len(decrypted))

	if r.handler != nil {
		r.handler(&Packet{Kind: KindRTCP, Payload: decrypted, RTCP: packets})
	}
	return nil
}
