package gateway

import (
	"errors"

	"github.com/mossy-p/webrtc-gateway/internal/dtls"
)

// Signaling errors. Every error a session returns wraps exactly one of
// these; use errors.Is to classify.
var (
	// ErrParseFailed is returned for inbound text that is not JSON.
	ErrParseFailed = errors.New("gateway: parse failed")

	// ErrSerializeFailed is returned when an outbound message cannot be encoded.
	ErrSerializeFailed = errors.New("gateway: serialize failed")

	// ErrInvalidMessage is returned for JSON of the wrong shape for the
	// current state, or a non-text frame.
	ErrInvalidMessage = errors.New("gateway: invalid websocket message type")

	// ErrInvalidSDP is returned for an offer that does not parse or lacks
	// ICE credentials or a setup role.
	ErrInvalidSDP = errors.New("gateway: invalid SDP")

	// ErrInvalidAgentConfig is returned when the ICE agent cannot be created.
	ErrInvalidAgentConfig = errors.New("gateway: invalid ice agent configuration")

	// ErrGatheringError is returned when candidate gathering cannot start.
	ErrGatheringError = errors.New("gateway: error during gathering")

	// ErrWebSocketWriteError is returned when an outbound message cannot be written.
	ErrWebSocketWriteError = errors.New("gateway: websocket write error")

	// ErrInternal covers ICE connect, mux and handshake failures.
	ErrInternal = errors.New("gateway: internal error")

	ErrNoProtectionProfile      = dtls.ErrNoProtectionProfile
	ErrInvalidProtectionProfile = dtls.ErrInvalidProtectionProfile
)

// IsMessageError reports whether err only aborts the message that caused
// it. Any other error ends the session.
func IsMessageError(err error) bool {
	return errors.Is(err, ErrParseFailed) ||
		errors.Is(err, ErrInvalidMessage) ||
		errors.Is(err, ErrInvalidSDP)
}

// ErrorKind returns a short metric label for err.
func ErrorKind(err error) string {
	kinds := []struct {
		err  error
		kind string
	}{
		{ErrParseFailed, "parse_failed"},
		{ErrSerializeFailed, "serialize_failed"},
		{ErrInvalidMessage, "invalid_message"},
		{ErrInvalidSDP, "invalid_sdp"},
		{ErrInvalidAgentConfig, "invalid_agent_config"},
		{ErrGatheringError, "gathering_error"},
		{ErrWebSocketWriteError, "websocket_write_error"},
		{ErrNoProtectionProfile, "no_protection_profile"},
		{ErrInvalidProtectionProfile, "invalid_protection_profile"},
		{ErrInternal, "internal_error"},
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "unknown"
}
