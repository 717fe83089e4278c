package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Gateway metrics, registered on the default registry by MustRegister.
// Every name carries the gateway_ prefix.

var (
	// Signaling sessions currently attached to a WebSocket.
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_sessions_active",
			Help: "Number of signaling sessions currently open.",
		},
	)

	// Signaling sessions accepted since start.
	SessionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_sessions_total",
			Help: "Total number of signaling sessions accepted.",
		},
	)

	// Signaling errors by kind (parse_failed, invalid_sdp, websocket_write_error, ...).
	SignalingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_signaling_errors_total",
			Help: "Total number of signaling errors, labeled by error kind.",
		},
		[]string{"kind"},
	)

	// DTLS handshakes by role and result.
	DTLSHandshakesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_dtls_handshakes_total",
			Help: "Total number of DTLS handshakes, labeled by role and result.",
		},
		[]string{"role", "result"}, // client|server, success|failure
	)

	// Decrypted packets by kind (rtp, rtcp).
	SRTPPacketsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_srtp_packets_total",
			Help: "Total number of decrypted SRTP/SRTCP packets, labeled by kind.",
		},
		[]string{"kind"},
	)

	// Decrypted payload bytes by kind.
	SRTPBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_srtp_bytes_total",
			Help: "Total number of decrypted SRTP/SRTCP bytes, labeled by kind.",
		},
		[]string{"kind"},
	)

	// Unprotect failures by kind. Each one ends a session.
	SRTPUnprotectFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_srtp_unprotect_failures_total",
			Help: "Total number of SRTP/SRTCP unprotect failures, labeled by kind.",
		},
		[]string{"kind"},
	)

	// Packets the mux could not deliver.
	MuxDroppedPacketsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_mux_dropped_packets_total",
			Help: "Total number of inbound packets dropped by the mux, labeled by reason.",
		},
		[]string{"reason"}, // unmatched, oversized, buffer_full, endpoint_closed
	)
)

// MustRegister registers the metrics above on the default Prometheus
// registry. Call it once at startup.
func MustRegister() {
	prometheus.MustRegister(
		SessionsActive,
		SessionsTotal,
		SignalingErrorsTotal,
		DTLSHandshakesTotal,
		SRTPPacketsTotal,
		SRTPBytesTotal,
		SRTPUnprotectFailuresTotal,
		MuxDroppedPacketsTotal,
	)
}
