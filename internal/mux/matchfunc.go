package mux

// MatchFunc decides whether a packet belongs to an Endpoint.
type MatchFunc func([]byte) bool

// MatchAll always returns true.
func MatchAll([]byte) bool {
	return true
}

// MatchRange returns a MatchFunc that accepts packets whose first byte is in [lower, upper].
func MatchRange(lower, upper byte) MatchFunc {
	return func(buf []byte) bool {
		if len(buf) < 1 {
			return false
		}
		b := buf[0]
		return b >= lower && b <= upper
	}
}

// RFC 7983 first-byte ranges:
//
//	            +----------------+
//	            |        [0..3] -+--> forward to STUN
//	            |                |
//	            |      [16..19] -+--> forward to ZRTP
//	            |                |
//	packet -->  |      [20..63] -+--> forward to DTLS
//	            |                |
//	            |      [64..79] -+--> forward to TURN Channel
//	            |                |
//	            |    [128..191] -+--> forward to RTP/RTCP
//	            +----------------+

// MatchDTLS matches DTLS records.
func MatchDTLS(b []byte) bool {
	return MatchRange(20, 63)(b)
}

// MatchSRTPOrSRTCP matches both SRTP and SRTCP packets.
func MatchSRTPOrSRTCP(b []byte) bool {
	return MatchRange(128, 191)(b)
}

// IsRTCP reports whether a packet in the RTP range carries an RTCP payload
// type (RFC 5761 section 4).
func IsRTCP(buf []byte) bool {
	if len(buf) < 4 {
		return false
	}
	return buf[1] >= 192 && buf[1] <= 223
}

// MatchSRTP matches SRTP and not SRTCP.
func MatchSRTP(buf []byte) bool {
	return MatchSRTPOrSRTCP(buf) && !IsRTCP(buf)
}

// MatchSRTCP matches SRTCP and not SRTP.
func MatchSRTCP(buf []byte) bool {
	return MatchSRTPOrSRTCP(buf) && IsRTCP(buf)
}
