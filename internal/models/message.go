package models

// SignalKind tags every message the gateway sends over the signaling socket
type SignalKind string

const (
	SignalKindCandidate SignalKind = "candidate"
	SignalKindAnswer    SignalKind = "answer"
	SignalKindError     SignalKind = "error"
)

// OfferRequest is the first message of a session. Its type is implied by
// the session state, there is no kind field.
type OfferRequest struct {
	SDP *string `json:"sdp"`
}

// CandidateRequest carries one remote ICE candidate. An empty string marks
// the end of the remote candidates.
type CandidateRequest struct {
	Candidate *string `json:"candidate"`
}

// SignalResponse is an outbound signaling message
type SignalResponse struct {
	Kind      SignalKind `json:"kind"`
	Candidate string     `json:"candidate,omitempty"`
	SDP       string     `json:"sdp,omitempty"`
	Error     string     `json:"error,omitempty"`
}
