package gateway

// MessageState decides which message shape is expected next. It only moves
// forward.
type MessageState int

const (
	MessageStateOffer MessageState = iota
	MessageStateCandidate
	MessageStateCandidatesEnd
)

func (s MessageState) String() string {
	switch s {
	case MessageStateOffer:
		return "offer"
	case MessageStateCandidate:
		return "candidate"
	case MessageStateCandidatesEnd:
		return "candidates_end"
	default:
		return "unknown"
	}
}

// AgentState tracks local candidate gathering. Informational.
type AgentState int

const (
	AgentStateNew AgentState = iota
	AgentStateGathering
	AgentStateIceReady
)

func (s AgentState) String() string {
	switch s {
	case AgentStateNew:
		return "new"
	case AgentStateGathering:
		return "gathering"
	case AgentStateIceReady:
		return "ice_ready"
	default:
		return "unknown"
	}
}
