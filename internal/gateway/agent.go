package gateway

import (
	"context"
	"net"

	"github.com/pion/logging"

	"github.com/mossy-p/webrtc-gateway/internal/ice"
)

// ICEAgent is the part of an ICE agent a session drives.
type ICEAgent interface {
	Events() <-chan ice.Event
	GatherCandidates() error
	LocalCredentials() (ufrag, pwd string, err error)
	AddRemoteCandidate(raw string) error
	Dial(ctx context.Context, remoteUfrag, remotePwd string) (net.Conn, error)
	Accept(ctx context.Context, remoteUfrag, remotePwd string) (net.Conn, error)
	Close() error
}

var _ ICEAgent = (*ice.Agent)(nil)

// AgentFactory creates one agent per session.
type AgentFactory func() (ICEAgent, error)

// NewICEAgentFactory returns a factory for pion backed agents using a single
// STUN server.
func NewICEAgentFactory(stunURL string, loggerFactory logging.LoggerFactory) AgentFactory {
	return func() (ICEAgent, error) {
		return ice.NewAgent(ice.Config{
			STUNURL:       stunURL,
			LoggerFactory: loggerFactory,
		})
	}
}
