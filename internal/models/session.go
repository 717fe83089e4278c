package models

import "time"

// SessionRecord is the registry entry of one signaling session
type SessionRecord struct {
	ID                string    `json:"id"`
	State             string    `json:"state"`      // offer, candidate, candidates_end
	AgentState        string    `json:"agentState"` // new, gathering, ice_ready
	ActiveMode        string    `json:"activeMode,omitempty"`
	ProtectionProfile string    `json:"protectionProfile,omitempty"`
	RemoteAddr        string    `json:"remoteAddr"`
	UserID            string    `json:"userId,omitempty"` // User ID from JWT, when the socket was authenticated
	Node              string    `json:"node,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// SessionListResponse is the response for listing sessions
type SessionListResponse struct {
	Sessions []*SessionRecord `json:"sessions"`
	Count    int              `json:"count"`
}
