// Package domain contains core domain types for the agent console.
package domain

// UserProfile is the per-browser document persisted under a single
// local-storage entry.
type UserProfile struct {
	UserID        string            `json:"user_id"`
	AgentSessions map[string]string `json:"agent_sessions"`
}

// SessionFor returns the stored session ID for an agent, or "" if the
// browser has never chatted with it.
func (p *UserProfile) SessionFor(agent string) string {
	if p.AgentSessions == nil {
		return ""
	}
	return p.AgentSessions[agent]
}

// SetSession records the session ID for an agent.
func (p *UserProfile) SetSession(agent, sessionID string) {
	if p.AgentSessions == nil {
		p.AgentSessions = make(map[string]string)
	}
	p.AgentSessions[agent] = sessionID
}

// Clone returns a deep copy of the profile.
func (p UserProfile) Clone() UserProfile {
	sessions := make(map[string]string, len(p.AgentSessions))
	for k, v := range p.AgentSessions {
		sessions[k] = v
	}
	return UserProfile{UserID: p.UserID, AgentSessions: sessions}
}
