package models

import (
	"time"

	"github.com/google/uuid"
)

// Project groups a PM session and its team of specialist sessions under a
// shared filesystem root.
type Project struct {
	ID            uuid.UUID
	Name          string
	Description   string
	Path          string
	PMAgentID     *string
	PMSessionID   *uuid.UUID
	TeamMemberIDs []string
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// IsDeleted reports whether the project has been soft-deleted.
func (p *Project) IsDeleted() bool {
	return p.DeletedAt != nil
}

// Validate checks that pm_agent_id and pm_session_id are both set or both
// null — a project can't have a PM agent without an associated session.
func (p *Project) Validate() error {
	if (p.PMAgentID == nil) != (p.PMSessionID == nil) {
		return &Error{Kind: KindValidation, Message: "pm_agent_id and pm_session_id must both be set or both be null"}
	}
	return nil
}

// HasTeamMember reports whether agentID is already assigned to the project.
func (p *Project) HasTeamMember(agentID string) bool {
	for _, id := range p.TeamMemberIDs {
		if id == agentID {
			return true
		}
	}
	return false
}
