package models

import (
	"testing"

	"github.com/google/uuid"
)

func TestProjectValidateRequiresBothOrNeitherPMFields(t *testing.T) {
	p := &Project{}
	if err := p.Validate(); err != nil {
		t.Fatalf("expected project with no pm fields to validate, got %v", err)
	}

	agentID := "pm"
	p.PMAgentID = &agentID
	if err := p.Validate(); err == nil {
		t.Fatalf("expected pm_agent_id without pm_session_id to fail validation")
	}

	sessionID := uuid.New()
	p.PMSessionID = &sessionID
	if err := p.Validate(); err != nil {
		t.Fatalf("expected project with both pm fields set to validate, got %v", err)
	}
}

func TestProjectHasTeamMember(t *testing.T) {
	p := &Project{TeamMemberIDs: []string{"backend-dev", "reviewer"}}
	if !p.HasTeamMember("backend-dev") {
		t.Fatalf("expected backend-dev to be a team member")
	}
	if p.HasTeamMember("designer") {
		t.Fatalf("expected designer to not be a team member")
	}
}
