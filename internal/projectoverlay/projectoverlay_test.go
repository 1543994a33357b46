package projectoverlay

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/internal/agentrepo"
	"github.com/haasonsaas/agentcore/internal/sessioncore"
	"github.com/haasonsaas/agentcore/pkg/models"
)

func newTestOverlay(t *testing.T) (*Overlay, sessioncore.Store) {
	t.Helper()
	dir := t.TempDir()
	agents, err := agentrepo.New(filepath.Join(dir, "agents"))
	if err != nil {
		t.Fatalf("agentrepo.New: %v", err)
	}
	if err := agents.Write(&models.Agent{ID: "pm", Name: "PM", Description: "Coordinates work"}); err != nil {
		t.Fatalf("agents.Write: %v", err)
	}
	if err := agents.Write(&models.Agent{ID: "backend-dev", Name: "Backend Dev", Description: "Writes backend code"}); err != nil {
		t.Fatalf("agents.Write: %v", err)
	}

	store := sessioncore.NewMemoryStore()
	overlay := New(store, agents, filepath.Join(dir, "projects"))
	return overlay, store
}

func TestCreateProjectWithPMWritesDirectoryAndProjectMD(t *testing.T) {
	overlay, store := newTestOverlay(t)
	ctx := context.Background()

	pmAgent := "pm"
	project, err := overlay.CreateProject(ctx, "Demo Project", "a test project", "", &pmAgent, []string{"backend-dev"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	if project.PMAgentID == nil || *project.PMAgentID != "pm" {
		t.Fatalf("expected pm_agent_id set, got %+v", project.PMAgentID)
	}
	if project.PMSessionID == nil {
		t.Fatalf("expected pm_session_id set")
	}

	pmSession, err := store.GetSession(ctx, *project.PMSessionID)
	if err != nil {
		t.Fatalf("GetSession(pm): %v", err)
	}
	if pmSession.SessionType != models.SessionTypePM {
		t.Fatalf("expected pm session type, got %s", pmSession.SessionType)
	}

	if _, err := os.Stat(filepath.Join(project.Path, "PROJECT.md")); err != nil {
		t.Fatalf("expected PROJECT.md to be written: %v", err)
	}
}

func TestCreateProjectWithoutPM(t *testing.T) {
	overlay, _ := newTestOverlay(t)
	ctx := context.Background()

	project, err := overlay.CreateProject(ctx, "No PM Project", "", "", nil, nil)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if project.PMAgentID != nil || project.PMSessionID != nil {
		t.Fatalf("expected no pm assignment, got %+v", project)
	}
}

func TestCreateProjectRejectsUnknownPMAgent(t *testing.T) {
	overlay, _ := newTestOverlay(t)
	ctx := context.Background()

	unknown := "does-not-exist"
	if _, err := overlay.CreateProject(ctx, "Bad PM", "", "", &unknown, nil); err == nil {
		t.Fatalf("expected unknown pm agent to be rejected")
	}
}

func TestAssignAndRemovePM(t *testing.T) {
	overlay, store := newTestOverlay(t)
	ctx := context.Background()

	project, err := overlay.CreateProject(ctx, "Assign Later", "", "", nil, nil)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	updated, err := overlay.AssignPM(ctx, project.ID, "pm")
	if err != nil {
		t.Fatalf("AssignPM: %v", err)
	}
	if updated.PMAgentID == nil || *updated.PMAgentID != "pm" {
		t.Fatalf("expected pm assigned, got %+v", updated.PMAgentID)
	}
	pmSessionID := *updated.PMSessionID

	removed, err := overlay.RemovePM(ctx, project.ID)
	if err != nil {
		t.Fatalf("RemovePM: %v", err)
	}
	if removed.PMAgentID != nil || removed.PMSessionID != nil {
		t.Fatalf("expected pm cleared, got %+v", removed)
	}

	// The PM session itself survives unassignment.
	if _, err := store.GetSession(ctx, pmSessionID); err != nil {
		t.Fatalf("expected pm session to survive RemovePM: %v", err)
	}
}

func TestAssignPMRejectsUnknownProject(t *testing.T) {
	overlay, _ := newTestOverlay(t)
	ctx := context.Background()

	if _, err := overlay.AssignPM(ctx, uuid.New(), "pm"); err == nil {
		t.Fatalf("expected unknown project to be rejected")
	}
}
