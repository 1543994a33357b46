// Package projectoverlay implements the three project-lifecycle
// operations: creating a project
// (directory, optional PM session, PROJECT.md), and assigning or removing
// its PM. Adapted from the project service's create-then-link sequencing,
// reexpressed with explicit compensation instead of a database
// transaction, since the session store interface has no cross-aggregate
// transaction of its own.
package projectoverlay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/internal/agentrepo"
	"github.com/haasonsaas/agentcore/internal/sessioncore"
	"github.com/haasonsaas/agentcore/pkg/models"
)

var nonWordRun = regexp.MustCompile(`[^\w\s-]`)
var dashRun = regexp.MustCompile(`[-\s]+`)

// Overlay performs project create/PM-assignment operations against a
// Store, rooting newly created project directories under ProjectsDir.
type Overlay struct {
	store       sessioncore.Store
	agents      *agentrepo.Repository
	projectsDir string
}

// New constructs an Overlay. projectsDir is the parent directory new
// projects are created under when no explicit path is given.
func New(store sessioncore.Store, agents *agentrepo.Repository, projectsDir string) *Overlay {
	return &Overlay{store: store, agents: agents, projectsDir: projectsDir}
}

// sanitizeName lowercases name, removes punctuation (anything other than
// letters, digits, underscores, whitespace and hyphens), replaces runs of
// whitespace/hyphens with a single hyphen, and appends a short random
// suffix to avoid directory collisions between same-named projects.
func sanitizeName(name string) string {
	lower := strings.ToLower(name)
	cleaned := nonWordRun.ReplaceAllString(lower, "")
	cleaned = dashRun.ReplaceAllString(cleaned, "-")
	cleaned = strings.Trim(cleaned, "-")
	if cleaned == "" {
		cleaned = "project"
	}
	return fmt.Sprintf("%s-%s", cleaned, uuid.New().String()[:8])
}

// CreateProject checks that pmAgentID (if set) names a known agent before
// creating anything, then creates the project directory, persists the
// Project, and — if pmAgentID is set — creates its PM session and links
// it to the project. If linking fails, the PM session is soft-deleted.
// A failure after the project row is created does not remove the project
// row or its directory. PROJECT.md is written last, once the project's
// final shape (with or without a PM) is known.
func (o *Overlay) CreateProject(ctx context.Context, name, description string, path string, pmAgentID *string, teamMemberIDs []string) (*models.Project, error) {
	if pmAgentID != nil && *pmAgentID != "" {
		if _, err := o.agents.Get(*pmAgentID); err != nil {
			return nil, models.NewError(models.KindValidation, fmt.Sprintf("pm agent %q not found", *pmAgentID), err)
		}
	}

	sanitized := sanitizeName(name)
	projectPath := path
	if projectPath == "" {
		projectPath = filepath.Join(o.projectsDir, sanitized)
	}
	if err := os.MkdirAll(projectPath, 0o755); err != nil {
		return nil, models.NewError(models.KindRepository, "create project directory", err)
	}

	now := time.Now()
	project := &models.Project{
		ID:            uuid.New(),
		Name:          name,
		Description:   description,
		Path:          projectPath,
		TeamMemberIDs: teamMemberIDs,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.store.CreateProject(ctx, project); err != nil {
		return nil, err
	}

	if pmAgentID != nil && *pmAgentID != "" {
		pmSession := &models.Session{
			ID:          uuid.New(),
			AgentID:     *pmAgentID,
			ProjectID:   &project.ID,
			SessionType: models.SessionTypePM,
			Status:      models.StatusIdle,
			Context:     map[string]any{"description": "Project Manager"},
		}
		pmSession.SyncKanbanStage()
		if err := o.store.CreateSession(ctx, pmSession); err != nil {
			return nil, err
		}

		project.PMAgentID = pmAgentID
		project.PMSessionID = &pmSession.ID
		if err := o.store.UpdateProject(ctx, project); err != nil {
			// Compensate: the PM session now dangles with no project
			// reference update; remove it so the project is left in a
			// valid, PM-less state rather than a half-linked one.
			_ = o.store.SoftDeleteSession(ctx, pmSession.ID)
			return nil, err
		}
	}

	if err := o.writeProjectMD(ctx, project); err != nil {
		return nil, err
	}

	return project, nil
}

// AssignPM creates a PM session for agentID in project and atomically
// links it: if persisting the updated project fails, the just-created
// session is soft-deleted so no orphan PM session survives the failure.
func (o *Overlay) AssignPM(ctx context.Context, projectID uuid.UUID, agentID string) (*models.Project, error) {
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if _, err := o.agents.Get(agentID); err != nil {
		return nil, models.NewError(models.KindValidation, fmt.Sprintf("agent %q not found", agentID), err)
	}

	pmSession := &models.Session{
		ID:          uuid.New(),
		AgentID:     agentID,
		ProjectID:   &project.ID,
		SessionType: models.SessionTypePM,
		Status:      models.StatusIdle,
		Context:     map[string]any{"description": "Project Manager"},
	}
	pmSession.SyncKanbanStage()
	if err := o.store.CreateSession(ctx, pmSession); err != nil {
		return nil, err
	}

	project.PMAgentID = &agentID
	project.PMSessionID = &pmSession.ID
	if err := o.store.UpdateProject(ctx, project); err != nil {
		_ = o.store.SoftDeleteSession(ctx, pmSession.ID)
		return nil, err
	}
	return project, nil
}

// RemovePM clears the project's PM references. The PM session itself is
// left in place (soft-deleting it is a separate, explicit operation) —
// removing a PM unassigns a project from its manager, it doesn't destroy
// history.
func (o *Overlay) RemovePM(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	project.PMAgentID = nil
	project.PMSessionID = nil
	if err := o.store.UpdateProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}
