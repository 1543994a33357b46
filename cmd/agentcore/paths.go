package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/haasonsaas/agentcore/internal/sessioncore"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// fsPaths implements sessionexec.PathResolver: WorkingDir gives every
// session a private scratch directory under sessionsDir, created on first
// use; ProjectPath gives a project-scoped session its project's directory
// and any other session its scratch directory. The session builder picks
// which of the two a client runs in.
type fsPaths struct {
	store       sessioncore.Store
	sessionsDir string
}

func newFSPaths(store sessioncore.Store, sessionsDir string) *fsPaths {
	return &fsPaths{store: store, sessionsDir: sessionsDir}
}

func (p *fsPaths) WorkingDir(session *models.Session) (string, error) {
	dir := filepath.Join(p.sessionsDir, session.ID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", models.NewError(models.KindRepository, "create session working directory", err)
	}
	return dir, nil
}

func (p *fsPaths) ProjectPath(ctx context.Context, session *models.Session) (string, error) {
	if session.ProjectID == nil {
		return p.WorkingDir(session)
	}
	project, err := p.store.GetProject(ctx, *session.ProjectID)
	if err != nil {
		return "", err
	}
	return project.Path, nil
}
