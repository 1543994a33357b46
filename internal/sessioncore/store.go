// Package sessioncore owns the durable record of sessions, projects,
// messages, and activity logs, plus the per-session write lock the
// executor serializes transitions through.
package sessioncore

import (
	"context"

	"github.com/google/uuid"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// Store is the persistence interface for sessions, projects, messages and
// activity logs. All write operations wrap a single transaction in
// implementations backed by a real database.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	UpdateSession(ctx context.Context, session *models.Session) error
	SoftDeleteSession(ctx context.Context, id uuid.UUID) error
	ListSessions(ctx context.Context, opts ListOptions) ([]*models.Session, error)
	LatestPMSession(ctx context.Context, projectID uuid.UUID) (*models.Session, error)

	// Messages
	AppendMessage(ctx context.Context, msg *models.Message) error
	GetHistory(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.Message, error)
	DeleteMessages(ctx context.Context, sessionID uuid.UUID) error

	// Projects
	CreateProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	UpdateProject(ctx context.Context, project *models.Project) error

	// Activity log
	AppendActivity(ctx context.Context, entry *models.ActivityLog) error
}

// ListOptions filters/paginates ListSessions.
type ListOptions struct {
	ProjectID      *uuid.UUID
	SessionType    models.SessionType
	IncludeDeleted bool
	Limit          int
	Offset         int
}
