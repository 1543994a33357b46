package sessioncore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// maxMessagesPerSession bounds in-memory history the same way the teacher's
// MemoryStore does, to keep a long-lived process's memory bounded.
const maxMessagesPerSession = 1000

// MemoryStore is an in-process, map-backed Store for tests and the default
// cmd wiring. All reads and writes deep-clone to prevent callers from
// mutating state behind the store's back.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*models.Session
	messages map[uuid.UUID][]*models.Message
	projects map[uuid.UUID]*models.Project
	activity []*models.ActivityLog
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[uuid.UUID]*models.Session),
		messages: make(map[uuid.UUID][]*models.Message),
		projects: make(map[uuid.UUID]*models.Project),
	}
}

func (m *MemoryStore) CreateSession(ctx context.Context, session *models.Session) error {
	if session == nil {
		return models.NewError(models.KindValidation, "session is required", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = session.CreatedAt
	m.sessions[session.ID] = cloneSession(session)
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, models.NewError(models.KindNotFound, "session not found", nil).WithContext("session_id", id)
	}
	return cloneSession(session), nil
}

func (m *MemoryStore) UpdateSession(ctx context.Context, session *models.Session) error {
	if session == nil {
		return models.NewError(models.KindValidation, "session is required", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.sessions[session.ID]
	if !ok {
		return models.NewError(models.KindNotFound, "session not found", nil).WithContext("session_id", session.ID)
	}
	clone := cloneSession(session)
	clone.CreatedAt = existing.CreatedAt
	clone.UpdatedAt = time.Now()
	m.sessions[clone.ID] = clone
	return nil
}

func (m *MemoryStore) SoftDeleteSession(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return models.NewError(models.KindNotFound, "session not found", nil).WithContext("session_id", id)
	}
	now := time.Now()
	session.DeletedAt = &now
	session.UpdatedAt = now
	return nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, opts ListOptions) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Session
	for _, session := range m.sessions {
		if !opts.IncludeDeleted && session.IsDeleted() {
			continue
		}
		if opts.ProjectID != nil {
			if session.ProjectID == nil || *session.ProjectID != *opts.ProjectID {
				continue
			}
		}
		if opts.SessionType != "" && session.SessionType != opts.SessionType {
			continue
		}
		out = append(out, cloneSession(session))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	start := opts.Offset
	if start < 0 {
		start = 0
	}
	if start > len(out) {
		start = len(out)
	}
	end := len(out)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return out[start:end], nil
}

func (m *MemoryStore) LatestPMSession(ctx context.Context, projectID uuid.UUID) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *models.Session
	for _, session := range m.sessions {
		if session.IsDeleted() || session.SessionType != models.SessionTypePM {
			continue
		}
		if session.ProjectID == nil || *session.ProjectID != projectID {
			continue
		}
		if latest == nil || session.CreatedAt.After(latest.CreatedAt) {
			latest = session
		}
	}
	if latest == nil {
		return nil, models.NewError(models.KindNotFound, "no pm session for project", nil).WithContext("project_id", projectID)
	}
	return cloneSession(latest), nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return models.NewError(models.KindValidation, "message is required", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[msg.SessionID]; !ok {
		return models.NewError(models.KindNotFound, "session not found", nil).WithContext("session_id", msg.SessionID)
	}
	clone := cloneMessage(msg)
	if clone.ID == uuid.Nil {
		clone.ID = uuid.New()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	msg.ID = clone.ID
	msg.CreatedAt = clone.CreatedAt

	list := append(m.messages[msg.SessionID], clone)
	if len(list) > maxMessagesPerSession {
		list = list[len(list)-maxMessagesPerSession:]
	}
	m.messages[msg.SessionID] = list
	return nil
}

func (m *MemoryStore) GetHistory(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	messages := m.messages[sessionID]
	start := 0
	if limit > 0 && len(messages) > limit {
		start = len(messages) - limit
	}
	out := make([]*models.Message, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		out = append(out, cloneMessage(msg))
	}
	return out, nil
}

func (m *MemoryStore) DeleteMessages(ctx context.Context, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, sessionID)
	return nil
}

func (m *MemoryStore) CreateProject(ctx context.Context, project *models.Project) error {
	if project == nil {
		return models.NewError(models.KindValidation, "project is required", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	now := time.Now()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = project.CreatedAt
	m.projects[project.ID] = cloneProject(project)
	return nil
}

func (m *MemoryStore) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	project, ok := m.projects[id]
	if !ok {
		return nil, models.NewError(models.KindNotFound, "project not found", nil).WithContext("project_id", id)
	}
	return cloneProject(project), nil
}

func (m *MemoryStore) UpdateProject(ctx context.Context, project *models.Project) error {
	if project == nil {
		return models.NewError(models.KindValidation, "project is required", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.projects[project.ID]
	if !ok {
		return models.NewError(models.KindNotFound, "project not found", nil).WithContext("project_id", project.ID)
	}
	clone := cloneProject(project)
	clone.CreatedAt = existing.CreatedAt
	clone.UpdatedAt = time.Now()
	m.projects[clone.ID] = clone
	return nil
}

func (m *MemoryStore) AppendActivity(ctx context.Context, entry *models.ActivityLog) error {
	if entry == nil {
		return models.NewError(models.KindValidation, "activity entry is required", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	clone := *entry
	clone.EventData = deepCloneMap(entry.EventData)
	if entry.SessionID != nil {
		id := *entry.SessionID
		clone.SessionID = &id
	}
	m.activity = append(m.activity, &clone)
	return nil
}

func deepCloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	clone := make(map[string]any, len(m))
	for k, v := range m {
		clone[k] = deepCloneValue(v)
	}
	return clone
}

func deepCloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCloneMap(val)
	case []any:
		cloned := make([]any, len(val))
		for i, item := range val {
			cloned[i] = deepCloneValue(item)
		}
		return cloned
	case []string:
		cloned := make([]string, len(val))
		copy(cloned, val)
		return cloned
	default:
		return v
	}
}

func cloneSession(session *models.Session) *models.Session {
	if session == nil {
		return nil
	}
	clone := *session
	clone.Context = deepCloneMap(session.Context)
	if session.ProjectID != nil {
		id := *session.ProjectID
		clone.ProjectID = &id
	}
	if session.ExternalSessionID != nil {
		v := *session.ExternalSessionID
		clone.ExternalSessionID = &v
	}
	if session.ErrorMessage != nil {
		v := *session.ErrorMessage
		clone.ErrorMessage = &v
	}
	if session.DeletedAt != nil {
		t := *session.DeletedAt
		clone.DeletedAt = &t
	}
	return &clone
}

func cloneMessage(msg *models.Message) *models.Message {
	if msg == nil {
		return nil
	}
	clone := *msg
	clone.Metadata = deepCloneMap(msg.Metadata)
	if msg.ToolUseID != nil {
		v := *msg.ToolUseID
		clone.ToolUseID = &v
	}
	if msg.AgentID != nil {
		v := *msg.AgentID
		clone.AgentID = &v
	}
	if msg.AgentName != nil {
		v := *msg.AgentName
		clone.AgentName = &v
	}
	if msg.FromInstanceID != nil {
		v := *msg.FromInstanceID
		clone.FromInstanceID = &v
	}
	if msg.ResponseID != nil {
		v := *msg.ResponseID
		clone.ResponseID = &v
	}
	if msg.Usage != nil {
		u := *msg.Usage
		clone.Usage = &u
	}
	return &clone
}

func cloneProject(project *models.Project) *models.Project {
	if project == nil {
		return nil
	}
	clone := *project
	if len(project.TeamMemberIDs) > 0 {
		clone.TeamMemberIDs = append([]string{}, project.TeamMemberIDs...)
	}
	if project.PMAgentID != nil {
		v := *project.PMAgentID
		clone.PMAgentID = &v
	}
	if project.PMSessionID != nil {
		v := *project.PMSessionID
		clone.PMSessionID = &v
	}
	if project.DeletedAt != nil {
		t := *project.DeletedAt
		clone.DeletedAt = &t
	}
	return &clone
}
