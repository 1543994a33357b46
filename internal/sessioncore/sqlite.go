package sessioncore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/agentcore/pkg/models"

	_ "modernc.org/sqlite"
)

// schema is applied with CREATE TABLE IF NOT EXISTS at open time. There is
// no migration framework here — schema evolution is an explicit non-goal
// (spec §1) and this core never needs more than additive columns.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	agent_id TEXT,
	project_id TEXT,
	session_type TEXT NOT NULL,
	status TEXT NOT NULL,
	external_session_id TEXT,
	context TEXT,
	error_message TEXT,
	title TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	deleted_at TEXT
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT,
	tool_use_id TEXT,
	sequence INTEGER,
	metadata TEXT,
	agent_id TEXT,
	agent_name TEXT,
	from_instance_id TEXT,
	response_id TEXT,
	usage TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);

CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	path TEXT NOT NULL,
	pm_agent_id TEXT,
	pm_session_id TEXT,
	team_member_ids TEXT,
	created_by TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	deleted_at TEXT
);

CREATE TABLE IF NOT EXISTS activity_log (
	id TEXT PRIMARY KEY,
	session_id TEXT,
	event_type TEXT NOT NULL,
	event_data TEXT,
	created_at TEXT NOT NULL
);
`

// SQLiteStore is a database/sql-backed Store using the pure-Go
// modernc.org/sqlite driver, soft-deleting via a deleted_at column rather
// than row removal.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if absent) the sqlite database at dsn and
// applies schema.
func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, models.NewError(models.KindRepository, "open sqlite store", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, models.NewError(models.KindRepository, "apply sqlite schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func marshalJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalJSON[T any](raw sql.NullString) (T, error) {
	var v T
	if !raw.Valid || raw.String == "" {
		return v, nil
	}
	err := json.Unmarshal([]byte(raw.String), &v)
	return v, err
}

func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseNullUUID(raw sql.NullString) *uuid.UUID {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	id, err := uuid.Parse(raw.String)
	if err != nil {
		return nil
	}
	return &id
}

func parseNullString(raw sql.NullString) *string {
	if !raw.Valid {
		return nil
	}
	v := raw.String
	return &v
}

func parseNullTime(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw.String)
	if err != nil {
		return nil
	}
	return &t
}

func (s *SQLiteStore) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = session.CreatedAt

	ctxJSON, err := marshalJSON(session.Context)
	if err != nil {
		return models.NewError(models.KindRepository, "marshal session context", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, agent_id, project_id, session_type, status, external_session_id, context, error_message, title, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID.String(), session.AgentID, nullUUID(session.ProjectID), string(session.SessionType), string(session.Status),
		nullString(session.ExternalSessionID), ctxJSON, nullString(session.ErrorMessage), session.Title,
		session.CreatedAt.UTC().Format(time.RFC3339Nano), session.UpdatedAt.UTC().Format(time.RFC3339Nano), nullTime(session.DeletedAt))
	if err != nil {
		return models.NewError(models.KindRepository, "insert session", err)
	}
	return nil
}

func (s *SQLiteStore) scanSession(row *sql.Row) (*models.Session, error) {
	var (
		id, sessionType, status                                    string
		agentID, title, createdAt, updatedAt                       string
		projectID, externalID, ctxJSON, errMsg, deletedAt           sql.NullString
	)
	if err := row.Scan(&id, &agentID, &projectID, &sessionType, &status, &externalID, &ctxJSON, &errMsg, &title, &createdAt, &updatedAt, &deletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NewError(models.KindNotFound, "session not found", nil)
		}
		return nil, models.NewError(models.KindRepository, "scan session", err)
	}
	sessCtx, err := unmarshalJSON[map[string]any](ctxJSON)
	if err != nil {
		return nil, models.NewError(models.KindRepository, "unmarshal session context", err)
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, models.NewError(models.KindRepository, "parse session id", err)
	}
	createdT, _ := time.Parse(time.RFC3339Nano, createdAt)
	updatedT, _ := time.Parse(time.RFC3339Nano, updatedAt)

	return &models.Session{
		ID:                uid,
		AgentID:           agentID,
		ProjectID:         parseNullUUID(projectID),
		SessionType:       models.SessionType(sessionType),
		Status:            models.SessionStatus(status),
		ExternalSessionID: parseNullString(externalID),
		Context:           sessCtx,
		ErrorMessage:      parseNullString(errMsg),
		Title:             title,
		CreatedAt:         createdT,
		UpdatedAt:         updatedT,
		DeletedAt:         parseNullTime(deletedAt),
	}, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, project_id, session_type, status, external_session_id, context, error_message, title, created_at, updated_at, deleted_at
		FROM sessions WHERE id = ?`, id.String())
	return s.scanSession(row)
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now()
	ctxJSON, err := marshalJSON(session.Context)
	if err != nil {
		return models.NewError(models.KindRepository, "marshal session context", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET agent_id=?, project_id=?, session_type=?, status=?, external_session_id=?, context=?, error_message=?, title=?, updated_at=?, deleted_at=?
		WHERE id = ?`,
		session.AgentID, nullUUID(session.ProjectID), string(session.SessionType), string(session.Status),
		nullString(session.ExternalSessionID), ctxJSON, nullString(session.ErrorMessage), session.Title,
		session.UpdatedAt.UTC().Format(time.RFC3339Nano), nullTime(session.DeletedAt), session.ID.String())
	if err != nil {
		return models.NewError(models.KindRepository, "update session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewError(models.KindNotFound, "session not found", nil).WithContext("session_id", session.ID)
	}
	return nil
}

func (s *SQLiteStore) SoftDeleteSession(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET deleted_at=?, updated_at=? WHERE id=?`, now, now, id.String())
	if err != nil {
		return models.NewError(models.KindRepository, "soft delete session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewError(models.KindNotFound, "session not found", nil).WithContext("session_id", id)
	}
	return nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, opts ListOptions) ([]*models.Session, error) {
	query := `SELECT id, agent_id, project_id, session_type, status, external_session_id, context, error_message, title, created_at, updated_at, deleted_at FROM sessions WHERE 1=1`
	var args []any
	if !opts.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	if opts.ProjectID != nil {
		query += ` AND project_id = ?`
		args = append(args, opts.ProjectID.String())
	}
	if opts.SessionType != "" {
		query += ` AND session_type = ?`
		args = append(args, string(opts.SessionType))
	}
	query += ` ORDER BY created_at ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, models.NewError(models.KindRepository, "list sessions", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		var (
			id, sessionType, status                          string
			agentID, title, createdAt, updatedAt              string
			projectID, externalID, ctxJSON, errMsg, deletedAt sql.NullString
		)
		if err := rows.Scan(&id, &agentID, &projectID, &sessionType, &status, &externalID, &ctxJSON, &errMsg, &title, &createdAt, &updatedAt, &deletedAt); err != nil {
			return nil, models.NewError(models.KindRepository, "scan session row", err)
		}
		sessCtx, _ := unmarshalJSON[map[string]any](ctxJSON)
		uid, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		createdT, _ := time.Parse(time.RFC3339Nano, createdAt)
		updatedT, _ := time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, &models.Session{
			ID: uid, AgentID: agentID, ProjectID: parseNullUUID(projectID), SessionType: models.SessionType(sessionType),
			Status: models.SessionStatus(status), ExternalSessionID: parseNullString(externalID), Context: sessCtx,
			ErrorMessage: parseNullString(errMsg), Title: title, CreatedAt: createdT, UpdatedAt: updatedT,
			DeletedAt: parseNullTime(deletedAt),
		})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LatestPMSession(ctx context.Context, projectID uuid.UUID) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, project_id, session_type, status, external_session_id, context, error_message, title, created_at, updated_at, deleted_at
		FROM sessions WHERE project_id = ? AND session_type = 'pm' AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT 1`, projectID.String())
	session, err := s.scanSession(row)
	if err != nil && models.IsKind(err, models.KindNotFound) {
		return nil, models.NewError(models.KindNotFound, "no pm session for project", nil).WithContext("project_id", projectID)
	}
	return session, err
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	metaJSON, err := marshalJSON(msg.Metadata)
	if err != nil {
		return models.NewError(models.KindRepository, "marshal message metadata", err)
	}
	usageJSON, err := marshalJSON(msg.Usage)
	if err != nil {
		return models.NewError(models.KindRepository, "marshal message usage", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, tool_use_id, sequence, metadata, agent_id, agent_name, from_instance_id, response_id, usage, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID.String(), msg.SessionID.String(), string(msg.Role), msg.Content, nullString(msg.ToolUseID), msg.Sequence,
		metaJSON, nullString(msg.AgentID), nullString(msg.AgentName), nullUUID(msg.FromInstanceID), nullString(msg.ResponseID),
		usageJSON, msg.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return models.NewError(models.KindRepository, "insert message", err)
	}
	return nil
}

func (s *SQLiteStore) GetHistory(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.Message, error) {
	// A positive limit must return the most recent N messages, still in
	// chronological order, matching MemoryStore.GetHistory — order by
	// created_at DESC to take the tail, then re-sort ascending for the
	// caller.
	query := `SELECT id, session_id, role, content, tool_use_id, sequence, metadata, agent_id, agent_name, from_instance_id, response_id, usage, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at ASC`
	args := []any{sessionID.String()}
	if limit > 0 {
		query = `SELECT * FROM (SELECT id, session_id, role, content, tool_use_id, sequence, metadata, agent_id, agent_name, from_instance_id, response_id, usage, created_at
			FROM messages WHERE session_id = ? ORDER BY created_at DESC LIMIT ?) ORDER BY created_at ASC`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, models.NewError(models.KindRepository, "get history", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var (
			id, sessionIDStr, role, content, createdAt                       string
			sequence                                                        int
			toolUseID, metaJSON, agentID, agentName, fromInstance, respID   sql.NullString
			usageJSON                                                       sql.NullString
		)
		if err := rows.Scan(&id, &sessionIDStr, &role, &content, &toolUseID, &sequence, &metaJSON, &agentID, &agentName, &fromInstance, &respID, &usageJSON, &createdAt); err != nil {
			return nil, models.NewError(models.KindRepository, "scan message row", err)
		}
		mid, _ := uuid.Parse(id)
		sid, _ := uuid.Parse(sessionIDStr)
		meta, _ := unmarshalJSON[map[string]any](metaJSON)
		usage, _ := unmarshalJSON[*models.TokenUsage](usageJSON)
		createdT, _ := time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, &models.Message{
			ID: mid, SessionID: sid, Role: models.MessageRole(role), Content: content, ToolUseID: parseNullString(toolUseID),
			Sequence: sequence, Metadata: meta, AgentID: parseNullString(agentID), AgentName: parseNullString(agentName),
			FromInstanceID: parseNullUUID(fromInstance), ResponseID: parseNullString(respID), Usage: usage, CreatedAt: createdT,
		})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteMessages(ctx context.Context, sessionID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID.String())
	if err != nil {
		return models.NewError(models.KindRepository, "delete messages", err)
	}
	return nil
}

func (s *SQLiteStore) CreateProject(ctx context.Context, project *models.Project) error {
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	now := time.Now()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = project.CreatedAt
	teamJSON, err := marshalJSON(project.TeamMemberIDs)
	if err != nil {
		return models.NewError(models.KindRepository, "marshal team members", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, path, pm_agent_id, pm_session_id, team_member_ids, created_by, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		project.ID.String(), project.Name, project.Description, project.Path, nullString(project.PMAgentID),
		nullUUID(project.PMSessionID), teamJSON, project.CreatedBy,
		project.CreatedAt.UTC().Format(time.RFC3339Nano), project.UpdatedAt.UTC().Format(time.RFC3339Nano), nullTime(project.DeletedAt))
	if err != nil {
		return models.NewError(models.KindRepository, "insert project", err)
	}
	return nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, path, pm_agent_id, pm_session_id, team_member_ids, created_by, created_at, updated_at, deleted_at
		FROM projects WHERE id = ?`, id.String())

	var (
		idStr, name, description, path, createdBy, createdAt, updatedAt string
		pmAgentID, pmSessionID, teamJSON, deletedAt                     sql.NullString
	)
	if err := row.Scan(&idStr, &name, &description, &path, &pmAgentID, &pmSessionID, &teamJSON, &createdBy, &createdAt, &updatedAt, &deletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NewError(models.KindNotFound, "project not found", nil).WithContext("project_id", id)
		}
		return nil, models.NewError(models.KindRepository, "scan project", err)
	}
	team, _ := unmarshalJSON[[]string](teamJSON)
	uid, _ := uuid.Parse(idStr)
	createdT, _ := time.Parse(time.RFC3339Nano, createdAt)
	updatedT, _ := time.Parse(time.RFC3339Nano, updatedAt)

	return &models.Project{
		ID: uid, Name: name, Description: description, Path: path, PMAgentID: parseNullString(pmAgentID),
		PMSessionID: parseNullUUID(pmSessionID), TeamMemberIDs: team, CreatedBy: createdBy,
		CreatedAt: createdT, UpdatedAt: updatedT, DeletedAt: parseNullTime(deletedAt),
	}, nil
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = time.Now()
	teamJSON, err := marshalJSON(project.TeamMemberIDs)
	if err != nil {
		return models.NewError(models.KindRepository, "marshal team members", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET name=?, description=?, path=?, pm_agent_id=?, pm_session_id=?, team_member_ids=?, updated_at=?, deleted_at=?
		WHERE id = ?`,
		project.Name, project.Description, project.Path, nullString(project.PMAgentID), nullUUID(project.PMSessionID),
		teamJSON, project.UpdatedAt.UTC().Format(time.RFC3339Nano), nullTime(project.DeletedAt), project.ID.String())
	if err != nil {
		return models.NewError(models.KindRepository, "update project", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewError(models.KindNotFound, "project not found", nil).WithContext("project_id", project.ID)
	}
	return nil
}

func (s *SQLiteStore) AppendActivity(ctx context.Context, entry *models.ActivityLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	dataJSON, err := marshalJSON(entry.EventData)
	if err != nil {
		return models.NewError(models.KindRepository, "marshal activity data", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, session_id, event_type, event_data, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ID.String(), nullUUID(entry.SessionID), entry.EventType, dataJSON, entry.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return models.NewError(models.KindRepository, "insert activity", err)
	}
	return nil
}
