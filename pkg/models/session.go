// Package models holds the aggregate types shared by the session store,
// the executor, and the inter-session tools. It has no behavior of its
// own beyond small pure projections (kanban derivation, transition checks).
package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionType is the archetypal role a session plays.
type SessionType string

const (
	SessionTypePM             SessionType = "pm"
	SessionTypeSpecialist     SessionType = "specialist"
	SessionTypeAssistant      SessionType = "assistant"
	SessionTypeAgentAssistant SessionType = "agent_assistant"
	SessionTypeSkillAssistant SessionType = "skill_assistant"
)

// SessionStatus is the session's lifecycle state.
type SessionStatus string

const (
	StatusInitializing SessionStatus = "initializing"
	StatusIdle          SessionStatus = "idle"
	StatusWorking       SessionStatus = "working"
	StatusError         SessionStatus = "error"
	StatusInterrupted   SessionStatus = "interrupted"
	StatusCompleted     SessionStatus = "completed"
	StatusCancelled     SessionStatus = "cancelled"
)

// KanbanStage is the UI-facing projection of a session's status.
type KanbanStage string

const (
	KanbanBacklog KanbanStage = "backlog"
	KanbanActive  KanbanStage = "active"
	KanbanWaiting KanbanStage = "waiting"
	KanbanDone    KanbanStage = "done"
)

// KanbanStageFor derives the read-only kanban projection for a status, per
// the fixed table: initializing->backlog, idle->waiting, working->active,
// completed/cancelled->done, error/interrupted->waiting.
func KanbanStageFor(status SessionStatus) KanbanStage {
	switch status {
	case StatusInitializing:
		return KanbanBacklog
	case StatusWorking:
		return KanbanActive
	case StatusCompleted, StatusCancelled:
		return KanbanDone
	case StatusIdle, StatusError, StatusInterrupted:
		return KanbanWaiting
	default:
		return KanbanWaiting
	}
}

// transitions is the adjacency list of the state machine in §4.1: for each
// current status, the set of statuses it may move to.
var transitions = map[SessionStatus]map[SessionStatus]bool{
	StatusInitializing: {StatusWorking: true, StatusIdle: true},
	StatusIdle:         {StatusWorking: true, StatusCancelled: true},
	StatusWorking:      {StatusIdle: true, StatusError: true, StatusInterrupted: true, StatusCompleted: true},
	StatusError:        {StatusIdle: true, StatusWorking: true},
	StatusInterrupted:  {StatusIdle: true},
	StatusCompleted:    {StatusIdle: true},
	StatusCancelled:    {},
}

// CanTransition reports whether moving from "from" to "to" is legal.
func CanTransition(from, to SessionStatus) bool {
	if from == to {
		return false
	}
	next, ok := transitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// ClearsErrorMessage reports whether a transition into "to" clears
// error_message, per §4.1: cleared on any transition to idle or working.
func ClearsErrorMessage(to SessionStatus) bool {
	return to == StatusIdle || to == StatusWorking
}

const KanbanStageKey = "kanban_stage"

// Session is the aggregate root: a durable container pairing an agent with
// one LLM subprocess client and a message history.
type Session struct {
	ID                uuid.UUID
	AgentID           string
	ProjectID         *uuid.UUID
	SessionType       SessionType
	Status            SessionStatus
	ExternalSessionID *string
	Context           map[string]any
	ErrorMessage      *string
	Title             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
}

// IsDeleted reports whether the session has been soft-deleted.
func (s *Session) IsDeleted() bool {
	return s.DeletedAt != nil
}

// KanbanStage reads the reserved kanban_stage context key, falling back to
// the derived projection of Status if it is absent or malformed.
func (s *Session) KanbanStage() KanbanStage {
	if s.Context != nil {
		if raw, ok := s.Context[KanbanStageKey]; ok {
			if str, ok := raw.(string); ok && str != "" {
				return KanbanStage(str)
			}
		}
	}
	return KanbanStageFor(s.Status)
}

// SyncKanbanStage writes the derived kanban stage for Status into Context,
// creating Context if necessary. The executor calls this on every status
// change so the projection never drifts from the status it derives from.
func (s *Session) SyncKanbanStage() {
	if s.Context == nil {
		s.Context = make(map[string]any)
	}
	s.Context[KanbanStageKey] = string(KanbanStageFor(s.Status))
}

// Validate checks the invariant that PM sessions always belong to a project.
func (s *Session) Validate() error {
	if s.SessionType == SessionTypePM && s.ProjectID == nil {
		return &Error{Kind: KindValidation, Message: "pm session requires project_id"}
	}
	return nil
}
