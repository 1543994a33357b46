package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/internal/projectoverlay"
	"github.com/haasonsaas/agentcore/internal/sessioncore"
	"github.com/haasonsaas/agentcore/internal/sessionexec"
	"github.com/haasonsaas/agentcore/internal/ssehub"
)

// newSessionsHandler serves two routes under /sessions/{id}/:
//
//	GET  /sessions/{id}/events   — subscribe and stream SSE until the
//	                                client disconnects
//	POST /sessions/{id}/messages — enqueue {"content": "..."} as a plain
//	                                user message
//
// This is the "bare SSE HTTP listener for manual smoke-testing" the spec
// calls for, not a REST API: no pagination, no DTOs, no content
// negotiation beyond JSON bodies in and SSE out.
func newSessionsHandler(store sessioncore.Store, hub *ssehub.Hub, executor *sessionexec.Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 {
			http.NotFound(w, r)
			return
		}
		sessionID, err := uuid.Parse(parts[0])
		if err != nil {
			http.Error(w, "invalid session id", http.StatusBadRequest)
			return
		}

		switch parts[1] {
		case "events":
			if r.Method != http.MethodGet {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			streamEvents(w, r, hub, sessionID)
		case "messages":
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			postMessage(w, r, store, executor, sessionID)
		default:
			http.NotFound(w, r)
		}
	}
}

func streamEvents(w http.ResponseWriter, r *http.Request, hub *ssehub.Hub, sessionID uuid.UUID) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub, unregister := hub.Register(sessionID)
	defer unregister()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	done := make(chan struct{})
	go func() {
		<-r.Context().Done()
		close(done)
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- ssehub.WriteStream(w, sub, flusher.Flush) }()

	select {
	case <-done:
	case <-errCh:
	}
}

func postMessage(w http.ResponseWriter, r *http.Request, store sessioncore.Store, executor *sessionexec.Executor, sessionID uuid.UUID) {
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Content) == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}
	if _, err := store.GetSession(r.Context(), sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err := executor.Enqueue(r.Context(), sessionID, body.Content, nil); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// newProjectsHandler exposes project creation over POST only — enough to
// smoke-test the create/PM-assignment flow from a
// terminal, not a full project REST surface.
func newProjectsHandler(overlay *projectoverlay.Overlay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Name          string   `json:"name"`
			Description   string   `json:"description"`
			Path          string   `json:"path"`
			PMAgentID     *string  `json:"pm_agent_id"`
			TeamMemberIDs []string `json:"team_member_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(body.Name) == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		project, err := overlay.CreateProject(r.Context(), body.Name, body.Description, body.Path, body.PMAgentID, body.TeamMemberIDs)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(project)
	}
}
