// Package agentrepo owns the <dir>/<id>/CLAUDE.md tree: parsing, writing,
// listing, soft-deleting, and hot-reloading file-backed Agent definitions.
// Adapted from the skill manager's discovery/watch shape (fsnotify hot
// reload, directory-name-as-id) applied to the agent frontmatter schema.
package agentrepo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/haasonsaas/agentcore/internal/frontmatter"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// Filename is the expected agent definition filename within each agent's
// directory.
const Filename = "CLAUDE.md"

// deletedSuffix marks a soft-deleted agent directory.
const deletedSuffix = ".deleted"

// Repository is a file-backed, hot-reloading store of Agent definitions.
type Repository struct {
	dir    string
	logger *slog.Logger

	mu     sync.RWMutex
	agents map[string]*models.Agent

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
}

// New creates a Repository rooted at dir, performing an initial Discover.
func New(dir string) (*Repository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("agentrepo: create dir: %w", err)
	}
	r := &Repository{
		dir:    dir,
		logger: slog.Default().With("component", "agentrepo"),
		agents: make(map[string]*models.Agent),
	}
	if err := r.Discover(); err != nil {
		return nil, err
	}
	return r, nil
}

// Discover rescans dir, replacing the in-memory table.
func (r *Repository) Discover() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("agentrepo: read dir: %w", err)
	}

	found := make(map[string]*models.Agent)
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasSuffix(entry.Name(), deletedSuffix) {
			continue
		}
		id := entry.Name()
		agent, err := r.load(id)
		if err != nil {
			r.logger.Warn("agent load failed", "id", id, "error", err)
			continue
		}
		found[id] = agent
	}

	r.mu.Lock()
	r.agents = found
	r.mu.Unlock()
	return nil
}

func (r *Repository) load(id string) (*models.Agent, error) {
	path := filepath.Join(r.dir, id, Filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var agent models.Agent
	body, err := frontmatter.Parse(data, &agent)
	if err != nil {
		return nil, err
	}
	if agent.Name == "" {
		return nil, fmt.Errorf("agentrepo: %s: name is required", id)
	}
	agent.ID = id
	agent.Body = body
	return &agent, nil
}

// Get returns the agent with the given id.
func (r *Repository) Get(id string) (*models.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[id]
	if !ok {
		return nil, models.NewError(models.KindNotFound, "agent not found", nil).WithContext("agent_id", id)
	}
	return agent, nil
}

// List returns all known agents, optionally filtered by tag.
func (r *Repository) List(tag string) []*models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		if tag != "" && !hasTag(agent.Tags, tag) {
			continue
		}
		out = append(out, agent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Write creates or overwrites an agent's CLAUDE.md, always emitting list
// fields in YAML flow style.
func (r *Repository) Write(agent *models.Agent) error {
	if agent.Name == "" {
		return models.NewError(models.KindValidation, "name is required", nil)
	}
	dir := filepath.Join(r.dir, agent.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.NewError(models.KindRepository, "create agent dir", err)
	}
	data, err := frontmatter.Render(agent, agent.Body)
	if err != nil {
		return models.NewError(models.KindRepository, "render agent frontmatter", err)
	}
	if err := os.WriteFile(filepath.Join(dir, Filename), data, 0o644); err != nil {
		return models.NewError(models.KindRepository, "write agent file", err)
	}

	r.mu.Lock()
	r.agents[agent.ID] = agent
	r.mu.Unlock()
	return nil
}

// SoftDelete renames the agent's directory to "<id>.deleted", following
// the same best-effort, logged-not-panicked convention the skill manager
// uses for its own filesystem removal handling.
func (r *Repository) SoftDelete(id string) error {
	r.mu.Lock()
	_, ok := r.agents[id]
	delete(r.agents, id)
	r.mu.Unlock()
	if !ok {
		return models.NewError(models.KindNotFound, "agent not found", nil).WithContext("agent_id", id)
	}

	src := filepath.Join(r.dir, id)
	dst := filepath.Join(r.dir, id+deletedSuffix)
	if err := os.Rename(src, dst); err != nil {
		r.logger.Warn("agent soft-delete rename failed", "id", id, "error", err)
		return models.NewError(models.KindRepository, "soft delete agent", err)
	}
	return nil
}

// Watch starts a background fsnotify watcher on dir and re-Discovers on
// any create/write/remove/rename event, debounced by a small delay to
// coalesce bursts from editors that write multiple times per save.
func (r *Repository) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("agentrepo: new watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("agentrepo: watch dir: %w", err)
	}
	r.watcher = watcher

	watchCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	go r.watchLoop(watchCtx)
	return nil
}

func (r *Repository) watchLoop(ctx context.Context) {
	var debounce *time.Timer
	reload := func() {
		if err := r.Discover(); err != nil {
			r.logger.Warn("agent reload failed", "error", err)
		}
	}
	for {
		select {
		case <-ctx.Done():
			r.watcher.Close()
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, reload)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("agent watcher error", "error", err)
		}
	}
}

// Close stops the background watcher, if any.
func (r *Repository) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}
