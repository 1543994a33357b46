// Package skillrepo owns the <dir>/<id>/SKILL.md tree, mirroring
// agentrepo's shape for the skill frontmatter schema.
package skillrepo

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

// Filename is the expected skill definition filename within each skill's
// directory.
const Filename = "SKILL.md"

const deletedSuffix = ".deleted"

// Repository is a file-backed, hot-reloading store of Skill definitions.
type Repository struct {
	dir    string
	logger *slog.Logger

	mu     sync.RWMutex
	skills map[string]*models.Skill

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
}

// New creates a Repository rooted at dir, performing an initial Discover.
func New(dir string) (*Repository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("skillrepo: create dir: %w", err)
	}
	r := &Repository{
		dir:    dir,
		logger: slog.Default().With("component", "skillrepo"),
		skills: make(map[string]*models.Skill),
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
		return fmt.Errorf("skillrepo: read dir: %w", err)
	}

	found := make(map[string]*models.Skill)
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasSuffix(entry.Name(), deletedSuffix) {
			continue
		}
		id := entry.Name()
		skill, err := r.load(id)
		if err != nil {
			r.logger.Warn("skill load failed", "id", id, "error", err)
			continue
		}
		found[id] = skill
	}

	r.mu.Lock()
	r.skills = found
	r.mu.Unlock()
	return nil
}

func (r *Repository) load(id string) (*models.Skill, error) {
	path := filepath.Join(r.dir, id, Filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var skill models.Skill
	body, err := frontmatter.Parse(data, &skill)
	if err != nil {
		return nil, err
	}
	if skill.Name == "" {
		return nil, fmt.Errorf("skillrepo: %s: name is required", id)
	}
	skill.ID = id
	skill.Body = body
	return &skill, nil
}

// Get returns the skill with the given id.
func (r *Repository) Get(id string) (*models.Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	skill, ok := r.skills[id]
	if !ok {
		return nil, models.NewError(models.KindNotFound, "skill not found", nil).WithContext("skill_id", id)
	}
	return skill, nil
}

// GetMany resolves a list of skill ids, skipping any that are missing
// rather than failing the whole lookup — the session builder wants "as
// many previews as exist", not an all-or-nothing fetch.
func (r *Repository) GetMany(ids []string) []*models.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Skill, 0, len(ids))
	for _, id := range ids {
		if skill, ok := r.skills[id]; ok {
			out = append(out, skill)
		}
	}
	return out
}

// List returns all known skills, optionally filtered by tag.
func (r *Repository) List(tag string) []*models.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Skill, 0, len(r.skills))
	for _, skill := range r.skills {
		if tag != "" && !hasTag(skill.Tags, tag) {
			continue
		}
		out = append(out, skill)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Preview returns the truncated body preview for a skill id, or "" if the
// skill is unknown.
func (r *Repository) Preview(id string) string {
	r.mu.RLock()
	skill, ok := r.skills[id]
	r.mu.RUnlock()
	if !ok {
		return ""
	}
	return skill.Preview()
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Write creates or overwrites a skill's SKILL.md, always emitting list
// fields in YAML flow style.
func (r *Repository) Write(skill *models.Skill) error {
	if skill.Name == "" {
		return models.NewError(models.KindValidation, "name is required", nil)
	}
	dir := filepath.Join(r.dir, skill.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.NewError(models.KindRepository, "create skill dir", err)
	}
	data, err := frontmatter.Render(skill, skill.Body)
	if err != nil {
		return models.NewError(models.KindRepository, "render skill frontmatter", err)
	}
	if err := os.WriteFile(filepath.Join(dir, Filename), data, 0o644); err != nil {
		return models.NewError(models.KindRepository, "write skill file", err)
	}

	r.mu.Lock()
	r.skills[skill.ID] = skill
	r.mu.Unlock()
	return nil
}

// SoftDelete renames the skill's directory to "<id>.deleted".
func (r *Repository) SoftDelete(id string) error {
	r.mu.Lock()
	_, ok := r.skills[id]
	delete(r.skills, id)
	r.mu.Unlock()
	if !ok {
		return models.NewError(models.KindNotFound, "skill not found", nil).WithContext("skill_id", id)
	}

	src := filepath.Join(r.dir, id)
	dst := filepath.Join(r.dir, id+deletedSuffix)
	if err := os.Rename(src, dst); err != nil {
		r.logger.Warn("skill soft-delete rename failed", "id", id, "error", err)
		return models.NewError(models.KindRepository, "soft delete skill", err)
	}
	return nil
}

// Watch starts a background fsnotify watcher on dir and re-Discovers on
// any create/write/remove/rename event, debounced to coalesce bursts.
func (r *Repository) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("skillrepo: new watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("skillrepo: watch dir: %w", err)
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
			r.logger.Warn("skill reload failed", "error", err)
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
			r.logger.Warn("skill watcher error", "error", err)
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
