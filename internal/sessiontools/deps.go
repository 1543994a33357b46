package sessiontools

import (
	"context"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/internal/agentrepo"
	"github.com/haasonsaas/agentcore/internal/sessioncore"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// Enqueuer is the narrow slice of *sessionexec.Executor these tools need:
// deliver content into a session's processing queue with sender
// attribution. Defined here, in the consuming package, rather than
// imported from sessionexec directly, so sessionexec can in turn dispatch
// tool calls into this package without the two packages importing each
// other. *sessionexec.Executor satisfies this interface unmodified.
type Enqueuer interface {
	Enqueue(ctx context.Context, sessionID uuid.UUID, content string, sender *models.MessageSender) error
}

// Deps bundles the collaborators every tool in this package needs: the
// durable store for lookups, the lock for transitions, the executor to
// enqueue deliveries through, and the agent repository for identity
// lookups (spawn validation, team member names).
type Deps struct {
	Store    sessioncore.Store
	Locker   sessioncore.Locker
	Executor Enqueuer
	Agents   *agentrepo.Repository
}

// transitionToWorking moves target to working, clearing any error_message
// and syncing its kanban projection, mirroring the executor's own private
// transition helper — duplicated here rather than exported because a tool
// waking a session is a narrower operation than the executor's own
// lock-guarded state machine and has no other caller.
func transitionToWorking(ctx context.Context, d Deps, target *models.Session) error {
	release, err := d.Locker.Lock(ctx, target.ID)
	if err != nil {
		return err
	}
	defer release()

	if target.Status != models.StatusWorking {
		if !models.CanTransition(target.Status, models.StatusWorking) {
			return models.ErrInvalidTransition.WithContext("from", target.Status).WithContext("to", models.StatusWorking)
		}
		target.Status = models.StatusWorking
	}
	target.ErrorMessage = nil
	target.SyncKanbanStage()
	return d.Store.UpdateSession(ctx, target)
}
