package access

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/orbitalworks/constel/pkg/async"
	"github.com/orbitalworks/constel/pkg/observability"
)

const defaultRevokeConcurrency = 8

// Reconciler keeps membership graphs consistent after a structural edge is
// removed: it recomputes each affected user's reachability to the project
// and revokes the stale references of those who became unreachable.
//
// Reconciliation is monotonic: it only ever removes reachability. It must
// run exclusively on removal-triggered changes, since grants never require
// revocation. Revocations are awaited with bounded concurrency before
// control returns to the caller; individual failures are collected and,
// when a retry queue is attached, handed over for at-least-once redelivery.
type Reconciler struct {
	users       UserRepository
	groups      GroupRepository
	queue       RevocationQueue
	cache       *ResolutionCache
	metrics     *observability.Metrics
	logger      *observability.Logger
	concurrency int
	tracer      trace.Tracer
}

// NewReconciler creates a reconciler over the user and group repositories.
func NewReconciler(users UserRepository, groups GroupRepository, logger *observability.Logger) *Reconciler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Reconciler{
		users:       users,
		groups:      groups,
		logger:      logger,
		concurrency: defaultRevokeConcurrency,
		tracer:      otel.Tracer(tracerName),
	}
}

// WithQueue attaches a retry queue for revocations that fail inline.
func (r *Reconciler) WithQueue(q RevocationQueue) *Reconciler {
	r.queue = q
	return r
}

// WithCache attaches the resolution cache so revocations invalidate it.
func (r *Reconciler) WithCache(c *ResolutionCache) *Reconciler {
	r.cache = c
	return r
}

// WithMetrics attaches optional Prometheus metrics.
func (r *Reconciler) WithMetrics(m *observability.Metrics) *Reconciler {
	r.metrics = m
	return r
}

// WithConcurrency bounds the parallel revocations per batch.
func (r *Reconciler) WithConcurrency(n int) *Reconciler {
	if n > 0 {
		r.concurrency = n
	}
	return r
}

// ReconcileAfterGroupProjectUnlink re-resolves reachability for every
// member of the group after the group-project edge was removed, and
// revokes the project connections of users who lost their last path.
// It returns the ids of the users that were revoked. A *BatchError is
// returned alongside the affected ids when some revocations failed; those
// users are still counted as affected and, if a queue is attached, their
// revocations are queued for retry.
func (r *Reconciler) ReconcileAfterGroupProjectUnlink(ctx context.Context, groupID, projectID string) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "access.ReconcileAfterGroupProjectUnlink",
		trace.WithAttributes(
			attribute.String("group.id", groupID),
			attribute.String("project.id", projectID),
		))
	defer span.End()

	members, err := r.users.FindByGroup(ctx, groupID)
	if err != nil {
		r.observeReconciliation("group_unlink", false)
		return nil, fmt.Errorf("failed to load group members: %w", err)
	}

	// Pure read phase: decide who loses reachability before any write.
	var unreachable []*User
	for _, user := range members {
		reachable, err := r.reachable(ctx, user, projectID, groupID)
		if err != nil {
			r.observeReconciliation("group_unlink", false)
			return nil, err
		}
		if !reachable {
			unreachable = append(unreachable, user)
		}
	}

	affected := make([]string, 0, len(unreachable))
	errs := async.Batch(ctx, unreachable, r.concurrency, func(ctx context.Context, user *User) error {
		return r.revoke(ctx, user.ID, projectID)
	})

	var failures []RevocationFailure
	for i, user := range unreachable {
		affected = append(affected, user.ID)
		if errs[i] != nil {
			failures = append(failures, RevocationFailure{UserID: user.ID, Err: errs[i]})
		}
	}

	if r.metrics != nil {
		r.metrics.ReconciliationAffected.Observe(float64(len(affected)))
	}
	r.observeReconciliation("group_unlink", len(failures) == 0)
	r.logger.WithFields(map[string]interface{}{
		"group_id":   groupID,
		"project_id": projectID,
		"members":    len(members),
		"revoked":    len(affected),
		"failed":     len(failures),
	}).Info("group-project unlink reconciled")

	if len(failures) > 0 {
		return affected, &BatchError{Failures: failures}
	}
	return affected, nil
}

// ReconcileAfterUserProjectUnassign re-resolves a single user's
// reachability immediately after a direct assignment was removed. It
// returns true when the user's remaining connections were revoked.
func (r *Reconciler) ReconcileAfterUserProjectUnassign(ctx context.Context, userID, projectID string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "access.ReconcileAfterUserProjectUnassign",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("project.id", projectID),
		))
	defer span.End()

	user, err := r.users.FindByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		r.observeReconciliation("user_unassign", false)
		return false, fmt.Errorf("failed to load user: %w", err)
	}

	reachable, err := r.reachable(ctx, user, projectID, "")
	if err != nil {
		r.observeReconciliation("user_unassign", false)
		return false, err
	}
	if reachable {
		r.observeReconciliation("user_unassign", true)
		return false, nil
	}

	if err := r.revoke(ctx, userID, projectID); err != nil {
		r.observeReconciliation("user_unassign", false)
		return false, err
	}
	r.observeReconciliation("user_unassign", true)
	return true, nil
}

// reachable recomputes whether the user still has any path to the project:
// constellation admins are always reachable, then direct assigned/admin
// entries, then any remaining constellation group granting the project.
// excludeGroupID drops the just-removed edge from consideration in case
// the triggering write has not landed in the group document yet.
func (r *Reconciler) reachable(ctx context.Context, user *User, projectID, excludeGroupID string) (bool, error) {
	if IsAdminOf(user.AccessAssignments, ModuleConstellation) {
		return true, nil
	}
	if containsString(user.AssignedProjectIDs, projectID) || containsString(user.AdminProjectIDs, projectID) {
		return true, nil
	}

	remaining := make([]string, 0, len(user.ConstellationGroupIDs))
	for _, id := range user.ConstellationGroupIDs {
		if id != excludeGroupID {
			remaining = append(remaining, id)
		}
	}
	if len(remaining) == 0 {
		return false, nil
	}

	groups, err := r.groups.FindByIDs(ctx, remaining)
	if err != nil {
		return false, fmt.Errorf("failed to load groups: %w", err)
	}
	for _, group := range groups {
		if group.ID == excludeGroupID {
			continue
		}
		if group.GrantsProject(projectID) {
			return true, nil
		}
	}
	return false, nil
}

// revoke strips the user's project connections and invalidates cached
// resolutions. On failure the revocation is enqueued for retry when a
// queue is attached; the inline error is still reported to the caller.
func (r *Reconciler) revoke(ctx context.Context, userID, projectID string) error {
	err := r.users.RemoveAllConnections(ctx, userID, projectID)
	if err == nil {
		if r.metrics != nil {
			r.metrics.RevocationsTotal.WithLabelValues("ok").Inc()
		}
		if r.cache != nil {
			r.cache.Invalidate(ctx, userID)
		}
		return nil
	}

	if r.metrics != nil {
		r.metrics.RevocationsTotal.WithLabelValues("error").Inc()
	}
	if r.queue != nil {
		if qErr := r.queue.Enqueue(ctx, userID, projectID, err.Error()); qErr != nil {
			r.logger.WithError(qErr).WithField("user_id", userID).Error("failed to enqueue revocation retry")
		} else if r.metrics != nil {
			r.metrics.RevocationsTotal.WithLabelValues("queued").Inc()
		}
	}
	return err
}

// Revoke applies a single revocation directly, bypassing the retry queue.
// The queue sweeper calls this when redelivering; it does its own attempt
// bookkeeping, so a failure here must not re-enqueue.
func (r *Reconciler) Revoke(ctx context.Context, userID, projectID string) error {
	if err := r.users.RemoveAllConnections(ctx, userID, projectID); err != nil {
		if r.metrics != nil {
			r.metrics.RevocationsTotal.WithLabelValues("error").Inc()
		}
		return err
	}
	if r.metrics != nil {
		r.metrics.RevocationsTotal.WithLabelValues("ok").Inc()
	}
	if r.cache != nil {
		r.cache.Invalidate(ctx, userID)
	}
	return nil
}

func (r *Reconciler) observeReconciliation(trigger string, ok bool) {
	if r.metrics == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	r.metrics.ReconciliationsTotal.WithLabelValues(trigger, outcome).Inc()
}

func containsString(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
