package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/orbitalworks/constel/pkg/observability"
)

const tracerName = "github.com/orbitalworks/constel/pkg/access"

// Resolver computes effective permission sets. It is read-only: it owns no
// state and recomputes from current repository data on every call, so no
// cross-entity transaction is required.
type Resolver struct {
	repos   Repositories
	cache   *ResolutionCache
	metrics *observability.Metrics
	logger  *observability.Logger
	tracer  trace.Tracer
}

// NewResolver creates a resolver over the given repositories.
func NewResolver(repos Repositories, logger *observability.Logger) *Resolver {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Resolver{
		repos:  repos,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// WithCache attaches an optional resolution cache.
func (r *Resolver) WithCache(cache *ResolutionCache) *Resolver {
	r.cache = cache
	return r
}

// WithMetrics attaches optional Prometheus metrics.
func (r *Resolver) WithMetrics(m *observability.Metrics) *Resolver {
	r.metrics = m
	return r
}

// Resolve returns the user's effective permission set for a module,
// globally scoped. A missing user resolves to the empty set; the caller is
// responsible for surfacing a not-found error upstream if it needs one.
func (r *Resolver) Resolve(ctx context.Context, userID string, module Module) (PermissionSet, error) {
	ctx, span := r.tracer.Start(ctx, "access.Resolve",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("access.module", string(module)),
		))
	defer span.End()

	start := time.Now()
	set, err := r.resolveGlobal(ctx, userID, module)
	r.observe(module, "global", start, err)
	return set, err
}

// ResolveProject returns the user's effective permission set for the
// constellation module scoped to one project. A user without a membership
// for the project resolves to the empty set.
func (r *Resolver) ResolveProject(ctx context.Context, userID, projectID string) (PermissionSet, error) {
	ctx, span := r.tracer.Start(ctx, "access.ResolveProject",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("project.id", projectID),
		))
	defer span.End()

	start := time.Now()
	set, err := r.resolveProject(ctx, userID, projectID)
	r.observe(ModuleConstellation, "project", start, err)
	return set, err
}

// ResolveProjectViewer3d returns the project-scoped set filtered down to
// the viewer3d-prefixed permission identifiers.
func (r *Resolver) ResolveProjectViewer3d(ctx context.Context, userID, projectID string) (PermissionSet, error) {
	set, err := r.ResolveProject(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	return set.FilterPrefix(Viewer3dPrefix), nil
}

// HasAnyPermission reports whether the user holds at least one of the
// required permissions in the module (project-scoped when projectID is
// non-empty). Any internal resolution shortfall yields false rather than
// an error, preserving a fail-closed posture for authorization checks.
func (r *Resolver) HasAnyPermission(ctx context.Context, userID string, module Module, required []PermissionID, projectID string) bool {
	if len(required) == 0 {
		return false
	}

	var (
		set PermissionSet
		err error
	)
	if projectID != "" {
		set, err = r.ResolveProject(ctx, userID, projectID)
	} else {
		set, err = r.Resolve(ctx, userID, module)
	}
	if err != nil {
		r.logger.WithError(err).WithFields(map[string]interface{}{
			"user_id": userID,
			"module":  module,
		}).Warn("permission check failed closed")
		return false
	}
	return set.ContainsAny(required...)
}

// IsAdminOverride reports whether resolution for the user and module would
// short-circuit to the full permission universe.
func (r *Resolver) IsAdminOverride(ctx context.Context, userID string, module Module) (bool, error) {
	user, err := r.repos.Users.FindByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load user: %w", err)
	}
	return IsAdminOf(user.AccessAssignments, module), nil
}

// WouldNarrowPermissions reports whether replacing the user's directly
// assigned profiles of the given kind with newProfileIDs would lose at
// least one permission. The comparison is against the user's current full
// resolved set, group-inherited grants included, matching the behavior the
// confirmation prompts were built around.
func (r *Resolver) WouldNarrowPermissions(ctx context.Context, userID string, newProfileIDs []string, kind ProfileKind) (bool, error) {
	var module Module
	switch kind {
	case ProfileKindSecurity:
		module = ModuleConstellation
	case ProfileKindViewer3d:
		module = ModuleViewer3d
	default:
		return false, fmt.Errorf("unsupported profile kind %q", kind)
	}

	user, err := r.repos.Users.FindByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load user: %w", err)
	}
	if IsAdminOf(user.AccessAssignments, module) {
		// Admins hold the full universe regardless of profiles.
		return false, nil
	}

	current, err := r.resolveGlobalFor(ctx, user, module, directProfileIDs(user, module))
	if err != nil {
		return false, err
	}
	prospective, err := r.resolveGlobalFor(ctx, user, module, newProfileIDs)
	if err != nil {
		return false, err
	}
	return WouldNarrow(current, prospective), nil
}

// WouldNarrowProjectPermissions is the project-scoped variant: it compares
// the user's current resolved set for the project against the set resolved
// with the direct project-profile assignments replaced.
func (r *Resolver) WouldNarrowProjectPermissions(ctx context.Context, userID, projectID string, newProfileIDs []string) (bool, error) {
	user, err := r.repos.Users.FindByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load user: %w", err)
	}
	if IsAdminOf(user.AccessAssignments, ModuleConstellation) {
		return false, nil
	}
	membership := user.MembershipFor(projectID)
	if membership == nil {
		return false, nil
	}

	current, err := r.resolveMembership(ctx, membership, membership.ProjectProfileIDs)
	if err != nil {
		return false, err
	}
	prospective, err := r.resolveMembership(ctx, membership, newProfileIDs)
	if err != nil {
		return false, err
	}
	return WouldNarrow(current, prospective), nil
}

func (r *Resolver) resolveGlobal(ctx context.Context, userID string, module Module) (PermissionSet, error) {
	if cached, ok := r.cacheGet(ctx, userID, module, ""); ok {
		return cached, nil
	}

	user, err := r.repos.Users.FindByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return NewPermissionSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if IsAdminOf(user.AccessAssignments, module) {
		if r.metrics != nil {
			r.metrics.AdminOverridesTotal.WithLabelValues(string(module)).Inc()
		}
		set := NewPermissionSet(PermissionUniverse(module)...)
		r.cacheSet(ctx, userID, module, "", set)
		return set, nil
	}

	set, err := r.resolveGlobalFor(ctx, user, module, directProfileIDs(user, module))
	if err != nil {
		return nil, err
	}
	r.cacheSet(ctx, userID, module, "", set)
	return set, nil
}

// resolveGlobalFor unions the permissions of the given direct profile ids
// with the profiles inherited through the user's groups for the module.
// Direct and group reads are independent, so they run concurrently.
func (r *Resolver) resolveGlobalFor(ctx context.Context, user *User, module Module, directIDs []string) (PermissionSet, error) {
	if module != ModuleConstellation && module != ModuleViewer3d {
		// The platform module carries no profiles; only admin override
		// grants permissions there.
		return NewPermissionSet(), nil
	}

	var direct, inherited PermissionSet
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		set, err := r.loadProfilePermissions(gctx, module, dedupeStrings(directIDs))
		if err != nil {
			return err
		}
		direct = set
		return nil
	})

	g.Go(func() error {
		groups, err := r.repos.Groups.FindByIDs(gctx, user.GroupIDsFor(module))
		if err != nil {
			return fmt.Errorf("failed to load groups: %w", err)
		}
		ids := make([]string, 0, len(groups))
		for _, group := range groups {
			if id := group.ProfileID(); id != "" {
				ids = append(ids, id)
			}
		}
		set, err := r.loadProfilePermissions(gctx, module, dedupeStrings(ids))
		if err != nil {
			return err
		}
		inherited = set
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return Union(direct, inherited), nil
}

func (r *Resolver) resolveProject(ctx context.Context, userID, projectID string) (PermissionSet, error) {
	if cached, ok := r.cacheGet(ctx, userID, ModuleConstellation, projectID); ok {
		return cached, nil
	}

	user, err := r.repos.Users.FindByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return NewPermissionSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if IsAdminOf(user.AccessAssignments, ModuleConstellation) {
		if r.metrics != nil {
			r.metrics.AdminOverridesTotal.WithLabelValues(string(ModuleConstellation)).Inc()
		}
		set := NewPermissionSet(AllProjectPermissions()...)
		r.cacheSet(ctx, userID, ModuleConstellation, projectID, set)
		return set, nil
	}

	membership := user.MembershipFor(projectID)
	if membership == nil {
		return NewPermissionSet(), nil
	}

	set, err := r.resolveMembership(ctx, membership, membership.ProjectProfileIDs)
	if err != nil {
		return nil, err
	}
	r.cacheSet(ctx, userID, ModuleConstellation, projectID, set)
	return set, nil
}

// resolveMembership unions the permissions of the given direct
// project-profile ids with those inherited through the membership's
// project-groups.
func (r *Resolver) resolveMembership(ctx context.Context, membership *ProjectMembership, directIDs []string) (PermissionSet, error) {
	var direct, inherited PermissionSet
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		profiles, err := r.repos.ProjectProfiles.FindByIDs(gctx, dedupeStrings(directIDs))
		if err != nil {
			return fmt.Errorf("failed to load project profiles: %w", err)
		}
		direct = unionProjectProfiles(profiles)
		return nil
	})

	g.Go(func() error {
		projectGroups, err := r.repos.ProjectGroups.FindByIDs(gctx, membership.ProjectGroupIDs)
		if err != nil {
			return fmt.Errorf("failed to load project groups: %w", err)
		}
		ids := make([]string, 0, len(projectGroups))
		for _, pg := range projectGroups {
			if pg.ProjectProfileID != "" {
				ids = append(ids, pg.ProjectProfileID)
			}
		}
		profiles, err := r.repos.ProjectProfiles.FindByIDs(gctx, dedupeStrings(ids))
		if err != nil {
			return fmt.Errorf("failed to load project profiles: %w", err)
		}
		inherited = unionProjectProfiles(profiles)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return Union(direct, inherited), nil
}

// loadProfilePermissions loads the profiles of the module's kind and unions
// their permissions. Identifiers that no longer resolve are skipped by the
// repository, which gives the best-effort union semantics soft-delete implies.
func (r *Resolver) loadProfilePermissions(ctx context.Context, module Module, ids []string) (PermissionSet, error) {
	set := NewPermissionSet()
	if len(ids) == 0 {
		return set, nil
	}

	switch module {
	case ModuleConstellation:
		profiles, err := r.repos.SecurityProfiles.FindByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load security profiles: %w", err)
		}
		for _, p := range profiles {
			for _, perm := range p.Permissions {
				set.Add(perm)
			}
		}
	case ModuleViewer3d:
		profiles, err := r.repos.Viewer3dProfiles.FindByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load viewer3d profiles: %w", err)
		}
		for _, p := range profiles {
			for _, perm := range p.Permissions {
				set.Add(perm)
			}
		}
	}
	return set, nil
}

func (r *Resolver) cacheGet(ctx context.Context, userID string, module Module, projectID string) (PermissionSet, bool) {
	if r.cache == nil {
		return nil, false
	}
	set, ok := r.cache.Get(ctx, userID, module, projectID)
	if r.metrics != nil {
		if ok {
			r.metrics.CacheHitsTotal.Inc()
		} else {
			r.metrics.CacheMissesTotal.Inc()
		}
	}
	return set, ok
}

func (r *Resolver) cacheSet(ctx context.Context, userID string, module Module, projectID string, set PermissionSet) {
	if r.cache == nil {
		return
	}
	r.cache.Set(ctx, userID, module, projectID, set)
}

func (r *Resolver) observe(module Module, scope string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.metrics.ResolutionsTotal.WithLabelValues(string(module), scope, outcome).Inc()
	r.metrics.ResolutionDuration.WithLabelValues(string(module), scope).Observe(time.Since(start).Seconds())
}

func directProfileIDs(user *User, module Module) []string {
	switch module {
	case ModuleConstellation:
		return user.SecurityProfileIDs
	case ModuleViewer3d:
		return user.Viewer3dProfileIDs
	default:
		return nil
	}
}

func unionProjectProfiles(profiles []*ProjectProfile) PermissionSet {
	set := NewPermissionSet()
	for _, p := range profiles {
		for _, perm := range p.Permissions {
			set.Add(perm)
		}
	}
	return set
}

func dedupeStrings(in []string) []string {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
