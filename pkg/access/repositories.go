package access

import "context"

// Repository contracts consumed by the resolver and the consistency engine.
// Implementations must apply the soft-delete filter as a default scope:
// tombstoned entities never come back from any of these reads, so the
// resolution algorithms never restate the condition.
//
// Batch lookups are best-effort: identifiers that no longer resolve are
// omitted from the result, not reported as errors. Transport and storage
// failures are returned unchanged.

// UserRepository owns the User aggregate.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByIDs(ctx context.Context, ids []string) ([]*User, error)

	// FindByGroup returns every user that is a member of the group.
	FindByGroup(ctx context.Context, groupID string) ([]*User, error)

	// RemoveAllConnections strips the project from the user's assigned and
	// admin project lists and deletes the matching ProjectMembership entry,
	// all-or-nothing. Revoking an absent connection is a no-op.
	RemoveAllConnections(ctx context.Context, userID, projectID string) error
}

// GroupRepository reads module-scoped groups.
type GroupRepository interface {
	FindByIDs(ctx context.Context, ids []string) ([]*Group, error)
}

// ProjectGroupRepository reads project-scoped groups.
type ProjectGroupRepository interface {
	FindByIDs(ctx context.Context, ids []string) ([]*ProjectGroup, error)
}

// SecurityProfileRepository reads constellation-global profiles.
type SecurityProfileRepository interface {
	FindByIDs(ctx context.Context, ids []string) ([]*SecurityProfile, error)
}

// Viewer3dProfileRepository reads 3D-viewer profiles.
type Viewer3dProfileRepository interface {
	FindByIDs(ctx context.Context, ids []string) ([]*Viewer3dProfile, error)
}

// ProjectProfileRepository reads project-scoped profiles.
type ProjectProfileRepository interface {
	FindByIDs(ctx context.Context, ids []string) ([]*ProjectProfile, error)
}

// ProjectRepository reads projects.
type ProjectRepository interface {
	FindByID(ctx context.Context, id string) (*Project, error)
}

// Repositories bundles every repository the engine consumes. The Postgres
// store satisfies all of them; tests may swap in fakes per field.
type Repositories struct {
	Users            UserRepository
	Groups           GroupRepository
	ProjectGroups    ProjectGroupRepository
	SecurityProfiles SecurityProfileRepository
	Viewer3dProfiles Viewer3dProfileRepository
	ProjectProfiles  ProjectProfileRepository
	Projects         ProjectRepository
}

// RevocationQueue accepts revocations that could not be applied inline so
// they can be retried with at-least-once delivery. Revoking twice is a
// no-op, which keeps the retry path safe.
type RevocationQueue interface {
	Enqueue(ctx context.Context, userID, projectID, cause string) error
}
