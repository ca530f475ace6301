package access

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store bundles the SQL-backed repositories over one database handle.
// Every read applies the soft-delete filter (`deleted_at IS NULL`) as a
// default scope so callers never restate it.
type Store struct {
	db *sql.DB

	Users            *UserStore
	Groups           *GroupStore
	ProjectGroups    *ProjectGroupStore
	Projects         *ProjectStore
	SecurityProfiles *SecurityProfileStore
	Viewer3dProfiles *Viewer3dProfileStore
	ProjectProfiles  *ProjectProfileStore
}

// NewStore creates the repository bundle.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:               db,
		Users:            &UserStore{db: db},
		Groups:           &GroupStore{db: db},
		ProjectGroups:    &ProjectGroupStore{db: db},
		Projects:         &ProjectStore{db: db},
		SecurityProfiles: NewSecurityProfileStore(db),
		Viewer3dProfiles: NewViewer3dProfileStore(db),
		ProjectProfiles:  NewProjectProfileStore(db),
	}
}

// Repositories returns the interface bundle the resolver and reconciler
// consume.
func (s *Store) Repositories() Repositories {
	return Repositories{
		Users:            s.Users,
		Groups:           s.Groups,
		ProjectGroups:    s.ProjectGroups,
		SecurityProfiles: s.SecurityProfiles,
		Viewer3dProfiles: s.Viewer3dProfiles,
		ProjectProfiles:  s.ProjectProfiles,
		Projects:         s.Projects,
	}
}

// WithReadReplicas routes plain reads through fn, typically
// (*database.ConnectionManager).Replica. Writes and transactional
// read-modify-write stay on the primary.
func (s *Store) WithReadReplicas(fn func() *sql.DB) *Store {
	s.Users.read = fn
	s.Groups.read = fn
	s.ProjectGroups.read = fn
	s.Projects.read = fn
	s.SecurityProfiles.read = fn
	s.Viewer3dProfiles.read = fn
	s.ProjectProfiles.read = fn
	return s
}

// WithResolutionCache attaches the Redis resolution cache so that writes
// which change resolution inputs drop the affected entries.
func (s *Store) WithResolutionCache(c *ResolutionCache) *Store {
	s.Users.resolution = c
	s.Groups.resolution = c
	s.SecurityProfiles.resolution = c
	s.Viewer3dProfiles.resolution = c
	s.ProjectProfiles.resolution = c
	return s
}

// readDB picks the replica selector when configured, the primary otherwise.
func readDB(read func() *sql.DB, primary *sql.DB) *sql.DB {
	if read != nil {
		return read()
	}
	return primary
}

// UserStore owns the User aggregate.
type UserStore struct {
	db         *sql.DB
	read       func() *sql.DB
	resolution *ResolutionCache
}

const userColumns = `id, email, full_name, status, access_assignments,
	security_profile_ids, viewer3d_profile_ids, assigned_project_ids,
	admin_project_ids, project_memberships, created_at, updated_at`

// FindByID loads a user. Soft-deleted users resolve to ErrNotFound.
func (s *UserStore) FindByID(ctx context.Context, id string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1 AND deleted_at IS NULL`, userColumns)

	user, err := scanUser(readDB(s.read, s.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := s.attachGroupMemberships(ctx, []*User{user}); err != nil {
		return nil, err
	}
	return user, nil
}

// FindByIDs batch-loads users. Identifiers that do not resolve are
// omitted, not reported.
func (s *UserStore) FindByIDs(ctx context.Context, ids []string) ([]*User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM users WHERE id IN (%s) AND deleted_at IS NULL`,
		userColumns, placeholders(1, len(ids)))

	rows, err := readDB(s.read, s.db).QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	if err := s.attachGroupMemberships(ctx, users); err != nil {
		return nil, err
	}
	return users, nil
}

// FindByGroup returns every non-deleted member of the group.
func (s *UserStore) FindByGroup(ctx context.Context, groupID string) ([]*User, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM users u
		JOIN user_groups ug ON ug.user_id = u.id
		WHERE ug.group_id = $1 AND u.deleted_at IS NULL
	`, prefixColumns("u", userColumns))

	rows, err := readDB(s.read, s.db).QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}

	if err := s.attachGroupMemberships(ctx, users); err != nil {
		return nil, err
	}
	return users, nil
}

// Create inserts a user, generating an id when absent.
func (s *UserStore) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Status == "" {
		user.Status = StatusRegistering
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := fmt.Sprintf(`
		INSERT INTO users (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, userColumns)

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.FullName,
		string(user.Status),
		mustJSON(user.AccessAssignments),
		mustJSON(emptySlice(user.SecurityProfileIDs)),
		mustJSON(emptySlice(user.Viewer3dProfileIDs)),
		mustJSON(emptySlice(user.AssignedProjectIDs)),
		mustJSON(emptySlice(user.AdminProjectIDs)),
		mustJSON(emptyMemberships(user.ProjectMemberships)),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// SoftDelete tombstones a user. The default scope hides it from all reads.
func (s *UserStore) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE users SET status = $1, deleted_at = $2 WHERE id = $3 AND deleted_at IS NULL`
	result, err := s.db.ExecContext(ctx, query, string(StatusInactive), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	s.invalidate(ctx, id)
	return nil
}

// AddToGroup records a group membership. Adding an existing membership is
// a no-op.
func (s *UserStore) AddToGroup(ctx context.Context, userID string, group *Group) error {
	query := `
		INSERT INTO user_groups (user_id, group_id, module, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, group_id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query, userID, group.ID, string(group.AccessModule), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add user to group: %w", err)
	}
	s.invalidate(ctx, userID)
	return nil
}

// RemoveFromGroup deletes a group membership. Removing an absent
// membership is a no-op.
func (s *UserStore) RemoveFromGroup(ctx context.Context, userID, groupID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_groups WHERE user_id = $1 AND group_id = $2`, userID, groupID)
	if err != nil {
		return fmt.Errorf("failed to remove user from group: %w", err)
	}
	s.invalidate(ctx, userID)
	return nil
}

// SetSecurityProfiles replaces the user's direct security profile list.
func (s *UserStore) SetSecurityProfiles(ctx context.Context, userID string, profileIDs []string) error {
	err := s.mutate(ctx, userID, func(u *User) {
		u.SecurityProfileIDs = dedupeStrings(profileIDs)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// SetViewer3dProfiles replaces the user's direct viewer3d profile list.
func (s *UserStore) SetViewer3dProfiles(ctx context.Context, userID string, profileIDs []string) error {
	err := s.mutate(ctx, userID, func(u *User) {
		u.Viewer3dProfileIDs = dedupeStrings(profileIDs)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// AssignProject adds a direct project assignment and ensures a membership
// entry exists for the project. Assigning twice is a no-op.
func (s *UserStore) AssignProject(ctx context.Context, userID, projectID string, asAdmin bool) error {
	err := s.mutate(ctx, userID, func(u *User) {
		if asAdmin {
			u.AdminProjectIDs = addString(u.AdminProjectIDs, projectID)
		} else {
			u.AssignedProjectIDs = addString(u.AssignedProjectIDs, projectID)
		}
		if u.MembershipFor(projectID) == nil {
			u.ProjectMemberships = append(u.ProjectMemberships, ProjectMembership{
				ProjectID:         projectID,
				ProjectGroupIDs:   []string{},
				ProjectProfileIDs: []string{},
			})
		}
	})
	if err != nil {
		return err
	}
	s.invalidateProject(ctx, userID, projectID)
	return nil
}

// UnassignProject removes the direct (non-admin) assignment edge only.
// Callers run ReconcileAfterUserProjectUnassign afterwards to decide
// whether the remaining connections must be revoked.
func (s *UserStore) UnassignProject(ctx context.Context, userID, projectID string) error {
	err := s.mutate(ctx, userID, func(u *User) {
		u.AssignedProjectIDs = removeString(u.AssignedProjectIDs, projectID)
	})
	if err != nil {
		return err
	}
	s.invalidateProject(ctx, userID, projectID)
	return nil
}

// SetProjectMembership replaces (or inserts) the membership entry for the
// membership's project.
func (s *UserStore) SetProjectMembership(ctx context.Context, userID string, membership ProjectMembership) error {
	err := s.mutate(ctx, userID, func(u *User) {
		for i := range u.ProjectMemberships {
			if u.ProjectMemberships[i].ProjectID == membership.ProjectID {
				u.ProjectMemberships[i] = membership
				return
			}
		}
		u.ProjectMemberships = append(u.ProjectMemberships, membership)
	})
	if err != nil {
		return err
	}
	s.invalidateProject(ctx, userID, membership.ProjectID)
	return nil
}

// RemoveAllConnections strips the project from the user's assigned and
// admin lists and drops the matching membership entry, all in one
// transaction. Revoking an absent connection is a no-op, which keeps
// retried revocations safe.
func (s *UserStore) RemoveAllConnections(ctx context.Context, userID, projectID string) error {
	err := s.mutate(ctx, userID, func(u *User) {
		u.AssignedProjectIDs = removeString(u.AssignedProjectIDs, projectID)
		u.AdminProjectIDs = removeString(u.AdminProjectIDs, projectID)

		memberships := make([]ProjectMembership, 0, len(u.ProjectMemberships))
		for _, m := range u.ProjectMemberships {
			if m.ProjectID != projectID {
				memberships = append(memberships, m)
			}
		}
		u.ProjectMemberships = memberships
	})
	if err != nil {
		return err
	}
	s.invalidateProject(ctx, userID, projectID)
	return nil
}

// invalidate drops every cached resolution for the user after a write that
// can change the user's global sets.
func (s *UserStore) invalidate(ctx context.Context, userID string) {
	if s.resolution != nil {
		s.resolution.Invalidate(ctx, userID)
	}
}

// invalidateProject drops the cached project-scoped resolution only; the
// project edge lists never feed the global sets.
func (s *UserStore) invalidateProject(ctx context.Context, userID, projectID string) {
	if s.resolution != nil {
		s.resolution.InvalidateProject(ctx, userID, projectID)
	}
}

// mutate loads the user, applies fn to a fresh copy and writes the list
// fields back, all inside a transaction. List edits are by-value set
// operations; no index arithmetic.
func (s *UserStore) mutate(ctx context.Context, userID string, fn func(*User)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1 AND deleted_at IS NULL`, userColumns)
	user, err := scanUser(tx.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	fn(user)

	_, err = tx.ExecContext(ctx, `
		UPDATE users SET
			security_profile_ids = $1,
			viewer3d_profile_ids = $2,
			assigned_project_ids = $3,
			admin_project_ids = $4,
			project_memberships = $5,
			updated_at = $6
		WHERE id = $7
	`,
		mustJSON(emptySlice(user.SecurityProfileIDs)),
		mustJSON(emptySlice(user.Viewer3dProfileIDs)),
		mustJSON(emptySlice(user.AssignedProjectIDs)),
		mustJSON(emptySlice(user.AdminProjectIDs)),
		mustJSON(emptyMemberships(user.ProjectMemberships)),
		time.Now().UTC(),
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return tx.Commit()
}

// attachGroupMemberships fills the per-module group id lists from the
// user_groups join table.
func (s *UserStore) attachGroupMemberships(ctx context.Context, users []*User) error {
	if len(users) == 0 {
		return nil
	}

	byID := make(map[string]*User, len(users))
	ids := make([]string, 0, len(users))
	for _, u := range users {
		byID[u.ID] = u
		ids = append(ids, u.ID)
	}

	query := fmt.Sprintf(`
		SELECT user_id, group_id, module FROM user_groups
		WHERE user_id IN (%s)
	`, placeholders(1, len(ids)))

	rows, err := readDB(s.read, s.db).QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return fmt.Errorf("failed to load group memberships: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID, groupID, module string
		if err := rows.Scan(&userID, &groupID, &module); err != nil {
			return fmt.Errorf("failed to scan group membership: %w", err)
		}
		user, ok := byID[userID]
		if !ok {
			continue
		}
		switch Module(module) {
		case ModuleViewer3d:
			user.Viewer3dGroupIDs = append(user.Viewer3dGroupIDs, groupID)
		default:
			user.ConstellationGroupIDs = append(user.ConstellationGroupIDs, groupID)
		}
	}
	return rows.Err()
}

// GroupStore reads and mutates module-scoped groups.
type GroupStore struct {
	db         *sql.DB
	read       func() *sql.DB
	resolution *ResolutionCache
}

const groupColumns = `id, name, access_module, security_profile_id,
	viewer3d_profile_id, project_ids, created_at, updated_at`

// FindByIDs batch-loads groups, omitting soft-deleted ones.
func (s *GroupStore) FindByIDs(ctx context.Context, ids []string) ([]*Group, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM groups WHERE id IN (%s) AND deleted_at IS NULL`,
		groupColumns, placeholders(1, len(ids)))

	rows, err := readDB(s.read, s.db).QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// Create inserts a group, generating an id when absent. Exactly one of
// the two profile references may be set, chosen by the access module.
func (s *GroupStore) Create(ctx context.Context, group *Group) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	if group.AccessModule == ModuleViewer3d && group.SecurityProfileID != "" ||
		group.AccessModule == ModuleConstellation && group.Viewer3dProfileID != "" {
		return fmt.Errorf("group profile does not match access module %s", group.AccessModule)
	}
	now := time.Now().UTC()
	group.CreatedAt = now
	group.UpdatedAt = now

	query := fmt.Sprintf(`INSERT INTO groups (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, groupColumns)
	_, err := s.db.ExecContext(ctx, query,
		group.ID,
		group.Name,
		string(group.AccessModule),
		nullString(group.SecurityProfileID),
		nullString(group.Viewer3dProfileID),
		mustJSON(emptySlice(group.ProjectIDs)),
		group.CreatedAt,
		group.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// LinkProject adds a project grant to a constellation group.
func (s *GroupStore) LinkProject(ctx context.Context, groupID, projectID string) error {
	err := s.mutateProjects(ctx, groupID, func(ids []string) []string {
		return addString(ids, projectID)
	})
	if err != nil {
		return err
	}
	s.flush(ctx)
	return nil
}

// UnlinkProject removes a project grant. This is the triggering write for
// ReconcileAfterGroupProjectUnlink; unlinking an absent project is a no-op.
func (s *GroupStore) UnlinkProject(ctx context.Context, groupID, projectID string) error {
	err := s.mutateProjects(ctx, groupID, func(ids []string) []string {
		return removeString(ids, projectID)
	})
	if err != nil {
		return err
	}
	s.flush(ctx)
	return nil
}

// SoftDelete tombstones a group.
func (s *GroupStore) SoftDelete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE groups SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("group %s: %w", id, ErrNotFound)
	}
	s.flush(ctx)
	return nil
}

// flush drops all cached resolutions: a group change can affect every
// member, and membership is not tracked on the group row.
func (s *GroupStore) flush(ctx context.Context) {
	if s.resolution != nil {
		s.resolution.Flush(ctx)
	}
}

func (s *GroupStore) mutateProjects(ctx context.Context, groupID string, fn func([]string) []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var projectsJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT project_ids FROM groups WHERE id = $1 AND deleted_at IS NULL`, groupID,
	).Scan(&projectsJSON)
	if err == sql.ErrNoRows {
		return fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get group: %w", err)
	}

	var ids []string
	if err := json.Unmarshal([]byte(projectsJSON), &ids); err != nil {
		return fmt.Errorf("failed to unmarshal project ids: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE groups SET project_ids = $1, updated_at = $2 WHERE id = $3`,
		mustJSON(emptySlice(fn(ids))), time.Now().UTC(), groupID)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	return tx.Commit()
}

// ProjectGroupStore reads and mutates project-scoped groups.
type ProjectGroupStore struct {
	db   *sql.DB
	read func() *sql.DB
}

const projectGroupColumns = `id, project_id, name, project_profile_id, created_at, updated_at`

// FindByIDs batch-loads project-groups, omitting soft-deleted ones.
func (s *ProjectGroupStore) FindByIDs(ctx context.Context, ids []string) ([]*ProjectGroup, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM project_groups WHERE id IN (%s) AND deleted_at IS NULL`,
		projectGroupColumns, placeholders(1, len(ids)))

	rows, err := readDB(s.read, s.db).QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list project groups: %w", err)
	}
	defer rows.Close()

	var groups []*ProjectGroup
	for rows.Next() {
		pg := &ProjectGroup{}
		var profileID sql.NullString
		if err := rows.Scan(&pg.ID, &pg.ProjectID, &pg.Name, &profileID, &pg.CreatedAt, &pg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project group: %w", err)
		}
		pg.ProjectProfileID = profileID.String
		groups = append(groups, pg)
	}
	return groups, rows.Err()
}

// Create inserts a project-group, generating an id when absent.
func (s *ProjectGroupStore) Create(ctx context.Context, pg *ProjectGroup) error {
	if pg.ID == "" {
		pg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	pg.CreatedAt = now
	pg.UpdatedAt = now

	query := fmt.Sprintf(`INSERT INTO project_groups (%s) VALUES ($1, $2, $3, $4, $5, $6)`, projectGroupColumns)
	_, err := s.db.ExecContext(ctx, query,
		pg.ID, pg.ProjectID, pg.Name, nullString(pg.ProjectProfileID), pg.CreatedAt, pg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project group: %w", err)
	}
	return nil
}

// ProjectStore reads and mutates projects.
type ProjectStore struct {
	db   *sql.DB
	read func() *sql.DB
}

// FindByID loads a project. Soft-deleted projects resolve to ErrNotFound.
func (s *ProjectStore) FindByID(ctx context.Context, id string) (*Project, error) {
	project := &Project{}
	err := readDB(s.read, s.db).QueryRowContext(ctx,
		`SELECT id, name, admin_id, created_at, updated_at FROM projects WHERE id = $1 AND deleted_at IS NULL`, id,
	).Scan(&project.ID, &project.Name, &project.AdminID, &project.CreatedAt, &project.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return project, nil
}

// Create inserts a project, generating an id when absent.
func (s *ProjectStore) Create(ctx context.Context, project *Project) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, admin_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		project.ID, project.Name, project.AdminID, project.CreatedAt, project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// scanUser reads a user row (without group memberships, which live in
// user_groups).
func scanUser(scanner interface{ Scan(dest ...interface{}) error }) (*User, error) {
	user := &User{}
	var status string
	var assignmentsJSON, secJSON, v3dJSON, assignedJSON, adminJSON, membershipsJSON string

	err := scanner.Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&status,
		&assignmentsJSON,
		&secJSON,
		&v3dJSON,
		&assignedJSON,
		&adminJSON,
		&membershipsJSON,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Status = UserStatus(status)

	if err := json.Unmarshal([]byte(assignmentsJSON), &user.AccessAssignments); err != nil {
		return nil, fmt.Errorf("failed to unmarshal access assignments: %w", err)
	}
	if err := json.Unmarshal([]byte(secJSON), &user.SecurityProfileIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal security profile ids: %w", err)
	}
	if err := json.Unmarshal([]byte(v3dJSON), &user.Viewer3dProfileIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal viewer3d profile ids: %w", err)
	}
	if err := json.Unmarshal([]byte(assignedJSON), &user.AssignedProjectIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assigned project ids: %w", err)
	}
	if err := json.Unmarshal([]byte(adminJSON), &user.AdminProjectIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal admin project ids: %w", err)
	}
	if err := json.Unmarshal([]byte(membershipsJSON), &user.ProjectMemberships); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project memberships: %w", err)
	}
	return user, nil
}

func scanGroup(scanner interface{ Scan(dest ...interface{}) error }) (*Group, error) {
	group := &Group{}
	var module string
	var secProfile, v3dProfile sql.NullString
	var projectsJSON string

	err := scanner.Scan(
		&group.ID,
		&group.Name,
		&module,
		&secProfile,
		&v3dProfile,
		&projectsJSON,
		&group.CreatedAt,
		&group.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	group.AccessModule = Module(module)
	group.SecurityProfileID = secProfile.String
	group.Viewer3dProfileID = v3dProfile.String

	if err := json.Unmarshal([]byte(projectsJSON), &group.ProjectIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project ids: %w", err)
	}
	return group, nil
}

// placeholders renders $start..$start+n-1 for IN clauses.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func stringArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func mustJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Only reachable with unmarshalable types, which the models are not.
		panic(err)
	}
	return string(data)
}

func emptySlice(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func emptyMemberships(in []ProjectMembership) []ProjectMembership {
	if in == nil {
		return []ProjectMembership{}
	}
	return in
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// addString returns a new list with the value added, by value, no
// duplicates.
func addString(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	out := make([]string, 0, len(list)+1)
	out = append(out, list...)
	return append(out, value)
}

// removeString returns a new list with the value removed, by value.
// Removing an absent value returns the list unchanged.
func removeString(list []string, value string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}
