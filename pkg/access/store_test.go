package access

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserStoreCreateAndFind(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	user := createTestUser(t, store, "alice@example.com")
	assert.NotEmpty(t, user.ID)

	found, err := store.Users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", found.Email)
	assert.Equal(t, StatusActive, found.Status)
	assert.Empty(t, found.SecurityProfileIDs)
	assert.Empty(t, found.ProjectMemberships)
}

func TestUserStoreFindByIDNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Users.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserStoreSoftDeleteHidesUser(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	user := createTestUser(t, store, "bob@example.com")
	require.NoError(t, store.Users.SoftDelete(ctx, user.ID))

	_, err := store.Users.FindByID(ctx, user.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Batch lookups silently omit the tombstoned user.
	users, err := store.Users.FindByIDs(ctx, []string{user.ID})
	require.NoError(t, err)
	assert.Empty(t, users)

	// Deleting twice reports not found.
	assert.ErrorIs(t, store.Users.SoftDelete(ctx, user.ID), ErrNotFound)
}

func TestUserStoreGroupMembership(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	secProfile := createSecurityProfile(t, store, "managers", PermUserManage)
	v3dProfile := createViewer3dProfile(t, store, "viewers", PermModelView)
	constelGroup := createConstellationGroup(t, store, "ops", secProfile.ID)
	v3dGroup := createViewer3dGroup(t, store, "modelers", v3dProfile.ID)

	user := createTestUser(t, store, "carol@example.com")
	require.NoError(t, store.Users.AddToGroup(ctx, user.ID, constelGroup))
	require.NoError(t, store.Users.AddToGroup(ctx, user.ID, v3dGroup))
	// Double-add is a no-op.
	require.NoError(t, store.Users.AddToGroup(ctx, user.ID, constelGroup))

	found, err := store.Users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{constelGroup.ID}, found.ConstellationGroupIDs)
	assert.Equal(t, []string{v3dGroup.ID}, found.Viewer3dGroupIDs)

	members, err := store.Users.FindByGroup(ctx, constelGroup.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, user.ID, members[0].ID)

	require.NoError(t, store.Users.RemoveFromGroup(ctx, user.ID, constelGroup.ID))
	members, err = store.Users.FindByGroup(ctx, constelGroup.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestUserStoreProjectAssignment(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	owner := createTestUser(t, store, "owner@example.com")
	project := createTestProject(t, store, "tower-a", owner.ID)

	user := createTestUser(t, store, "dave@example.com")
	require.NoError(t, store.Users.AssignProject(ctx, user.ID, project.ID, false))
	// Assigning twice is a no-op.
	require.NoError(t, store.Users.AssignProject(ctx, user.ID, project.ID, false))

	found, err := store.Users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{project.ID}, found.AssignedProjectIDs)
	require.NotNil(t, found.MembershipFor(project.ID))

	require.NoError(t, store.Users.UnassignProject(ctx, user.ID, project.ID))
	found, err = store.Users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, found.AssignedProjectIDs)
	// Unassignment alone keeps the membership; the reconciler decides.
	assert.NotNil(t, found.MembershipFor(project.ID))
}

func TestUserStoreRemoveAllConnections(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	owner := createTestUser(t, store, "owner@example.com")
	project := createTestProject(t, store, "tower-a", owner.ID)
	keep := createTestProject(t, store, "tower-b", owner.ID)
	profile := createProjectProfile(t, store, "members", PermProjectView)

	user := createTestUser(t, store, "erin@example.com")
	require.NoError(t, store.Users.AssignProject(ctx, user.ID, project.ID, false))
	require.NoError(t, store.Users.AssignProject(ctx, user.ID, project.ID, true))
	require.NoError(t, store.Users.AssignProject(ctx, user.ID, keep.ID, false))
	require.NoError(t, store.Users.SetProjectMembership(ctx, user.ID, ProjectMembership{
		ProjectID:         project.ID,
		ProjectGroupIDs:   []string{},
		ProjectProfileIDs: []string{profile.ID},
	}))

	require.NoError(t, store.Users.RemoveAllConnections(ctx, user.ID, project.ID))

	found, err := store.Users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotContains(t, found.AssignedProjectIDs, project.ID)
	assert.NotContains(t, found.AdminProjectIDs, project.ID)
	assert.Nil(t, found.MembershipFor(project.ID))

	// Other projects are untouched.
	assert.Contains(t, found.AssignedProjectIDs, keep.ID)
	assert.NotNil(t, found.MembershipFor(keep.ID))

	// Revoking again is a no-op, not an error.
	require.NoError(t, store.Users.RemoveAllConnections(ctx, user.ID, project.ID))
}

func TestGroupStoreLinkUnlinkProject(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	group := createConstellationGroup(t, store, "site-team", "")
	require.NoError(t, store.Groups.LinkProject(ctx, group.ID, "p1"))
	require.NoError(t, store.Groups.LinkProject(ctx, group.ID, "p1"))
	require.NoError(t, store.Groups.LinkProject(ctx, group.ID, "p2"))

	groups, err := store.Groups.FindByIDs(ctx, []string{group.ID})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"p1", "p2"}, groups[0].ProjectIDs)
	assert.True(t, groups[0].GrantsProject("p1"))

	require.NoError(t, store.Groups.UnlinkProject(ctx, group.ID, "p1"))
	require.NoError(t, store.Groups.UnlinkProject(ctx, group.ID, "p1"))

	groups, err = store.Groups.FindByIDs(ctx, []string{group.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, groups[0].ProjectIDs)
}

func TestGroupStoreRejectsMismatchedProfile(t *testing.T) {
	store := newTestStore(t)

	err := store.Groups.Create(context.Background(), &Group{
		Name:              "bad",
		AccessModule:      ModuleViewer3d,
		SecurityProfileID: "sec-1",
	})
	assert.Error(t, err)
}

func TestGroupStoreSoftDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	group := createConstellationGroup(t, store, "site-team", "", "p1")
	require.NoError(t, store.Groups.SoftDelete(ctx, group.ID))

	groups, err := store.Groups.FindByIDs(ctx, []string{group.ID})
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestProjectGroupStore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	pg := &ProjectGroup{ProjectID: "p1", Name: "structural", ProjectProfileID: "pp1"}
	require.NoError(t, store.ProjectGroups.Create(ctx, pg))
	assert.NotEmpty(t, pg.ID)

	found, err := store.ProjectGroups.FindByIDs(ctx, []string{pg.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "structural", found[0].Name)
	assert.Equal(t, "pp1", found[0].ProjectProfileID)
}

func TestProfileStoreDefaultSelectIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := &SecurityProfile{Name: "first", IsDefaultSelect: true}
	require.NoError(t, store.SecurityProfiles.Create(ctx, first))

	second := &SecurityProfile{Name: "second", IsDefaultSelect: true}
	require.NoError(t, store.SecurityProfiles.Create(ctx, second))

	profiles, err := store.SecurityProfiles.FindByIDs(ctx, []string{first.ID, second.ID})
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	defaults := 0
	for _, p := range profiles {
		if p.IsDefaultSelect {
			defaults++
			assert.Equal(t, second.ID, p.ID)
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestProfileStoreUpdate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	profile := createProjectProfile(t, store, "members", PermProjectView)
	profile.Permissions = []PermissionID{PermProjectView, PermProjectEdit}
	require.NoError(t, store.ProjectProfiles.Update(ctx, profile))

	found, err := store.ProjectProfiles.FindByIDs(ctx, []string{profile.ID})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.ElementsMatch(t, []PermissionID{PermProjectView, PermProjectEdit}, found[0].Permissions)

	missing := &ProjectProfile{ID: "missing", Name: "x"}
	assert.ErrorIs(t, store.ProjectProfiles.Update(ctx, missing), ErrNotFound)
}

func TestUserStoreFindByIDQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	dbErr := errors.New("connection reset")
	mock.ExpectQuery("SELECT (.+) FROM users").WillReturnError(dbErr)

	_, err = store.Users.FindByID(context.Background(), "u1")
	assert.ErrorIs(t, err, dbErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStoreMutateRollsBackOnUpdateError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{
		"id", "email", "full_name", "status", "access_assignments",
		"security_profile_ids", "viewer3d_profile_ids", "assigned_project_ids",
		"admin_project_ids", "project_memberships", "created_at", "updated_at",
	}).AddRow("u1", "a@example.com", "", "active", "[]", "[]", "[]", "[]", "[]", "[]", now, now)
	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").WillReturnRows(rows)

	dbErr := errors.New("disk full")
	mock.ExpectExec("UPDATE users SET").WillReturnError(dbErr)
	mock.ExpectRollback()

	err = store.Users.SetSecurityProfiles(context.Background(), "u1", []string{"s1"})
	assert.ErrorIs(t, err, dbErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreReadsRouteThroughReplicas(t *testing.T) {
	ctx := context.Background()
	primaryDB := setupTestDB(t)
	replicaDB := setupTestDB(t)

	replica := NewStore(replicaDB)
	seeded := createTestUser(t, replica, "replica@example.com")

	store := NewStore(primaryDB).WithReadReplicas(func() *sql.DB { return replicaDB })

	// Reads come from the replica handle.
	found, err := store.Users.FindByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "replica@example.com", found.Email)

	// Writes land on the primary, not the replica.
	written := createTestUser(t, store, "primary@example.com")
	_, err = NewStore(primaryDB).Users.FindByID(ctx, written.ID)
	require.NoError(t, err)
	_, err = replica.Users.FindByID(ctx, written.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
