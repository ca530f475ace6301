package access

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/orbitalworks/constel/pkg/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// sqlite :memory: is per-connection; keep the pool on one.
	db.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(context.Background(), db, Migrations()))
	return db
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(setupTestDB(t))
}

func createTestUser(t *testing.T, store *Store, email string) *User {
	t.Helper()
	user := &User{
		Email:  email,
		Status: StatusActive,
	}
	require.NoError(t, store.Users.Create(context.Background(), user))
	return user
}

func createSecurityProfile(t *testing.T, store *Store, name string, perms ...PermissionID) *SecurityProfile {
	t.Helper()
	profile := &SecurityProfile{Name: name, Permissions: perms}
	require.NoError(t, store.SecurityProfiles.Create(context.Background(), profile))
	return profile
}

func createViewer3dProfile(t *testing.T, store *Store, name string, perms ...PermissionID) *Viewer3dProfile {
	t.Helper()
	profile := &Viewer3dProfile{Name: name, Permissions: perms}
	require.NoError(t, store.Viewer3dProfiles.Create(context.Background(), profile))
	return profile
}

func createProjectProfile(t *testing.T, store *Store, name string, perms ...PermissionID) *ProjectProfile {
	t.Helper()
	profile := &ProjectProfile{Name: name, Permissions: perms}
	require.NoError(t, store.ProjectProfiles.Create(context.Background(), profile))
	return profile
}

func createConstellationGroup(t *testing.T, store *Store, name, securityProfileID string, projectIDs ...string) *Group {
	t.Helper()
	group := &Group{
		Name:              name,
		AccessModule:      ModuleConstellation,
		SecurityProfileID: securityProfileID,
		ProjectIDs:        projectIDs,
	}
	require.NoError(t, store.Groups.Create(context.Background(), group))
	return group
}

func createViewer3dGroup(t *testing.T, store *Store, name, viewer3dProfileID string) *Group {
	t.Helper()
	group := &Group{
		Name:              name,
		AccessModule:      ModuleViewer3d,
		Viewer3dProfileID: viewer3dProfileID,
	}
	require.NoError(t, store.Groups.Create(context.Background(), group))
	return group
}

func createTestProject(t *testing.T, store *Store, name, adminID string) *Project {
	t.Helper()
	project := &Project{Name: name, AdminID: adminID}
	require.NoError(t, store.Projects.Create(context.Background(), project))
	return project
}
