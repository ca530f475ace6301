package access

import (
	"time"
)

// Module identifies one of the platform's independently licensed feature areas.
type Module string

const (
	ModulePlatform      Module = "platform"
	ModuleConstellation Module = "constellation"
	ModuleViewer3d      Module = "viewer3d"
)

// Role is the level of access a user holds within a module.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleNormalUser Role = "normal_user"
)

// UserStatus tracks the user lifecycle. Users are tombstoned on
// deactivation, never hard-removed.
type UserStatus string

const (
	StatusRegistering UserStatus = "registering"
	StatusActive      UserStatus = "active"
	StatusInactive    UserStatus = "inactive"
	StatusRejected    UserStatus = "rejected"
)

// PermissionID is an opaque permission identifier. The engine unions and
// compares these by string value; their meaning belongs to calling code.
type PermissionID string

// Viewer3dPrefix marks permission identifiers that belong to the 3D-viewer
// feature set. Project-scoped resolution can be filtered down to these.
const Viewer3dPrefix = "viewer3d:"

// Security (constellation-global) permission identifiers.
const (
	PermProjectCreate  PermissionID = "constellation:project:create"
	PermProjectViewAll PermissionID = "constellation:project:view_all"
	PermUserManage     PermissionID = "constellation:user:manage"
	PermGroupManage    PermissionID = "constellation:group:manage"
	PermProfileManage  PermissionID = "constellation:profile:manage"
	PermLicenseView    PermissionID = "constellation:license:view"
)

// 3D-viewer module permission identifiers.
const (
	PermModelView      PermissionID = "viewer3d:model:view"
	PermModelUpload    PermissionID = "viewer3d:model:upload"
	PermMarkupCreate   PermissionID = "viewer3d:markup:create"
	PermViewerSettings PermissionID = "viewer3d:settings:manage"
)

// Project-scoped permission identifiers. The viewer3d-prefixed entries are
// the project variant of the 3D-viewer feature set.
const (
	PermProjectView          PermissionID = "project:general:view"
	PermProjectEdit          PermissionID = "project:general:edit"
	PermProjectInvite        PermissionID = "project:member:invite"
	PermProjectGroupManage   PermissionID = "project:group:manage"
	PermProjectCalendarEdit  PermissionID = "project:calendar:edit"
	PermProjectFileUpload    PermissionID = "project:file:upload"
	PermProjectModelView     PermissionID = "viewer3d:project:model:view"
	PermProjectMarkupCreate  PermissionID = "viewer3d:project:markup:create"
	PermProjectModelDownload PermissionID = "viewer3d:project:model:download"
)

// AllSecurityPermissions returns every defined constellation-global permission.
func AllSecurityPermissions() []PermissionID {
	return []PermissionID{
		PermProjectCreate,
		PermProjectViewAll,
		PermUserManage,
		PermGroupManage,
		PermProfileManage,
		PermLicenseView,
	}
}

// AllViewer3dPermissions returns every defined 3D-viewer module permission.
func AllViewer3dPermissions() []PermissionID {
	return []PermissionID{
		PermModelView,
		PermModelUpload,
		PermMarkupCreate,
		PermViewerSettings,
	}
}

// AllProjectPermissions returns every defined project-scoped permission.
func AllProjectPermissions() []PermissionID {
	return []PermissionID{
		PermProjectView,
		PermProjectEdit,
		PermProjectInvite,
		PermProjectGroupManage,
		PermProjectCalendarEdit,
		PermProjectFileUpload,
		PermProjectModelView,
		PermProjectMarkupCreate,
		PermProjectModelDownload,
	}
}

// PermissionUniverse returns the full permission set for a module. Admin
// override resolves to this without any profile lookups.
func PermissionUniverse(module Module) []PermissionID {
	switch module {
	case ModuleConstellation:
		return AllSecurityPermissions()
	case ModuleViewer3d:
		return AllViewer3dPermissions()
	default:
		return nil
	}
}

// AccessAssignment records the roles a user holds within one module.
// A user has at most one assignment per module.
type AccessAssignment struct {
	Module Module `json:"module"`
	Roles  []Role `json:"roles"`
}

// ProjectMembership scopes a user's project-group and project-profile
// assignments to a single project.
type ProjectMembership struct {
	ProjectID         string   `json:"project_id"`
	ProjectGroupIDs   []string `json:"project_group_ids"`
	ProjectProfileIDs []string `json:"project_profile_ids"`
}

// User is the aggregate the engine resolves permissions for. The repository
// layer owns persistence; the engine treats loaded users as immutable and
// issues explicit mutation commands instead of editing in place.
type User struct {
	ID                    string              `json:"id"`
	Email                 string              `json:"email"`
	FullName              string              `json:"full_name"`
	Status                UserStatus          `json:"status"`
	AccessAssignments     []AccessAssignment  `json:"access_assignments"`
	SecurityProfileIDs    []string            `json:"security_profile_ids"`
	Viewer3dProfileIDs    []string            `json:"viewer3d_profile_ids"`
	ConstellationGroupIDs []string            `json:"constellation_group_ids"`
	Viewer3dGroupIDs      []string            `json:"viewer3d_group_ids"`
	AssignedProjectIDs    []string            `json:"assigned_project_ids"`
	AdminProjectIDs       []string            `json:"admin_project_ids"`
	ProjectMemberships    []ProjectMembership `json:"project_memberships"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// MembershipFor returns the user's membership entry for a project, or nil.
func (u *User) MembershipFor(projectID string) *ProjectMembership {
	for i := range u.ProjectMemberships {
		if u.ProjectMemberships[i].ProjectID == projectID {
			return &u.ProjectMemberships[i]
		}
	}
	return nil
}

// GroupIDsFor returns the user's group memberships for a module.
func (u *User) GroupIDsFor(module Module) []string {
	switch module {
	case ModuleConstellation:
		return u.ConstellationGroupIDs
	case ModuleViewer3d:
		return u.Viewer3dGroupIDs
	default:
		return nil
	}
}

// Group is a module-scoped, non-project bundle of users. AccessModule
// determines which of the two profile fields is meaningful; constellation
// groups additionally grant access to the projects in ProjectIDs.
type Group struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	AccessModule      Module    `json:"access_module"`
	SecurityProfileID string    `json:"security_profile_id,omitempty"`
	Viewer3dProfileID string    `json:"viewer3d_profile_id,omitempty"`
	ProjectIDs        []string  `json:"project_ids"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ProfileID returns the profile reference that is meaningful for the
// group's module, or "" when none is set.
func (g *Group) ProfileID() string {
	switch g.AccessModule {
	case ModuleViewer3d:
		return g.Viewer3dProfileID
	default:
		return g.SecurityProfileID
	}
}

// GrantsProject reports whether the group grants constellation access to
// the given project.
func (g *Group) GrantsProject(projectID string) bool {
	if g.AccessModule != ModuleConstellation {
		return false
	}
	for _, id := range g.ProjectIDs {
		if id == projectID {
			return true
		}
	}
	return false
}

// ProjectGroup is the project-scoped analogue of Group. It carries at most
// one project-profile reference.
type ProjectGroup struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	Name             string    `json:"name"`
	ProjectProfileID string    `json:"project_profile_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SecurityProfile is a named bundle of constellation-global permissions.
type SecurityProfile struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Permissions     []PermissionID `json:"permissions"`
	IsDefaultSelect bool           `json:"is_default_select"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Viewer3dProfile is a named bundle of 3D-viewer module permissions.
type Viewer3dProfile struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Permissions     []PermissionID `json:"permissions"`
	IsDefaultSelect bool           `json:"is_default_select"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ProjectProfile is a named bundle of project-scoped permissions.
type ProjectProfile struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Permissions     []PermissionID `json:"permissions"`
	IsDefaultSelect bool           `json:"is_default_select"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ProfileKind selects one of the three profile families.
type ProfileKind string

const (
	ProfileKindSecurity ProfileKind = "security"
	ProfileKindViewer3d ProfileKind = "viewer3d"
	ProfileKindProject  ProfileKind = "project"
)

// Project is the scoping unit for project-groups and project-profiles.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AdminID   string    `json:"admin_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
