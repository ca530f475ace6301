package access

import "github.com/orbitalworks/constel/pkg/database"

// Migrations returns the schema for the access engine's tables. List-valued
// fields are stored as JSON text so the same statements run on PostgreSQL
// and on the sqlite databases the unit tests use.
func Migrations() []database.Migration {
	return []database.Migration{
		{
			Version:     1,
			Description: "create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					email TEXT NOT NULL UNIQUE,
					full_name TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT 'registering',
					access_assignments TEXT NOT NULL DEFAULT '[]',
					security_profile_ids TEXT NOT NULL DEFAULT '[]',
					viewer3d_profile_ids TEXT NOT NULL DEFAULT '[]',
					assigned_project_ids TEXT NOT NULL DEFAULT '[]',
					admin_project_ids TEXT NOT NULL DEFAULT '[]',
					project_memberships TEXT NOT NULL DEFAULT '[]',
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					deleted_at TIMESTAMP
				)
			`,
		},
		{
			Version:     2,
			Description: "create groups table",
			SQL: `
				CREATE TABLE IF NOT EXISTS groups (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					access_module TEXT NOT NULL,
					security_profile_id TEXT,
					viewer3d_profile_id TEXT,
					project_ids TEXT NOT NULL DEFAULT '[]',
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					deleted_at TIMESTAMP
				)
			`,
		},
		{
			Version:     3,
			Description: "create user_groups join table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_groups (
					user_id TEXT NOT NULL,
					group_id TEXT NOT NULL,
					module TEXT NOT NULL,
					added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (user_id, group_id)
				)
			`,
		},
		{
			Version:     4,
			Description: "create projects table",
			SQL: `
				CREATE TABLE IF NOT EXISTS projects (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					admin_id TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					deleted_at TIMESTAMP
				)
			`,
		},
		{
			Version:     5,
			Description: "create project_groups table",
			SQL: `
				CREATE TABLE IF NOT EXISTS project_groups (
					id TEXT PRIMARY KEY,
					project_id TEXT NOT NULL,
					name TEXT NOT NULL,
					project_profile_id TEXT,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					deleted_at TIMESTAMP
				)
			`,
		},
		{
			Version:     6,
			Description: "create security_profiles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS security_profiles (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					permissions TEXT NOT NULL DEFAULT '[]',
					is_default_select BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					deleted_at TIMESTAMP
				)
			`,
		},
		{
			Version:     7,
			Description: "create viewer3d_profiles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS viewer3d_profiles (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					permissions TEXT NOT NULL DEFAULT '[]',
					is_default_select BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					deleted_at TIMESTAMP
				)
			`,
		},
		{
			Version:     8,
			Description: "create project_profiles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS project_profiles (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					permissions TEXT NOT NULL DEFAULT '[]',
					is_default_select BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					deleted_at TIMESTAMP
				)
			`,
		},
		{
			Version:     9,
			Description: "create user_groups group index",
			SQL:         `CREATE INDEX IF NOT EXISTS idx_user_groups_group ON user_groups (group_id)`,
		},
	}
}
