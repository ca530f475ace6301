package access

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedProfile is one profile definition in a seed file.
type SeedProfile struct {
	Name            string   `yaml:"name"`
	Permissions     []string `yaml:"permissions"`
	IsDefaultSelect bool     `yaml:"is_default_select"`
}

// SeedSet is the parsed shape of a profile seed file.
type SeedSet struct {
	SecurityProfiles []SeedProfile `yaml:"security_profiles"`
	Viewer3dProfiles []SeedProfile `yaml:"viewer3d_profiles"`
	ProjectProfiles  []SeedProfile `yaml:"project_profiles"`
}

// DefaultSeeds returns the built-in profile set used when no seed file is
// configured: a full-access profile and a restricted default per family.
func DefaultSeeds() SeedSet {
	return SeedSet{
		SecurityProfiles: []SeedProfile{
			{
				Name:        "Full Access",
				Permissions: permissionNames(AllSecurityPermissions()),
			},
			{
				Name:            "Member",
				Permissions:     []string{string(PermLicenseView)},
				IsDefaultSelect: true,
			},
		},
		Viewer3dProfiles: []SeedProfile{
			{
				Name:        "Full Access",
				Permissions: permissionNames(AllViewer3dPermissions()),
			},
			{
				Name:            "Reviewer",
				Permissions:     []string{string(PermModelView), string(PermMarkupCreate)},
				IsDefaultSelect: true,
			},
		},
		ProjectProfiles: []SeedProfile{
			{
				Name:        "Full Access",
				Permissions: permissionNames(AllProjectPermissions()),
			},
			{
				Name: "Member",
				Permissions: []string{
					string(PermProjectView),
					string(PermProjectFileUpload),
					string(PermProjectModelView),
				},
				IsDefaultSelect: true,
			},
		},
	}
}

// LoadSeeds parses a YAML seed file.
func LoadSeeds(path string) (SeedSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SeedSet{}, fmt.Errorf("failed to read seed file: %w", err)
	}

	var set SeedSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return SeedSet{}, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return set, nil
}

// EnsureSeedProfiles creates any seed profile that does not already exist,
// matched by name. Existing profiles are left untouched, so local edits
// survive restarts.
func (s *Store) EnsureSeedProfiles(ctx context.Context, seeds SeedSet) error {
	existing, err := s.profileNames(ctx)
	if err != nil {
		return err
	}

	for _, seed := range seeds.SecurityProfiles {
		if existing["security_profiles"][seed.Name] {
			continue
		}
		profile := &SecurityProfile{
			Name:            seed.Name,
			Permissions:     permissionIDs(seed.Permissions),
			IsDefaultSelect: seed.IsDefaultSelect,
		}
		if err := s.SecurityProfiles.Create(ctx, profile); err != nil {
			return fmt.Errorf("failed to seed security profile %q: %w", seed.Name, err)
		}
	}

	for _, seed := range seeds.Viewer3dProfiles {
		if existing["viewer3d_profiles"][seed.Name] {
			continue
		}
		profile := &Viewer3dProfile{
			Name:            seed.Name,
			Permissions:     permissionIDs(seed.Permissions),
			IsDefaultSelect: seed.IsDefaultSelect,
		}
		if err := s.Viewer3dProfiles.Create(ctx, profile); err != nil {
			return fmt.Errorf("failed to seed viewer3d profile %q: %w", seed.Name, err)
		}
	}

	for _, seed := range seeds.ProjectProfiles {
		if existing["project_profiles"][seed.Name] {
			continue
		}
		profile := &ProjectProfile{
			Name:            seed.Name,
			Permissions:     permissionIDs(seed.Permissions),
			IsDefaultSelect: seed.IsDefaultSelect,
		}
		if err := s.ProjectProfiles.Create(ctx, profile); err != nil {
			return fmt.Errorf("failed to seed project profile %q: %w", seed.Name, err)
		}
	}
	return nil
}

func (s *Store) profileNames(ctx context.Context) (map[string]map[string]bool, error) {
	out := make(map[string]map[string]bool)
	for _, table := range []string{"security_profiles", "viewer3d_profiles", "project_profiles"} {
		names := make(map[string]bool)
		rows, err := s.db.QueryContext(ctx,
			fmt.Sprintf(`SELECT name FROM %s WHERE deleted_at IS NULL`, table))
		if err != nil {
			return nil, fmt.Errorf("failed to list profile names: %w", err)
		}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan profile name: %w", err)
			}
			names[name] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to list profile names: %w", err)
		}
		rows.Close()
		out[table] = names
	}
	return out, nil
}

func permissionNames(perms []PermissionID) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

func permissionIDs(names []string) []PermissionID {
	out := make([]PermissionID, len(names))
	for i, n := range names {
		out[i] = PermissionID(n)
	}
	return out
}
