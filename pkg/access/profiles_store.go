package access

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"
)

// Profiles change rarely and are read on every resolution, so each profile
// store keeps a small in-process LRU in front of the table. Writes evict
// the touched entries.
const profileCacheSize = 512

const profileColumns = `id, name, permissions, is_default_select, created_at, updated_at`

// SecurityProfileStore owns constellation-global profiles.
type SecurityProfileStore struct {
	db         *sql.DB
	read       func() *sql.DB
	cache      *lru.Cache[string, *SecurityProfile]
	resolution *ResolutionCache
}

// NewSecurityProfileStore creates the store with its read cache.
func NewSecurityProfileStore(db *sql.DB) *SecurityProfileStore {
	cache, _ := lru.New[string, *SecurityProfile](profileCacheSize)
	return &SecurityProfileStore{db: db, cache: cache}
}

// FindByIDs batch-loads profiles, serving from cache where possible.
// Identifiers that do not resolve are omitted.
func (s *SecurityProfileStore) FindByIDs(ctx context.Context, ids []string) ([]*SecurityProfile, error) {
	var out []*SecurityProfile
	var missing []string
	for _, id := range dedupeStrings(ids) {
		if p, ok := s.cache.Get(id); ok {
			out = append(out, p)
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	rows, err := queryProfileRows(ctx, readDB(s.read, s.db), "security_profiles", missing)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		p := &SecurityProfile{
			ID:              r.id,
			Name:            r.name,
			Permissions:     r.permissions,
			IsDefaultSelect: r.isDefaultSelect,
			CreatedAt:       r.createdAt,
			UpdatedAt:       r.updatedAt,
		}
		s.cache.Add(p.ID, p)
		out = append(out, p)
	}
	return out, nil
}

// Create inserts a profile, generating an id when absent. Marking the new
// profile as the default-select clears the flag on every sibling in the
// same transaction so at most one default exists.
func (s *SecurityProfileStore) Create(ctx context.Context, profile *SecurityProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	err := insertProfileRow(ctx, s.db, "security_profiles", profileRow{
		id:              profile.ID,
		name:            profile.Name,
		permissions:     profile.Permissions,
		isDefaultSelect: profile.IsDefaultSelect,
		createdAt:       profile.CreatedAt,
		updatedAt:       profile.UpdatedAt,
	})
	if err != nil {
		return err
	}
	s.cache.Purge()
	return nil
}

// Update replaces the profile's name, permission list and default flag.
func (s *SecurityProfileStore) Update(ctx context.Context, profile *SecurityProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	err := updateProfileRow(ctx, s.db, "security_profiles", profileRow{
		id:              profile.ID,
		name:            profile.Name,
		permissions:     profile.Permissions,
		isDefaultSelect: profile.IsDefaultSelect,
		updatedAt:       profile.UpdatedAt,
	})
	if err != nil {
		return err
	}
	s.cache.Purge()
	if s.resolution != nil {
		s.resolution.Flush(ctx)
	}
	return nil
}

// SoftDelete tombstones a profile. Users and groups referencing it keep
// the dangling id; resolution simply skips identifiers that no longer load.
func (s *SecurityProfileStore) SoftDelete(ctx context.Context, id string) error {
	if err := softDeleteProfileRow(ctx, s.db, "security_profiles", id); err != nil {
		return err
	}
	s.cache.Remove(id)
	if s.resolution != nil {
		s.resolution.Flush(ctx)
	}
	return nil
}

// Viewer3dProfileStore owns 3D-viewer profiles.
type Viewer3dProfileStore struct {
	db         *sql.DB
	read       func() *sql.DB
	cache      *lru.Cache[string, *Viewer3dProfile]
	resolution *ResolutionCache
}

// NewViewer3dProfileStore creates the store with its read cache.
func NewViewer3dProfileStore(db *sql.DB) *Viewer3dProfileStore {
	cache, _ := lru.New[string, *Viewer3dProfile](profileCacheSize)
	return &Viewer3dProfileStore{db: db, cache: cache}
}

// FindByIDs batch-loads profiles, serving from cache where possible.
func (s *Viewer3dProfileStore) FindByIDs(ctx context.Context, ids []string) ([]*Viewer3dProfile, error) {
	var out []*Viewer3dProfile
	var missing []string
	for _, id := range dedupeStrings(ids) {
		if p, ok := s.cache.Get(id); ok {
			out = append(out, p)
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	rows, err := queryProfileRows(ctx, readDB(s.read, s.db), "viewer3d_profiles", missing)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		p := &Viewer3dProfile{
			ID:              r.id,
			Name:            r.name,
			Permissions:     r.permissions,
			IsDefaultSelect: r.isDefaultSelect,
			CreatedAt:       r.createdAt,
			UpdatedAt:       r.updatedAt,
		}
		s.cache.Add(p.ID, p)
		out = append(out, p)
	}
	return out, nil
}

// Create inserts a profile, generating an id when absent.
func (s *Viewer3dProfileStore) Create(ctx context.Context, profile *Viewer3dProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	err := insertProfileRow(ctx, s.db, "viewer3d_profiles", profileRow{
		id:              profile.ID,
		name:            profile.Name,
		permissions:     profile.Permissions,
		isDefaultSelect: profile.IsDefaultSelect,
		createdAt:       profile.CreatedAt,
		updatedAt:       profile.UpdatedAt,
	})
	if err != nil {
		return err
	}
	s.cache.Purge()
	return nil
}

// Update replaces the profile's name, permission list and default flag.
func (s *Viewer3dProfileStore) Update(ctx context.Context, profile *Viewer3dProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	err := updateProfileRow(ctx, s.db, "viewer3d_profiles", profileRow{
		id:              profile.ID,
		name:            profile.Name,
		permissions:     profile.Permissions,
		isDefaultSelect: profile.IsDefaultSelect,
		updatedAt:       profile.UpdatedAt,
	})
	if err != nil {
		return err
	}
	s.cache.Purge()
	if s.resolution != nil {
		s.resolution.Flush(ctx)
	}
	return nil
}

// SoftDelete tombstones a profile.
func (s *Viewer3dProfileStore) SoftDelete(ctx context.Context, id string) error {
	if err := softDeleteProfileRow(ctx, s.db, "viewer3d_profiles", id); err != nil {
		return err
	}
	s.cache.Remove(id)
	if s.resolution != nil {
		s.resolution.Flush(ctx)
	}
	return nil
}

// ProjectProfileStore owns project-scoped profiles.
type ProjectProfileStore struct {
	db         *sql.DB
	read       func() *sql.DB
	cache      *lru.Cache[string, *ProjectProfile]
	resolution *ResolutionCache
}

// NewProjectProfileStore creates the store with its read cache.
func NewProjectProfileStore(db *sql.DB) *ProjectProfileStore {
	cache, _ := lru.New[string, *ProjectProfile](profileCacheSize)
	return &ProjectProfileStore{db: db, cache: cache}
}

// FindByIDs batch-loads profiles, serving from cache where possible.
func (s *ProjectProfileStore) FindByIDs(ctx context.Context, ids []string) ([]*ProjectProfile, error) {
	var out []*ProjectProfile
	var missing []string
	for _, id := range dedupeStrings(ids) {
		if p, ok := s.cache.Get(id); ok {
			out = append(out, p)
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	rows, err := queryProfileRows(ctx, readDB(s.read, s.db), "project_profiles", missing)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		p := &ProjectProfile{
			ID:              r.id,
			Name:            r.name,
			Permissions:     r.permissions,
			IsDefaultSelect: r.isDefaultSelect,
			CreatedAt:       r.createdAt,
			UpdatedAt:       r.updatedAt,
		}
		s.cache.Add(p.ID, p)
		out = append(out, p)
	}
	return out, nil
}

// Create inserts a profile, generating an id when absent.
func (s *ProjectProfileStore) Create(ctx context.Context, profile *ProjectProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	err := insertProfileRow(ctx, s.db, "project_profiles", profileRow{
		id:              profile.ID,
		name:            profile.Name,
		permissions:     profile.Permissions,
		isDefaultSelect: profile.IsDefaultSelect,
		createdAt:       profile.CreatedAt,
		updatedAt:       profile.UpdatedAt,
	})
	if err != nil {
		return err
	}
	s.cache.Purge()
	return nil
}

// Update replaces the profile's name, permission list and default flag.
func (s *ProjectProfileStore) Update(ctx context.Context, profile *ProjectProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	err := updateProfileRow(ctx, s.db, "project_profiles", profileRow{
		id:              profile.ID,
		name:            profile.Name,
		permissions:     profile.Permissions,
		isDefaultSelect: profile.IsDefaultSelect,
		updatedAt:       profile.UpdatedAt,
	})
	if err != nil {
		return err
	}
	s.cache.Purge()
	if s.resolution != nil {
		s.resolution.Flush(ctx)
	}
	return nil
}

// SoftDelete tombstones a profile.
func (s *ProjectProfileStore) SoftDelete(ctx context.Context, id string) error {
	if err := softDeleteProfileRow(ctx, s.db, "project_profiles", id); err != nil {
		return err
	}
	s.cache.Remove(id)
	if s.resolution != nil {
		s.resolution.Flush(ctx)
	}
	return nil
}

// profileRow is the shared persisted shape of the three profile tables.
type profileRow struct {
	id              string
	name            string
	permissions     []PermissionID
	isDefaultSelect bool
	createdAt       time.Time
	updatedAt       time.Time
}

func queryProfileRows(ctx context.Context, db *sql.DB, table string, ids []string) ([]profileRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id IN (%s) AND deleted_at IS NULL`,
		profileColumns, table, placeholders(1, len(ids)))

	rows, err := db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var out []profileRow
	for rows.Next() {
		var r profileRow
		var permsJSON string
		if err := rows.Scan(&r.id, &r.name, &permsJSON, &r.isDefaultSelect, &r.createdAt, &r.updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		if err := json.Unmarshal([]byte(permsJSON), &r.permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func insertProfileRow(ctx context.Context, db *sql.DB, table string, r profileRow) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if r.isDefaultSelect {
		if err := clearDefaultSelect(ctx, tx, table, r.id); err != nil {
			return err
		}
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6)`, table, profileColumns)
	_, err = tx.ExecContext(ctx, query,
		r.id, r.name, mustJSON(emptyPermissions(r.permissions)), r.isDefaultSelect, r.createdAt, r.updatedAt)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return tx.Commit()
}

func updateProfileRow(ctx context.Context, db *sql.DB, table string, r profileRow) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if r.isDefaultSelect {
		if err := clearDefaultSelect(ctx, tx, table, r.id); err != nil {
			return err
		}
	}

	query := fmt.Sprintf(`
		UPDATE %s SET name = $1, permissions = $2, is_default_select = $3, updated_at = $4
		WHERE id = $5 AND deleted_at IS NULL
	`, table)
	result, err := tx.ExecContext(ctx, query,
		r.name, mustJSON(emptyPermissions(r.permissions)), r.isDefaultSelect, r.updatedAt, r.id)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("profile %s: %w", r.id, ErrNotFound)
	}
	return tx.Commit()
}

func clearDefaultSelect(ctx context.Context, tx *sql.Tx, table, exceptID string) error {
	query := fmt.Sprintf(`UPDATE %s SET is_default_select = FALSE WHERE is_default_select AND id <> $1`, table)
	if _, err := tx.ExecContext(ctx, query, exceptID); err != nil {
		return fmt.Errorf("failed to clear default profile flag: %w", err)
	}
	return nil
}

func softDeleteProfileRow(ctx context.Context, db *sql.DB, table, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`, table)
	result, err := db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	return nil
}

func emptyPermissions(in []PermissionID) []PermissionID {
	if in == nil {
		return []PermissionID{}
	}
	return in
}
