package access

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*ResolutionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewResolutionCache(client, time.Minute), mr
}

func TestResolutionCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	set := NewPermissionSet(PermProjectCreate, PermUserManage)
	cache.Set(ctx, "u1", ModuleConstellation, "", set)

	got, ok := cache.Get(ctx, "u1", ModuleConstellation, "")
	require.True(t, ok)
	assert.True(t, got.Equal(set))

	// Scope separation: module and project are part of the key.
	_, ok = cache.Get(ctx, "u1", ModuleViewer3d, "")
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "u1", ModuleConstellation, "p1")
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "u2", ModuleConstellation, "")
	assert.False(t, ok)
}

func TestResolutionCacheInvalidateDropsAllUserScopes(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	cache.Set(ctx, "u1", ModuleConstellation, "", NewPermissionSet(PermProjectCreate))
	cache.Set(ctx, "u1", ModuleConstellation, "p1", NewPermissionSet(PermProjectView))
	cache.Set(ctx, "u2", ModuleConstellation, "", NewPermissionSet(PermUserManage))

	cache.Invalidate(ctx, "u1")

	_, ok := cache.Get(ctx, "u1", ModuleConstellation, "")
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "u1", ModuleConstellation, "p1")
	assert.False(t, ok)

	// Other users are untouched.
	_, ok = cache.Get(ctx, "u2", ModuleConstellation, "")
	assert.True(t, ok)
}

func TestResolutionCacheInvalidateProject(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	cache.Set(ctx, "u1", ModuleConstellation, "", NewPermissionSet(PermProjectCreate))
	cache.Set(ctx, "u1", ModuleConstellation, "p1", NewPermissionSet(PermProjectView))

	cache.InvalidateProject(ctx, "u1", "p1")

	_, ok := cache.Get(ctx, "u1", ModuleConstellation, "p1")
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "u1", ModuleConstellation, "")
	assert.True(t, ok, "global scope survives a project invalidation")
}

func TestResolutionCacheExpiry(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	cache.Set(ctx, "u1", ModuleConstellation, "", NewPermissionSet(PermProjectCreate))
	mr.FastForward(2 * time.Minute)

	_, ok := cache.Get(ctx, "u1", ModuleConstellation, "")
	assert.False(t, ok)
}

func TestResolverUsesCache(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	cache, _ := newTestCache(t)
	resolver := NewResolver(store.Repositories(), nil).WithCache(cache)

	profile := createSecurityProfile(t, store, "creators", PermProjectCreate)
	user := createTestUser(t, store, "alice@example.com")
	require.NoError(t, store.Users.SetSecurityProfiles(ctx, user.ID, []string{profile.ID}))

	first, err := resolver.Resolve(ctx, user.ID, ModuleConstellation)
	require.NoError(t, err)

	// This store has no cache attached, so the cached set is served until
	// an explicit invalidation.
	require.NoError(t, store.Users.SetSecurityProfiles(ctx, user.ID, nil))
	second, err := resolver.Resolve(ctx, user.ID, ModuleConstellation)
	require.NoError(t, err)
	assert.True(t, second.Equal(first))

	cache.Invalidate(ctx, user.ID)
	third, err := resolver.Resolve(ctx, user.ID, ModuleConstellation)
	require.NoError(t, err)
	assert.Equal(t, 0, third.Len())
}

func TestResolutionCacheFlush(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	cache.Set(ctx, "u1", ModuleConstellation, "", NewPermissionSet(PermProjectCreate))
	cache.Set(ctx, "u2", ModuleViewer3d, "", NewPermissionSet(PermModelView))

	cache.Flush(ctx)

	_, ok := cache.Get(ctx, "u1", ModuleConstellation, "")
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "u2", ModuleViewer3d, "")
	assert.False(t, ok)
}

func TestProfileUpdateDropsCachedResolutions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	cache, _ := newTestCache(t)
	store.WithResolutionCache(cache)
	resolver := NewResolver(store.Repositories(), nil).WithCache(cache)

	profile := createSecurityProfile(t, store, "creators", PermProjectCreate)
	user := createTestUser(t, store, "alice@example.com")
	require.NoError(t, store.Users.SetSecurityProfiles(ctx, user.ID, []string{profile.ID}))

	first, err := resolver.Resolve(ctx, user.ID, ModuleConstellation)
	require.NoError(t, err)
	require.True(t, first.Contains(PermProjectCreate))

	// Narrowing the profile must not leave the old grant cached.
	profile.Permissions = []PermissionID{}
	require.NoError(t, store.SecurityProfiles.Update(ctx, profile))

	second, err := resolver.Resolve(ctx, user.ID, ModuleConstellation)
	require.NoError(t, err)
	assert.False(t, second.Contains(PermProjectCreate))
}

func TestUserWritesInvalidateCachedResolutions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	cache, _ := newTestCache(t)
	store.WithResolutionCache(cache)
	resolver := NewResolver(store.Repositories(), nil).WithCache(cache)

	profile := createSecurityProfile(t, store, "creators", PermProjectCreate)
	user := createTestUser(t, store, "bob@example.com")
	require.NoError(t, store.Users.SetSecurityProfiles(ctx, user.ID, []string{profile.ID}))

	first, err := resolver.Resolve(ctx, user.ID, ModuleConstellation)
	require.NoError(t, err)
	require.True(t, first.Contains(PermProjectCreate))

	require.NoError(t, store.Users.SetSecurityProfiles(ctx, user.ID, nil))

	second, err := resolver.Resolve(ctx, user.ID, ModuleConstellation)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Len())
}

func TestGroupWritesFlushCachedResolutions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	cache, _ := newTestCache(t)
	store.WithResolutionCache(cache)

	profile := createSecurityProfile(t, store, "ops", PermProjectCreate)
	group := createConstellationGroup(t, store, "team", profile.ID, "p1")

	cache.Set(ctx, "someone", ModuleConstellation, "", NewPermissionSet(PermProjectCreate))
	require.NoError(t, store.Groups.UnlinkProject(ctx, group.ID, "p1"))

	// Membership is not tracked on the group row, so the flush is global.
	_, ok := cache.Get(ctx, "someone", ModuleConstellation, "")
	assert.False(t, ok)
}
