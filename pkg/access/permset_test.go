package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermissionSetDeduplicates(t *testing.T) {
	set := NewPermissionSet(PermProjectCreate, PermProjectCreate, PermUserManage)
	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Contains(PermProjectCreate))
	assert.True(t, set.Contains(PermUserManage))
	assert.False(t, set.Contains(PermGroupManage))
}

func TestPermissionSetContainsAny(t *testing.T) {
	set := NewPermissionSet(PermProjectView, PermProjectEdit)

	assert.True(t, set.ContainsAny(PermProjectEdit, PermProjectInvite))
	assert.False(t, set.ContainsAny(PermProjectInvite, PermProjectGroupManage))
	assert.False(t, set.ContainsAny(), "empty requirement list is never satisfied")
}

func TestUnionProperties(t *testing.T) {
	a := NewPermissionSet(PermProjectCreate, PermUserManage)
	b := NewPermissionSet(PermUserManage, PermGroupManage)

	union := Union(a, b)
	assert.Equal(t, 3, union.Len())

	// Commutative and idempotent.
	assert.True(t, union.Equal(Union(b, a)))
	assert.True(t, union.Equal(Union(union, union)))

	// Inputs are untouched.
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 2, b.Len())
}

func TestDifference(t *testing.T) {
	a := NewPermissionSet(PermProjectView, PermProjectEdit, PermProjectInvite)
	b := NewPermissionSet(PermProjectEdit)

	diff := Difference(a, b)
	assert.Equal(t, 2, diff.Len())
	assert.True(t, diff.Contains(PermProjectView))
	assert.True(t, diff.Contains(PermProjectInvite))

	assert.Equal(t, 0, Difference(b, a).Len())
}

func TestWouldNarrow(t *testing.T) {
	current := NewPermissionSet(PermProjectView, PermProjectEdit)

	assert.True(t, WouldNarrow(current, NewPermissionSet(PermProjectView)))
	assert.False(t, WouldNarrow(current, NewPermissionSet(PermProjectView, PermProjectEdit)))
	assert.False(t, WouldNarrow(current, NewPermissionSet(PermProjectView, PermProjectEdit, PermProjectInvite)),
		"gaining permissions never narrows")
	assert.False(t, WouldNarrow(NewPermissionSet(), current), "empty set cannot narrow")
}

func TestValuesSorted(t *testing.T) {
	set := NewPermissionSet(PermUserManage, PermGroupManage, PermProjectCreate)
	values := set.Values()
	for i := 1; i < len(values); i++ {
		assert.Less(t, values[i-1], values[i])
	}
}

func TestFilterPrefix(t *testing.T) {
	set := NewPermissionSet(PermProjectView, PermProjectModelView, PermProjectMarkupCreate)

	viewer := set.FilterPrefix(Viewer3dPrefix)
	assert.Equal(t, 2, viewer.Len())
	assert.True(t, viewer.Contains(PermProjectModelView))
	assert.True(t, viewer.Contains(PermProjectMarkupCreate))
	assert.False(t, viewer.Contains(PermProjectView))
}
