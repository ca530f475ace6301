package access

import "sort"

// PermissionSet is a deduplicated, unordered collection of permission
// identifiers. Equality is by permission value, not object identity.
type PermissionSet map[PermissionID]struct{}

// NewPermissionSet builds a set from the given permissions, deduplicating.
func NewPermissionSet(perms ...PermissionID) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Add inserts a permission. Adding an existing value is a no-op.
func (s PermissionSet) Add(p PermissionID) {
	s[p] = struct{}{}
}

// Contains reports whether the set holds the permission.
func (s PermissionSet) Contains(p PermissionID) bool {
	_, ok := s[p]
	return ok
}

// ContainsAny reports whether the set holds at least one of the given
// permissions. An empty requirement list is never satisfied.
func (s PermissionSet) ContainsAny(perms ...PermissionID) bool {
	for _, p := range perms {
		if s.Contains(p) {
			return true
		}
	}
	return false
}

// Len returns the number of distinct permissions.
func (s PermissionSet) Len() int {
	return len(s)
}

// Equal reports whether both sets hold exactly the same permissions.
func (s PermissionSet) Equal(other PermissionSet) bool {
	if len(s) != len(other) {
		return false
	}
	for p := range s {
		if !other.Contains(p) {
			return false
		}
	}
	return true
}

// Values returns the permissions as a sorted slice. Sorting is for stable
// output only; the set itself has no defined enumeration order.
func (s PermissionSet) Values() []PermissionID {
	out := make([]PermissionID, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FilterPrefix returns a new set holding only the permissions whose
// identifier starts with the given prefix.
func (s PermissionSet) FilterPrefix(prefix string) PermissionSet {
	out := make(PermissionSet)
	for p := range s {
		if len(p) >= len(prefix) && string(p[:len(prefix)]) == prefix {
			out[p] = struct{}{}
		}
	}
	return out
}

// Union merges any number of sets into a new one. Idempotent, commutative
// and associative.
func Union(sets ...PermissionSet) PermissionSet {
	out := make(PermissionSet)
	for _, set := range sets {
		for p := range set {
			out[p] = struct{}{}
		}
	}
	return out
}

// Difference returns the permissions present in a but absent from b.
func Difference(a, b PermissionSet) PermissionSet {
	out := make(PermissionSet)
	for p := range a {
		if !b.Contains(p) {
			out[p] = struct{}{}
		}
	}
	return out
}

// WouldNarrow reports whether replacing oldSet with newSet loses at least
// one permission. Callers use this as a "confirmation required" signal
// before committing a profile or group reassignment; the engine never
// blocks the change itself.
func WouldNarrow(oldSet, newSet PermissionSet) bool {
	return Difference(oldSet, newSet).Len() > 0
}
