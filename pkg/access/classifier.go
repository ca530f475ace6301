package access

// ModuleSet is a set of access modules.
type ModuleSet map[Module]struct{}

// Contains reports whether the set holds the module.
func (s ModuleSet) Contains(m Module) bool {
	_, ok := s[m]
	return ok
}

// ModulesWithRole returns every module for which the assignments grant the
// given role. Absent or empty assignment lists yield an empty set.
func ModulesWithRole(assignments []AccessAssignment, role Role) ModuleSet {
	out := make(ModuleSet)
	for _, a := range assignments {
		for _, r := range a.Roles {
			if r == role {
				out[a.Module] = struct{}{}
				break
			}
		}
	}
	return out
}

// IsAdminOf reports whether the assignments grant the admin role for the
// module. Admins bypass fine-grained permission checks entirely, so this
// must be answered before any profile lookup.
func IsAdminOf(assignments []AccessAssignment, module Module) bool {
	return ModulesWithRole(assignments, RoleAdmin).Contains(module)
}

// IsMemberOf reports whether the assignments grant any role for the module.
func IsMemberOf(assignments []AccessAssignment, module Module) bool {
	for _, a := range assignments {
		if a.Module == module && len(a.Roles) > 0 {
			return true
		}
	}
	return false
}

// Modules returns every module the assignments grant any role in.
func Modules(assignments []AccessAssignment) []Module {
	seen := make(ModuleSet)
	var out []Module
	for _, a := range assignments {
		if len(a.Roles) == 0 {
			continue
		}
		if seen.Contains(a.Module) {
			continue
		}
		seen[a.Module] = struct{}{}
		out = append(out, a.Module)
	}
	return out
}
