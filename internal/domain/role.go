package domain

// Role is the kind of account. It decides which external id is mandatory.
type Role string

const (
	RoleCaregiver Role = "caregiver"
	RolePatient   Role = "patient"
)

// ValidRoles returns the set of valid user roles.
func ValidRoles() []Role {
	return []Role{RoleCaregiver, RolePatient}
}

// IsValidRole checks whether the given role string is a valid user role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles() {
		if string(r) == role {
			return true
		}
	}
	return false
}
