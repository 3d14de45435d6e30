package enums

import "fmt"

// AdminRole gates the integration admin surface.
type AdminRole string

const (
	AdminRoleOwner    AdminRole = "owner"
	AdminRoleOperator AdminRole = "operator"
	AdminRoleViewer   AdminRole = "viewer"
)

var validAdminRoles = []AdminRole{
	AdminRoleOwner,
	AdminRoleOperator,
	AdminRoleViewer,
}

func (r AdminRole) String() string {
	return string(r)
}

func (r AdminRole) IsValid() bool {
	for _, candidate := range validAdminRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// CanMutate reports whether the role may trigger syncs or resolve mappings.
func (r AdminRole) CanMutate() bool {
	return r == AdminRoleOwner || r == AdminRoleOperator
}

func ParseAdminRole(value string) (AdminRole, error) {
	for _, candidate := range validAdminRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid admin role %q", value)
}
