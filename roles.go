package eventhive

// UserType is the account category assigned at registration. The backend
// issues tokens scoped to exactly one of these.
type UserType string

const (
	// UserTypeUser is a regular attendee account
	UserTypeUser UserType = "USER"
	// UserTypeOrganization is an event-hosting organization account
	UserTypeOrganization UserType = "ORGANIZATION"
	// UserTypeAdmin is a platform administrator account
	UserTypeAdmin UserType = "ADMIN"
)

// Canonical navigation targets. A guard decision redirects to one of these.
const (
	PublicHomePath     = "/"
	SignInPath         = "/signin"
	SignUpPath         = "/signup"
	UserDashboardPath  = "/users/dashboard"
	OrgDashboardPath   = "/organizations/dashboard"
	AdminDashboardPath = "/admin/dashboard"
)

// IsValid checks if the type is one of the predefined account categories
func (t UserType) IsValid() bool {
	switch t {
	case UserTypeUser, UserTypeOrganization, UserTypeAdmin:
		return true
	default:
		return false
	}
}

// DashboardPath returns the canonical dashboard for this account type.
// Unknown types land on the public home page.
func (t UserType) DashboardPath() string {
	switch t {
	case UserTypeUser:
		return UserDashboardPath
	case UserTypeOrganization:
		return OrgDashboardPath
	case UserTypeAdmin:
		return AdminDashboardPath
	default:
		return PublicHomePath
	}
}

// GetAllUserTypes returns all predefined account types
func GetAllUserTypes() []UserType {
	return []UserType{
		UserTypeUser,
		UserTypeOrganization,
		UserTypeAdmin,
	}
}

// ParseUserType safely parses a string into a UserType
func ParseUserType(s string) (UserType, bool) {
	t := UserType(s)
	return t, t.IsValid()
}
