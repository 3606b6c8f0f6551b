package constants

const (
	Farmer = "farmer"
	Buyer  = "buyer"
	Admin  = "admin"
)

// ValidRoles is the set of allowed values for User.Role.
var ValidRoles = []string{Farmer, Buyer, Admin}

// SignupRoles are the roles a user may pick at signup. Admin accounts are seeded,
// never self-registered.
var SignupRoles = []string{Farmer, Buyer}

func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

func IsSignupRole(role string) bool {
	for _, r := range SignupRoles {
		if r == role {
			return true
		}
	}
	return false
}
