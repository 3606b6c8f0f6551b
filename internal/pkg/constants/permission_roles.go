package constants

// PermissionRoles maps each permission to the roles allowed to perform it.
// A permission missing from this map is denied for everyone (fail closed).
var PermissionRoles = map[string][]string{
	ViewListings:  {Farmer, Buyer, Admin},
	CreateListing: {Farmer},
	PlaceBid:      {Buyer},
	AcceptBid:     {Farmer},
	RejectBid:     {Farmer},
	FlagListing:   {Admin},
	RemoveListing: {Admin},
	BanUser:       {Admin},
	ViewUsers:     {Admin},
}

// AllowedRole returns true if role is in the list of allowed roles for the permission.
func AllowedRole(permission, role string) bool {
	roles, ok := PermissionRoles[permission]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
