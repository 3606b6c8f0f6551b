package constants

const (
	ViewListings  = "view_listings"
	CreateListing = "create_listing"
	PlaceBid      = "place_bid"
	AcceptBid     = "accept_bid"
	RejectBid     = "reject_bid"
	FlagListing   = "flag_listing"
	RemoveListing = "remove_listing"
	BanUser       = "ban_user"
	ViewUsers     = "view_users"
)
